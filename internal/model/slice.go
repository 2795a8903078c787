package model

// SliceType distinguishes an ordinary client slice from the actor's own
// inventory/broker bookkeeping slices (§3).
type SliceType int

const (
	SliceTypeClient SliceType = iota + 1
	SliceTypeInventory
	SliceTypeBroker
)

func (t SliceType) String() string {
	switch t {
	case SliceTypeClient:
		return "Client"
	case SliceTypeInventory:
		return "Inventory"
	case SliceTypeBroker:
		return "Broker"
	default:
		return "Unknown"
	}
}

// Slice groups the reservations and delegations a single owner manages
// as one unit for the management plane's add/remove/query operations
// (§3, §4.8).
type Slice struct {
	ID             string
	Name           string
	OwnerID        string
	Type           SliceType
	Properties     map[string]string
	ReservationIDs map[string]struct{}
	DelegationIDs  map[string]struct{}
	Dirty          bool
}

// NewSlice builds an empty slice.
func NewSlice(id, name, ownerID string, sliceType SliceType) *Slice {
	return &Slice{
		ID:             id,
		Name:           name,
		OwnerID:        ownerID,
		Type:           sliceType,
		Properties:     map[string]string{},
		ReservationIDs: map[string]struct{}{},
		DelegationIDs:  map[string]struct{}{},
	}
}

// AddReservation associates a reservation with this slice.
func (s *Slice) AddReservation(id string) {
	s.ReservationIDs[id] = struct{}{}
	s.Dirty = true
}

// RemoveReservation drops the association, if present.
func (s *Slice) RemoveReservation(id string) {
	delete(s.ReservationIDs, id)
	s.Dirty = true
}

// AddDelegation associates a delegation with this slice.
func (s *Slice) AddDelegation(id string) {
	s.DelegationIDs[id] = struct{}{}
	s.Dirty = true
}

// RemoveDelegation drops the association, if present.
func (s *Slice) RemoveDelegation(id string) {
	delete(s.DelegationIDs, id)
	s.Dirty = true
}

// IsEmpty reports whether the slice has no live reservations or
// delegations left — the condition the management plane checks before
// allowing a slice to be removed.
func (s *Slice) IsEmpty() bool {
	return len(s.ReservationIDs) == 0 && len(s.DelegationIDs) == 0
}
