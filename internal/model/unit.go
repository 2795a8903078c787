package model

// Unit is a single leaf resource record backing a reservation's
// concrete resource set once a plugin has actually allocated something
// (a VM, a VLAN, a slice of bandwidth) — the granularity at which the
// authority's inventory plugin primes, modifies, and releases
// resources (§3).
type Unit struct {
	ID            string
	ReservationID string
	SliceID       string
	State         UnitState
	Properties    map[string]string
	ParentID      string // set for a unit created by modifying another
}

// NewUnit builds a unit in its Default state, not yet handed to a
// plugin for priming.
func NewUnit(id, reservationID, sliceID string) *Unit {
	return &Unit{ID: id, ReservationID: reservationID, SliceID: sliceID, State: UnitDefault, Properties: map[string]string{}}
}

var unitEdges = map[UnitState]map[UnitState]bool{
	UnitDefault:   {UnitPriming: true, UnitFailed: true},
	UnitPriming:   {UnitActive: true, UnitFailed: true},
	UnitActive:    {UnitModifying: true, UnitClosing: true, UnitCloseWait: true, UnitFailed: true},
	UnitModifying: {UnitActive: true, UnitFailed: true},
	UnitClosing:   {UnitDefault: true, UnitFailed: true}, // released back to Default on a successful release, reused or discarded by inventory
	UnitCloseWait: {UnitDefault: true, UnitFailed: true},
	UnitFailed:    {},
}

func (u *Unit) transition(to UnitState, detail string) {
	if u.State == to {
		return
	}
	if edges, ok := unitEdges[u.State]; !ok || !edges[to] {
		panic(&InvariantViolation{Entity: "unit", From: u.State.String(), To: to.String(), Detail: detail})
	}
	u.State = to
}

// BeginPriming hands the unit to the plugin for allocation.
func (u *Unit) BeginPriming() { u.transition(UnitPriming, "begin-priming") }

// CompletePriming marks the unit allocated and ready for use.
func (u *Unit) CompletePriming() { u.transition(UnitActive, "complete-priming") }

// BeginModify starts an in-place modification of an active unit.
func (u *Unit) BeginModify() { u.transition(UnitModifying, "begin-modify") }

// CompleteModify returns a modified unit to Active.
func (u *Unit) CompleteModify() { u.transition(UnitActive, "complete-modify") }

// BeginClose starts releasing the unit's resources back to inventory.
func (u *Unit) BeginClose() { u.transition(UnitClosing, "begin-close") }

// CompleteClose finishes the release, returning the unit to Default.
func (u *Unit) CompleteClose() { u.transition(UnitDefault, "complete-close") }

// Fail moves the unit to its terminal Failed state from any non-failed
// state.
func (u *Unit) Fail(reason string) {
	if u.State == UnitFailed {
		return
	}
	u.State = UnitFailed
	u.Properties["failure_reason"] = reason
}
