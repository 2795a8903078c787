package model

// PrimaryState is the reservation's composite primary state (§4.2).
type PrimaryState int

const (
	Nascent PrimaryState = iota + 1
	Ticketed
	Active
	ActiveTicketed
	Closed
	CloseWait
	Failed
)

func (s PrimaryState) String() string {
	switch s {
	case Nascent:
		return "Nascent"
	case Ticketed:
		return "Ticketed"
	case Active:
		return "Active"
	case ActiveTicketed:
		return "ActiveTicketed"
	case Closed:
		return "Closed"
	case CloseWait:
		return "CloseWait"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s PrimaryState) Terminal() bool { return s == Closed || s == Failed }

// PendingState is the gate: while non-None, the kernel refuses a new
// outbound request for the reservation (§4.2, §4.3).
type PendingState int

const (
	PendingNone PendingState = iota + 1
	Ticketing
	Redeeming
	ExtendingTicket
	ExtendingLease
	Priming
	Blocked
	Closing
	Probing
	ClosingJoining
	ModifyingLease
	SendUpdate
)

// AbsorbUpdate is a second name for the same pending value as
// ModifyingLease. The original source defines two distinct enumerators
// both named AbsorbUpdate with value 11 (spec §9 Open Question); we
// preserve both names and resolve them to one value rather than guess
// which was the typo.
const AbsorbUpdate = ModifyingLease

func (s PendingState) String() string {
	switch s {
	case PendingNone:
		return "None"
	case Ticketing:
		return "Ticketing"
	case Redeeming:
		return "Redeeming"
	case ExtendingTicket:
		return "ExtendingTicket"
	case ExtendingLease:
		return "ExtendingLease"
	case Priming:
		return "Priming"
	case Blocked:
		return "Blocked"
	case Closing:
		return "Closing"
	case Probing:
		return "Probing"
	case ClosingJoining:
		return "ClosingJoining"
	case ModifyingLease:
		// Also known as AbsorbUpdate; see the constant's doc comment.
		return "ModifyingLease"
	case SendUpdate:
		return "SendUpdate"
	default:
		return "Unknown"
	}
}

// Gated reports whether the pending gate blocks new outbound RPC for a
// reservation in this pending state. Per spec §9 Open Question, Blocked
// is gated like every other non-None pending state and is only cleared
// by an explicit Reservation.Unblock call, never retried automatically
// on tick.
func (s PendingState) Gated() bool { return s != PendingNone }

// JoinState applies only to controller (orchestrator) reservations that
// join multiple sub-reservations (§4.2).
type JoinState int

const (
	JoinNone JoinState = iota + 1
	NoJoin
	BlockedJoin
	BlockedRedeem
	Joining
)

func (s JoinState) String() string {
	switch s {
	case JoinNone:
		return "None"
	case NoJoin:
		return "NoJoin"
	case BlockedJoin:
		return "BlockedJoin"
	case BlockedRedeem:
		return "BlockedRedeem"
	case Joining:
		return "Joining"
	default:
		return "Unknown"
	}
}

// Category fixes the reservation's role at creation (§3).
type Category int

const (
	CategoryClient Category = iota + 1
	CategoryBroker
	CategoryAuthority
)

func (c Category) String() string {
	switch c {
	case CategoryClient:
		return "Client"
	case CategoryBroker:
		return "Broker"
	case CategoryAuthority:
		return "Authority"
	default:
		return "Unknown"
	}
}

// DelegationState is the delegation state machine (§4.2 last paragraph).
type DelegationState int

const (
	DelegationNascent DelegationState = iota + 1
	DelegationDelegated
	DelegationReclaimed
	DelegationClosed
	DelegationFailed
)

func (s DelegationState) String() string {
	switch s {
	case DelegationNascent:
		return "Nascent"
	case DelegationDelegated:
		return "Delegated"
	case DelegationReclaimed:
		return "Reclaimed"
	case DelegationClosed:
		return "Closed"
	case DelegationFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// DelegationPendingState is a delegation's own pending gate, mirroring
// PendingState's role for reservations: while non-None, the delegation
// has an outbound claim/reclaim round trip in flight and may not start
// another (grounded on original_source's delegation.py, whose claim()
// and reclaim() both refuse to re-enter while must_send_update is set).
type DelegationPendingState int

const (
	DelegationPendingNone DelegationPendingState = iota + 1
	Claiming
	Reclaiming
)

func (s DelegationPendingState) String() string {
	switch s {
	case DelegationPendingNone:
		return "None"
	case Claiming:
		return "Claiming"
	case Reclaiming:
		return "Reclaiming"
	default:
		return "Unknown"
	}
}

// Gated reports whether the delegation's pending gate blocks a new
// outbound claim/reclaim request.
func (s DelegationPendingState) Gated() bool { return s != DelegationPendingNone }

// UnitState is the leaf resource record's state (§3).
type UnitState int

const (
	UnitDefault UnitState = iota + 1
	UnitPriming
	UnitActive
	UnitModifying
	UnitClosing
	UnitFailed
	UnitCloseWait
)

func (s UnitState) String() string {
	switch s {
	case UnitDefault:
		return "Default"
	case UnitPriming:
		return "Priming"
	case UnitActive:
		return "Active"
	case UnitModifying:
		return "Modifying"
	case UnitClosing:
		return "Closing"
	case UnitFailed:
		return "Failed"
	case UnitCloseWait:
		return "CloseWait"
	default:
		return "Unknown"
	}
}

// HoldsResources reports whether units may exist while the reservation
// is in this primary state (§3 invariant).
func HoldsResources(s PrimaryState) bool {
	switch s {
	case Ticketed, Active, ActiveTicketed, CloseWait:
		return true
	default:
		return false
	}
}
