package model

import "fmt"

// InvariantViolation is panicked by Reservation/Delegation transition
// methods when a caller attempts a transition the state machine forbids.
// Per the error-handling design (§7, §9), invariant violations are never
// returned as a recoverable error: the kernel's outer dispatch loop is
// the only place that recovers this panic, logs it, flushes, and aborts
// the process.
type InvariantViolation struct {
	Entity string
	From   string
	To     string
	Detail string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation on %s: %s -> %s (%s)", e.Entity, e.From, e.To, e.Detail)
}

// primaryEdge is one allowed (from, to) primary-state edge, independent
// of which pending transition accompanies it. Regressions (an edge not
// listed here) are a bug per §3's invariant and panic.
var primaryEdges = map[PrimaryState]map[PrimaryState]bool{
	Nascent:        {Ticketed: true, Failed: true},
	Ticketed:       {Ticketed: true, Active: true, Closed: true, Failed: true},
	Active:         {Active: true, ActiveTicketed: true, Closed: true, CloseWait: true, Failed: true},
	ActiveTicketed: {Active: true, ActiveTicketed: true, Closed: true, CloseWait: true, Failed: true},
	CloseWait:      {Closed: true, Failed: true},
	Closed:         {},
	Failed:         {},
}

// validatePrimary panics with *InvariantViolation if from->to is not an
// allowed edge. from == to is always allowed (a pending-only transition).
func validatePrimary(entity string, from, to PrimaryState, detail string) {
	if from == to {
		return
	}
	if edges, ok := primaryEdges[from]; ok && edges[to] {
		return
	}
	panic(&InvariantViolation{
		Entity: entity,
		From:   from.String(),
		To:     to.String(),
		Detail: detail,
	})
}

// delegationEdges mirrors primaryEdges for the delegation state machine:
// Nascent -> Delegated on grant; Delegated <-> Reclaimed; any -> Closed;
// any -> Failed.
var delegationEdges = map[DelegationState]map[DelegationState]bool{
	DelegationNascent:    {DelegationDelegated: true, DelegationClosed: true, DelegationFailed: true},
	DelegationDelegated:  {DelegationReclaimed: true, DelegationClosed: true, DelegationFailed: true},
	DelegationReclaimed:  {DelegationDelegated: true, DelegationClosed: true, DelegationFailed: true},
	DelegationClosed:     {},
	DelegationFailed:     {},
}

func validateDelegation(from, to DelegationState, detail string) {
	if from == to {
		return
	}
	if edges, ok := delegationEdges[from]; ok && edges[to] {
		return
	}
	panic(&InvariantViolation{
		Entity: "delegation",
		From:   from.String(),
		To:     to.String(),
		Detail: detail,
	})
}

// mutatingAtRecovery lists (primary, pending) combinations that only
// ever exist transiently between an outbound send and its response
// (§4.7, §8's crash-recover property). A row can only be found parked
// in one of these at load time if the kernel had an outbound request
// in flight for it when it crashed — and the kernel always sets
// pending_recover=true on the reservation before that request leaves
// the process (§4.5). So finding one of these combinations WITH
// pending_recover=true is the expected crash-recover path (the request
// is re-issued, per the crash-recover scenario); finding it WITHOUT
// pending_recover=true means the flag was lost or never set, which
// cannot happen without a bug upstream, and is a fatal invariant
// violation rather than a silently accepted recovered state.
var mutatingAtRecovery = map[PrimaryState]map[PendingState]bool{
	Ticketed:       {Redeeming: true},
	Active:         {ExtendingTicket: true},
	ActiveTicketed: {ExtendingLease: true},
}

// ValidateRecoveredState panics if (primary, pending) is a mutating
// combination recovered without pending_recover set.
func ValidateRecoveredState(primary PrimaryState, pending PendingState, pendingRecover bool) {
	if mutatingAtRecovery[primary][pending] && !pendingRecover {
		panic(&InvariantViolation{
			Entity: "reservation",
			From:   fmt.Sprintf("%s/%s", primary, pending),
			To:     fmt.Sprintf("%s/%s", primary, pending),
			Detail: "mutating combination recovered without pending_recover set",
		})
	}
}

// ValidateRecoveredDelegationState is ValidateRecoveredState's delegation
// analog: any delegation loaded with its pending gate open must also
// carry pending_recover, or the flag was lost before the crash that
// orphaned the in-flight claim/reclaim — a fatal invariant violation,
// not a silently accepted recovered state.
func ValidateRecoveredDelegationState(pending DelegationPendingState, pendingRecover bool) {
	if pending.Gated() && !pendingRecover {
		panic(&InvariantViolation{
			Entity: "delegation",
			From:   pending.String(),
			To:     pending.String(),
			Detail: "mutating combination recovered without pending_recover set",
		})
	}
}
