// Package policy implements the pluggable admission, allocation and
// renewal logic the kernel hands each reservation to (§4.4). Policy
// decisions are hints: the kernel still enforces the state machine and
// the pending gate. A Policy implementation mutates a reservation's
// approved term/resources and the calendar, and changes its composite
// state only through the model's validated transition methods
// (Reservation.Bind on admission, Reservation.Fail on rejection).
package policy

import (
	"github.com/fabric-actor/kernel/internal/clock"
	"github.com/fabric-actor/kernel/internal/model"
)

// Policy is the capability set every admission/allocation strategy
// implements. The kernel calls these at well-defined points in the
// event loop (§4.3) and during recovery (§4.7); it never calls a
// reservation's state-machine methods on the policy's behalf.
type Policy interface {
	// Bind decides whether to admit a new (Nascent) reservation,
	// filling in its approved term/resources and moving it to
	// Ticketed (possibly deferred, as BatchOnTick does). Returning an error
	// leaves the decision to the caller to fail the reservation.
	Bind(r *model.Reservation) error

	// Extend decides the next renewal's approved term/resources for
	// an Active reservation whose renew time has been reached.
	Extend(r *model.Reservation) error

	// CorrelateUpdate reconciles an unsolicited update (a lease or
	// ticket update arriving without a matching outbound request)
	// against the reservation's current approved state.
	CorrelateUpdate(r *model.Reservation, resources model.ResourceSet, term model.Term) error

	// ChooseRenewCycle picks the cycle at which r should be placed in
	// the renewing bucket, ahead of its current term's end.
	ChooseRenewCycle(r *model.Reservation, now int64) int64

	// ChooseRedeemCycle picks the cycle at which r should be placed
	// in the redeeming bucket after a successful bind.
	ChooseRedeemCycle(r *model.Reservation, now int64) int64

	// ChooseCloseCycle picks the cycle at which r should be placed in
	// the closing bucket, normally its term's end.
	ChooseCloseCycle(r *model.Reservation, now int64) int64

	// Allocate assigns concrete resources (units) to an approved
	// reservation — the authority-side inventory decision.
	Allocate(r *model.Reservation, cal *clock.Calendar) error

	// Release returns a closed or failed reservation's resources to
	// the free pool.
	Release(r *model.Reservation, cal *clock.Calendar) error

	// Revisit re-inserts a recovered reservation into the calendar
	// buckets matching its persisted (primary, pending), called once
	// per reservation during §4.7 recovery.
	Revisit(r *model.Reservation, cal *clock.Calendar, now int64) error

	// Prepare is called once per Tick before any bucket is drained.
	Prepare(cal *clock.Calendar, cycle int64) error

	// Finish is called once per Tick after check_pending, before the
	// calendar's own Tick advances its cursors.
	Finish(cal *clock.Calendar, cycle int64) error
}

// Clock abstracts the single method policies need from *clock.Clock, so
// a policy can be tested without constructing a full Clock.
type Clock interface {
	Now() int64
}
