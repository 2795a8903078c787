package kernel

import (
	"github.com/fabric-actor/kernel/internal/clock"
	"github.com/fabric-actor/kernel/internal/model"
	"github.com/fabric-actor/kernel/pkg/apierr"
)

// TickEvent drives one cycle's worth of scheduled work (§4.3 item 1):
// policy.Prepare, drain the closing/renewing/redeeming buckets (each
// entry gates and dispatches its outbound RPC), checkPending, then
// policy.Finish followed by calendar.Tick.
type TickEvent struct {
	Cycle int64
}

func (ev TickEvent) Handle(k *Kernel) error {
	if err := k.policy.Prepare(k.calendar, ev.Cycle); err != nil {
		return err
	}

	k.drainClosing(ev.Cycle)
	k.drainRenewing(ev.Cycle)
	k.drainRedeeming(ev.Cycle)
	k.drainDemand(ev.Cycle)
	k.checkPending()

	if err := k.policy.Finish(k.calendar, ev.Cycle); err != nil {
		return err
	}
	k.calendar.Tick(ev.Cycle)
	return nil
}

func (k *Kernel) drainClosing(cycle int64) {
	for _, id := range k.calendar.Get(clock.BucketClosing, cycle) {
		r, ok := k.reservations[id]
		if !ok || !r.CanSendRequest() || r.Primary.Terminal() {
			continue
		}
		r.BeginClose()
		k.sendAndFlush(r, model.Closing)
	}
}

func (k *Kernel) drainRenewing(cycle int64) {
	for _, id := range k.calendar.Get(clock.BucketRenewing, cycle) {
		r, ok := k.reservations[id]
		if !ok || !r.CanSendRequest() || r.Primary != model.Active {
			continue
		}
		if err := k.policy.Extend(r); err != nil {
			r.Fail(err.Error())
			k.Flush(r)
			continue
		}
		r.BeginExtendTicket()
		k.sendAndFlush(r, model.ExtendingTicket)
	}
}

func (k *Kernel) drainRedeeming(cycle int64) {
	for _, id := range k.calendar.Get(clock.BucketRedeeming, cycle) {
		r, ok := k.reservations[id]
		if !ok || !r.CanSendRequest() || r.Primary != model.Ticketed {
			continue
		}
		r.BeginRedeem()
		k.sendAndFlush(r, model.Redeeming)
	}
}

func (k *Kernel) sendAndFlush(r *model.Reservation, pending model.PendingState) {
	if k.dispatcher != nil {
		if err := k.dispatcher.Dispatch(pending, r); err != nil {
			r.Block()
			k.log.WithFields(map[string]any{"reservation": r.ID, "pending": pending.String()}).
				Warn("dispatch failed, blocking reservation: " + err.Error())
		}
	}
	if err := k.Flush(r); err != nil {
		k.log.WithFields(map[string]any{"reservation": r.ID}).Warn("flush failed: " + err.Error())
	}
}

// Batcher is implemented by a policy that groups reservations into
// all-or-nothing admission batches (§4.4's ticket-review semantics,
// policy.TicketReview); drainDemand type-asserts for it so the kernel
// stays agnostic of which concrete policy is wired, the same consumer-
// defined-interface pattern as Gateway/Dispatcher/Metrics.
type Batcher interface {
	ReviewBatch(batchID string, reservations []*model.Reservation, decide func(*model.Reservation) error) error
}

// drainDemand binds every reservation placed in the Demand bucket since
// the last cycle (management.Base.AddReservation puts freshly demanded
// reservations there). Unbatched reservations are admitted one at a
// time via policy.Bind, exactly as handleTicket does for an inbound
// ticket request; reservations sharing a BatchID are instead admitted
// together through Batcher.ReviewBatch, so a single rejection fails
// every member of the batch before any of them is bound.
func (k *Kernel) drainDemand(cycle int64) {
	ids := k.calendar.Get(clock.BucketDemand, cycle)
	if len(ids) == 0 {
		return
	}
	batcher, hasBatcher := k.policy.(Batcher)

	batches := make(map[string][]*model.Reservation)
	var batchOrder []string
	for _, id := range ids {
		r, ok := k.reservations[id]
		if !ok {
			k.calendar.Remove(id)
			continue
		}
		if r.BatchID != "" && hasBatcher {
			if _, seen := batches[r.BatchID]; !seen {
				batchOrder = append(batchOrder, r.BatchID)
			}
			batches[r.BatchID] = append(batches[r.BatchID], r)
			continue
		}
		k.bindDemanded(r)
	}

	for _, batchID := range batchOrder {
		members := batches[batchID]
		err := batcher.ReviewBatch(batchID, members, func(r *model.Reservation) error {
			if r.Requested.IsEmpty() {
				return apierr.InvalidReservation(r.ID, "requested zero units")
			}
			return nil
		})
		if err != nil {
			k.log.WithFields(map[string]any{"batch": batchID}).Warn("ticket review batch failed: " + err.Error())
		}
		for _, r := range members {
			k.calendar.Remove(r.ID)
			if ferr := k.Flush(r); ferr != nil {
				k.log.WithFields(map[string]any{"reservation": r.ID}).Warn("flush failed: " + ferr.Error())
			}
		}
	}
}

func (k *Kernel) bindDemanded(r *model.Reservation) {
	if err := k.policy.Bind(r); err != nil {
		r.Fail(err.Error())
	}
	k.calendar.Remove(r.ID)
	if err := k.Flush(r); err != nil {
		k.log.WithFields(map[string]any{"reservation": r.ID}).Warn("flush failed: " + err.Error())
	}
}

// checkPending is the extension point for promoting reservations whose
// outbound RPC has already returned by the time this Tick runs. In this
// implementation, RPC completions are their own IncomingRPCEvent and
// apply themselves the moment they're dispatched by the kernel loop, so
// there is nothing left queued here; policies that want tick-batched
// promotion (see policy.BatchOnTick) hook policy.Finish instead.
func (k *Kernel) checkPending() {}

// IncomingRPCEvent wraps a role/request-type-dispatched inbound RPC
// (§4.3 item 2). Handler does the actual per-request-type work and is
// supplied by the proxy/management layer that decoded the request.
type IncomingRPCEvent struct {
	ReservationID string
	SequenceIn    int
	Handler       func(k *Kernel, r *model.Reservation) error
}

func (ev IncomingRPCEvent) Handle(k *Kernel) error {
	r, ok := k.Reservation(ev.ReservationID)
	if !ok {
		return nil
	}
	if ev.SequenceIn <= r.Seq.In {
		// Idempotent ignore of a stale/duplicate message (§4.5, §3 invariant).
		return nil
	}
	r.Seq.In = ev.SequenceIn
	if err := ev.Handler(k, r); err != nil {
		return err
	}
	return k.Flush(r)
}

// LocalCommandEvent wraps a management-plane command, following the
// same discipline as an inbound RPC (§4.3 item 3).
type LocalCommandEvent struct {
	Handler func(k *Kernel) error
}

func (ev LocalCommandEvent) Handle(k *Kernel) error { return ev.Handler(k) }

// FailedRPCEvent carries a synthesized or remote Failed-RPC notice
// correlated back to the reservation/delegation that issued the
// request (§4.5).
type FailedRPCEvent struct {
	ReservationID string
	Permanent     bool
	Notice        string
	Retry         func(k *Kernel, r *model.Reservation) error
}

func (ev FailedRPCEvent) Handle(k *Kernel) error {
	r, ok := k.Reservation(ev.ReservationID)
	if !ok {
		return nil
	}
	if ev.Permanent || ev.Retry == nil {
		r.Fail(ev.Notice)
		return k.Flush(r)
	}
	if err := ev.Retry(k, r); err != nil {
		r.Fail(err.Error())
	}
	return k.Flush(r)
}

// IncomingDelegationRPCEvent is IncomingRPCEvent's delegation analog: a
// role/request-type-dispatched response to an outbound claim or reclaim
// (§C.1).
type IncomingDelegationRPCEvent struct {
	DelegationID string
	SequenceIn   int
	Handler      func(k *Kernel, d *model.Delegation) error
}

func (ev IncomingDelegationRPCEvent) Handle(k *Kernel) error {
	d, ok := k.Delegation(ev.DelegationID)
	if !ok {
		return nil
	}
	if !d.AcceptUpdate(ev.SequenceIn) {
		// Idempotent ignore of a stale/duplicate message (§4.5, §3 invariant).
		return nil
	}
	if err := ev.Handler(k, d); err != nil {
		return err
	}
	return k.FlushDelegation(d)
}

// FailedDelegationRPCEvent is FailedRPCEvent's delegation analog: a
// synthesized or remote Failed-RPC notice correlated back to the
// delegation that issued the claim/reclaim request.
type FailedDelegationRPCEvent struct {
	DelegationID string
	Permanent    bool
	Notice       string
	Retry        func(k *Kernel, d *model.Delegation) error
}

func (ev FailedDelegationRPCEvent) Handle(k *Kernel) error {
	d, ok := k.Delegation(ev.DelegationID)
	if !ok {
		return nil
	}
	if ev.Permanent || ev.Retry == nil {
		d.Fail(ev.Notice)
		return k.FlushDelegation(d)
	}
	if err := ev.Retry(k, d); err != nil {
		d.Fail(err.Error())
	}
	return k.FlushDelegation(d)
}
