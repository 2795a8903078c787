// Package management implements the synchronous management-plane API
// of §4.9: add/remove/update slice and reservation, claim/reclaim
// delegation, list-by-state queries, and filtered event subscription.
// Every call is authorized, then executed as a kernel.LocalCommandEvent
// so it observes the actor's state the same way any other kernel event
// does — through the queue, never by reaching into the kernel's maps
// from another goroutine.
package management

import (
	"context"

	"github.com/fabric-actor/kernel/internal/clock"
	"github.com/fabric-actor/kernel/internal/kernel"
	"github.com/fabric-actor/kernel/internal/model"
	"github.com/fabric-actor/kernel/internal/persistence"
	"github.com/fabric-actor/kernel/pkg/apierr"
	"github.com/fabric-actor/kernel/pkg/logger"
)

// batchAssigner is implemented by a policy (policy.TicketReview) that
// supports grouping reservations into all-or-nothing review batches;
// type-asserted so Base stays agnostic of which concrete policy is
// wired, the same pattern kernel.Batcher uses on the kernel side.
type batchAssigner interface {
	AssignBatch(batchID, reservationID string)
}

// Base is the shared implementation every role object
// (Controller/Broker/Authority) embeds, mirroring the teacher's
// decomposition of a generic CRUD surface with role-specific methods
// layered on top.
type Base struct {
	log    *logger.Logger
	k      *kernel.Kernel
	gw     persistence.Gateway
	access AccessChecker
	events *EventBus
}

// NewBase builds a Base wired to one actor's kernel. gw may be nil for
// management objects that only mutate in-memory state and let the
// kernel's own Flush calls persist it.
func NewBase(k *kernel.Kernel, gw persistence.Gateway, access AccessChecker, log *logger.Logger) *Base {
	if log == nil {
		log = logger.NewDefault()
	}
	if access == nil {
		access = NewJWTAccessChecker("", nil)
	}
	return &Base{k: k, gw: gw, access: access, log: log, events: NewEventBus()}
}

// Events returns the subscription bus feeding filtered reservation
// updates to management-plane listeners (§4.9's "subscribe to events
// with a filter").
func (b *Base) Events() *EventBus { return b.events }

// call authorizes the request, then runs fn synchronously on the
// kernel's own loop goroutine and waits for it to finish — the "builds
// a response on the kernel thread before returning" rule of §5.
func (b *Base) call(ctx context.Context, token, action, resourceType, resourceID string, fn func(k *kernel.Kernel) error) error {
	if err := b.access.Check(ctx, token, action, resourceType, resourceID); err != nil {
		return err
	}

	done := make(chan error, 1)
	err := b.k.Enqueue(kernel.LocalCommandEvent{
		Handler: func(k *kernel.Kernel) error {
			err := fn(k)
			done <- err
			return err
		},
	})
	if err != nil {
		return err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return apierr.InternalError("management call timed out waiting for kernel", ctx.Err())
	}
}

// AddSlice registers a new slice.
func (b *Base) AddSlice(ctx context.Context, token string, s *model.Slice) error {
	return b.call(ctx, token, "add_slice", "slice", s.ID, func(k *kernel.Kernel) error {
		k.PutSlice(s)
		return k.FlushSlice(s)
	})
}

// UpdateSlice overwrites an existing slice's mutable fields (name,
// properties). The slice must already exist.
func (b *Base) UpdateSlice(ctx context.Context, token string, sliceID string, mutate func(s *model.Slice)) error {
	return b.call(ctx, token, "update_slice", "slice", sliceID, func(k *kernel.Kernel) error {
		s, ok := k.Slice(sliceID)
		if !ok {
			return apierr.NoSuchSlice(sliceID)
		}
		mutate(s)
		s.Dirty = true
		return k.FlushSlice(s)
	})
}

// RemoveSlice drops a slice once it holds no live reservations or
// delegations (§4.9 implies remove is only valid on an empty slice;
// the kernel's registry otherwise orphans reservations on removal).
func (b *Base) RemoveSlice(ctx context.Context, token string, sliceID string) error {
	return b.call(ctx, token, "remove_slice", "slice", sliceID, func(k *kernel.Kernel) error {
		s, ok := k.Slice(sliceID)
		if !ok {
			return apierr.NoSuchSlice(sliceID)
		}
		if !s.IsEmpty() {
			return apierr.InvalidSlice(sliceID, "slice still has live reservations or delegations")
		}
		k.RemoveSlice(sliceID)
		return nil
	})
}

// Slice returns a snapshot copy of a slice, safe to read after the
// call returns (the kernel's own copy may continue mutating).
func (b *Base) Slice(ctx context.Context, token string, sliceID string) (model.Slice, error) {
	var out model.Slice
	err := b.call(ctx, token, "get_slice", "slice", sliceID, func(k *kernel.Kernel) error {
		s, ok := k.Slice(sliceID)
		if !ok {
			return apierr.NoSuchSlice(sliceID)
		}
		out = *s
		return nil
	})
	return out, err
}

// AddReservation registers a new reservation under an existing slice
// and places it in the Demand bucket, ready for the kernel's own
// drainDemand to bind it (individually, or as part of r.BatchID's
// all-or-nothing review batch) on the next tick.
func (b *Base) AddReservation(ctx context.Context, token string, sliceID string, r *model.Reservation) error {
	return b.call(ctx, token, "add_reservation", "reservation", r.ID, func(k *kernel.Kernel) error {
		s, ok := k.Slice(sliceID)
		if !ok {
			return apierr.NoSuchSlice(sliceID)
		}
		r.SliceID = sliceID
		k.PutReservation(r)
		s.AddReservation(r.ID)
		if r.BatchID != "" {
			if assigner, ok := k.Policy().(batchAssigner); ok {
				assigner.AssignBatch(r.BatchID, r.ID)
			}
		}
		k.Calendar().Add(clock.BucketDemand, r.ID, k.Clock().Now()+1)
		if err := k.Flush(r); err != nil {
			return err
		}
		return k.FlushSlice(s)
	})
}

// UpdateReservation applies a caller-supplied mutation (e.g. updated
// request properties carried in UpdateData) to an existing, still-live
// reservation and flushes it.
func (b *Base) UpdateReservation(ctx context.Context, token string, reservationID string, mutate func(r *model.Reservation)) error {
	return b.call(ctx, token, "update_reservation", "reservation", reservationID, func(k *kernel.Kernel) error {
		r, ok := k.Reservation(reservationID)
		if !ok {
			return apierr.NoSuchReservation(reservationID)
		}
		if r.Primary.Terminal() {
			return apierr.InvalidReservation(reservationID, "reservation is already terminal")
		}
		mutate(r)
		r.Dirty = true
		if err := k.Flush(r); err != nil {
			return err
		}
		b.events.publish(r)
		return nil
	})
}

// CloseReservation begins the §4.2 close transition: it opens the
// pending gate and dispatches the outbound close request exactly as
// the kernel's own drainClosing tick logic would, rather than
// synchronously marking the reservation Closed — completion still
// arrives as the peer's response, via the normal IncomingRPCEvent path.
func (b *Base) CloseReservation(ctx context.Context, token string, reservationID string) error {
	return b.call(ctx, token, "close_reservation", "reservation", reservationID, func(k *kernel.Kernel) error {
		r, ok := k.Reservation(reservationID)
		if !ok {
			return apierr.NoSuchReservation(reservationID)
		}
		if r.Primary.Terminal() {
			return nil
		}
		if !r.CanSendRequest() {
			return apierr.InvalidReservation(reservationID, "reservation already has an outbound request pending")
		}
		r.BeginClose()
		if d := k.Dispatcher(); d != nil {
			if err := d.Dispatch(model.Closing, r); err != nil {
				r.Block()
				return err
			}
		}
		b.events.publish(r)
		return k.Flush(r)
	})
}

// RemoveReservation drops a terminal reservation from the kernel's
// registry and its owning slice's membership set.
func (b *Base) RemoveReservation(ctx context.Context, token string, reservationID string) error {
	return b.call(ctx, token, "remove_reservation", "reservation", reservationID, func(k *kernel.Kernel) error {
		r, ok := k.Reservation(reservationID)
		if !ok {
			return apierr.NoSuchReservation(reservationID)
		}
		if !r.Primary.Terminal() {
			return apierr.InvalidReservation(reservationID, "reservation must be Closed or Failed before removal")
		}
		if s, ok := k.Slice(r.SliceID); ok {
			s.RemoveReservation(r.ID)
			if err := k.FlushSlice(s); err != nil {
				return err
			}
		}
		k.RemoveReservation(reservationID)
		return nil
	})
}

// QueryDelegation answers a property query against a delegation's
// opaque resource-pool graph (§6's Query/QueryResult wire kinds), the
// management-plane-visible read side of a claim that already landed:
// since the claiming actor already holds the peer's graph locally
// (folded in by CompleteClaim/handleUpdateDelegation), a query never
// needs its own outbound round trip — it reads Delegation.GraphProperty
// directly, the same gjson-based partial read the graph field exists
// for.
func (b *Base) QueryDelegation(ctx context.Context, token string, delegationID, path string) (string, error) {
	var out string
	err := b.call(ctx, token, "query_delegation", "delegation", delegationID, func(k *kernel.Kernel) error {
		d, ok := k.Delegation(delegationID)
		if !ok {
			return apierr.NoSuchDelegation(delegationID)
		}
		value, found := d.GraphProperty(path)
		if !found {
			return apierr.InvalidDelegation(delegationID, "no such graph property: "+path)
		}
		out = value
		return nil
	})
	return out, err
}

// Reservation returns a snapshot copy of one reservation.
func (b *Base) Reservation(ctx context.Context, token string, reservationID string) (model.Reservation, error) {
	var out model.Reservation
	err := b.call(ctx, token, "get_reservation", "reservation", reservationID, func(k *kernel.Kernel) error {
		r, ok := k.Reservation(reservationID)
		if !ok {
			return apierr.NoSuchReservation(reservationID)
		}
		out = *r
		return nil
	})
	return out, err
}

// ListReservationsByState returns a snapshot of every reservation whose
// primary state matches, the generic "list by state" query of §4.9.
func (b *Base) ListReservationsByState(ctx context.Context, token string, state model.PrimaryState) ([]model.Reservation, error) {
	var out []model.Reservation
	err := b.call(ctx, token, "list_reservations", "reservation", "", func(k *kernel.Kernel) error {
		for _, r := range k.Reservations() {
			if r.Primary == state {
				out = append(out, *r)
			}
		}
		return nil
	})
	return out, err
}

// ClaimDelegation opens a delegation's pending gate and dispatches the
// outbound claim request over the RPC engine (§C.1), mirroring
// CloseReservation's dispatch-then-complete-later template: the
// delegation only reaches Delegated once the peer broker's response
// arrives as an IncomingDelegationRPCEvent, not synchronously here. The
// resource/term the caller supplies is the pool being requested; the
// peer's grant (which may differ) lands with the response.
func (b *Base) ClaimDelegation(ctx context.Context, token string, sliceID, delegationID, peerID string, resource model.ResourceSet, term model.Term) error {
	return b.call(ctx, token, "claim_delegation", "delegation", delegationID, func(k *kernel.Kernel) error {
		s, ok := k.Slice(sliceID)
		if !ok {
			return apierr.NoSuchSlice(sliceID)
		}
		d, ok := k.Delegation(delegationID)
		if !ok {
			d = model.NewDelegation(delegationID, sliceID, peerID)
			k.PutDelegation(d)
		}
		if !d.CanSendRequest() {
			return apierr.InvalidDelegation(delegationID, "delegation already has an outbound request pending")
		}
		d.Resource = resource
		d.Term = term
		d.BeginClaim()
		if dispatcher := k.Dispatcher(); dispatcher != nil {
			if err := dispatcher.DispatchDelegation(model.Claiming, d); err != nil {
				d.Fail(err.Error())
				_ = k.FlushDelegation(d)
				return err
			}
		}
		s.AddDelegation(d.ID)
		if err := k.FlushDelegation(d); err != nil {
			return err
		}
		return k.FlushSlice(s)
	})
}

// ReclaimDelegation opens the pending gate and dispatches the outbound
// reclaim request, completing asynchronously the same way
// ClaimDelegation does.
func (b *Base) ReclaimDelegation(ctx context.Context, token string, delegationID string) error {
	return b.call(ctx, token, "reclaim_delegation", "delegation", delegationID, func(k *kernel.Kernel) error {
		d, ok := k.Delegation(delegationID)
		if !ok {
			return apierr.NoSuchDelegation(delegationID)
		}
		if !d.CanSendRequest() {
			return apierr.InvalidDelegation(delegationID, "delegation already has an outbound request pending")
		}
		d.BeginReclaim()
		if dispatcher := k.Dispatcher(); dispatcher != nil {
			if err := dispatcher.DispatchDelegation(model.Reclaiming, d); err != nil {
				d.Fail(err.Error())
				_ = k.FlushDelegation(d)
				return err
			}
		}
		return k.FlushDelegation(d)
	})
}
