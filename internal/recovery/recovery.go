// Package recovery implements the actor startup sequence of §4.7:
// refuse new inbound events, load everything this actor owns from the
// persistence gateway, re-insert it into the calendar via the policy's
// Revisit hook, re-issue any RPC that was in flight at the moment of a
// crash, then open the kernel's queue.
package recovery

import (
	"context"
	"fmt"

	"github.com/fabric-actor/kernel/internal/kernel"
	"github.com/fabric-actor/kernel/internal/model"
	"github.com/fabric-actor/kernel/internal/persistence"
	"github.com/fabric-actor/kernel/pkg/apierr"
	"github.com/fabric-actor/kernel/pkg/logger"
)

// Dispatcher is the subset of rpcengine.Engine recovery needs to
// re-issue a mutating request that was in flight at crash time. It is
// the same Dispatch/DispatchDelegation signature the kernel itself
// calls, not a new concept — recovery just calls it directly instead
// of going through an event, since the queue isn't open yet.
type Dispatcher interface {
	Dispatch(pending model.PendingState, r *model.Reservation) error
	DispatchDelegation(pending model.DelegationPendingState, d *model.Delegation) error
}

// Restore runs the §4.7 sequence for one actor against an
// already-built, not-yet-started Kernel. The kernel must not have
// Start called on it yet: Restore populates its in-memory registry
// directly, which is only safe before the loop goroutine is running.
func Restore(ctx context.Context, k *kernel.Kernel, gw persistence.Gateway, dispatcher Dispatcher, actorID string, log *logger.Logger) error {
	if log == nil {
		log = logger.NewDefault()
	}

	wasRecovered, err := gw.LoadActorRecord(ctx, actorID)
	if err != nil {
		return apierr.DatabaseError("load-actor-record", err)
	}

	slices, err := gw.LoadSlicesByOwner(ctx, actorID)
	if err != nil {
		return apierr.DatabaseError("load-slices-by-owner", err)
	}

	now := k.Clock().Now()
	var reissue []*model.Reservation
	var reissueDelegations []*model.Delegation

	for _, sl := range slices {
		k.PutSlice(sl)

		reservations, err := gw.LoadReservationsBySlice(ctx, sl.ID)
		if err != nil {
			return apierr.DatabaseError("load-reservations-by-slice", err)
		}
		for _, r := range reservations {
			// Fatal abort on a mutating (primary, pending) combination
			// recovered without the flag that proves the kernel itself
			// set it before crashing mid-flight (§4.7, see
			// internal/model/transitions.go's ValidateRecoveredState).
			model.ValidateRecoveredState(r.Primary, r.Pending, r.PendingRecover)

			k.PutReservation(r)
			if err := k.Policy().Revisit(r, k.Calendar(), now); err != nil {
				return apierr.InternalError(fmt.Sprintf("revisit reservation %s", r.ID), err)
			}
			if r.PendingRecover {
				reissue = append(reissue, r)
			}
		}

		delegations, err := gw.LoadDelegationsBySlice(ctx, sl.ID)
		if err != nil {
			return apierr.DatabaseError("load-delegations-by-slice", err)
		}
		for _, d := range delegations {
			// Same fatal-abort discipline as reservations, delegation side
			// (internal/model/transitions.go's
			// ValidateRecoveredDelegationState).
			model.ValidateRecoveredDelegationState(d.Pending, d.PendingRecover)

			k.PutDelegation(d)
			if d.PendingRecover {
				reissueDelegations = append(reissueDelegations, d)
			}
		}
	}

	for _, r := range reissue {
		log.WithFields(map[string]any{"reservation": r.ID, "pending": r.Pending.String()}).
			Info("re-issuing outbound request interrupted by crash")
		if dispatcher == nil {
			continue
		}
		if err := dispatcher.Dispatch(r.Pending, r); err != nil {
			log.WithFields(map[string]any{"reservation": r.ID}).
				Warn("failed to re-issue recovered request: " + err.Error())
		}
	}

	for _, d := range reissueDelegations {
		log.WithFields(map[string]any{"delegation": d.ID, "pending": d.Pending.String()}).
			Info("re-issuing delegation claim interrupted by crash")
		if dispatcher == nil {
			continue
		}
		if err := dispatcher.DispatchDelegation(d.Pending, d); err != nil {
			log.WithFields(map[string]any{"delegation": d.ID}).
				Warn("failed to re-issue recovered delegation claim: " + err.Error())
		}
	}

	if err := gw.SaveActorRecord(ctx, actorID, true); err != nil {
		return apierr.DatabaseError("save-actor-record", err)
	}

	k.MarkRecovered()
	log.WithFields(map[string]any{
		"actor": actorID, "slices": len(slices), "reissued": len(reissue),
		"delegations_reissued": len(reissueDelegations), "cold_start": !wasRecovered,
	}).Info("recovery complete")
	return nil
}
