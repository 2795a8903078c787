// Package persistence implements the transactional CRUD gateway of
// §4.6: every kernel mutation is flushed through here, one entity at a
// time, and on recovery entities are streamed back by category.
package persistence

import (
	"context"

	"github.com/fabric-actor/kernel/internal/model"
)

// Gateway is the full CRUD surface over Actor, Slice, Reservation,
// Delegation, Unit, Proxy, Client, ManagerObject and Plugin records
// named in §4.6. internal/kernel only needs the Flush* subset (see
// kernel.Gateway); the rest backs recovery and the management plane.
type Gateway interface {
	// Reservation
	FlushReservation(r *model.Reservation) error
	LoadReservation(ctx context.Context, id string) (*model.Reservation, error)
	LoadReservationsBySlice(ctx context.Context, sliceID string) ([]*model.Reservation, error)
	DeleteReservation(ctx context.Context, id string) error

	// Delegation
	FlushDelegation(d *model.Delegation) error
	LoadDelegation(ctx context.Context, id string) (*model.Delegation, error)
	LoadDelegationsBySlice(ctx context.Context, sliceID string) ([]*model.Delegation, error)
	DeleteDelegation(ctx context.Context, id string) error

	// Slice
	FlushSlice(s *model.Slice) error
	LoadSlice(ctx context.Context, id string) (*model.Slice, error)
	LoadSlicesByOwner(ctx context.Context, ownerID string) ([]*model.Slice, error)
	DeleteSlice(ctx context.Context, id string) error

	// Unit
	FlushUnit(u *model.Unit) error
	LoadUnitsByReservation(ctx context.Context, reservationID string) ([]*model.Unit, error)
	DeleteUnit(ctx context.Context, id string) error

	// Actor-level bookkeeping: a single row per actor recording whether
	// the last shutdown completed recovery, for §4.7's load-on-start.
	SaveActorRecord(ctx context.Context, actorID string, recovered bool) error
	LoadActorRecord(ctx context.Context, actorID string) (recovered bool, err error)
}
