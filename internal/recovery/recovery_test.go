package recovery

import (
	"context"
	"testing"
	"time"

	"github.com/fabric-actor/kernel/internal/clock"
	"github.com/fabric-actor/kernel/internal/kernel"
	"github.com/fabric-actor/kernel/internal/model"
	"github.com/fabric-actor/kernel/internal/policy"
)

type fakeGateway struct {
	recovered    bool
	slices       []*model.Slice
	reservations map[string][]*model.Reservation
	delegations  map[string][]*model.Delegation
	savedActor   string
	savedFlag    bool
}

func (g *fakeGateway) FlushReservation(r *model.Reservation) error { return nil }
func (g *fakeGateway) LoadReservation(ctx context.Context, id string) (*model.Reservation, error) {
	return nil, nil
}
func (g *fakeGateway) LoadReservationsBySlice(ctx context.Context, sliceID string) ([]*model.Reservation, error) {
	return g.reservations[sliceID], nil
}
func (g *fakeGateway) DeleteReservation(ctx context.Context, id string) error { return nil }

func (g *fakeGateway) FlushDelegation(d *model.Delegation) error { return nil }
func (g *fakeGateway) LoadDelegation(ctx context.Context, id string) (*model.Delegation, error) {
	return nil, nil
}
func (g *fakeGateway) LoadDelegationsBySlice(ctx context.Context, sliceID string) ([]*model.Delegation, error) {
	return g.delegations[sliceID], nil
}
func (g *fakeGateway) DeleteDelegation(ctx context.Context, id string) error { return nil }

func (g *fakeGateway) FlushSlice(s *model.Slice) error { return nil }
func (g *fakeGateway) LoadSlice(ctx context.Context, id string) (*model.Slice, error) {
	return nil, nil
}
func (g *fakeGateway) LoadSlicesByOwner(ctx context.Context, ownerID string) ([]*model.Slice, error) {
	return g.slices, nil
}
func (g *fakeGateway) DeleteSlice(ctx context.Context, id string) error { return nil }

func (g *fakeGateway) FlushUnit(u *model.Unit) error { return nil }
func (g *fakeGateway) LoadUnitsByReservation(ctx context.Context, reservationID string) ([]*model.Unit, error) {
	return nil, nil
}
func (g *fakeGateway) DeleteUnit(ctx context.Context, id string) error { return nil }

func (g *fakeGateway) SaveActorRecord(ctx context.Context, actorID string, recovered bool) error {
	g.savedActor = actorID
	g.savedFlag = recovered
	return nil
}
func (g *fakeGateway) LoadActorRecord(ctx context.Context, actorID string) (bool, error) {
	return g.recovered, nil
}

type fakeDispatcher struct {
	dispatched []string
}

func (d *fakeDispatcher) Dispatch(pending model.PendingState, r *model.Reservation) error {
	d.dispatched = append(d.dispatched, r.ID)
	return nil
}

func newTestKernel(t *testing.T) *kernel.Kernel {
	t.Helper()
	ck := clock.New(1000, time.Unix(0, 0))
	return kernel.New(kernel.Config{
		Clock:    ck,
		Calendar: clock.NewCalendar(),
		Policy:   policy.NewSimple(nil, ck, 10, 1),
		Gateway:  &fakeGateway{},
	})
}

func TestRestoreLoadsSlicesAndReservationsThenMarksRecovered(t *testing.T) {
	sl := model.NewSlice("s1", "slice-one", "actor-1", model.SliceTypeClient)
	r := model.NewReservation("r1", "s1", model.CategoryClient)
	r.Primary = model.Ticketed
	r.Pending = model.PendingNone

	gw := &fakeGateway{
		slices:       []*model.Slice{sl},
		reservations: map[string][]*model.Reservation{"s1": {r}},
	}
	k := newTestKernel(t)
	disp := &fakeDispatcher{}

	if err := Restore(context.Background(), k, gw, disp, "actor-1", nil); err != nil {
		t.Fatalf("restore: %v", err)
	}

	if _, ok := k.Reservation("r1"); !ok {
		t.Fatalf("expected r1 registered in kernel")
	}
	if !gw.savedFlag || gw.savedActor != "actor-1" {
		t.Fatalf("expected actor record saved as recovered")
	}
	if err := k.Enqueue(kernel.TickEvent{Cycle: 0}); err != nil {
		t.Fatalf("expected queue open after recovery, got: %v", err)
	}
}

func TestRestoreReissuesPendingRecoverReservations(t *testing.T) {
	sl := model.NewSlice("s1", "slice-one", "actor-1", model.SliceTypeClient)
	r := model.NewReservation("r1", "s1", model.CategoryClient)
	r.Primary = model.Ticketed
	r.Pending = model.Redeeming
	r.PendingRecover = true

	gw := &fakeGateway{
		slices:       []*model.Slice{sl},
		reservations: map[string][]*model.Reservation{"s1": {r}},
	}
	k := newTestKernel(t)
	disp := &fakeDispatcher{}

	if err := Restore(context.Background(), k, gw, disp, "actor-1", nil); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if len(disp.dispatched) != 1 || disp.dispatched[0] != "r1" {
		t.Fatalf("expected r1 re-dispatched, got %v", disp.dispatched)
	}
}

func TestRestoreAbortsOnMutatingCombinationWithoutPendingRecover(t *testing.T) {
	sl := model.NewSlice("s1", "slice-one", "actor-1", model.SliceTypeClient)
	r := model.NewReservation("r1", "s1", model.CategoryClient)
	r.Primary = model.Ticketed
	r.Pending = model.Redeeming
	r.PendingRecover = false

	gw := &fakeGateway{
		slices:       []*model.Slice{sl},
		reservations: map[string][]*model.Reservation{"s1": {r}},
	}
	k := newTestKernel(t)

	defer func() {
		if recovered := recover(); recovered == nil {
			t.Fatalf("expected panic for unrecoverable combination")
		}
	}()
	_ = Restore(context.Background(), k, gw, &fakeDispatcher{}, "actor-1", nil)
}
