package kernel

import (
	"testing"
	"time"

	"github.com/fabric-actor/kernel/internal/clock"
	"github.com/fabric-actor/kernel/internal/model"
	"github.com/fabric-actor/kernel/internal/policy"
)

type fakeGateway struct {
	flushedReservations int
}

func (g *fakeGateway) FlushReservation(r *model.Reservation) error {
	g.flushedReservations++
	return nil
}
func (g *fakeGateway) FlushDelegation(d *model.Delegation) error { return nil }
func (g *fakeGateway) FlushSlice(s *model.Slice) error           { return nil }

type fakeDispatcher struct {
	calls []model.PendingState
}

func (d *fakeDispatcher) Dispatch(pending model.PendingState, r *model.Reservation) error {
	d.calls = append(d.calls, pending)
	return nil
}

func (d *fakeDispatcher) DispatchDelegation(pending model.DelegationPendingState, dl *model.Delegation) error {
	return nil
}

func newTestKernel(t *testing.T) (*Kernel, *fakeGateway, *fakeDispatcher) {
	t.Helper()
	ck := clock.New(1000, time.Unix(0, 0))
	gw := &fakeGateway{}
	disp := &fakeDispatcher{}
	k := New(Config{
		Clock:      ck,
		Calendar:   clock.NewCalendar(),
		Policy:     policy.NewSimple(nil, ck, 10, 1),
		Gateway:    gw,
		Dispatcher: disp,
	})
	k.MarkRecovered()
	return k, gw, disp
}

func TestTickDrainsRedeemingBucketAndDispatches(t *testing.T) {
	k, gw, disp := newTestKernel(t)

	r := model.NewReservation("r1", "s1", model.CategoryClient)
	term := model.NewTerm(time.Unix(0, 0), time.Unix(3600, 0))
	r.Bind(model.ResourceSet{Units: 1}, term)
	k.PutReservation(r)
	k.Calendar().Add(clock.BucketRedeeming, "r1", 5)

	if err := TickEvent{Cycle: 5}.Handle(k); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if r.Pending != model.Redeeming {
		t.Fatalf("expected reservation gated into Redeeming, got %v", r.Pending)
	}
	if len(disp.calls) != 1 || disp.calls[0] != model.Redeeming {
		t.Fatalf("expected one Redeeming dispatch, got %v", disp.calls)
	}
	if gw.flushedReservations != 1 {
		t.Fatalf("expected one flush, got %d", gw.flushedReservations)
	}
}

func TestEnqueueRejectedBeforeRecovery(t *testing.T) {
	ck := clock.New(1000, time.Unix(0, 0))
	k := New(Config{
		Clock:      ck,
		Calendar:   clock.NewCalendar(),
		Policy:     policy.NewSimple(nil, ck, 10, 1),
		Gateway:    &fakeGateway{},
		Dispatcher: &fakeDispatcher{},
	})
	if err := k.Enqueue(TickEvent{Cycle: 0}); err == nil {
		t.Fatalf("expected enqueue to be rejected before recovery")
	}
	k.MarkRecovered()
	if err := k.Enqueue(TickEvent{Cycle: 0}); err != nil {
		t.Fatalf("expected enqueue to succeed after recovery: %v", err)
	}
}

func TestIncomingRPCEventIgnoresStaleSequence(t *testing.T) {
	k, _, _ := newTestKernel(t)
	r := model.NewReservation("r2", "s1", model.CategoryClient)
	r.Seq.In = 5
	k.PutReservation(r)

	called := false
	ev := IncomingRPCEvent{
		ReservationID: "r2",
		SequenceIn:    5,
		Handler:       func(k *Kernel, r *model.Reservation) error { called = true; return nil },
	}
	if err := ev.Handle(k); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if called {
		t.Fatalf("stale/duplicate sequence must be ignored, not handled")
	}
}
