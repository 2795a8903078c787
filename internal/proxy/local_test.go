package proxy

import (
	"context"
	"testing"
	"time"

	"github.com/fabric-actor/kernel/internal/clock"
	"github.com/fabric-actor/kernel/internal/kernel"
	"github.com/fabric-actor/kernel/internal/model"
	"github.com/fabric-actor/kernel/internal/policy"
	"github.com/fabric-actor/kernel/internal/rpcengine"
)

type noopGateway struct{}

func (noopGateway) FlushReservation(r *model.Reservation) error { return nil }
func (noopGateway) FlushDelegation(d *model.Delegation) error   { return nil }
func (noopGateway) FlushSlice(s *model.Slice) error             { return nil }

func newWiredKernel(t *testing.T) *kernel.Kernel {
	t.Helper()
	ck := clock.New(1000, time.Unix(0, 0))
	k := kernel.New(kernel.Config{
		Clock:    ck,
		Calendar: clock.NewCalendar(),
		Policy:   policy.NewSimple(nil, ck, 10, 1),
		Gateway:  noopGateway{},
	})
	return k
}

func startKernel(t *testing.T, k *kernel.Kernel) {
	t.Helper()
	k.MarkRecovered()
	ctx, cancel := context.WithCancel(context.Background())
	if err := k.Start(ctx); err != nil {
		t.Fatalf("start kernel: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		_ = k.Stop(context.Background())
	})
}

// TestLocalProxyTicketRoundTrip drives a Local proxy's full async path:
// Send enqueues onto the peer (broker) kernel's own queue, the broker's
// default ticket handler runs on its loop goroutine and replies by
// enqueueing an IncomingRPCEvent back onto the origin kernel, which
// folds the grant into the origin's reservation via Bind — all without
// either side ever touching the other's objects directly.
func TestLocalProxyTicketRoundTrip(t *testing.T) {
	brokerKernel := newWiredKernel(t)
	startKernel(t, brokerKernel)

	origin := newWiredKernel(t)
	engine := rpcengine.New(rpcengine.Config{Kernel: origin})

	r := model.NewReservation("r1", "s1", model.CategoryClient)
	r.BrokerID = "broker-1"
	origin.PutReservation(r)

	startKernel(t, origin)

	local := NewLocal("broker-1", brokerKernel, origin, engine, defaultHandlers())

	req := &rpcengine.Request{
		MessageID:     "m1",
		ReservationID: "r1",
		Sequence:      1,
		Pending:       model.Ticketing,
		Operation:     "ticket",
	}
	if err := local.Send(context.Background(), req); err != nil {
		t.Fatalf("send: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := brokerKernel.Reservation("r1"); ok {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, ok := brokerKernel.Reservation("r1"); !ok {
		t.Fatalf("expected broker to have created a mirrored reservation")
	}

	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if orig, ok := origin.Reservation("r1"); ok && orig.Primary == model.Ticketed {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected origin reservation bound to Ticketed within deadline")
}

// TestLocalProxyTicketOnlyCloseRoutesToRelinquish covers the routing
// fix from operationFor: a reservation that only ever held a ticket
// (BrokerID set, AuthorityID never assigned because it never redeemed)
// must close against the broker's Relinquish, not a nonexistent
// authority Close — the broker peer has no lease to release, only its
// own calendar entry for the outstanding ticket.
func TestLocalProxyTicketOnlyCloseRoutesToRelinquish(t *testing.T) {
	brokerKernel := newWiredKernel(t)
	startKernel(t, brokerKernel)

	peerReservation := model.NewReservation("r1", "s1", model.CategoryClient)
	peerReservation.BrokerID = "origin-1"
	brokerKernel.PutReservation(peerReservation)
	brokerKernel.Calendar().Add(clock.BucketPending, "r1", 0)

	origin := newWiredKernel(t)
	engine := rpcengine.New(rpcengine.Config{Kernel: origin})

	r := model.NewReservation("r1", "s1", model.CategoryClient)
	r.BrokerID = "broker-1"
	r.Primary = model.Ticketed
	r.BeginClose()
	origin.PutReservation(r)

	startKernel(t, origin)

	local := NewLocal("broker-1", brokerKernel, origin, engine, defaultHandlers())

	if operationFor(r, model.Closing) != "relinquish" {
		t.Fatalf("expected ticket-only close to resolve to relinquish, got %q", operationFor(r, model.Closing))
	}

	req := &rpcengine.Request{
		MessageID:     "m2",
		ReservationID: "r1",
		Sequence:      1,
		Pending:       model.Closing,
		Operation:     "relinquish",
	}
	if err := local.Send(context.Background(), req); err != nil {
		t.Fatalf("send: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got, ok := brokerKernel.Reservation("r1"); ok && got.Primary == model.Closed {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	got, ok := brokerKernel.Reservation("r1")
	if !ok || got.Primary != model.Closed {
		t.Fatalf("expected broker's ticket-only reservation to be Closed by relinquish")
	}

	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if orig, ok := origin.Reservation("r1"); ok && orig.Primary == model.Closed {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected origin reservation closed within deadline")
}
