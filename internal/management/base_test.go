package management

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabric-actor/kernel/internal/clock"
	"github.com/fabric-actor/kernel/internal/kernel"
	"github.com/fabric-actor/kernel/internal/model"
	"github.com/fabric-actor/kernel/internal/policy"
)

type noopGateway struct{}

func (noopGateway) FlushReservation(r *model.Reservation) error { return nil }
func (noopGateway) FlushDelegation(d *model.Delegation) error   { return nil }
func (noopGateway) FlushSlice(s *model.Slice) error             { return nil }

func newTestBase(t *testing.T) *Base {
	t.Helper()
	return newTestBaseWithDispatcher(t, nil)
}

// fakeSyncDispatcher completes a claim/reclaim immediately rather than
// over a real transport, standing in for the RPC engine in tests that
// only care about the management-plane call's own gating behavior.
type fakeSyncDispatcher struct{}

func (fakeSyncDispatcher) Dispatch(pending model.PendingState, r *model.Reservation) error {
	return nil
}

func (fakeSyncDispatcher) DispatchDelegation(pending model.DelegationPendingState, d *model.Delegation) error {
	switch pending {
	case model.Claiming:
		d.CompleteClaim(d.Resource, d.Term)
	case model.Reclaiming:
		d.CompleteReclaim()
	}
	return nil
}

func newTestBaseWithDispatcher(t *testing.T, dispatcher kernel.Dispatcher) *Base {
	t.Helper()
	ck := clock.New(1000, time.Unix(0, 0))
	k := kernel.New(kernel.Config{
		Clock:      ck,
		Calendar:   clock.NewCalendar(),
		Policy:     policy.NewSimple(nil, ck, 10, 1),
		Gateway:    noopGateway{},
		Dispatcher: dispatcher,
	})
	k.MarkRecovered()
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, k.Start(ctx))
	t.Cleanup(func() {
		cancel()
		_ = k.Stop(context.Background())
	})
	return NewBase(k, nil, NewJWTAccessChecker("test-secret", nil), nil)
}

func callerToken(t *testing.T) string {
	return signToken(t, "test-secret", "caller-1", "controller")
}

func TestAddSliceThenGetSliceRoundTrips(t *testing.T) {
	b := newTestBase(t)
	token := callerToken(t)
	ctx := context.Background()

	s := model.NewSlice("s1", "demo", "owner-1", model.SliceTypeClient)
	require.NoError(t, b.AddSlice(ctx, token, s))

	got, err := b.Slice(ctx, token, "s1")
	require.NoError(t, err)
	assert.Equal(t, "demo", got.Name)
}

func TestRemoveSliceRejectsNonEmptySlice(t *testing.T) {
	b := newTestBase(t)
	token := callerToken(t)
	ctx := context.Background()

	s := model.NewSlice("s1", "demo", "owner-1", model.SliceTypeClient)
	require.NoError(t, b.AddSlice(ctx, token, s))

	r := model.NewReservation("r1", "s1", model.CategoryClient)
	require.NoError(t, b.AddReservation(ctx, token, "s1", r))

	err := b.RemoveSlice(ctx, token, "s1")
	require.Error(t, err)
}

func TestRemoveReservationRequiresTerminalState(t *testing.T) {
	b := newTestBase(t)
	token := callerToken(t)
	ctx := context.Background()

	s := model.NewSlice("s1", "demo", "owner-1", model.SliceTypeClient)
	require.NoError(t, b.AddSlice(ctx, token, s))
	r := model.NewReservation("r1", "s1", model.CategoryClient)
	require.NoError(t, b.AddReservation(ctx, token, "s1", r))

	err := b.RemoveReservation(ctx, token, "r1")
	require.Error(t, err)

	require.NoError(t, b.UpdateReservation(ctx, token, "r1", func(r *model.Reservation) {
		r.Fail("test teardown")
	}))
	require.NoError(t, b.RemoveReservation(ctx, token, "r1"))

	_, err = b.Reservation(ctx, token, "r1")
	require.Error(t, err)
}

func TestListReservationsByStateFiltersCorrectly(t *testing.T) {
	b := newTestBase(t)
	token := callerToken(t)
	ctx := context.Background()

	s := model.NewSlice("s1", "demo", "owner-1", model.SliceTypeClient)
	require.NoError(t, b.AddSlice(ctx, token, s))
	r1 := model.NewReservation("r1", "s1", model.CategoryClient)
	r2 := model.NewReservation("r2", "s1", model.CategoryClient)
	require.NoError(t, b.AddReservation(ctx, token, "s1", r1))
	require.NoError(t, b.AddReservation(ctx, token, "s1", r2))

	nascent, err := b.ListReservationsByState(ctx, token, model.Nascent)
	require.NoError(t, err)
	assert.Len(t, nascent, 2)
}

func TestClaimThenReclaimDelegation(t *testing.T) {
	b := newTestBaseWithDispatcher(t, fakeSyncDispatcher{})
	token := callerToken(t)
	ctx := context.Background()

	s := model.NewSlice("s1", "demo", "owner-1", model.SliceTypeBroker)
	require.NoError(t, b.AddSlice(ctx, token, s))

	resource := model.ResourceSet{}
	term := model.Term{}
	require.NoError(t, b.ClaimDelegation(ctx, token, "s1", "d1", "peer-1", resource, term))
	require.NoError(t, b.ReclaimDelegation(ctx, token, "d1"))
}

// TestClaimDelegationWithoutDispatcherStaysGated documents the
// unwired-dispatcher case: the claim is recorded and the pending gate
// closes, but with nothing to complete it a second outbound request is
// correctly refused until some transport finishes the round trip.
func TestClaimDelegationWithoutDispatcherStaysGated(t *testing.T) {
	b := newTestBase(t)
	token := callerToken(t)
	ctx := context.Background()

	s := model.NewSlice("s1", "demo", "owner-1", model.SliceTypeBroker)
	require.NoError(t, b.AddSlice(ctx, token, s))

	resource := model.ResourceSet{}
	term := model.Term{}
	require.NoError(t, b.ClaimDelegation(ctx, token, "s1", "d1", "peer-1", resource, term))
	require.Error(t, b.ReclaimDelegation(ctx, token, "d1"))
}

func TestEventBusDeliversPublishedUpdatesToMatchingSubscribers(t *testing.T) {
	b := newTestBase(t)
	token := callerToken(t)
	ctx := context.Background()

	s := model.NewSlice("s1", "demo", "owner-1", model.SliceTypeClient)
	require.NoError(t, b.AddSlice(ctx, token, s))
	r := model.NewReservation("r1", "s1", model.CategoryClient)
	require.NoError(t, b.AddReservation(ctx, token, "s1", r))

	ch, cancel := b.Events().Subscribe(func(r *model.Reservation) bool { return r.ID == "r1" })
	defer cancel()

	require.NoError(t, b.UpdateReservation(ctx, token, "r1", func(r *model.Reservation) {
		r.ErrorMessage = "notice"
	}))

	select {
	case got := <-ch:
		assert.Equal(t, "notice", got.ErrorMessage)
	case <-time.After(time.Second):
		t.Fatal("expected a published update")
	}
}
