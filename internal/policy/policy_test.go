package policy

import (
	"errors"
	"testing"
	"time"

	"github.com/fabric-actor/kernel/internal/clock"
	"github.com/fabric-actor/kernel/internal/model"
)

func newTestClock() *clock.Clock {
	return clock.New(1000, time.Unix(0, 0))
}

func TestSimpleBindCopiesRequestedToApproved(t *testing.T) {
	p := NewSimple(nil, newTestClock(), 0, 0)
	r := model.NewReservation("r1", "s1", model.CategoryClient)
	r.Requested = model.ResourceSet{Units: 3, ResourceType: "vm"}
	r.RequestedTerm = model.NewTerm(time.Unix(0, 0), time.Unix(3600, 0))

	if err := p.Bind(r); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if r.Approved.Units != 3 || r.ApprovedTerm.End != r.RequestedTerm.End {
		t.Fatalf("approved not copied from requested: %+v", r.Approved)
	}
}

func TestSimpleRevisitRoutesByPendingState(t *testing.T) {
	p := NewSimple(nil, newTestClock(), 10, 1)
	cal := clock.NewCalendar()

	r := model.NewReservation("r2", "s1", model.CategoryClient)
	r.Pending = model.Closing
	if err := p.Revisit(r, cal, 5); err != nil {
		t.Fatalf("revisit: %v", err)
	}
	if got := cal.Get(clock.BucketClosing, 5); len(got) != 1 || got[0] != "r2" {
		t.Fatalf("expected r2 in closing bucket at cycle 5, got %v", got)
	}
}

func TestTicketReviewFailsWholeBatchOnOneRejection(t *testing.T) {
	p := NewTicketReview(nil, newTestClock(), 10, 1)
	a := model.NewReservation("a", "s1", model.CategoryClient)
	b := model.NewReservation("b", "s1", model.CategoryClient)
	p.AssignBatch("batch-1", a.ID)
	p.AssignBatch("batch-1", b.ID)

	err := p.ReviewBatch("batch-1", []*model.Reservation{a, b}, func(r *model.Reservation) error {
		if r.ID == "b" {
			return errors.New("no capacity")
		}
		return nil
	})
	if err == nil {
		t.Fatalf("expected batch failure")
	}
	if a.Primary != model.Failed || b.Primary != model.Failed {
		t.Fatalf("expected both batch members failed, got a=%v b=%v", a.Primary, b.Primary)
	}
}

func TestTicketReviewAdmitsWholeBatchWhenAllApprove(t *testing.T) {
	p := NewTicketReview(nil, newTestClock(), 10, 1)
	a := model.NewReservation("a", "s1", model.CategoryClient)
	b := model.NewReservation("b", "s1", model.CategoryClient)
	p.AssignBatch("batch-2", a.ID)
	p.AssignBatch("batch-2", b.ID)

	err := p.ReviewBatch("batch-2", []*model.Reservation{a, b}, func(r *model.Reservation) error { return nil })
	if err != nil {
		t.Fatalf("unexpected batch failure: %v", err)
	}
	if a.Primary != model.Ticketed || b.Primary != model.Ticketed {
		t.Fatalf("expected both batch members ticketed, got a=%v b=%v", a.Primary, b.Primary)
	}
}

func TestBatchOnTickDefersBindUntilFinish(t *testing.T) {
	p := NewBatchOnTick(nil, newTestClock(), 10, 1)
	cal := clock.NewCalendar()
	r := model.NewReservation("r3", "s1", model.CategoryClient)

	if err := p.Bind(r); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if r.Primary != model.Nascent {
		t.Fatalf("expected bind decision deferred, got %v", r.Primary)
	}

	if err := p.Finish(cal, 1); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if r.Primary != model.Ticketed {
		t.Fatalf("expected reservation ticketed after finish, got %v", r.Primary)
	}
}
