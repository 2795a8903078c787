package persistence

import (
	"context"
	"time"

	"github.com/fabric-actor/kernel/internal/model"
)

// Metrics is the subset of internal/metrics the gateway decorator
// needs, kept as a consumer-defined interface so this package doesn't
// import the concrete collector type.
type Metrics interface {
	ObservePersistenceOp(actor, entity, outcome string, d time.Duration)
}

// Instrumented wraps a Gateway, timing every call and recording its
// outcome, the way mw_metrics.go times an HTTP handler.
type Instrumented struct {
	Gateway
	metrics Metrics
	actorID string
}

// NewInstrumented wraps gw so every call records a
// persistence_operation against m under actorID.
func NewInstrumented(gw Gateway, m Metrics, actorID string) *Instrumented {
	return &Instrumented{Gateway: gw, metrics: m, actorID: actorID}
}

func (i *Instrumented) observe(entity string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	i.metrics.ObservePersistenceOp(i.actorID, entity, outcome, time.Since(start))
}

func (i *Instrumented) FlushReservation(r *model.Reservation) error {
	start := time.Now()
	err := i.Gateway.FlushReservation(r)
	i.observe("reservation", start, err)
	return err
}

func (i *Instrumented) LoadReservation(ctx context.Context, id string) (*model.Reservation, error) {
	start := time.Now()
	r, err := i.Gateway.LoadReservation(ctx, id)
	i.observe("reservation", start, err)
	return r, err
}

func (i *Instrumented) LoadReservationsBySlice(ctx context.Context, sliceID string) ([]*model.Reservation, error) {
	start := time.Now()
	rs, err := i.Gateway.LoadReservationsBySlice(ctx, sliceID)
	i.observe("reservation", start, err)
	return rs, err
}

func (i *Instrumented) DeleteReservation(ctx context.Context, id string) error {
	start := time.Now()
	err := i.Gateway.DeleteReservation(ctx, id)
	i.observe("reservation", start, err)
	return err
}

func (i *Instrumented) FlushDelegation(d *model.Delegation) error {
	start := time.Now()
	err := i.Gateway.FlushDelegation(d)
	i.observe("delegation", start, err)
	return err
}

func (i *Instrumented) LoadDelegation(ctx context.Context, id string) (*model.Delegation, error) {
	start := time.Now()
	d, err := i.Gateway.LoadDelegation(ctx, id)
	i.observe("delegation", start, err)
	return d, err
}

func (i *Instrumented) LoadDelegationsBySlice(ctx context.Context, sliceID string) ([]*model.Delegation, error) {
	start := time.Now()
	ds, err := i.Gateway.LoadDelegationsBySlice(ctx, sliceID)
	i.observe("delegation", start, err)
	return ds, err
}

func (i *Instrumented) DeleteDelegation(ctx context.Context, id string) error {
	start := time.Now()
	err := i.Gateway.DeleteDelegation(ctx, id)
	i.observe("delegation", start, err)
	return err
}

func (i *Instrumented) FlushSlice(s *model.Slice) error {
	start := time.Now()
	err := i.Gateway.FlushSlice(s)
	i.observe("slice", start, err)
	return err
}

func (i *Instrumented) LoadSlice(ctx context.Context, id string) (*model.Slice, error) {
	start := time.Now()
	s, err := i.Gateway.LoadSlice(ctx, id)
	i.observe("slice", start, err)
	return s, err
}

func (i *Instrumented) LoadSlicesByOwner(ctx context.Context, ownerID string) ([]*model.Slice, error) {
	start := time.Now()
	ss, err := i.Gateway.LoadSlicesByOwner(ctx, ownerID)
	i.observe("slice", start, err)
	return ss, err
}

func (i *Instrumented) DeleteSlice(ctx context.Context, id string) error {
	start := time.Now()
	err := i.Gateway.DeleteSlice(ctx, id)
	i.observe("slice", start, err)
	return err
}

func (i *Instrumented) FlushUnit(u *model.Unit) error {
	start := time.Now()
	err := i.Gateway.FlushUnit(u)
	i.observe("unit", start, err)
	return err
}

func (i *Instrumented) LoadUnitsByReservation(ctx context.Context, reservationID string) ([]*model.Unit, error) {
	start := time.Now()
	us, err := i.Gateway.LoadUnitsByReservation(ctx, reservationID)
	i.observe("unit", start, err)
	return us, err
}

func (i *Instrumented) DeleteUnit(ctx context.Context, id string) error {
	start := time.Now()
	err := i.Gateway.DeleteUnit(ctx, id)
	i.observe("unit", start, err)
	return err
}

func (i *Instrumented) SaveActorRecord(ctx context.Context, actorID string, recovered bool) error {
	start := time.Now()
	err := i.Gateway.SaveActorRecord(ctx, actorID, recovered)
	i.observe("actor_record", start, err)
	return err
}

func (i *Instrumented) LoadActorRecord(ctx context.Context, actorID string) (bool, error) {
	start := time.Now()
	recovered, err := i.Gateway.LoadActorRecord(ctx, actorID)
	i.observe("actor_record", start, err)
	return recovered, err
}

var _ Gateway = (*Instrumented)(nil)
