package policy

import (
	"github.com/fabric-actor/kernel/internal/clock"
	"github.com/fabric-actor/kernel/internal/model"
	"github.com/fabric-actor/kernel/pkg/logger"
)

// BatchOnTick defers every Bind decision to the next Tick instead of
// deciding inline, accumulating candidates in Prepare's cycle and
// running them together in Finish. This matches policies that want to
// see the full set of reservations demanded within a cycle before
// making admission decisions (e.g. to pack reservations against a
// shared resource budget).
type BatchOnTick struct {
	*Simple
	pending []*model.Reservation
}

var _ Policy = (*BatchOnTick)(nil)

// NewBatchOnTick builds a BatchOnTick policy layered over Simple.
func NewBatchOnTick(log *logger.Logger, ck *clock.Clock, renewLead, redeemDelay int64) *BatchOnTick {
	return &BatchOnTick{Simple: NewSimple(log, ck, renewLead, redeemDelay)}
}

// Bind queues r for the next Finish instead of deciding immediately.
func (p *BatchOnTick) Bind(r *model.Reservation) error {
	p.pending = append(p.pending, r)
	return nil
}

// Finish runs Simple's Bind over every reservation queued this cycle,
// in the order they were queued, then clears the queue.
func (p *BatchOnTick) Finish(cal *clock.Calendar, cycle int64) error {
	batch := p.pending
	p.pending = nil
	for _, r := range batch {
		if err := p.Simple.Bind(r); err != nil {
			r.Fail(err.Error())
			continue
		}
	}
	return p.Simple.Finish(cal, cycle)
}
