package policy

import (
	"time"

	"github.com/fabric-actor/kernel/internal/clock"
	"github.com/fabric-actor/kernel/internal/model"
	"github.com/fabric-actor/kernel/pkg/logger"
)

// Simple is the default Policy: it admits every bind request as
// requested, renews a reservation a fixed lead time before its term
// expires, and allocates/releases resources by simple unit counting
// with no inventory constraints. It exists mainly as the reference
// implementation other policies are compared against.
type Simple struct {
	log         *logger.Logger
	ck          *clock.Clock
	renewLead   int64 // cycles before term end to schedule renewal
	redeemDelay int64 // cycles after bind to schedule redeem
}

var _ Policy = (*Simple)(nil)

// NewSimple builds a Simple policy. renewLead and redeemDelay are given
// in cycles; zero or negative values fall back to defaults of 10 and 1.
func NewSimple(log *logger.Logger, ck *clock.Clock, renewLead, redeemDelay int64) *Simple {
	if log == nil {
		log = logger.NewDefault()
	}
	if renewLead <= 0 {
		renewLead = 10
	}
	if redeemDelay <= 0 {
		redeemDelay = 1
	}
	return &Simple{log: log, ck: ck, renewLead: renewLead, redeemDelay: redeemDelay}
}

func (p *Simple) Bind(r *model.Reservation) error {
	r.Approved = r.Requested
	r.ApprovedTerm = r.RequestedTerm
	if r.Primary == model.Nascent {
		r.Bind(r.Approved, r.ApprovedTerm)
	}
	return nil
}

func (p *Simple) Extend(r *model.Reservation) error {
	length := r.Term.Length()
	if length <= 0 {
		length = time.Hour
	}
	r.Approved = r.Resources
	r.ApprovedTerm = r.Term.Extend(length)
	return nil
}

func (p *Simple) CorrelateUpdate(r *model.Reservation, resources model.ResourceSet, term model.Term) error {
	r.AbsorbUpdateLease(resources, term)
	return nil
}

func (p *Simple) ChooseRenewCycle(r *model.Reservation, now int64) int64 {
	end := p.ck.Cycle(r.Term.End)
	renew := end - p.renewLead
	if renew < now {
		return now
	}
	return renew
}

func (p *Simple) ChooseRedeemCycle(r *model.Reservation, now int64) int64 {
	return now + p.redeemDelay
}

func (p *Simple) ChooseCloseCycle(r *model.Reservation, now int64) int64 {
	return p.ck.Cycle(r.Term.End)
}

func (p *Simple) Allocate(r *model.Reservation, cal *clock.Calendar) error {
	r.Resources = r.Approved
	cal.AddHolding(r.ID, p.ck.Cycle(r.Term.Start), p.ck.Cycle(r.Term.End))
	return nil
}

func (p *Simple) Release(r *model.Reservation, cal *clock.Calendar) error {
	cal.Remove(r.ID)
	return nil
}

func (p *Simple) Revisit(r *model.Reservation, cal *clock.Calendar, now int64) error {
	switch r.Pending {
	case model.Ticketing:
		cal.Add(clock.BucketPending, r.ID, now)
	case model.Redeeming, model.ExtendingTicket, model.ExtendingLease:
		// Only reachable here with r.PendingRecover set (recovery.Restore
		// validates the alternative via model.ValidateRecoveredState
		// before Revisit is ever called). The actual RPC re-issue is
		// recovery's job, not the calendar's; placing the id in Demand
		// just makes it visible to the management plane while it waits.
		cal.Add(clock.BucketDemand, r.ID, now)
	case model.Closing, model.ClosingJoining:
		cal.Add(clock.BucketClosing, r.ID, now)
	default:
		if model.HoldsResources(r.Primary) {
			cal.Add(clock.BucketRenewing, r.ID, p.ChooseRenewCycle(r, now))
		}
	}
	return nil
}

func (p *Simple) Prepare(cal *clock.Calendar, cycle int64) error { return nil }

func (p *Simple) Finish(cal *clock.Calendar, cycle int64) error { return nil }
