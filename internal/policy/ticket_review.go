package policy

import (
	"github.com/fabric-actor/kernel/internal/clock"
	"github.com/fabric-actor/kernel/internal/model"
	"github.com/fabric-actor/kernel/pkg/logger"
)

// TicketReview groups nascent reservations into review batches and
// admits or fails them as a unit (§4.4): if any reservation in a batch
// fails admission, every other reservation sharing that batch fails too
// before any outbound ticket is issued for the batch. Reservations not
// assigned to any batch are admitted individually by Bind, as Simple
// admits them.
type TicketReview struct {
	*Simple
	batchOf map[string]string // reservation id -> batch id
	members map[string][]string
}

var _ Policy = (*TicketReview)(nil)

// NewTicketReview builds a TicketReview policy layered over Simple's
// renewal/allocation behavior.
func NewTicketReview(log *logger.Logger, ck *clock.Clock, renewLead, redeemDelay int64) *TicketReview {
	return &TicketReview{
		Simple:  NewSimple(log, ck, renewLead, redeemDelay),
		batchOf: make(map[string]string),
		members: make(map[string][]string),
	}
}

// AssignBatch puts reservationID in the named review batch. Call this
// before Bind for every member of a batch that must be admitted or
// failed together.
func (p *TicketReview) AssignBatch(batchID, reservationID string) {
	p.batchOf[reservationID] = batchID
	p.members[batchID] = append(p.members[batchID], reservationID)
}

// Bind behaves like Simple.Bind for a reservation with no assigned
// batch (demanded individually). Batched reservations are admitted via
// ReviewBatch instead, which is what the kernel calls once every member
// of a batch has been demanded.
func (p *TicketReview) Bind(r *model.Reservation) error {
	if _, batched := p.batchOf[r.ID]; batched {
		return nil
	}
	return p.Simple.Bind(r)
}

// ReviewBatch admits every reservation in the batch if decide(r)
// returns nil for all of them, or fails every one of them — including
// those decide already approved — if any single member is rejected.
// This is the kernel's hook into the all-or-nothing batch semantics;
// reservations are looked up by the caller and passed in reservation
// id order matching AssignBatch.
func (p *TicketReview) ReviewBatch(batchID string, reservations []*model.Reservation, decide func(*model.Reservation) error) error {
	var failure error
	for _, r := range reservations {
		if err := decide(r); err != nil {
			failure = err
			break
		}
	}
	if failure != nil {
		for _, r := range reservations {
			r.Fail(failure.Error())
		}
		return failure
	}
	for _, r := range reservations {
		if err := p.Simple.Bind(r); err != nil {
			return err
		}
	}
	return nil
}
