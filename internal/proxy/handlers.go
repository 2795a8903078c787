package proxy

import (
	"context"

	"github.com/fabric-actor/kernel/internal/kernel"
	"github.com/fabric-actor/kernel/internal/model"
	"github.com/fabric-actor/kernel/pkg/apierr"
)

// defaultHandlers implements the peer side of each §4.8 role operation
// using the peer kernel's own Policy, mirroring the requester's
// reservation under the same id in the peer's registry (one actor's
// kernel always has its own view of a shared arrangement; reusing the
// id keeps correlation simple for the in-process/test wiring this
// builds, a real federation would map ids through the delegation
// graph instead, out of scope per the non-goals on resource-graph
// semantics). Each handler runs policy.Bind/Extend/Allocate exactly as
// the peer's own kernel would on its Tick path, then returns the
// resulting grant as the response envelope.
// DefaultHandlers exposes defaultHandlers to callers outside the
// package, namely internal/container wiring a Consumer or Local proxy
// for a newly constructed actor.
func DefaultHandlers() map[string]RequestHandler {
	return defaultHandlers()
}

func defaultHandlers() map[string]RequestHandler {
	return map[string]RequestHandler{
		"ticket":             handleTicket,
		"extend_ticket":      handleExtendTicket,
		"redeem":             handleRedeem,
		"extend_lease":       handleExtendLease,
		"modify_lease":       handleModifyLease,
		"close":              handleClose,
		"relinquish":         handleRelinquish,
		"claim_delegation":   handleClaimDelegation,
		"reclaim_delegation": handleReclaimDelegation,
		"update_delegation":  handleUpdateDelegation,
		"query":              handleQuery,
		"query_result":       handleQueryResult,
	}
}

func peerReservation(k *kernel.Kernel, req *Request) *model.Reservation {
	r, ok := k.Reservation(req.ReservationID)
	if !ok {
		r = model.NewReservation(req.ReservationID, "", model.CategoryClient)
		r.Requested = req.Resources
		r.RequestedTerm = req.Term
		k.PutReservation(r)
	}
	return r
}

// peerDelegation looks up the peer's view of a delegation, creating a
// Nascent placeholder on first contact the same way peerReservation
// does for an inbound ticket.
func peerDelegation(k *kernel.Kernel, req *Request) *model.Delegation {
	d, ok := k.Delegation(req.DelegationID)
	if !ok {
		d = model.NewDelegation(req.DelegationID, "", "")
		k.PutDelegation(d)
	}
	return d
}

func handleTicket(ctx context.Context, k *kernel.Kernel, req *Request) (*Request, error) {
	r := peerReservation(k, req)
	if err := k.Policy().Bind(r); err != nil {
		return nil, err
	}
	if err := k.Policy().Allocate(r, k.Calendar()); err != nil {
		return nil, err
	}
	_ = k.Flush(r)
	return &Request{MessageID: NewMessageID(), ReservationID: req.ReservationID, Sequence: req.Sequence,
		Pending: model.Ticketing, Resources: r.Approved, Term: r.ApprovedTerm}, nil
}

func handleExtendTicket(ctx context.Context, k *kernel.Kernel, req *Request) (*Request, error) {
	r := peerReservation(k, req)
	if err := k.Policy().Extend(r); err != nil {
		return nil, err
	}
	_ = k.Flush(r)
	return &Request{MessageID: NewMessageID(), ReservationID: req.ReservationID, Sequence: req.Sequence,
		Pending: model.ExtendingTicket, Resources: r.Approved, Term: r.ApprovedTerm}, nil
}

func handleRedeem(ctx context.Context, k *kernel.Kernel, req *Request) (*Request, error) {
	r := peerReservation(k, req)
	if err := k.Policy().Allocate(r, k.Calendar()); err != nil {
		return nil, err
	}
	_ = k.Flush(r)
	return &Request{MessageID: NewMessageID(), ReservationID: req.ReservationID, Sequence: req.Sequence,
		Pending: model.Redeeming, Resources: r.Resources, Term: r.Term}, nil
}

func handleExtendLease(ctx context.Context, k *kernel.Kernel, req *Request) (*Request, error) {
	r := peerReservation(k, req)
	if err := k.Policy().Extend(r); err != nil {
		return nil, err
	}
	if err := k.Policy().Allocate(r, k.Calendar()); err != nil {
		return nil, err
	}
	_ = k.Flush(r)
	return &Request{MessageID: NewMessageID(), ReservationID: req.ReservationID, Sequence: req.Sequence,
		Pending: model.ExtendingLease, Resources: r.Resources, Term: r.Term}, nil
}

func handleModifyLease(ctx context.Context, k *kernel.Kernel, req *Request) (*Request, error) {
	r := peerReservation(k, req)
	r.AbsorbUpdateLease(req.Resources, req.Term)
	_ = k.Flush(r)
	return &Request{MessageID: NewMessageID(), ReservationID: req.ReservationID, Sequence: req.Sequence,
		Pending: model.ModifyingLease, Resources: r.Resources, Term: r.Term}, nil
}

func handleClose(ctx context.Context, k *kernel.Kernel, req *Request) (*Request, error) {
	r, ok := k.Reservation(req.ReservationID)
	if !ok {
		return &Request{MessageID: NewMessageID(), ReservationID: req.ReservationID, Sequence: req.Sequence,
			Pending: model.Closing}, nil
	}
	if err := k.Policy().Release(r, k.Calendar()); err != nil {
		return nil, err
	}
	_ = k.Flush(r)
	return &Request{MessageID: NewMessageID(), ReservationID: req.ReservationID, Sequence: req.Sequence,
		Pending: model.Closing}, nil
}

// handleRelinquish is the broker-side close for a ticket-only
// reservation that never redeemed with an authority: there is no lease
// to release, so this only needs to let the broker's own calendar
// entry go, unlike handleClose which calls policy.Release against an
// authority's allocation.
func handleRelinquish(ctx context.Context, k *kernel.Kernel, req *Request) (*Request, error) {
	r, ok := k.Reservation(req.ReservationID)
	if !ok {
		return &Request{MessageID: NewMessageID(), ReservationID: req.ReservationID, Sequence: req.Sequence,
			Pending: model.Closing}, nil
	}
	k.Calendar().Remove(r.ID)
	r.Primary = model.Closed
	r.Dirty = true
	_ = k.Flush(r)
	return &Request{MessageID: NewMessageID(), ReservationID: req.ReservationID, Sequence: req.Sequence,
		Pending: model.Closing}, nil
}

// handleClaimDelegation is the broker-side peer of an outbound claim
// (§C.1): the broker grants the delegation's resource pool the way
// Delegate/Redelegate would for a management-local delegation, but
// reached here over the RPC engine instead of a direct call.
func handleClaimDelegation(ctx context.Context, k *kernel.Kernel, req *Request) (*Request, error) {
	d := peerDelegation(k, req)
	switch d.State {
	case model.DelegationReclaimed:
		d.Redelegate(req.Resources, req.Term)
	default:
		d.Delegate(req.Resources, req.Term)
	}
	d.Seq.In = req.Sequence
	_ = k.FlushDelegation(d)
	return &Request{MessageID: NewMessageID(), DelegationID: req.DelegationID, Sequence: req.Sequence,
		IsDelegation: true, DelegationPending: model.Claiming, Resources: d.Resource, Term: d.Term}, nil
}

// handleReclaimDelegation is the broker-side peer of an outbound
// reclaim: the broker pulls the grant back.
func handleReclaimDelegation(ctx context.Context, k *kernel.Kernel, req *Request) (*Request, error) {
	d := peerDelegation(k, req)
	d.Reclaim()
	d.Seq.In = req.Sequence
	_ = k.FlushDelegation(d)
	return &Request{MessageID: NewMessageID(), DelegationID: req.DelegationID, Sequence: req.Sequence,
		IsDelegation: true, DelegationPending: model.Reclaiming}, nil
}

// handleUpdateDelegation absorbs an unsolicited delegation-graph push
// (ControllerCallback.UpdateDelegation, §4.8): unlike claim/reclaim
// this carries no gating pending state and expects no reply, mirroring
// Reservation.AbsorbUpdateLease's unsolicited-update handling.
// handleQuery answers a peer's graph-property query (§6's Query wire
// kind) against this actor's own copy of the delegation: the property
// path travels in req.Notice, the answer travels back the same way in
// the query_result response's Notice.
func handleQuery(ctx context.Context, k *kernel.Kernel, req *Request) (*Request, error) {
	d, ok := k.Delegation(req.DelegationID)
	if !ok {
		return nil, apierr.NoSuchDelegation(req.DelegationID)
	}
	value, _ := d.GraphProperty(req.Notice)
	return &Request{MessageID: NewMessageID(), DelegationID: req.DelegationID, Sequence: req.Sequence,
		IsDelegation: true, Notice: value}, nil
}

// handleQueryResult absorbs a query_result response. Query carries no
// gating pending state, so there is nothing to complete on the
// requester's delegation beyond logging — a caller that needs the
// answer gets it via Base.QueryDelegation's local read instead.
func handleQueryResult(ctx context.Context, k *kernel.Kernel, req *Request) (*Request, error) {
	return nil, nil
}

func handleUpdateDelegation(ctx context.Context, k *kernel.Kernel, req *Request) (*Request, error) {
	d := peerDelegation(k, req)
	if !req.Resources.IsEmpty() {
		d.Resource = req.Resources
	}
	if !req.Term.End.IsZero() {
		d.Term = req.Term
	}
	if len(req.Graph) > 0 {
		d.LoadGraph(req.Graph)
	}
	_ = k.FlushDelegation(d)
	return nil, nil
}
