package proxy

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/fabric-actor/kernel/internal/kernel"
	"github.com/fabric-actor/kernel/internal/model"
	"github.com/fabric-actor/kernel/internal/rpcengine"
	"github.com/fabric-actor/kernel/pkg/apierr"
)

// RequestHandler runs a peer's side of one role operation (§4.8) and
// returns the response envelope to deliver back to the origin, or an
// error to fail the reservation. It always runs on the peer kernel's
// own loop goroutine (invoked from a kernel.Event's Handle), so it may
// freely look up and mutate the peer's reservations/delegations.
type RequestHandler func(ctx context.Context, k *kernel.Kernel, req *Request) (*Request, error)

// Local is an in-process proxy: it reaches its peer by enqueueing onto
// that peer's own kernel queue rather than calling any method on the
// peer's objects directly, so the peer's gate and sequencing still
// apply exactly as they would across a real transport. The response is
// delivered back to the origin the same way, as an
// kernel.IncomingRPCEvent on the origin's queue.
type Local struct {
	peerID   string
	peer     *kernel.Kernel
	origin   *kernel.Kernel
	engine   *rpcengine.Engine
	handlers map[string]RequestHandler
}

var _ rpcengine.Proxy = (*Local)(nil)

// NewLocal builds a Local proxy from origin to peer. handlers maps
// operation names (see operationFor) to the peer-side logic for each;
// an operation with no registered handler is rejected with
// apierr.InternalError rather than silently approved.
func NewLocal(peerID string, peer, origin *kernel.Kernel, engine *rpcengine.Engine, handlers map[string]RequestHandler) *Local {
	return &Local{peerID: peerID, peer: peer, origin: origin, engine: engine, handlers: handlers}
}

func (l *Local) PeerID() string { return l.peerID }

// Send enqueues the request onto the peer's kernel queue. The peer
// processes it on its own loop goroutine and, on completion, enqueues
// the response back onto the origin's queue as an IncomingRPCEvent —
// Send itself returns as soon as enqueueing succeeds, since delivery to
// the peer is asynchronous by construction (§4.3's non-blocking
// handlers apply on both sides of a local call, not just one).
func (l *Local) Send(ctx context.Context, req *rpcengine.Request) error {
	op := req.Operation
	handler, ok := l.handlers[op]
	if !ok {
		return apierr.InternalError(fmt.Sprintf("no local handler registered for operation %q", op), nil)
	}

	envelope := &Request{
		MessageID:         req.MessageID,
		ReservationID:     req.ReservationID,
		DelegationID:      req.DelegationID,
		Sequence:          req.Sequence,
		Pending:           req.Pending,
		IsDelegation:      req.IsDelegation,
		DelegationPending: req.DelegationPending,
		Operation:         req.Operation,
		Resources:         req.Resources,
		Term:              req.Term,
		Notice:            req.Notice,
		Graph:             req.Graph,
	}

	return l.peer.Enqueue(kernel.LocalCommandEvent{
		Handler: func(k *kernel.Kernel) error {
			resp, err := handler(ctx, k, envelope)
			if err != nil {
				if req.IsDelegation {
					return l.origin.Enqueue(kernel.FailedDelegationRPCEvent{
						DelegationID: req.DelegationID,
						Permanent:    true,
						Notice:       err.Error(),
					})
				}
				return l.origin.Enqueue(kernel.FailedRPCEvent{
					ReservationID: req.ReservationID,
					Permanent:     true,
					Notice:        err.Error(),
				})
			}
			if resp == nil {
				return nil
			}
			return l.deliverResponse(resp)
		},
	})
}

// deliverResponse enqueues the peer's response onto the origin kernel
// as an IncomingRPCEvent or IncomingDelegationRPCEvent, gated by the
// same sequence number the request carried — the origin's normal
// duplicate-delivery protection applies to local calls exactly as it
// does to remote ones.
func (l *Local) deliverResponse(resp *Request) error {
	if resp.IsDelegation {
		return l.origin.Enqueue(kernel.IncomingDelegationRPCEvent{
			DelegationID: resp.DelegationID,
			SequenceIn:   resp.Sequence,
			Handler: func(k *kernel.Kernel, d *model.Delegation) error {
				l.engine.CompleteRequest(resp.MessageID)
				return applyDelegationResponse(d, resp)
			},
		})
	}
	return l.origin.Enqueue(kernel.IncomingRPCEvent{
		ReservationID: resp.ReservationID,
		SequenceIn:    resp.Sequence,
		Handler: func(k *kernel.Kernel, r *model.Reservation) error {
			l.engine.CompleteRequest(resp.MessageID)
			return applyResponse(r, resp)
		},
	})
}

// applyResponse folds a peer's response into the origin's reservation,
// dispatching on the pending state the request was made under — the
// mirror image of operationFor, completing rather than initiating.
func applyResponse(r *model.Reservation, resp *Request) error {
	switch resp.Pending {
	case model.Ticketing:
		r.Bind(resp.Resources, resp.Term)
	case model.Redeeming:
		r.CompleteRedeem(resp.Resources, resp.Term)
	case model.ExtendingTicket:
		r.CompleteExtendTicket(resp.Resources, resp.Term)
	case model.ExtendingLease:
		r.CompleteExtendLease(resp.Resources, resp.Term)
	case model.ModifyingLease:
		r.AbsorbUpdateLease(resp.Resources, resp.Term)
	case model.Closing, model.ClosingJoining:
		r.CompleteClose()
	default:
		return apierr.InternalError(fmt.Sprintf("no response handler for pending state %s", resp.Pending), nil)
	}
	return nil
}

// applyDelegationResponse folds a broker's claim/reclaim response into
// the origin's delegation, the delegation-side mirror of applyResponse.
func applyDelegationResponse(d *model.Delegation, resp *Request) error {
	switch resp.DelegationPending {
	case model.Claiming:
		d.CompleteClaim(resp.Resources, resp.Term)
	case model.Reclaiming:
		d.CompleteReclaim()
	default:
		return apierr.InternalError(fmt.Sprintf("no response handler for delegation pending state %s", resp.DelegationPending), nil)
	}
	return nil
}

// NewMessageID is a small convenience so handlers that build their own
// response envelope don't need to import google/uuid directly.
func NewMessageID() string { return uuid.NewString() }
