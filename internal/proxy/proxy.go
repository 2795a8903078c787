// Package proxy implements the role-specific capability sets of §4.8:
// Broker, Authority and ControllerCallback, each reachable through
// either a local (in-process) or remote (message bus) transport. Both
// transports satisfy rpcengine.Proxy, so the RPC engine never knows or
// cares which one it's talking to.
package proxy

import (
	"context"

	"github.com/fabric-actor/kernel/internal/model"
)

// Broker is the capability set an actor exposes to clients holding
// tickets against it: ticket, extend-ticket, relinquish, plus
// delegation claim/reclaim.
type Broker interface {
	Ticket(ctx context.Context, req *Request) error
	ExtendTicket(ctx context.Context, req *Request) error
	Relinquish(ctx context.Context, req *Request) error
	ClaimDelegation(ctx context.Context, req *Request) error
	ReclaimDelegation(ctx context.Context, req *Request) error
}

// Authority is the capability set an actor exposes to ticket holders
// redeeming for a lease: redeem, extend-lease, modify-lease, close.
type Authority interface {
	Redeem(ctx context.Context, req *Request) error
	ExtendLease(ctx context.Context, req *Request) error
	ModifyLease(ctx context.Context, req *Request) error
	Close(ctx context.Context, req *Request) error
}

// ControllerCallback is the capability set a requesting actor exposes
// back to its broker/authority so they can deliver asynchronous
// updates and failures: update-ticket, update-lease, update-delegation,
// failed-rpc, query-result.
type ControllerCallback interface {
	UpdateTicket(ctx context.Context, req *Request) error
	UpdateLease(ctx context.Context, req *Request) error
	UpdateDelegation(ctx context.Context, req *Request) error
	FailedRPC(ctx context.Context, req *Request) error
	QueryResult(ctx context.Context, req *Request) error
}

// Request is the wire-level envelope carried over either transport: the
// reservation/delegation identifiers and sequence the peer needs to
// apply the call idempotently, plus the resource/term payload for the
// operations that carry one. Concrete ticket/lease bundles travel in
// Resources.Concrete, opaque to everything except the two actors that
// understand that resource type. Operation is stamped once by the
// resolver (Factory.ProxyFor/ProxyForDelegation) at resolve time and
// carried unchanged across the wire, since only the resolver has full
// access to the reservation/delegation needed to pick it correctly.
type Request struct {
	MessageID         string
	ReservationID     string
	DelegationID      string
	Sequence          int
	Pending           model.PendingState
	IsDelegation      bool
	DelegationPending model.DelegationPendingState
	Operation         string

	Resources model.ResourceSet
	Term      model.Term
	Notice    string
	Graph     []byte
}

// operationFor maps a reservation's newly-entered pending state to the
// role operation that must be invoked on its peer (§4.2's pending
// values each correspond to exactly one outbound call). Closing and
// ClosingJoining route to the authority's Close, except for a
// never-redeemed ticket-only reservation (no AuthorityID, only a
// BrokerID), whose close must route to the broker's Relinquish instead
// since it never reached Active.
func operationFor(r *model.Reservation, pending model.PendingState) string {
	switch pending {
	case model.Ticketing:
		return "ticket"
	case model.ExtendingTicket:
		return "extend_ticket"
	case model.Redeeming:
		return "redeem"
	case model.ExtendingLease:
		return "extend_lease"
	case model.ModifyingLease:
		return "modify_lease"
	case model.Closing, model.ClosingJoining:
		if r.AuthorityID == "" && r.BrokerID != "" {
			return "relinquish"
		}
		return "close"
	default:
		return "unknown"
	}
}

// delegationOperationFor maps a delegation's newly-entered pending
// state to the broker operation its peer must invoke.
func delegationOperationFor(pending model.DelegationPendingState) string {
	switch pending {
	case model.Claiming:
		return "claim_delegation"
	case model.Reclaiming:
		return "reclaim_delegation"
	default:
		return "unknown"
	}
}
