// Package rpcengine implements the outbound request tracking, retry,
// timeout and Failed-RPC correlation logic of §4.5: every gating
// outbound request is tracked by message id, retried with exponential
// backoff and a per-peer circuit breaker, and either completed by a
// matching response or failed by a synthesized or remote Failed-RPC.
package rpcengine

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/fabric-actor/kernel/internal/kernel"
	"github.com/fabric-actor/kernel/internal/model"
	"github.com/fabric-actor/kernel/pkg/apierr"
	"github.com/fabric-actor/kernel/pkg/logger"
)

// DefaultClaimTimeout is the per-call timeout for claim-delegation and
// query requests named in §4.5; applied here as the default for every
// gating request since each pending state already limits a reservation
// to one outstanding outbound request at a time.
const DefaultClaimTimeout = 120 * time.Second

// Proxy is the minimal send surface the engine needs from a role-
// specific proxy (local or remote, see internal/proxy): given a
// tracked request, attempt delivery once. Retries are the engine's
// concern, not the proxy's.
type Proxy interface {
	PeerID() string
	Send(ctx context.Context, req *Request) error
}

// Resolver picks the proxy a reservation's or delegation's next
// outbound request should go through, based on its category and the
// pending state being entered (§4.8: Broker/Authority/
// ControllerCallback capability sets), plus the wire operation name the
// peer should dispatch to.
type Resolver interface {
	ProxyFor(r *model.Reservation, pending model.PendingState) (Proxy, string, error)
	ProxyForDelegation(d *model.Delegation, pending model.DelegationPendingState) (Proxy, string, error)
}

// Metrics is the subset of internal/metrics the engine needs, kept as
// a consumer-defined interface so this package doesn't import the
// concrete collector type.
type Metrics interface {
	ObserveDispatch(actor, peer, pending string)
	ObserveRetry(actor, peer string)
	ObserveFailed(actor string, permanent bool)
	IncInFlight()
	DecInFlight()
}

// Request is one outbound message tracked by the engine, keyed by
// MessageID (§4.5's request_record). Operation names the wire handler
// the peer should invoke (proxy.operationFor/delegationOperationFor
// picks it once, at resolve time, since only the resolver has the full
// reservation/delegation needed to pick correctly, e.g. routing a
// never-redeemed reservation's close to Relinquish instead of Close).
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

	mu         sync.Mutex
	retryCount int
	timer      *time.Timer
}

// RetryCount reports how many retries have been attempted so far.
func (r *Request) RetryCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.retryCount
}

// Engine tracks in-flight outbound requests and implements
// kernel.Dispatcher.
type Engine struct {
	log      *logger.Logger
	kernel   *kernel.Kernel
	resolver Resolver
	metrics  Metrics
	actorID  string
	timeout  time.Duration
	maxTries uint64

	mu       sync.Mutex
	inflight map[string]*Request // by MessageID
	breakers map[string]*gobreaker.CircuitBreaker
}

var _ kernel.Dispatcher = (*Engine)(nil)

// Config bundles an Engine's fixed collaborators.
type Config struct {
	Log        *logger.Logger
	Kernel     *kernel.Kernel
	Resolver   Resolver
	Metrics    Metrics
	ActorID    string
	Timeout    time.Duration
	MaxRetries uint64
}

// New builds an Engine.
func New(cfg Config) *Engine {
	if cfg.Log == nil {
		cfg.Log = logger.NewDefault()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultClaimTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 5
	}
	return &Engine{
		log:      cfg.Log,
		kernel:   cfg.Kernel,
		resolver: cfg.Resolver,
		metrics:  cfg.Metrics,
		actorID:  cfg.ActorID,
		timeout:  cfg.Timeout,
		maxTries: cfg.MaxRetries,
		inflight: make(map[string]*Request),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// SetResolver wires the resolver after construction, for the usual
// case where the resolver (a proxy.Factory) needs a reference to this
// Engine's Kernel and so can't be built before the Engine is.
func (e *Engine) SetResolver(r Resolver) { e.resolver = r }

// Dispatch implements kernel.Dispatcher: it resolves a proxy for the
// reservation's new pending state, registers tracking under a fresh
// message id, starts the per-call timeout, and sends asynchronously so
// the kernel goroutine is never blocked on I/O.
func (e *Engine) Dispatch(pending model.PendingState, r *model.Reservation) error {
	proxy, operation, err := e.resolver.ProxyFor(r, pending)
	if err != nil {
		return apierr.TransportFailure(err)
	}

	req := &Request{
		MessageID:     uuid.NewString(),
		ReservationID: r.ID,
		Sequence:      r.Seq.Out,
		Pending:       pending,
		Operation:     operation,
		Resources:     r.Requested,
		Term:          r.RequestedTerm,
	}
	req.timer = time.AfterFunc(e.timeout, func() { e.onTimeout(req.MessageID) })

	e.mu.Lock()
	e.inflight[req.MessageID] = req
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.ObserveDispatch(e.actorID, proxy.PeerID(), pending.String())
		e.metrics.IncInFlight()
	}

	go e.send(proxy, req)
	return nil
}

// DispatchDelegation implements kernel.Dispatcher's delegation side: it
// resolves a proxy for the delegation's new pending state and tracks
// the round trip under its own timeout (§C.1's ClaimTimeout), the same
// discipline Dispatch applies to reservations.
func (e *Engine) DispatchDelegation(pending model.DelegationPendingState, d *model.Delegation) error {
	proxy, operation, err := e.resolver.ProxyForDelegation(d, pending)
	if err != nil {
		return apierr.TransportFailure(err)
	}

	req := &Request{
		MessageID:         uuid.NewString(),
		DelegationID:      d.ID,
		Sequence:          d.Seq.Out,
		DelegationPending: pending,
		IsDelegation:      true,
		Operation:         operation,
		Resources:         d.Resource,
		Term:              d.Term,
		Graph:             d.Graph,
	}
	req.timer = time.AfterFunc(e.timeout, func() { e.onTimeout(req.MessageID) })

	e.mu.Lock()
	e.inflight[req.MessageID] = req
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.ObserveDispatch(e.actorID, proxy.PeerID(), pending.String())
		e.metrics.IncInFlight()
	}

	go e.send(proxy, req)
	return nil
}

// CompleteRequest clears tracking for a request whose response has
// already been applied via a kernel.IncomingRPCEvent, stopping its
// timeout from firing spuriously.
func (e *Engine) CompleteRequest(messageID string) {
	e.mu.Lock()
	req, ok := e.inflight[messageID]
	delete(e.inflight, messageID)
	e.mu.Unlock()
	if ok && req.timer != nil {
		req.timer.Stop()
	}
	if ok && e.metrics != nil {
		e.metrics.DecInFlight()
	}
}

// ReceiveFailedRPC applies a remote Failed-RPC notice correlated by
// message id (§4.5): permanent errors fail the reservation with the
// remote notice, transient errors are retried.
func (e *Engine) ReceiveFailedRPC(messageID string, permanent bool, notice string) {
	e.mu.Lock()
	req, ok := e.inflight[messageID]
	delete(e.inflight, messageID)
	e.mu.Unlock()
	if !ok {
		return
	}
	if req.timer != nil {
		req.timer.Stop()
	}
	e.fail(req, permanent, notice)
}

func (e *Engine) onTimeout(messageID string) {
	e.mu.Lock()
	req, ok := e.inflight[messageID]
	delete(e.inflight, messageID)
	e.mu.Unlock()
	if !ok {
		return
	}
	if req.IsDelegation {
		// A claim/reclaim round trip is permanently failed on timeout
		// rather than retried (Testable Scenario 5): unlike a
		// reservation's gating request, a stuck delegation claim has no
		// tick-driven retry path to fall back on.
		e.fail(req, true, NewClaimTimeout(messageID, req.DelegationID).Error())
		return
	}
	e.fail(req, false, apierr.TransportTimeout(messageID).Error())
}

func (e *Engine) fail(req *Request, permanent bool, notice string) {
	if e.metrics != nil {
		e.metrics.DecInFlight()
		e.metrics.ObserveFailed(e.actorID, permanent)
	}
	if req.IsDelegation {
		err := e.kernel.Enqueue(kernel.FailedDelegationRPCEvent{
			DelegationID: req.DelegationID,
			Permanent:    permanent,
			Notice:       notice,
			Retry: func(k *kernel.Kernel, d *model.Delegation) error {
				return e.DispatchDelegation(req.DelegationPending, d)
			},
		})
		if err != nil {
			e.log.WithFields(map[string]any{"delegation": req.DelegationID, "message_id": req.MessageID}).
				Warn("failed to enqueue delegation Failed-RPC: " + err.Error())
		}
		return
	}
	err := e.kernel.Enqueue(kernel.FailedRPCEvent{
		ReservationID: req.ReservationID,
		Permanent:     permanent,
		Notice:        notice,
		Retry: func(k *kernel.Kernel, r *model.Reservation) error {
			return e.Dispatch(req.Pending, r)
		},
	})
	if err != nil {
		e.log.WithFields(map[string]any{"reservation": req.ReservationID, "message_id": req.MessageID}).
			Warn("failed to enqueue Failed-RPC: " + err.Error())
	}
}

func (e *Engine) send(proxy Proxy, req *Request) {
	breaker := e.breakerFor(proxy.PeerID())
	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), e.maxTries)

	err := backoff.Retry(func() error {
		req.mu.Lock()
		req.retryCount++
		attempt := req.retryCount
		req.mu.Unlock()
		if attempt > 1 && e.metrics != nil {
			e.metrics.ObserveRetry(e.actorID, proxy.PeerID())
		}
		_, err := breaker.Execute(func() (any, error) {
			return nil, proxy.Send(context.Background(), req)
		})
		return err
	}, bo)

	if err != nil {
		e.mu.Lock()
		_, stillTracked := e.inflight[req.MessageID]
		delete(e.inflight, req.MessageID)
		e.mu.Unlock()
		if stillTracked {
			if req.timer != nil {
				req.timer.Stop()
			}
			e.fail(req, false, err.Error())
		}
	}
}

func (e *Engine) breakerFor(peerID string) *gobreaker.CircuitBreaker {
	e.mu.Lock()
	defer e.mu.Unlock()
	if b, ok := e.breakers[peerID]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        peerID,
		MaxRequests: 3,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	e.breakers[peerID] = b
	return b
}
