// Package kernel implements the per-actor single-threaded event loop
// (§4.3): one queue, one goroutine draining it in strict arrival order,
// every handler non-blocking. Outbound RPC sends are handed to the
// dispatcher (the RPC engine) rather than performed inline on the kernel
// goroutine; persistence flushes are not handed off and run
// synchronously on the kernel goroutine at the end of each event (see
// Flush).
package kernel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fabric-actor/kernel/internal/clock"
	"github.com/fabric-actor/kernel/internal/model"
	"github.com/fabric-actor/kernel/internal/policy"
	"github.com/fabric-actor/kernel/pkg/apierr"
	"github.com/fabric-actor/kernel/pkg/logger"
)

// Gateway is the subset of the persistence gateway (§4.6) the kernel
// needs: flushing dirty entities after an event, without the kernel
// knowing how or where they're stored.
type Gateway interface {
	FlushReservation(r *model.Reservation) error
	FlushDelegation(d *model.Delegation) error
	FlushSlice(s *model.Slice) error
}

// Dispatcher sends the outbound RPC appropriate for a reservation or
// delegation that has just entered a gating pending state (§4.5). The
// RPC engine implements this by picking the role-appropriate proxy; the
// kernel itself never talks to a proxy directly.
type Dispatcher interface {
	Dispatch(pending model.PendingState, r *model.Reservation) error
	DispatchDelegation(pending model.DelegationPendingState, d *model.Delegation) error
}

// Metrics is the subset of internal/metrics the kernel needs, kept as
// a consumer-defined interface so this package doesn't import the
// concrete collector type.
type Metrics interface {
	ObserveKernelEvent(actor, event, outcome string, d time.Duration)
}

// Event is one unit of work processed by the kernel loop in the order
// it was enqueued. Handle must not block.
type Event interface {
	Handle(k *Kernel) error
}

// Kernel owns one actor's in-memory reservation/delegation/slice
// registry, its calendar, and the single goroutine that drives them.
// Every field below is touched only by the loop goroutine once Start
// has run; external callers interact exclusively through Enqueue.
type Kernel struct {
	log        *logger.Logger
	ck         *clock.Clock
	calendar   *clock.Calendar
	policy     policy.Policy
	gateway    Gateway
	dispatcher Dispatcher
	metrics    Metrics
	actorID    string

	reservations map[string]*model.Reservation
	delegations  map[string]*model.Delegation
	slices       map[string]*model.Slice

	queue chan Event

	mu        sync.Mutex
	running   bool
	recovered bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// Config bundles a Kernel's fixed collaborators.
type Config struct {
	Log           *logger.Logger
	Clock         *clock.Clock
	Calendar      *clock.Calendar
	Policy        policy.Policy
	Gateway       Gateway
	Dispatcher    Dispatcher
	Metrics       Metrics
	ActorID       string
	QueueCapacity int
}

// New builds a Kernel. The queue stays closed to new events until
// MarkRecovered is called, per §4.7's "refuses new inbound events until
// recovery completes".
func New(cfg Config) *Kernel {
	if cfg.Log == nil {
		cfg.Log = logger.NewDefault()
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 4096
	}
	return &Kernel{
		log:          cfg.Log,
		ck:           cfg.Clock,
		calendar:     cfg.Calendar,
		policy:       cfg.Policy,
		gateway:      cfg.Gateway,
		dispatcher:   cfg.Dispatcher,
		metrics:      cfg.Metrics,
		actorID:      cfg.ActorID,
		reservations: make(map[string]*model.Reservation),
		delegations:  make(map[string]*model.Delegation),
		slices:       make(map[string]*model.Slice),
		queue:        make(chan Event, cfg.QueueCapacity),
	}
}

// Reservation looks up a reservation by id from the in-memory registry.
// Only safe to call from the loop goroutine, i.e. from an Event's
// Handle method.
func (k *Kernel) Reservation(id string) (*model.Reservation, bool) {
	r, ok := k.reservations[id]
	return r, ok
}

// PutReservation registers or replaces a reservation in the in-memory
// registry. Only safe to call from the loop goroutine.
func (k *Kernel) PutReservation(r *model.Reservation) { k.reservations[r.ID] = r }

// RemoveReservation drops a reservation from the registry and sweeps it
// out of the calendar.
func (k *Kernel) RemoveReservation(id string) {
	delete(k.reservations, id)
	k.calendar.Remove(id)
}

// Delegation looks up a delegation by id.
func (k *Kernel) Delegation(id string) (*model.Delegation, bool) {
	d, ok := k.delegations[id]
	return d, ok
}

// PutDelegation registers or replaces a delegation.
func (k *Kernel) PutDelegation(d *model.Delegation) { k.delegations[d.ID] = d }

// RemoveDelegation drops a delegation from the registry.
func (k *Kernel) RemoveDelegation(id string) { delete(k.delegations, id) }

// Delegations returns every delegation currently registered. Only safe
// to call from the loop goroutine.
func (k *Kernel) Delegations() map[string]*model.Delegation { return k.delegations }

// Slice looks up a slice by id.
func (k *Kernel) Slice(id string) (*model.Slice, bool) {
	s, ok := k.slices[id]
	return s, ok
}

// PutSlice registers or replaces a slice.
func (k *Kernel) PutSlice(s *model.Slice) { k.slices[s.ID] = s }

// RemoveSlice drops a slice from the registry. Callers are responsible
// for checking Slice.IsEmpty first; the kernel itself doesn't enforce
// that invariant since a few recovery/cleanup paths need to force it.
func (k *Kernel) RemoveSlice(id string) { delete(k.slices, id) }

// Reservations returns every reservation currently registered. Only
// safe to call from the loop goroutine; the management plane uses this
// from inside a LocalCommandEvent to build a snapshot response.
func (k *Kernel) Reservations() map[string]*model.Reservation { return k.reservations }

// Calendar returns the kernel's calendar, for use by Event handlers.
func (k *Kernel) Calendar() *clock.Calendar { return k.calendar }

// Policy returns the kernel's policy, for use by Event handlers.
func (k *Kernel) Policy() policy.Policy { return k.policy }

// Clock returns the kernel's clock, for use by Event handlers.
func (k *Kernel) Clock() *clock.Clock { return k.ck }

// Dispatcher returns the kernel's outbound RPC dispatcher.
func (k *Kernel) Dispatcher() Dispatcher { return k.dispatcher }

// SetDispatcher wires the dispatcher after construction, for the usual
// case where the dispatcher (the RPC engine) itself needs a reference
// to this Kernel and so can't be built before it.
func (k *Kernel) SetDispatcher(d Dispatcher) { k.dispatcher = d }

// QueueDepth reports how many events are currently waiting in the
// queue, for maintenance-cron metrics snapshots.
func (k *Kernel) QueueDepth() int { return len(k.queue) }

// Flush persists a dirty reservation and clears its dirty flag. Per
// §3's invariant, every dirty entity is persisted in the same tick or
// its mutation must be rolled back; this kernel flushes synchronously
// at the end of each event rather than batching across events, which
// satisfies the invariant at the cost of one round-trip per event.
func (k *Kernel) Flush(r *model.Reservation) error {
	if !r.Dirty {
		return nil
	}
	if err := k.gateway.FlushReservation(r); err != nil {
		return apierr.DatabaseError("flush-reservation", err)
	}
	r.Dirty = false
	return nil
}

// FlushDelegation persists a dirty delegation.
func (k *Kernel) FlushDelegation(d *model.Delegation) error {
	if !d.Dirty {
		return nil
	}
	if err := k.gateway.FlushDelegation(d); err != nil {
		return apierr.DatabaseError("flush-delegation", err)
	}
	d.Dirty = false
	return nil
}

// FlushSlice persists a dirty slice.
func (k *Kernel) FlushSlice(s *model.Slice) error {
	if !s.Dirty {
		return nil
	}
	if err := k.gateway.FlushSlice(s); err != nil {
		return apierr.DatabaseError("flush-slice", err)
	}
	s.Dirty = false
	return nil
}

// MarkRecovered opens the queue to new events. Call once recovery
// (§4.7) has finished loading state and revisiting the calendar.
func (k *Kernel) MarkRecovered() {
	k.mu.Lock()
	k.recovered = true
	k.mu.Unlock()
}

// Enqueue submits an event for processing. It returns a Recovering
// error if the actor has not finished recovery yet, and a QueueFull
// error if the queue's capacity is exhausted.
func (k *Kernel) Enqueue(ev Event) error {
	k.mu.Lock()
	recovered := k.recovered
	k.mu.Unlock()
	if !recovered {
		return apierr.InternalError("actor is recovering, rejecting new events", nil).WithDetail("code", "recovering")
	}
	select {
	case k.queue <- ev:
		return nil
	default:
		return apierr.InternalError("kernel queue is full", nil).WithDetail("code", "queue_full")
	}
}

// Start launches the loop goroutine and a ticker goroutine that
// enqueues a Tick event once per cycle. Start is idempotent.
func (k *Kernel) Start(ctx context.Context) error {
	k.mu.Lock()
	if k.running {
		k.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	k.cancel = cancel
	k.running = true
	k.mu.Unlock()

	k.wg.Add(2)
	go k.loop(runCtx)
	go k.tickLoop(runCtx)

	k.log.Info("kernel started")
	return nil
}

// Stop cancels both goroutines and waits for them to exit, or until ctx
// is done.
func (k *Kernel) Stop(ctx context.Context) error {
	k.mu.Lock()
	if !k.running {
		k.mu.Unlock()
		return nil
	}
	cancel := k.cancel
	k.running = false
	k.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		k.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	k.log.Info("kernel stopped")
	return nil
}

func (k *Kernel) tickLoop(ctx context.Context) {
	defer k.wg.Done()
	interval := k.ck.Millis()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cycle := k.ck.Now()
			if err := k.Enqueue(TickEvent{Cycle: cycle}); err != nil {
				k.log.WithFields(map[string]any{"cycle": cycle}).Warn("dropped tick: " + err.Error())
			}
		}
	}
}

func (k *Kernel) loop(ctx context.Context) {
	defer k.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-k.queue:
			k.process(ev)
		}
	}
}

// process runs one event's Handle, converting an *model.InvariantViolation
// panic into a fatal log line. Per the error-handling design, an
// invariant violation is never a recoverable error: this is the only
// place in the system that recovers the panic, and it does so only to
// make a best-effort flush of dirty entities and log with full context
// before the process exits.
func (k *Kernel) process(ev Event) {
	start := time.Now()
	outcome := "ok"
	defer func() {
		if r := recover(); r != nil {
			if iv, ok := r.(*model.InvariantViolation); ok {
				if k.metrics != nil {
					k.metrics.ObserveKernelEvent(k.actorID, fmt.Sprintf("%T", ev), "invariant_violation", time.Since(start))
				}
				if k.gateway != nil {
					for _, res := range k.reservations {
						_ = k.Flush(res)
					}
					for _, d := range k.delegations {
						_ = k.FlushDelegation(d)
					}
					for _, s := range k.slices {
						_ = k.FlushSlice(s)
					}
				}
				k.log.WithFields(map[string]any{"entity": iv.Entity, "from": iv.From, "to": iv.To}).
					Fatal(fmt.Sprintf("invariant violation: %s", iv.Detail))
			}
			panic(r)
		}
	}()
	err := ev.Handle(k)
	if err != nil {
		outcome = "error"
		k.log.WithFields(map[string]any{"event": fmt.Sprintf("%T", ev)}).Warn("event handling failed: " + err.Error())
	}
	if k.metrics != nil {
		k.metrics.ObserveKernelEvent(k.actorID, fmt.Sprintf("%T", ev), outcome, time.Since(start))
	}
}
