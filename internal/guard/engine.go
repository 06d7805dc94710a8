package guard

import (
	"context"
	"sync"
	"time"

	"guard-go/internal/metrics"
)

// DefaultWorkers bounds how many guarded events are handled concurrently.
const DefaultWorkers = 8

// DefaultQueueSize bounds the submit queue; events past it are dropped with
// a warning rather than blocking the gateway dispatch goroutine.
const DefaultQueueSize = 256

// Engine runs one state machine per guarded event: OBSERVED -> ATTRIBUTED
// -> IGNORED or ENFORCED. Events are dispatched to a bounded worker pool;
// unrelated events may be handled out of arrival order. Any failure inside
// a handler terminates only that event's handling.
type Engine struct {
	gw         Gateway
	policy     *Policy
	limiter    *Limiter
	punisher   *Punisher
	attributor *Attributor
	alerts     *Alerter
	log        Logger
	metrics    *metrics.Set

	workers   int
	queue     chan Event
	banLimit  int
	banWindow time.Duration

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// EngineOption adjusts engine construction.
type EngineOption func(*Engine)

// WithWorkers overrides the worker pool size.
func WithWorkers(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithQueueSize overrides the submit queue size.
func WithQueueSize(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.queue = make(chan Event, n)
		}
	}
}

// WithMetrics attaches a counter set.
func WithMetrics(m *metrics.Set) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithBanBurst overrides the strict-tier ban burst limit and window.
func WithBanBurst(limit int, window time.Duration) EngineOption {
	return func(e *Engine) {
		if limit > 0 {
			e.banLimit = limit
		}
		if window > 0 {
			e.banWindow = window
		}
	}
}

// NewEngine creates a protection engine. Call Start before submitting.
func NewEngine(gw Gateway, policy *Policy, limiter *Limiter, punisher *Punisher,
	attributor *Attributor, alerts *Alerter, log Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		gw:         gw,
		policy:     policy,
		limiter:    limiter,
		punisher:   punisher,
		attributor: attributor,
		alerts:     alerts,
		log:        log,
		workers:    DefaultWorkers,
		queue:      make(chan Event, DefaultQueueSize),
		banLimit:   BanBurstLimit,
		banWindow:  BanBurstWindow,
		stopCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start launches the worker pool. ctx bounds the lifetime of all handlers.
func (e *Engine) Start(ctx context.Context) {
	e.startOnce.Do(func() {
		for i := 0; i < e.workers; i++ {
			e.wg.Add(1)
			go e.worker(ctx)
		}
		e.log.Info("protection engine started", "workers", e.workers)
	})
}

// Stop shuts the pool down and waits for in-flight handlers. A handler that
// already started enforcement runs to completion; it is never pre-empted.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopCh)
		e.wg.Wait()
		e.log.Info("protection engine stopped")
	})
}

// Submit queues one event for handling. Never blocks: if the queue is full
// the event is dropped with a warning.
func (e *Engine) Submit(ev Event) {
	select {
	case e.queue <- ev:
	default:
		e.log.Warn("event queue full, dropping event", "category", string(ev.Category))
		e.metrics.EventIgnored(string(ev.Category), "queue_full")
	}
}

func (e *Engine) worker(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case <-e.stopCh:
			return
		case <-ctx.Done():
			return
		case ev := <-e.queue:
			e.Handle(ctx, ev)
		}
	}
}

// Handle runs one event through its category state machine. Exported so
// operator tooling and tests can drive the engine synchronously.
func (e *Engine) Handle(ctx context.Context, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("handler panic recovered", "category", string(ev.Category), "panic", r)
		}
	}()

	e.metrics.EventObserved(string(ev.Category))

	spec, ok := categories[ev.Category]
	if !ok {
		e.log.Warn("event with unknown category dropped", "category", string(ev.Category))
		return
	}

	// ATTRIBUTED: resolve the actor or ignore the event entirely.
	entry, ok := e.attributor.Attribute(ctx, spec.audit)
	if !ok {
		e.metrics.EventIgnored(string(ev.Category), "unattributed")
		return
	}

	if e.policy.IsTrustedAny(ctx, entry.ActorID, spec.scopes...) {
		e.metrics.EventIgnored(string(ev.Category), "trusted")
		return
	}

	// The actor must be a member the guardian can act on; otherwise the
	// event ends here, with no reversal.
	punishable, err := e.gw.Punishable(ctx, entry.ActorID)
	if err != nil {
		e.log.Debug("punishable check failed, ignoring event",
			"category", string(ev.Category), "actor", entry.ActorID, "error", err)
		e.metrics.EventIgnored(string(ev.Category), "capability")
		return
	}
	if !punishable {
		e.metrics.EventIgnored(string(ev.Category), "capability")
		return
	}

	// ENFORCED.
	e.metrics.EventEnforced(string(ev.Category))
	e.enforce(ctx, ev, entry)
}

// categorySpec binds a guarded category to its audit kind and the scopes
// that grant immunity. ScopeFull is implicit in every trust check.
type categorySpec struct {
	audit  AuditKind
	scopes []Scope
}

var categories = map[Category]categorySpec{
	CategoryRoleDelete:    {AuditRoleDelete, []Scope{ScopeOwner}},
	CategoryRoleCreate:    {AuditRoleCreate, []Scope{ScopeOwner}},
	CategoryRoleUpdate:    {AuditRoleUpdate, []Scope{ScopeOwner}},
	CategoryMemberRoles:   {AuditMemberRoleUpdate, []Scope{ScopeRole, ScopeOwner}},
	CategoryChannelDelete: {AuditChannelDelete, []Scope{ScopeChannel, ScopeOwner}},
	CategoryChannelCreate: {AuditChannelCreate, []Scope{ScopeChannel, ScopeOwner}},
	CategoryChannelUpdate: {AuditChannelUpdate, []Scope{ScopeChannel, ScopeOwner}},
	CategoryBan:           {AuditMemberBanAdd, []Scope{ScopeBanAndKick, ScopeOwner}},
	CategoryKick:          {AuditMemberKick, []Scope{ScopeBanAndKick, ScopeOwner}},
	CategoryBotAdd:        {AuditBotAdd, nil},
	CategoryWebhookUpdate: {AuditWebhookUpdate, []Scope{ScopeOwner}},
	CategoryEmojiCreate:   {AuditEmojiCreate, []Scope{ScopeOwner}},
	CategoryEmojiDelete:   {AuditEmojiDelete, []Scope{ScopeOwner}},
	CategoryStickerCreate: {AuditStickerCreate, []Scope{ScopeOwner}},
	CategoryStickerDelete: {AuditStickerDelete, []Scope{ScopeOwner}},
	CategoryIntegrations:  {AuditIntegrationUpdate, []Scope{ScopeOwner}},
	CategoryWidget:        {AuditGuildUpdate, []Scope{ScopeOwner}},
	CategorySplash:        {AuditGuildUpdate, []Scope{ScopeOwner}},
	CategoryVerification:  {AuditGuildUpdate, []Scope{ScopeOwner}},
	CategoryDescription:   {AuditGuildUpdate, []Scope{ScopeOwner}},
}
