package task

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/small-frappuccino/discordui/pkg/logging"
)

// Handler processes a task payload. ctx is cancelled when the router closes.
type Handler func(ctx context.Context, payload any) error

// Options configures how a task is queued and retried.
type Options struct {
	// GroupKey serializes tasks that share the same key (one interaction, one sync run).
	// Tasks without a key share a global group.
	GroupKey string

	// IdempotencyKey rejects a second task with the same key while the first is
	// queued or within IdempotencyTTL.
	IdempotencyKey string
	// ReleaseOnStart frees IdempotencyKey as soon as the task starts running,
	// so only tasks still waiting in the queue are collapsed.
	ReleaseOnStart bool

	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	IdempotencyTTL time.Duration
}

// Task is a unit of background work.
type Task struct {
	Type    string
	Payload any
	Options Options
}

// Config configures a Router. Zero values fall back to Defaults.
type Config struct {
	DefaultMaxAttempts int
	InitialBackoff     time.Duration
	MaxBackoff         time.Duration
	IdempotencyTTL     time.Duration

	// GroupBuffer is the queue size of each group worker.
	GroupBuffer int
	// GroupIdleTTL stops group workers that stayed idle this long.
	GroupIdleTTL time.Duration
	// CleanupInterval controls how often idle groups and stale idempotency keys are reaped.
	CleanupInterval time.Duration
	// GlobalMaxWorkers bounds concurrent handler executions; 0 means unlimited.
	GlobalMaxWorkers int

	Logger *logging.Logger
}

// Defaults returns the default router configuration.
func Defaults() Config {
	return Config{
		DefaultMaxAttempts: 3,
		InitialBackoff:     1 * time.Second,
		MaxBackoff:         30 * time.Second,
		IdempotencyTTL:     60 * time.Second,
		GroupBuffer:        64,
		GroupIdleTTL:       2 * time.Minute,
		CleanupInterval:    time.Minute,
	}
}

var (
	ErrRouterClosed    = errors.New("task router is closed")
	ErrUnknownTaskType = errors.New("unknown task type")
	ErrDuplicateTask   = errors.New("duplicate task (idempotency key present)")
)

const globalGroup = "_global"

// Router is an in-memory dispatcher with per-group serialization,
// idempotency and retry with exponential backoff. It also runs delayed
// one-shot tasks (see After).
type Router struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	groups   map[string]*groupWorker
	inflight map[string]time.Time // idempotencyKey -> expiry
	closed   bool
	cfg      Config
	log      *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}

	randMu sync.Mutex
	rng    *rand.Rand

	execSem chan struct{}
}

type groupWorker struct {
	key        string
	ch         chan *enqueuedTask
	lastActive time.Time
	stopping   bool
}

type enqueuedTask struct {
	task    Task
	attempt int
}

// NewRouter creates a Router and starts its cleanup loop.
func NewRouter(cfg Config) *Router {
	def := Defaults()
	if cfg.DefaultMaxAttempts <= 0 {
		cfg.DefaultMaxAttempts = def.DefaultMaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = def.IdempotencyTTL
	}
	if cfg.GroupBuffer <= 0 {
		cfg.GroupBuffer = def.GroupBuffer
	}
	if cfg.GroupIdleTTL <= 0 {
		cfg.GroupIdleTTL = def.GroupIdleTTL
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	tr := &Router{
		handlers: make(map[string]Handler),
		groups:   make(map[string]*groupWorker),
		inflight: make(map[string]time.Time),
		cfg:      cfg,
		log:      logging.OrGlobal(cfg.Logger).WithField("component", "task"),
		ctx:      ctx,
		cancel:   cancel,
		stopCh:   make(chan struct{}),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if cfg.GlobalMaxWorkers > 0 {
		tr.execSem = make(chan struct{}, cfg.GlobalMaxWorkers)
	}

	tr.wg.Add(1)
	go tr.backgroundLoop()
	return tr
}

// RegisterHandler registers the handler for taskType, replacing any previous one.
func (tr *Router) RegisterHandler(taskType string, handler Handler) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.handlers[taskType] = handler
}

// Dispatch enqueues a task.
// Returns ErrUnknownTaskType if no handler is registered and ErrDuplicateTask
// when a non-expired IdempotencyKey already exists.
func (tr *Router) Dispatch(ctx context.Context, t Task) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if tr.closed {
		return ErrRouterClosed
	}
	if h, ok := tr.handlers[t.Type]; !ok || h == nil {
		return ErrUnknownTaskType
	}

	eff := tr.effectiveOptions(t.Options)
	if eff.IdempotencyKey != "" {
		if expiry, exists := tr.inflight[eff.IdempotencyKey]; exists && time.Now().Before(expiry) {
			return ErrDuplicateTask
		}
		tr.inflight[eff.IdempotencyKey] = time.Now().Add(eff.IdempotencyTTL)
	}

	groupKey := eff.GroupKey
	if groupKey == "" {
		groupKey = globalGroup
	}
	gw := tr.ensureGroupLocked(groupKey)

	select {
	case gw.ch <- &enqueuedTask{task: t, attempt: 1}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel stops a pending delayed task. Calling it more than once is harmless.
type Cancel func()

// After dispatches t once delay has elapsed. The returned Cancel stops the
// dispatch if it has not happened yet.
func (tr *Router) After(delay time.Duration, t Task) Cancel {
	cancelCh := make(chan struct{})
	var once sync.Once
	cancel := func() { once.Do(func() { close(cancelCh) }) }

	tr.wg.Add(1)
	go func() {
		defer tr.wg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-timer.C:
			if err := tr.Dispatch(tr.ctx, t); err != nil && !errors.Is(err, ErrRouterClosed) {
				tr.log.WithFields(map[string]any{"type": t.Type, "error": err.Error()}).Warn("Delayed task not dispatched")
			}
		case <-cancelCh:
		case <-tr.stopCh:
		}
	}()
	return cancel
}

// Close stops the router and waits for workers to exit. Queued tasks that
// were not picked up are dropped.
func (tr *Router) Close() {
	tr.stopOnce.Do(func() {
		tr.mu.Lock()
		tr.closed = true
		for _, gw := range tr.groups {
			if gw != nil && !gw.stopping {
				gw.stopping = true
				close(gw.ch)
			}
		}
		tr.mu.Unlock()
		close(tr.stopCh)
		tr.cancel()
		tr.wg.Wait()
	})
}

// Stats is a debugging snapshot.
type Stats struct {
	GroupsCount     int
	InflightCount   int
	RouterClosed    bool
	RegisteredTypes int
}

func (tr *Router) Stats() Stats {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return Stats{
		GroupsCount:     len(tr.groups),
		InflightCount:   len(tr.inflight),
		RouterClosed:    tr.closed,
		RegisteredTypes: len(tr.handlers),
	}
}

func (tr *Router) effectiveOptions(opt Options) Options {
	if opt.MaxAttempts <= 0 {
		opt.MaxAttempts = tr.cfg.DefaultMaxAttempts
	}
	if opt.InitialBackoff <= 0 {
		opt.InitialBackoff = tr.cfg.InitialBackoff
	}
	if opt.MaxBackoff <= 0 {
		opt.MaxBackoff = tr.cfg.MaxBackoff
	}
	if opt.IdempotencyTTL <= 0 {
		opt.IdempotencyTTL = tr.cfg.IdempotencyTTL
	}
	return opt
}

func (tr *Router) ensureGroupLocked(key string) *groupWorker {
	if gw, ok := tr.groups[key]; ok && gw != nil {
		return gw
	}
	gw := &groupWorker{
		key:        key,
		ch:         make(chan *enqueuedTask, tr.cfg.GroupBuffer),
		lastActive: time.Now(),
	}
	tr.groups[key] = gw
	tr.wg.Add(1)
	go tr.groupLoop(gw)
	return gw
}

func (tr *Router) acquireExecSlot() {
	if tr.execSem != nil {
		tr.execSem <- struct{}{}
	}
}

func (tr *Router) releaseExecSlot() {
	if tr.execSem != nil {
		<-tr.execSem
	}
}

func (tr *Router) groupLoop(gw *groupWorker) {
	defer tr.wg.Done()

	for enq := range gw.ch {
		tr.mu.Lock()
		gw.lastActive = time.Now()
		handler := tr.handlers[enq.task.Type]
		eff := tr.effectiveOptions(enq.task.Options)
		if eff.ReleaseOnStart && eff.IdempotencyKey != "" {
			delete(tr.inflight, eff.IdempotencyKey)
		}
		tr.mu.Unlock()

		if handler == nil {
			tr.log.WithFields(map[string]any{"type": enq.task.Type, "group": gw.key}).Warn("Task dropped (handler not registered)")
			continue
		}

		tr.acquireExecSlot()
		err := handler(tr.ctx, enq.task.Payload)
		tr.releaseExecSlot()

		if err == nil {
			continue
		}
		fields := map[string]any{
			"type":     enq.task.Type,
			"group":    gw.key,
			"attempts": enq.attempt,
			"error":    err.Error(),
		}
		if enq.attempt >= eff.MaxAttempts || tr.ctx.Err() != nil {
			tr.log.WithFields(fields).Error("Task failed; max attempts reached")
			continue
		}

		delay := tr.computeBackoff(eff.InitialBackoff, eff.MaxBackoff, enq.attempt)
		fields["backoff"] = delay.String()
		tr.log.WithFields(fields).Warn("Task failed, scheduling retry")
		tr.requeue(gw.key, &enqueuedTask{task: enq.task, attempt: enq.attempt + 1}, delay)
	}
}

func (tr *Router) requeue(groupKey string, et *enqueuedTask, delay time.Duration) {
	tr.wg.Add(1)
	go func() {
		defer tr.wg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-tr.stopCh:
			return
		}

		tr.mu.Lock()
		defer tr.mu.Unlock()
		if tr.closed {
			return
		}
		// The original worker may have been reaped while idle.
		gw := tr.ensureGroupLocked(groupKey)
		select {
		case gw.ch <- et:
		default:
			tr.log.WithFields(map[string]any{"type": et.task.Type, "group": groupKey}).Warn("Task retry dropped (queue full)")
		}
	}()
}

func (tr *Router) computeBackoff(initial, maxBackoff time.Duration, attempt int) time.Duration {
	backoff := initial
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
			break
		}
	}
	return clampDuration(backoff+tr.jitter(backoff, 0.1), initial, maxBackoff)
}

func (tr *Router) jitter(d time.Duration, ratio float64) time.Duration {
	delta := int64(float64(d) * ratio)
	if delta <= 0 {
		return 0
	}
	tr.randMu.Lock()
	defer tr.randMu.Unlock()
	return time.Duration(tr.rng.Int63n(2*delta+1) - delta)
}

func clampDuration(v, lo, hi time.Duration) time.Duration {
	return max(min(v, hi), lo)
}

func (tr *Router) backgroundLoop() {
	defer tr.wg.Done()
	t := time.NewTicker(tr.cfg.CleanupInterval)
	defer t.Stop()
	for {
		select {
		case <-tr.stopCh:
			return
		case <-t.C:
			tr.cleanupOnce()
		}
	}
}

func (tr *Router) cleanupOnce() {
	now := time.Now()

	tr.mu.Lock()
	defer tr.mu.Unlock()
	for k, expiry := range tr.inflight {
		if now.After(expiry) {
			delete(tr.inflight, k)
		}
	}
	for key, gw := range tr.groups {
		if gw == nil || gw.stopping {
			continue
		}
		if now.Sub(gw.lastActive) >= tr.cfg.GroupIdleTTL && len(gw.ch) == 0 {
			gw.stopping = true
			close(gw.ch)
			delete(tr.groups, key)
		}
	}
}
