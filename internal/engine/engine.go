// Package engine runs order-taking conversations. Each session gets its
// own background loop so inputs for one conversation are processed
// strictly in order while independent conversations run in parallel.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pitabwire/frame/workerpool"

	"github.com/orderdesk/orderdesk/pkg/events"
	"github.com/orderdesk/orderdesk/pkg/order"
)

// Engine errors surfaced to transports.
var (
	ErrNoActiveSession = errors.New("engine: no active session")
	ErrScriptNotFound  = errors.New("engine: script not found")
	ErrBusy            = errors.New("engine: session busy, cannot accept input")
	ErrTimeout         = errors.New("engine: timed out waiting for result")
)

// Config holds engine timing settings.
type Config struct {
	SessionTTL    time.Duration
	ReapInterval  time.Duration
	SubmitTimeout time.Duration
	ResultTimeout time.Duration
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		SessionTTL:    30 * time.Minute,
		ReapInterval:  time.Minute,
		SubmitTimeout: 5 * time.Second,
		ResultTimeout: 10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.SessionTTL <= 0 {
		c.SessionTTL = def.SessionTTL
	}
	if c.ReapInterval <= 0 {
		c.ReapInterval = def.ReapInterval
	}
	if c.SubmitTimeout <= 0 {
		c.SubmitTimeout = def.SubmitTimeout
	}
	if c.ResultTimeout <= 0 {
		c.ResultTimeout = def.ResultTimeout
	}
	return c
}

// Result is the outcome of one processed input.
type Result struct {
	SessionID     string
	PreviousState order.State
	State         order.State
	Reply         string
	Terminal      bool

	// Record is set only when the input completed the order.
	Record *order.OrderRecord

	// Rejection is set when the input was refused and the state held.
	Rejection *order.ValidationError

	err error
}

// Snapshot is a read-only view of a session.
type Snapshot struct {
	SessionID  string
	ScriptName string
	State      order.State
	Fields     order.Fields
	History    []order.TransitionRecord
	StartTime  time.Time
	LastActive time.Time
}

type activeSession struct {
	session  *order.Session
	machine  *order.Machine
	inputCh  chan string
	resultCh chan Result
	cancel   context.CancelFunc
	done     chan struct{} // closed when runLoop exits
}

// Engine owns the active sessions and their processing loops.
type Engine struct {
	loader *order.Loader
	pub    *events.Publisher
	pool   workerpool.WorkerPool
	cfg    Config

	mu       sync.RWMutex
	sessions map[string]*activeSession
}

// New creates an engine. The publisher and pool may be nil; events are
// then skipped and loops run on plain goroutines.
func New(loader *order.Loader, pub *events.Publisher, pool workerpool.WorkerPool, cfg Config) *Engine {
	return &Engine{
		loader:   loader,
		pub:      pub,
		pool:     pool,
		cfg:      cfg.withDefaults(),
		sessions: make(map[string]*activeSession),
	}
}

// Begin starts a conversation for the session ID, replacing any session
// already running under it, and returns the first prompt.
func (e *Engine) Begin(ctx context.Context, sessionID, scriptName string) (Result, error) {
	machine, ok := e.loader.Get(scriptName)
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrScriptNotFound, scriptName)
	}

	// A fresh start always wins over a half-finished conversation.
	e.mu.Lock()
	old := e.sessions[sessionID]

	session := order.NewSession(sessionID, scriptName)
	as := &activeSession{
		session:  session,
		machine:  machine,
		inputCh:  make(chan string, 8),
		resultCh: make(chan Result, 8),
		done:     make(chan struct{}),
	}

	// The session outlives any single transport request, so its loop
	// runs on a context detached from the caller's.
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	as.cancel = cancel
	e.sessions[sessionID] = as
	e.mu.Unlock()

	// Stop the replaced loop outside the lock; it may be mid-purge.
	if old != nil {
		e.stop(old, sessionID)
	}

	loopFunc := func() { e.runLoop(loopCtx, as) }
	if e.pool != nil {
		if err := e.pool.Submit(loopCtx, loopFunc); err != nil {
			e.mu.Lock()
			delete(e.sessions, sessionID)
			e.mu.Unlock()
			cancel()
			return Result{}, fmt.Errorf("engine: start session loop: %w", err)
		}
	} else {
		go loopFunc()
	}

	st, prompt := machine.Begin()
	e.emit(loopCtx, events.OrderStarted, sessionID, events.OrderStartedData{ScriptName: scriptName})

	return Result{
		SessionID:     sessionID,
		PreviousState: st,
		State:         st,
		Reply:         prompt,
	}, nil
}

// HandleInput applies one user input to the session. Inputs for the same
// session are processed strictly in submission order.
func (e *Engine) HandleInput(ctx context.Context, sessionID, input string) (Result, error) {
	e.mu.RLock()
	as, ok := e.sessions[sessionID]
	e.mu.RUnlock()
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrNoActiveSession, sessionID)
	}

	select {
	case as.inputCh <- input:
	case <-as.done:
		return Result{}, fmt.Errorf("%w: %q", ErrNoActiveSession, sessionID)
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-time.After(e.cfg.SubmitTimeout):
		return Result{}, ErrBusy
	}

	select {
	case result := <-as.resultCh:
		if result.err != nil {
			return Result{}, result.err
		}
		return result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-time.After(e.cfg.ResultTimeout):
		return Result{}, ErrTimeout
	}
}

// Get returns a snapshot of an active session.
func (e *Engine) Get(sessionID string) (Snapshot, error) {
	e.mu.RLock()
	as, ok := e.sessions[sessionID]
	e.mu.RUnlock()
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %q", ErrNoActiveSession, sessionID)
	}

	return Snapshot{
		SessionID:  sessionID,
		ScriptName: as.session.ScriptName,
		State:      as.session.CurrentState(),
		Fields:     as.session.CopyFields(),
		History:    as.session.CopyHistory(),
		StartTime:  as.session.StartTime,
		LastActive: as.session.IdleSince(),
	}, nil
}

// End terminates a session without completing it.
func (e *Engine) End(_ context.Context, sessionID string) error {
	e.mu.Lock()
	as, ok := e.sessions[sessionID]
	if ok {
		delete(e.sessions, sessionID)
	}
	e.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %q", ErrNoActiveSession, sessionID)
	}
	e.stop(as, sessionID)
	return nil
}

// stop cancels a loop and waits briefly for it to exit. Callers must
// have already removed the session from the map.
func (e *Engine) stop(as *activeSession, sessionID string) {
	as.cancel()
	select {
	case <-as.done:
	case <-time.After(e.cfg.SubmitTimeout):
		slog.Warn("session loop did not exit in time", slog.String("session_id", sessionID))
	}
}

// StartReaper begins the background TTL reaper for idle sessions.
func (e *Engine) StartReaper(ctx context.Context) {
	reap := func() {
		ticker := time.NewTicker(e.cfg.ReapInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.reapIdleSessions(ctx)
			}
		}
	}
	if e.pool != nil {
		_ = e.pool.Submit(ctx, reap)
	} else {
		go reap()
	}
}

func (e *Engine) reapIdleSessions(ctx context.Context) {
	now := time.Now()

	e.mu.Lock()
	var stale []*activeSession
	var staleIDs []string
	for id, as := range e.sessions {
		if now.Sub(as.session.IdleSince()) > e.cfg.SessionTTL {
			delete(e.sessions, id)
			stale = append(stale, as)
			staleIDs = append(staleIDs, id)
		}
	}
	e.mu.Unlock()

	for i, as := range stale {
		id := staleIDs[i]
		slog.Warn("reaping idle session", slog.String("session_id", id))
		as.cancel()
		e.emit(ctx, events.SessionExpired, id, events.SessionExpiredData{
			State:     as.session.CurrentState(),
			IdleSince: as.session.IdleSince(),
		})
	}
}

// runLoop serializes input processing for one session. It exits when the
// flow reaches a terminal state or the session context is cancelled.
func (e *Engine) runLoop(ctx context.Context, as *activeSession) {
	defer close(as.done)

	for {
		select {
		case <-ctx.Done():
			return
		case input := <-as.inputCh:
			result := e.applyInput(ctx, as, input)
			select {
			case as.resultCh <- result:
			case <-ctx.Done():
				return
			}
			if result.Terminal {
				// Terminal sessions are purged immediately; the same
				// session ID can start a fresh order right away.
				e.mu.Lock()
				if cur, ok := e.sessions[result.SessionID]; ok && cur == as {
					delete(e.sessions, result.SessionID)
				}
				e.mu.Unlock()
				return
			}
		}
	}
}

func (e *Engine) applyInput(ctx context.Context, as *activeSession, input string) Result {
	sessionID := as.session.ID
	prev := as.session.CurrentState()
	fields := as.session.CopyFields()

	newFields, out, err := as.machine.Apply(prev, fields, input)
	if err != nil {
		return Result{err: err}
	}

	if out.Rejection != nil {
		as.session.Touch()
		e.emit(ctx, events.InputRejected, sessionID, events.InputRejectedData{
			State:  prev,
			Field:  out.Rejection.Field,
			Reason: string(out.Rejection.Reason),
		})
		return Result{
			SessionID:     sessionID,
			PreviousState: prev,
			State:         prev,
			Reply:         out.Reply,
			Rejection:     out.Rejection,
		}
	}

	as.session.SetOutcome(newFields, out.Next, input)

	switch {
	case out.Record != nil:
		e.emit(ctx, events.OrderCompleted, sessionID, events.OrderCompletedData{Order: *out.Record})
	case out.Next == order.StateCancelled:
		e.emit(ctx, events.OrderCancelled, sessionID, events.OrderCancelledData{State: prev})
	default:
		e.emit(ctx, events.StateTransition, sessionID, events.StateTransitionData{
			FromState:  prev,
			ToState:    out.Next,
			Input:      input,
			ScriptName: as.session.ScriptName,
		})
	}

	return Result{
		SessionID:     sessionID,
		PreviousState: prev,
		State:         out.Next,
		Reply:         out.Reply,
		Terminal:      out.Next.Terminal(),
		Record:        out.Record,
	}
}

func (e *Engine) emit(ctx context.Context, et events.EventType, sessionID string, data interface{}) {
	if e.pub == nil {
		return
	}
	if err := e.pub.Emit(ctx, et, sessionID, data); err != nil {
		slog.ErrorContext(ctx, "emit event failed",
			slog.String("event_type", string(et)),
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()))
	}
}
