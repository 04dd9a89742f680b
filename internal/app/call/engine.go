// Package call relays WebRTC negotiation between exactly two users.
//
// Each call attempt is an explicit state value (ringing, connected, then
// ended or declined) shared by both parties and keyed by user identity.
// Negotiation payloads pass through verbatim and are never stored.
package call

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/relay/internal/core"
	"github.com/dkeye/relay/internal/domain"
	"github.com/dkeye/relay/internal/metrics"
	"github.com/dkeye/relay/internal/store"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnreachable = errors.New("callee unreachable")
	ErrBusy        = errors.New("party already in a call")
	// ErrInvalidTransition marks events that do not match any live attempt.
	// Races make these normal, so callers treat them as no-ops.
	ErrInvalidTransition = errors.New("invalid call transition")
)

// Directory resolves a user identity to its live connection.
type Directory interface {
	Lookup(user domain.UserID) (core.Connection, bool)
}

type Attempt struct {
	Caller      domain.UserID
	Callee      domain.UserID
	Phase       domain.CallPhase
	StartedAt   time.Time
	ConnectedAt time.Time
}

func (a *Attempt) peerOf(u domain.UserID) domain.UserID {
	if u == a.Caller {
		return a.Callee
	}
	return a.Caller
}

type Engine struct {
	dir           Directory
	out           core.Outbox
	history       store.CallStore
	metrics       *metrics.Metrics
	recordTimeout time.Duration
	now           func() time.Time

	mu       sync.Mutex
	attempts map[domain.UserID]*Attempt

	pending sync.WaitGroup
}

type Option func(*Engine)

// WithHistory records every finished attempt in cs.
func WithHistory(cs store.CallStore, timeout time.Duration) Option {
	return func(e *Engine) {
		e.history = cs
		if timeout > 0 {
			e.recordTimeout = timeout
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(dir Directory, out core.Outbox, opts ...Option) *Engine {
	e := &Engine{
		dir:           dir,
		out:           out,
		recordTimeout: 5 * time.Second,
		now:           func() time.Time { return time.Now().UTC() },
		attempts:      make(map[domain.UserID]*Attempt),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Initiate starts ringing callee. Unreachable and busy targets leave no state
// behind; the caller is told through the returned error.
func (e *Engine) Initiate(ctx context.Context, caller, callee domain.UserID) error {
	conn, ok := e.dir.Lookup(callee)
	if !ok || caller == callee {
		e.outcome("unreachable")
		log.Info().Str("module", "app.call").Str("caller", string(caller)).Str("callee", string(callee)).Msg("callee unreachable")
		return ErrUnreachable
	}

	e.mu.Lock()
	if e.attempts[caller] != nil || e.attempts[callee] != nil {
		e.mu.Unlock()
		e.outcome("busy")
		return ErrBusy
	}
	a := &Attempt{
		Caller:    caller,
		Callee:    callee,
		Phase:     domain.CallRinging,
		StartedAt: e.now(),
	}
	e.attempts[caller] = a
	e.attempts[callee] = a
	e.gaugeLocked()
	e.mu.Unlock()

	log.Info().Str("module", "app.call").Str("caller", string(caller)).Str("callee", string(callee)).Msg("ringing")
	if !e.out.Deliver(conn, core.Event{Type: core.EvIncomingCall, From: caller}) {
		e.terminate(ctx, a, callee)
	}
	return nil
}

// Accept moves a ringing attempt to connected and tells the caller.
func (e *Engine) Accept(ctx context.Context, callee, caller domain.UserID) error {
	e.mu.Lock()
	a := e.attempts[callee]
	if a == nil || a.Callee != callee || a.Caller != caller || a.Phase != domain.CallRinging {
		e.mu.Unlock()
		return ErrInvalidTransition
	}
	a.Phase = domain.CallConnected
	a.ConnectedAt = e.now()
	e.mu.Unlock()

	log.Info().Str("module", "app.call").Str("caller", string(caller)).Str("callee", string(callee)).Msg("accepted")
	if !e.notify(caller, core.Event{Type: core.EvCallAccepted, From: callee}) {
		e.terminate(ctx, a, caller)
	}
	return nil
}

// Decline ends a ringing attempt on the callee's side.
func (e *Engine) Decline(ctx context.Context, callee, caller domain.UserID) error {
	e.mu.Lock()
	a := e.attempts[callee]
	if a == nil || a.Callee != callee || a.Caller != caller || a.Phase != domain.CallRinging {
		e.mu.Unlock()
		return ErrInvalidTransition
	}
	e.removeLocked(a)
	a.Phase = domain.CallDeclined
	snap := *a
	e.mu.Unlock()

	log.Info().Str("module", "app.call").Str("caller", string(caller)).Str("callee", string(callee)).Msg("declined")
	e.outcome(string(domain.CallStatusDeclined))
	e.notify(caller, core.Event{Type: core.EvCallDeclined, From: callee})
	e.record(ctx, snap, domain.CallStatusDeclined)
	return nil
}

// Relay forwards an offer, answer or ICE candidate to the other party of the
// sender's live attempt. The payload is not inspected.
func (e *Engine) Relay(ctx context.Context, kind core.EventType, from, to domain.UserID, payload json.RawMessage) error {
	if !kind.IsNegotiation() {
		return ErrInvalidTransition
	}

	e.mu.Lock()
	a := e.attempts[from]
	ok := a != nil && a.peerOf(from) == to &&
		(a.Phase == domain.CallRinging || a.Phase == domain.CallConnected)
	e.mu.Unlock()
	if !ok {
		return ErrInvalidTransition
	}

	if !e.notify(to, core.Event{Type: kind, From: from, Payload: payload}) {
		e.terminate(ctx, a, to)
	}
	return nil
}

// End hangs up from's attempt with to. A second End for the same attempt is
// a no-op.
func (e *Engine) End(ctx context.Context, from, to domain.UserID) error {
	e.mu.Lock()
	a := e.attempts[from]
	e.mu.Unlock()
	if a == nil || a.peerOf(from) != to {
		return ErrInvalidTransition
	}
	if !e.terminate(ctx, a, from) {
		return ErrInvalidTransition
	}
	return nil
}

// Disconnect ends whatever attempt user is part of, telling the peer.
func (e *Engine) Disconnect(ctx context.Context, user domain.UserID) bool {
	e.mu.Lock()
	a := e.attempts[user]
	e.mu.Unlock()
	if a == nil {
		return false
	}
	return e.terminate(ctx, a, user)
}

// Get returns a copy of the attempt user is part of.
func (e *Engine) Get(user domain.UserID) (Attempt, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.attempts[user]
	if !ok {
		return Attempt{}, false
	}
	return *a, true
}

func (e *Engine) Active() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.attempts) / 2
}

// terminate removes a (if nobody beat us to it) and sends call-ended to the
// party that did not leave. It reports whether this call did the removal.
func (e *Engine) terminate(ctx context.Context, a *Attempt, by domain.UserID) bool {
	e.mu.Lock()
	if !e.removeLocked(a) {
		e.mu.Unlock()
		return false
	}
	status := domain.CallStatusMissed
	if a.Phase == domain.CallConnected {
		status = domain.CallStatusEnded
	}
	a.Phase = domain.CallEnded
	snap := *a
	e.mu.Unlock()

	log.Info().Str("module", "app.call").Str("caller", string(snap.Caller)).Str("callee", string(snap.Callee)).Str("by", string(by)).Str("status", string(status)).Msg("call ended")
	e.outcome(string(status))
	e.notify(snap.peerOf(by), core.Event{Type: core.EvCallEnded, From: by})
	e.record(ctx, snap, status)
	return true
}

func (e *Engine) removeLocked(a *Attempt) bool {
	if e.attempts[a.Caller] != a {
		return false
	}
	delete(e.attempts, a.Caller)
	if e.attempts[a.Callee] == a {
		delete(e.attempts, a.Callee)
	}
	e.gaugeLocked()
	return true
}

func (e *Engine) notify(user domain.UserID, ev core.Event) bool {
	conn, ok := e.dir.Lookup(user)
	if !ok {
		return false
	}
	return e.out.Deliver(conn, ev)
}

// record writes the history entry in the background so a slow store never
// holds back signaling.
func (e *Engine) record(ctx context.Context, a Attempt, status domain.CallStatus) {
	if e.history == nil {
		return
	}
	rec := domain.CallRecord{
		Caller:    a.Caller,
		Callee:    a.Callee,
		Status:    status,
		StartedAt: a.StartedAt,
		EndedAt:   e.now(),
	}
	// The triggering connection may already be gone; history must still land.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.recordTimeout)

	e.pending.Add(1)
	go func() {
		defer e.pending.Done()
		defer cancel()
		if err := e.history.RecordCall(ctx, rec); err != nil {
			log.Error().Err(err).Str("module", "app.call").Str("caller", string(rec.Caller)).Str("callee", string(rec.Callee)).Msg("record call")
		}
	}()
}

// Wait blocks until every history write started so far has finished.
func (e *Engine) Wait() {
	e.pending.Wait()
}

func (e *Engine) outcome(o string) {
	if e.metrics != nil {
		e.metrics.CallOutcomes.WithLabelValues(o).Inc()
	}
}

func (e *Engine) gaugeLocked() {
	if e.metrics != nil {
		e.metrics.ActiveCalls.Set(float64(len(e.attempts) / 2))
	}
}
