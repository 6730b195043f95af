package resolve

import (
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Executor drives one resolution: it builds the candidate list, dispatches
// attempts in order, and delivers exactly one terminal outcome to the
// caller's response channel.
//
// All state transitions happen under mu. Provider dispatch and responder
// callbacks run outside the lock, so providers and responders that call
// back synchronously cannot deadlock the executor.
type Executor struct {
	req       *Request
	builder   *Builder
	accounts  AccountRegistry
	providers ProviderRegistry

	clk            clock.Clock
	attemptTimeout time.Duration
	logger         *slog.Logger

	mu        sync.Mutex
	state     State
	responder ResponseChannel // cleared when the outcome is delivered or the caller aborts
	attempts  []Attempt
	next      int
	gateway   *ResponseGateway // gateway of the in-flight attempt
	bound     Provider         // provider of the in-flight attempt
	lastCause Cause
	lastMsg   string
}

// NewExecutor creates an executor for one request. The responder receives
// the terminal outcome exactly once.
func NewExecutor(req *Request, responder ResponseChannel, builder *Builder,
	accounts AccountRegistry, providers ProviderRegistry,
	clk clock.Clock, attemptTimeout time.Duration, logger *slog.Logger) *Executor {
	if clk == nil {
		clk = clock.New()
	}
	return &Executor{
		req:            req,
		builder:        builder,
		accounts:       accounts,
		providers:      providers,
		clk:            clk,
		attemptTimeout: attemptTimeout,
		responder:      responder,
		logger: logger.With("subsystem", "attempt-executor",
			"call_id", req.ID),
	}
}

// Process builds the candidate list and dispatches the first viable
// attempt. It returns without waiting for the outcome. Calling Process on
// an executor that already started is a no-op.
func (e *Executor) Process() {
	e.mu.Lock()
	if e.state != StateIdle {
		e.mu.Unlock()
		return
	}
	e.state = StateAttempting
	e.attempts = e.builder.Build(e.req)
	e.mu.Unlock()

	e.logger.Info("resolution started",
		"handle", e.req.Handle.String(), "candidates", len(e.attempts))
	e.advance()
}

// Abort cancels the resolution. The caller's channel is cleared before the
// bound provider is told to abort, so a provider response racing in cannot
// be forwarded anymore. Aborting a finished resolution does nothing.
func (e *Executor) Abort() {
	e.mu.Lock()
	if e.state.Terminal() {
		e.mu.Unlock()
		return
	}
	r := e.responder
	e.responder = nil
	bound := e.bound
	e.bound = nil
	if e.gateway != nil {
		e.gateway.stopTimer()
		e.gateway = nil
	}
	e.state = StateAborted
	e.mu.Unlock()

	e.logger.Info("resolution aborted")
	if bound != nil {
		bound.Abort(e.req)
	}
	if r != nil {
		r.OnCreateFailure(CauseOutgoingCanceled, "call aborted")
	}
}

// State returns the current resolution state.
func (e *Executor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Progress returns how many candidates have been consumed and how many the
// list holds in total.
func (e *Executor) Progress() (consumed, candidates int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.next, len(e.attempts)
}

// Chosen returns the relay and target account of the attempt the executor
// last bound to. advance writes these under mu, so readers on other
// goroutines must come through here.
func (e *Executor) Chosen() (relay, target string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.req.ChosenRelay, e.req.ChosenTarget
}

// advance walks the candidate list until an attempt is dispatched or the
// list is exhausted. Skipped candidates consume a list position without
// touching the caller's channel. This is an explicit loop so long emergency
// lists cannot grow the stack through recursion.
func (e *Executor) advance() {
	var dispatch func()

	e.mu.Lock()
	if e.state != StateAttempting {
		e.mu.Unlock()
		return
	}
	for e.next < len(e.attempts) {
		att := e.attempts[e.next]
		e.next++

		if !e.accounts.HasPermission(att.RelayAccount) {
			e.logger.Warn("skipping candidate: relay account not authorized",
				"relay", att.RelayAccount)
			continue
		}
		if att.RelayAccount != att.TargetAccount && !e.accounts.HasPermission(att.TargetAccount) {
			e.logger.Warn("skipping candidate: target account not authorized",
				"target", att.TargetAccount)
			continue
		}
		acc := e.accounts.Account(att.RelayAccount)
		if acc == nil {
			e.logger.Warn("skipping candidate: unknown account",
				"relay", att.RelayAccount)
			continue
		}
		p := e.providers.Provider(acc.Component)
		if p == nil {
			e.logger.Warn("skipping candidate: no provider for component",
				"relay", att.RelayAccount, "component", acc.Component)
			continue
		}

		e.req.ChosenRelay = att.RelayAccount
		e.req.ChosenTarget = att.TargetAccount
		e.bound = p
		g := &ResponseGateway{exec: e, provider: p}
		if e.attemptTimeout > 0 {
			g.timer = e.clk.AfterFunc(e.attemptTimeout, func() {
				g.OnCreateFailure(CauseOutgoingFailure, "provider response timeout")
			})
		}
		e.gateway = g

		e.logger.Info("dispatching attempt",
			"relay", att.RelayAccount, "target", att.TargetAccount,
			"component", acc.Component,
			"attempt", e.next, "candidates", len(e.attempts))

		req := e.req
		dispatch = func() { p.CreateConnection(req, g) }
		break
	}

	if dispatch == nil {
		cause, msg := e.lastCause, e.lastMsg
		if cause == "" {
			cause = CauseOutgoingFailure
			msg = "no account could place the call"
		}
		r := e.responder
		e.responder = nil
		e.state = StateFailed
		e.mu.Unlock()

		e.logger.Info("candidate list exhausted", "cause", string(cause))
		if r != nil {
			r.OnCreateFailure(cause, msg)
		}
		return
	}
	e.mu.Unlock()

	dispatch()
}

// handleSuccess delivers a provider success to the caller. A success that
// arrives when the caller is gone, or from an attempt that is no longer
// current, is torn down instead of forwarded.
func (e *Executor) handleSuccess(g *ResponseGateway, conn Connection) {
	e.mu.Lock()
	if e.state != StateAttempting || g != e.gateway || e.responder == nil {
		e.mu.Unlock()
		e.logger.Info("discarding unwanted success, tearing down connection",
			"connection_id", conn.ID())
		g.provider.Abort(e.req)
		return
	}
	r := e.responder
	e.responder = nil
	e.gateway = nil
	e.bound = nil
	e.state = StateConnected
	e.mu.Unlock()

	e.logger.Info("provider accepted call",
		"relay", e.req.ChosenRelay, "target", e.req.ChosenTarget,
		"connection_id", conn.ID())
	r.OnCreateSuccess(conn)
}

// handleFailure records an attempt failure and moves on to the next
// candidate. Failures from attempts that are no longer current are dropped.
func (e *Executor) handleFailure(g *ResponseGateway, cause Cause, message string) {
	e.mu.Lock()
	if e.state != StateAttempting || g != e.gateway {
		e.mu.Unlock()
		return
	}
	e.lastCause = cause
	e.lastMsg = message
	e.gateway = nil
	e.bound = nil
	e.mu.Unlock()

	e.logger.Info("attempt failed",
		"relay", e.req.ChosenRelay, "cause", string(cause), "message", message)
	e.advance()
}
