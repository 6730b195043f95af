package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/callbroker/callbroker/internal/database/models"
)

// Disposition values written to call records.
const (
	DispositionConnected = "connected"
	DispositionFailed    = "failed"
	DispositionCanceled  = "canceled"
)

const recordWriteTimeout = 5 * time.Second

// Manager owns the executors of in-flight resolutions. It hands out call
// ids, tracks active calls for the API and metrics, and writes a call
// record when a resolution reaches a terminal state.
type Manager struct {
	builder        *Builder
	accounts       AccountRegistry
	providers      ProviderRegistry
	records        RecordWriter
	clk            clock.Clock
	attemptTimeout time.Duration
	logger         *slog.Logger

	mu     sync.Mutex
	active map[string]*activeResolution
}

type activeResolution struct {
	req       *Request
	exec      *Executor
	startedAt time.Time
}

// CallSnapshot is a point-in-time view of one in-flight resolution.
type CallSnapshot struct {
	ID         string    `json:"id"`
	Handle     string    `json:"handle"`
	State      string    `json:"state"`
	Relay      string    `json:"relay_account,omitempty"`
	Target     string    `json:"target_account,omitempty"`
	Attempt    int       `json:"attempt"`
	Candidates int       `json:"candidates"`
	StartedAt  time.Time `json:"started_at"`
}

// NewManager creates a resolution manager. attemptTimeout bounds how long a
// single provider attempt may stay unanswered; zero disables the timeout.
func NewManager(builder *Builder, accounts AccountRegistry, providers ProviderRegistry,
	records RecordWriter, clk clock.Clock, attemptTimeout time.Duration, logger *slog.Logger) *Manager {
	if clk == nil {
		clk = clock.New()
	}
	return &Manager{
		builder:        builder,
		accounts:       accounts,
		providers:      providers,
		records:        records,
		clk:            clk,
		attemptTimeout: attemptTimeout,
		logger:         logger.With("subsystem", "resolution-manager"),
		active:         make(map[string]*activeResolution),
	}
}

// Originate starts resolving a call to rawHandle, optionally pinned to a
// target account. The responder receives exactly one outcome, possibly
// before Originate returns. The returned id identifies the call in Abort,
// Active and the call record.
//
// Failures detected before the executor starts are returned as a
// *ResolutionError and nothing is recorded.
func (m *Manager) Originate(rawHandle, targetAccount string, responder ResponseChannel) (string, error) {
	if responder == nil {
		return "", fmt.Errorf("originate requires a response channel")
	}

	var h Handle
	if strings.HasPrefix(rawHandle, SchemeVoicemail+":") {
		// A voicemail handle carries no dialable address of its own.
		vm, err := m.rewriteVoicemail(targetAccount)
		if err != nil {
			return "", err
		}
		h = vm
	} else {
		parsed, err := ParseHandle(rawHandle)
		if err != nil {
			return "", &ResolutionError{Cause: CauseInvalidNumber, Message: err.Error()}
		}
		h = parsed
	}

	req := &Request{
		ID:            uuid.NewString(),
		Handle:        h,
		TargetAccount: targetAccount,
	}
	mr := &managedResponder{
		manager:   m,
		inner:     responder,
		req:       req,
		startedAt: m.clk.Now(),
	}
	exec := NewExecutor(req, mr, m.builder, m.accounts, m.providers,
		m.clk, m.attemptTimeout, m.logger)
	mr.exec = exec

	m.mu.Lock()
	m.active[req.ID] = &activeResolution{req: req, exec: exec, startedAt: mr.startedAt}
	m.mu.Unlock()

	m.logger.Info("originating call",
		"call_id", req.ID, "handle", h.String(), "target", targetAccount)
	exec.Process()
	return req.ID, nil
}

// rewriteVoicemail maps a voicemail handle onto the target account's
// configured voicemail number.
func (m *Manager) rewriteVoicemail(targetAccount string) (Handle, error) {
	if targetAccount == "" {
		return Handle{}, &ResolutionError{
			Cause:   CauseVoicemailNumberMissing,
			Message: "voicemail call requires a target account",
		}
	}
	acc := m.accounts.Account(targetAccount)
	if acc == nil {
		return Handle{}, &ResolutionError{
			Cause:   CauseOutgoingFailure,
			Message: "unknown target account " + targetAccount,
		}
	}
	if acc.VoicemailNumber == "" {
		return Handle{}, &ResolutionError{
			Cause:   CauseVoicemailNumberMissing,
			Message: "account " + targetAccount + " has no voicemail number",
		}
	}
	return Handle{Scheme: SchemeTel, Address: acc.VoicemailNumber}, nil
}

// Abort cancels an in-flight resolution. Returns false when the call is
// unknown or already finished.
func (m *Manager) Abort(callID string) bool {
	m.mu.Lock()
	a, ok := m.active[callID]
	m.mu.Unlock()
	if !ok {
		return false
	}
	a.exec.Abort()
	return true
}

// Active returns snapshots of the in-flight resolutions.
func (m *Manager) Active() []CallSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]CallSnapshot, 0, len(m.active))
	for id, a := range m.active {
		consumed, candidates := a.exec.Progress()
		relay, target := a.exec.Chosen()
		out = append(out, CallSnapshot{
			ID:         id,
			Handle:     a.req.Handle.String(),
			State:      a.exec.State().String(),
			Relay:      relay,
			Target:     target,
			Attempt:    consumed,
			Candidates: candidates,
			StartedAt:  a.startedAt,
		})
	}
	return out
}

// ActiveCount returns the number of in-flight resolutions.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// finish removes the call from the active set and persists its record.
func (m *Manager) finish(mr *managedResponder, disposition string, cause Cause, message string) {
	m.mu.Lock()
	delete(m.active, mr.req.ID)
	m.mu.Unlock()

	consumed, _ := mr.exec.Progress()
	relay, target := mr.exec.Chosen()
	end := m.clk.Now()
	rec := &models.CallRecord{
		CallID:       mr.req.ID,
		Handle:       mr.req.Handle.String(),
		StartTime:    mr.startedAt,
		EndTime:      &end,
		RelayAccount: relay,
		Target:       target,
		Attempts:     consumed,
		Disposition:  disposition,
		Cause:        string(cause),
		CauseMessage: message,
	}

	if m.records != nil {
		ctx, cancel := context.WithTimeout(context.Background(), recordWriteTimeout)
		defer cancel()
		if err := m.records.Create(ctx, rec); err != nil {
			m.logger.Error("writing call record", "call_id", mr.req.ID, "error", err)
		}
	}

	m.logger.Info("resolution finished",
		"call_id", mr.req.ID, "disposition", disposition,
		"cause", string(cause), "attempts", consumed)
}

// managedResponder wraps the caller's channel so the manager can observe
// the terminal outcome before forwarding it.
type managedResponder struct {
	manager   *Manager
	inner     ResponseChannel
	req       *Request
	exec      *Executor
	startedAt time.Time
}

func (r *managedResponder) OnCreateSuccess(conn Connection) {
	r.manager.finish(r, DispositionConnected, "", "")
	r.inner.OnCreateSuccess(conn)
}

func (r *managedResponder) OnCreateFailure(cause Cause, message string) {
	disposition := DispositionFailed
	if cause == CauseOutgoingCanceled {
		disposition = DispositionCanceled
	}
	r.manager.finish(r, disposition, cause, message)
	r.inner.OnCreateFailure(cause, message)
}
