package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/callbroker/callbroker/internal/resolve"
)

// hangupTimeout bounds how long an API-initiated hangup may take.
const hangupTimeout = 5 * time.Second

// originateRequest is the shape accepted by POST /calls.
type originateRequest struct {
	Handle        string `json:"handle"`
	TargetAccount string `json:"target_account"`
}

// originateResponse is the shape returned by POST /calls.
type originateResponse struct {
	CallID string `json:"call_id"`
}

// activeCallsResponse is the shape returned by GET /calls/active.
type activeCallsResponse struct {
	Resolving []resolve.CallSnapshot `json:"resolving"`
	Connected []string               `json:"connected"`
}

// handleOriginate starts resolving a call. The resolution runs
// asynchronously; the response carries the call id for polling and abort.
func (s *Server) handleOriginate(w http.ResponseWriter, r *http.Request) {
	var req originateRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validateRequiredStringLen("handle", req.Handle, maxNameLen); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validateStringLen("target_account", req.TargetAccount, maxShortStringLen); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	callID, err := s.calls.Originate(req.Handle, req.TargetAccount, &originateResponder{conns: s.conns})
	if err != nil {
		var resErr *resolve.ResolutionError
		if errors.As(err, &resErr) {
			writeError(w, http.StatusUnprocessableEntity, resErr.Error())
			return
		}
		slog.Error("originate failed", "handle", req.Handle, "error", err)
		writeError(w, http.StatusInternalServerError, "originate failed")
		return
	}

	writeJSON(w, http.StatusAccepted, originateResponse{CallID: callID})
}

// handleActiveCalls returns in-flight resolutions and connected calls.
func (s *Server) handleActiveCalls(w http.ResponseWriter, r *http.Request) {
	resolving := s.calls.Active()
	if resolving == nil {
		resolving = []resolve.CallSnapshot{}
	}
	writeJSON(w, http.StatusOK, activeCallsResponse{
		Resolving: resolving,
		Connected: s.conns.ids(),
	})
}

// handleAbortCall cancels an in-flight resolution, or hangs up the call if
// it already connected.
func (s *Server) handleAbortCall(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "id")

	if s.calls.Abort(callID) {
		writeJSON(w, http.StatusOK, map[string]string{"call_id": callID, "status": "canceled"})
		return
	}

	if conn := s.conns.take(callID); conn != nil {
		ctx, cancel := context.WithTimeout(r.Context(), hangupTimeout)
		defer cancel()
		if err := conn.Hangup(ctx); err != nil {
			slog.Error("hangup failed", "call_id", callID, "error", err)
			writeError(w, http.StatusInternalServerError, "hangup failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"call_id": callID, "status": "hung_up"})
		return
	}

	writeError(w, http.StatusNotFound, "call not found")
}

// connTracker remembers connections handed over by the resolver so the API
// can hang them up later.
type connTracker struct {
	mu    sync.Mutex
	conns map[string]resolve.Connection
}

func newConnTracker() *connTracker {
	return &connTracker{conns: make(map[string]resolve.Connection)}
}

func (t *connTracker) add(conn resolve.Connection) {
	t.mu.Lock()
	t.conns[conn.ID()] = conn
	t.mu.Unlock()
}

// take removes and returns the connection for id, or nil.
func (t *connTracker) take(id string) resolve.Connection {
	t.mu.Lock()
	defer t.mu.Unlock()
	conn := t.conns[id]
	delete(t.conns, id)
	return conn
}

func (t *connTracker) ids() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.conns))
	for id := range t.conns {
		out = append(out, id)
	}
	return out
}

func (t *connTracker) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}

// originateResponder receives the terminal outcome of an API-initiated
// resolution. Successes are kept so the call can be hung up over the API;
// failures are already persisted as call records.
type originateResponder struct {
	conns *connTracker
}

func (r *originateResponder) OnCreateSuccess(conn resolve.Connection) {
	r.conns.add(conn)
}

func (r *originateResponder) OnCreateFailure(cause resolve.Cause, message string) {
	slog.Debug("resolution failed", "cause", string(cause), "message", message)
}
