package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/callbroker/callbroker/internal/database"
	"github.com/callbroker/callbroker/internal/database/models"
)

// recordResponse is the shape returned for call records.
type recordResponse struct {
	CallID       string  `json:"call_id"`
	Handle       string  `json:"handle"`
	StartTime    string  `json:"start_time"`
	EndTime      *string `json:"end_time,omitempty"`
	RelayAccount string  `json:"relay_account,omitempty"`
	Target       string  `json:"target_account,omitempty"`
	Attempts     int     `json:"attempts"`
	Disposition  string  `json:"disposition"`
	Cause        string  `json:"cause,omitempty"`
	CauseMessage string  `json:"cause_message,omitempty"`
}

// toRecordResponse converts a call record model to the API shape.
func toRecordResponse(rec *models.CallRecord) recordResponse {
	resp := recordResponse{
		CallID:       rec.CallID,
		Handle:       rec.Handle,
		StartTime:    rec.StartTime.Format(time.RFC3339),
		RelayAccount: rec.RelayAccount,
		Target:       rec.Target,
		Attempts:     rec.Attempts,
		Disposition:  rec.Disposition,
		Cause:        rec.Cause,
		CauseMessage: rec.CauseMessage,
	}
	if rec.EndTime != nil {
		t := rec.EndTime.Format(time.RFC3339)
		resp.EndTime = &t
	}
	return resp
}

// handleListRecords returns call records, newest first, with pagination and
// an optional disposition filter.
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	p, errMsg := parsePagination(r)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	disposition := r.URL.Query().Get("disposition")
	switch disposition {
	case "", "connected", "failed", "canceled":
	default:
		writeError(w, http.StatusBadRequest, "disposition must be connected, failed, or canceled")
		return
	}

	records, total, err := s.records.List(r.Context(), database.CallRecordListFilter{
		Limit:       p.Limit,
		Offset:      p.Offset,
		Disposition: disposition,
	})
	if err != nil {
		slog.Error("failed to list call records", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list call records")
		return
	}

	items := make([]recordResponse, len(records))
	for i := range records {
		items[i] = toRecordResponse(&records[i])
	}
	writeJSON(w, http.StatusOK, PaginatedResponse{
		Items:  items,
		Total:  total,
		Limit:  p.Limit,
		Offset: p.Offset,
	})
}

// handleGetRecord returns a single call record by call id.
func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := s.records.GetByCallID(r.Context(), chi.URLParam(r, "callID"))
	if err != nil {
		slog.Error("failed to get call record", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get call record")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "call record not found")
		return
	}
	writeJSON(w, http.StatusOK, toRecordResponse(rec))
}
