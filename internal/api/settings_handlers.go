package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/callbroker/callbroker/internal/database"
)

// settingsResponse is the shape returned by GET /settings.
type settingsResponse struct {
	RelayAccount     string            `json:"relay_account"`
	DefaultOutgoing  map[string]string `json:"default_outgoing"`
	EmergencyNumbers []string          `json:"emergency_numbers"`
}

// settingsRequest is the shape accepted by PUT /settings. Only provided
// sections are updated.
type settingsRequest struct {
	RelayAccount     *string           `json:"relay_account"`
	DefaultOutgoing  map[string]string `json:"default_outgoing"`
	EmergencyNumbers *[]string         `json:"emergency_numbers"`
}

// handleGetSettings returns the routing settings.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	relay, err := s.systemConfig.Get(ctx, database.ConfigKeyRelayAccount)
	if err != nil {
		slog.Error("failed to load settings", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}

	entries, err := s.systemConfig.GetAll(ctx)
	if err != nil {
		slog.Error("failed to load settings", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	defaults := make(map[string]string)
	for _, e := range entries {
		if scheme, ok := strings.CutPrefix(e.Key, database.ConfigKeyDefaultOutgoingPrefix); ok && e.Value != "" {
			defaults[scheme] = e.Value
		}
	}

	rawNumbers, err := s.systemConfig.Get(ctx, database.ConfigKeyEmergencyNumbers)
	if err != nil {
		slog.Error("failed to load settings", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	numbers := decodeJSONStringArray(rawNumbers)
	if numbers == nil {
		numbers = []string{}
	}

	writeJSON(w, http.StatusOK, settingsResponse{
		RelayAccount:     relay,
		DefaultOutgoing:  defaults,
		EmergencyNumbers: numbers,
	})
}

// handleUpdateSettings saves routing settings. Only provided sections are
// updated; referenced accounts must exist.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	ctx := r.Context()

	// Referenced account ids must exist. An empty value clears the setting.
	accountExists := func(id string) (bool, error) {
		acc, err := s.accounts.GetByID(ctx, id)
		if err != nil {
			return false, err
		}
		return acc != nil, nil
	}

	if req.RelayAccount != nil && *req.RelayAccount != "" {
		ok, err := accountExists(*req.RelayAccount)
		if err != nil {
			slog.Error("failed to check relay account", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to save settings")
			return
		}
		if !ok {
			writeError(w, http.StatusBadRequest, "relay_account references an unknown account")
			return
		}
	}

	for scheme, id := range req.DefaultOutgoing {
		if scheme != "tel" && scheme != "sip" {
			writeError(w, http.StatusBadRequest, "default_outgoing scheme must be tel or sip")
			return
		}
		if id == "" {
			continue
		}
		ok, err := accountExists(id)
		if err != nil {
			slog.Error("failed to check default outgoing account", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to save settings")
			return
		}
		if !ok {
			writeError(w, http.StatusBadRequest, "default_outgoing."+scheme+" references an unknown account")
			return
		}
	}

	if req.EmergencyNumbers != nil {
		for _, n := range *req.EmergencyNumbers {
			if n == "" || len(n) > maxShortStringLen {
				writeError(w, http.StatusBadRequest, "emergency number must be 1-40 characters")
				return
			}
			if strings.Trim(n, "0123456789+ -.()") != "" {
				writeError(w, http.StatusBadRequest, "emergency number contains invalid characters: "+n)
				return
			}
		}
	}

	if req.RelayAccount != nil {
		if err := s.systemConfig.Set(ctx, database.ConfigKeyRelayAccount, *req.RelayAccount); err != nil {
			slog.Error("failed to save relay account", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to save settings")
			return
		}
	}

	for scheme, id := range req.DefaultOutgoing {
		key := database.ConfigKeyDefaultOutgoingPrefix + scheme
		if err := s.systemConfig.Set(ctx, key, id); err != nil {
			slog.Error("failed to save default outgoing account", "scheme", scheme, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to save settings")
			return
		}
	}

	if req.EmergencyNumbers != nil {
		value := encodeJSONStringArray(*req.EmergencyNumbers)
		if err := s.systemConfig.Set(ctx, database.ConfigKeyEmergencyNumbers, value); err != nil {
			slog.Error("failed to save emergency numbers", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to save settings")
			return
		}
	}

	slog.Info("routing settings updated")
	s.reload(ctx)

	// Return the updated settings.
	s.handleGetSettings(w, r)
}
