package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/callbroker/callbroker/internal/database/models"
)

// capabilityNames maps API capability names to account capability bits.
var capabilityNames = map[string]int64{
	"subscription":  models.CapabilitySubscription,
	"emergency":     models.CapabilityEmergency,
	"call_provider": models.CapabilityCallProvider,
	"relay":         models.CapabilityRelay,
}

// validSchemes are the handle schemes an account may accept.
var validSchemes = []string{"tel", "sip", "voicemail"}

// accountRequest is the shape accepted by POST and PUT /accounts.
type accountRequest struct {
	ID              string   `json:"id"`
	Label           string   `json:"label"`
	Component       string   `json:"component"`
	Capabilities    []string `json:"capabilities"`
	SlotIndex       *int     `json:"slot_index"`
	Schemes         []string `json:"schemes"`
	VoicemailNumber string   `json:"voicemail_number"`
	Authorized      *bool    `json:"authorized"`
	Enabled         *bool    `json:"enabled"`
}

// accountResponse is the shape returned for accounts.
type accountResponse struct {
	ID              string   `json:"id"`
	Label           string   `json:"label"`
	Component       string   `json:"component"`
	Capabilities    []string `json:"capabilities"`
	SlotIndex       int      `json:"slot_index"`
	Schemes         []string `json:"schemes"`
	VoicemailNumber string   `json:"voicemail_number"`
	Authorized      bool     `json:"authorized"`
	Enabled         bool     `json:"enabled"`
	CreatedAt       string   `json:"created_at"`
	UpdatedAt       string   `json:"updated_at"`
}

// validate checks the request fields. Returns an error message or "".
func (req *accountRequest) validate(requireID bool) string {
	if requireID {
		if errMsg := validateRequiredStringLen("id", req.ID, maxShortStringLen); errMsg != "" {
			return errMsg
		}
		if errMsg := validateNoControlChars("id", req.ID); errMsg != "" {
			return errMsg
		}
	}
	if errMsg := validateStringLen("label", req.Label, maxNameLen); errMsg != "" {
		return errMsg
	}
	if errMsg := validateRequiredStringLen("component", req.Component, maxShortStringLen); errMsg != "" {
		return errMsg
	}
	for _, c := range req.Capabilities {
		if _, ok := capabilityNames[c]; !ok {
			return "unknown capability: " + c
		}
	}
	for _, sc := range req.Schemes {
		if !slices.Contains(validSchemes, sc) {
			return "unknown scheme: " + sc
		}
	}
	if req.SlotIndex != nil {
		if errMsg := validateIntRange("slot_index", *req.SlotIndex, -1, 64); errMsg != "" {
			return errMsg
		}
	}
	return validateStringLen("voicemail_number", req.VoicemailNumber, maxShortStringLen)
}

// apply copies the request fields onto an account model.
func (req *accountRequest) apply(acc *models.Account) {
	acc.Label = req.Label
	acc.Component = req.Component

	var caps int64
	for _, c := range req.Capabilities {
		caps |= capabilityNames[c]
	}
	acc.Capabilities = caps

	acc.SlotIndex = -1
	if req.SlotIndex != nil {
		acc.SlotIndex = *req.SlotIndex
	}
	acc.Schemes = encodeJSONStringArray(req.Schemes)
	acc.VoicemailNumber = req.VoicemailNumber

	acc.Authorized = req.Authorized == nil || *req.Authorized
	acc.Enabled = req.Enabled == nil || *req.Enabled
}

// toAccountResponse converts an account model to the API shape.
func toAccountResponse(acc *models.Account) accountResponse {
	var caps []string
	for _, name := range []string{"subscription", "emergency", "call_provider", "relay"} {
		if acc.HasCapability(capabilityNames[name]) {
			caps = append(caps, name)
		}
	}
	if caps == nil {
		caps = []string{}
	}

	schemes := decodeJSONStringArray(acc.Schemes)
	if schemes == nil {
		schemes = []string{}
	}

	return accountResponse{
		ID:              acc.ID,
		Label:           acc.Label,
		Component:       acc.Component,
		Capabilities:    caps,
		SlotIndex:       acc.SlotIndex,
		Schemes:         schemes,
		VoicemailNumber: acc.VoicemailNumber,
		Authorized:      acc.Authorized,
		Enabled:         acc.Enabled,
		CreatedAt:       acc.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       acc.UpdatedAt.Format(time.RFC3339),
	}
}

// handleListAccounts returns all accounts.
func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.accounts.List(r.Context())
	if err != nil {
		slog.Error("failed to list accounts", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list accounts")
		return
	}

	resp := make([]accountResponse, len(accounts))
	for i := range accounts {
		resp[i] = toAccountResponse(&accounts[i])
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCreateAccount creates a new account.
func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := req.validate(true); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	ctx := r.Context()

	existing, err := s.accounts.GetByID(ctx, req.ID)
	if err != nil {
		slog.Error("failed to check account", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create account")
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, "account id already exists")
		return
	}

	acc := &models.Account{ID: req.ID}
	req.apply(acc)

	if err := s.accounts.Create(ctx, acc); err != nil {
		slog.Error("failed to create account", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create account")
		return
	}

	created, err := s.accounts.GetByID(ctx, acc.ID)
	if err != nil || created == nil {
		slog.Error("failed to re-fetch created account", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create account")
		return
	}

	slog.Info("account created", "account", acc.ID, "component", acc.Component)
	s.reload(ctx)
	writeJSON(w, http.StatusCreated, toAccountResponse(created))
}

// handleGetAccount returns a single account by id.
func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	acc, err := s.accounts.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		slog.Error("failed to get account", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get account")
		return
	}
	if acc == nil {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(acc))
}

// handleUpdateAccount updates an existing account.
func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req accountRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := req.validate(false); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	ctx := r.Context()

	acc, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		slog.Error("failed to get account", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update account")
		return
	}
	if acc == nil {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}

	req.apply(acc)

	if err := s.accounts.Update(ctx, acc); err != nil {
		slog.Error("failed to update account", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update account")
		return
	}

	updated, err := s.accounts.GetByID(ctx, id)
	if err != nil || updated == nil {
		slog.Error("failed to re-fetch updated account", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update account")
		return
	}

	slog.Info("account updated", "account", id)
	s.reload(ctx)
	writeJSON(w, http.StatusOK, toAccountResponse(updated))
}

// handleDeleteAccount deletes an account.
func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	acc, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		slog.Error("failed to get account", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete account")
		return
	}
	if acc == nil {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}

	if err := s.accounts.Delete(ctx, id); err != nil {
		slog.Error("failed to delete account", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete account")
		return
	}

	slog.Info("account deleted", "account", id)
	s.reload(ctx)
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

// encodeJSONStringArray marshals a string slice to its JSON storage form.
// Nil or empty input encodes as an empty array.
func encodeJSONStringArray(values []string) string {
	if values == nil {
		values = []string{}
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// decodeJSONStringArray unmarshals the JSON storage form of a string slice.
// Invalid or empty input decodes as nil.
func decodeJSONStringArray(raw string) []string {
	if raw == "" {
		return nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil
	}
	return values
}
