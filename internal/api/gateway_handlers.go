package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/callbroker/callbroker/internal/database/models"
)

// validTransports are the SIP transports a gateway may use.
var validTransports = map[string]bool{"udp": true, "tcp": true, "tls": true}

// gatewayRequest is the shape accepted by POST and PUT /gateways.
type gatewayRequest struct {
	Component    string `json:"component"`
	Enabled      *bool  `json:"enabled"`
	Host         string `json:"host"`
	Port         *int   `json:"port"`
	Transport    string `json:"transport"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	AuthUsername string `json:"auth_username"`
	CallerIDNum  string `json:"caller_id_num"`
}

// gatewayResponse is the shape returned for gateways. The password is never
// echoed back.
type gatewayResponse struct {
	ID           int64  `json:"id"`
	Component    string `json:"component"`
	Enabled      bool   `json:"enabled"`
	Host         string `json:"host"`
	Port         int    `json:"port"`
	Transport    string `json:"transport"`
	Username     string `json:"username"`
	HasPassword  bool   `json:"has_password"`
	AuthUsername string `json:"auth_username"`
	CallerIDNum  string `json:"caller_id_num"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// validate checks the request fields. Returns an error message or "".
func (req *gatewayRequest) validate() string {
	if errMsg := validateRequiredStringLen("component", req.Component, maxShortStringLen); errMsg != "" {
		return errMsg
	}
	if errMsg := validateNoControlChars("component", req.Component); errMsg != "" {
		return errMsg
	}
	if errMsg := validateRequiredStringLen("host", req.Host, maxHostLen); errMsg != "" {
		return errMsg
	}
	if errMsg := validateHost("host", req.Host); errMsg != "" {
		return errMsg
	}
	if req.Port != nil {
		if errMsg := validatePort("port", *req.Port); errMsg != "" {
			return errMsg
		}
	}
	if req.Transport != "" && !validTransports[strings.ToLower(req.Transport)] {
		return "transport must be udp, tcp, or tls"
	}
	if errMsg := validateStringLen("username", req.Username, maxNameLen); errMsg != "" {
		return errMsg
	}
	if errMsg := validateStringLen("password", req.Password, maxPasswordLen); errMsg != "" {
		return errMsg
	}
	if errMsg := validateStringLen("auth_username", req.AuthUsername, maxNameLen); errMsg != "" {
		return errMsg
	}
	return validateStringLen("caller_id_num", req.CallerIDNum, maxShortStringLen)
}

// apply copies the request fields onto a gateway model. An empty password
// on update leaves the stored password unchanged.
func (req *gatewayRequest) apply(gw *models.Gateway) {
	gw.Component = req.Component
	gw.Enabled = req.Enabled == nil || *req.Enabled
	gw.Host = req.Host

	gw.Port = 5060
	if req.Port != nil {
		gw.Port = *req.Port
	}

	gw.Transport = "udp"
	if req.Transport != "" {
		gw.Transport = strings.ToLower(req.Transport)
	}

	gw.Username = req.Username
	if req.Password != "" {
		gw.Password = req.Password
	}
	gw.AuthUsername = req.AuthUsername
	gw.CallerIDNum = req.CallerIDNum
}

// toGatewayResponse converts a gateway model to the API shape.
func toGatewayResponse(gw *models.Gateway) gatewayResponse {
	return gatewayResponse{
		ID:           gw.ID,
		Component:    gw.Component,
		Enabled:      gw.Enabled,
		Host:         gw.Host,
		Port:         gw.Port,
		Transport:    gw.Transport,
		Username:     gw.Username,
		HasPassword:  gw.Password != "",
		AuthUsername: gw.AuthUsername,
		CallerIDNum:  gw.CallerIDNum,
		CreatedAt:    gw.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    gw.UpdatedAt.Format(time.RFC3339),
	}
}

// gatewayID parses the {id} route parameter.
func gatewayID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

// handleListGateways returns all gateways.
func (s *Server) handleListGateways(w http.ResponseWriter, r *http.Request) {
	gateways, err := s.gateways.List(r.Context())
	if err != nil {
		slog.Error("failed to list gateways", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list gateways")
		return
	}

	resp := make([]gatewayResponse, len(gateways))
	for i := range gateways {
		resp[i] = toGatewayResponse(&gateways[i])
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCreateGateway creates a new gateway.
func (s *Server) handleCreateGateway(w http.ResponseWriter, r *http.Request) {
	var req gatewayRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := req.validate(); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	ctx := r.Context()

	existing, err := s.gateways.GetByComponent(ctx, req.Component)
	if err != nil {
		slog.Error("failed to check gateway", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create gateway")
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, "gateway component already exists")
		return
	}

	gw := &models.Gateway{}
	req.apply(gw)

	if err := s.gateways.Create(ctx, gw); err != nil {
		slog.Error("failed to create gateway", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create gateway")
		return
	}

	created, err := s.gateways.GetByID(ctx, gw.ID)
	if err != nil || created == nil {
		slog.Error("failed to re-fetch created gateway", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create gateway")
		return
	}

	slog.Info("gateway created", "component", gw.Component, "host", gw.Host)
	s.reload(ctx)
	writeJSON(w, http.StatusCreated, toGatewayResponse(created))
}

// handleGetGateway returns a single gateway by id.
func (s *Server) handleGetGateway(w http.ResponseWriter, r *http.Request) {
	id, ok := gatewayID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid gateway id")
		return
	}

	gw, err := s.gateways.GetByID(r.Context(), id)
	if err != nil {
		slog.Error("failed to get gateway", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get gateway")
		return
	}
	if gw == nil {
		writeError(w, http.StatusNotFound, "gateway not found")
		return
	}
	writeJSON(w, http.StatusOK, toGatewayResponse(gw))
}

// handleUpdateGateway updates an existing gateway.
func (s *Server) handleUpdateGateway(w http.ResponseWriter, r *http.Request) {
	id, ok := gatewayID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid gateway id")
		return
	}

	var req gatewayRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := req.validate(); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	ctx := r.Context()

	gw, err := s.gateways.GetByID(ctx, id)
	if err != nil {
		slog.Error("failed to get gateway", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update gateway")
		return
	}
	if gw == nil {
		writeError(w, http.StatusNotFound, "gateway not found")
		return
	}

	// Renaming a component must not collide with another gateway.
	if req.Component != gw.Component {
		other, err := s.gateways.GetByComponent(ctx, req.Component)
		if err != nil {
			slog.Error("failed to check gateway", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to update gateway")
			return
		}
		if other != nil {
			writeError(w, http.StatusConflict, "gateway component already exists")
			return
		}
	}

	req.apply(gw)

	if err := s.gateways.Update(ctx, gw); err != nil {
		slog.Error("failed to update gateway", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update gateway")
		return
	}

	updated, err := s.gateways.GetByID(ctx, id)
	if err != nil || updated == nil {
		slog.Error("failed to re-fetch updated gateway", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update gateway")
		return
	}

	slog.Info("gateway updated", "component", updated.Component)
	s.reload(ctx)
	writeJSON(w, http.StatusOK, toGatewayResponse(updated))
}

// handleDeleteGateway deletes a gateway.
func (s *Server) handleDeleteGateway(w http.ResponseWriter, r *http.Request) {
	id, ok := gatewayID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid gateway id")
		return
	}

	ctx := r.Context()

	gw, err := s.gateways.GetByID(ctx, id)
	if err != nil {
		slog.Error("failed to get gateway", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete gateway")
		return
	}
	if gw == nil {
		writeError(w, http.StatusNotFound, "gateway not found")
		return
	}

	if err := s.gateways.Delete(ctx, id); err != nil {
		slog.Error("failed to delete gateway", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete gateway")
		return
	}

	slog.Info("gateway deleted", "component", gw.Component)
	s.reload(ctx)
	writeJSON(w, http.StatusOK, map[string]int64{"id": id})
}
