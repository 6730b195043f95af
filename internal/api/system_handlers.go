package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// systemStatusResponse is the shape returned by GET /system/status.
type systemStatusResponse struct {
	Calls     callStatsResponse    `json:"calls"`
	Providers []string             `json:"providers"`
	Accounts  accountStatsResponse `json:"accounts"`
	Uptime    uptimeResponse       `json:"uptime"`
}

type callStatsResponse struct {
	Resolving int              `json:"resolving"`
	Connected int              `json:"connected"`
	Totals    map[string]int64 `json:"totals"`
}

type accountStatsResponse struct {
	Total int64 `json:"total"`
}

type uptimeResponse struct {
	StartedAt  string `json:"started_at"`
	UptimeSec  int64  `json:"uptime_sec"`
	UptimeText string `json:"uptime_text"`
}

// handleSystemStatus returns current call activity, bound providers,
// account counts, and uptime.
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resolving := 0
	if s.calls != nil {
		resolving = s.calls.ActiveCount()
	}

	var components []string
	if s.providers != nil {
		components = s.providers.Components()
	}
	if components == nil {
		components = []string{}
	}

	totals, err := s.records.CountByDisposition(ctx)
	if err != nil {
		slog.Error("system status: failed to count call records", "error", err)
		totals = map[string]int64{}
	}

	accountTotal, err := s.accounts.Count(ctx)
	if err != nil {
		slog.Error("system status: failed to count accounts", "error", err)
	}

	now := time.Now()
	uptimeDur := now.Sub(s.startTime)

	writeJSON(w, http.StatusOK, systemStatusResponse{
		Calls: callStatsResponse{
			Resolving: resolving,
			Connected: s.conns.count(),
			Totals:    totals,
		},
		Providers: components,
		Accounts:  accountStatsResponse{Total: accountTotal},
		Uptime: uptimeResponse{
			StartedAt:  s.startTime.Format(time.RFC3339),
			UptimeSec:  int64(uptimeDur.Seconds()),
			UptimeText: formatUptime(uptimeDur),
		},
	})
}

// handleSystemReload re-reads accounts, routing settings, and provider
// bindings from the database without restarting the process.
func (s *Server) handleSystemReload(w http.ResponseWriter, r *http.Request) {
	if s.reloader == nil {
		writeError(w, http.StatusNotImplemented, "reload not available")
		return
	}

	slog.Info("system reload requested")

	if err := s.reloader.Reload(r.Context()); err != nil {
		slog.Error("system reload failed", "error", err)
		writeError(w, http.StatusInternalServerError, "reload failed: "+err.Error())
		return
	}

	slog.Info("system reload completed")

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"reloaded":  true,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// formatUptime returns a human-readable uptime string like "2d 5h 30m 12s".
func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
