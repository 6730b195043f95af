package account

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/callbroker/callbroker/internal/database"
	"github.com/callbroker/callbroker/internal/database/models"
)

// Registry holds an in-memory snapshot of the enabled accounts and the
// routing settings that select among them. The snapshot is rebuilt with
// Reload; reads never touch the database.
type Registry struct {
	accounts database.AccountRepository
	config   database.SystemConfigRepository
	logger   *slog.Logger

	mu       sync.RWMutex
	byID     map[string]models.Account
	ordered  []models.Account
	relay    string
	defaults map[string]string // scheme -> account id
}

// NewRegistry creates a registry. Call Reload before first use.
func NewRegistry(accounts database.AccountRepository, config database.SystemConfigRepository, logger *slog.Logger) *Registry {
	return &Registry{
		accounts: accounts,
		config:   config,
		logger:   logger.With("subsystem", "account-registry"),
		byID:     make(map[string]models.Account),
		defaults: make(map[string]string),
	}
}

// Reload rebuilds the snapshot from the database. Callers invoke it at
// startup and again whenever accounts or routing settings change.
func (r *Registry) Reload(ctx context.Context) error {
	accs, err := r.accounts.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("loading accounts: %w", err)
	}
	SortByPriority(accs)

	relay, err := r.config.Get(ctx, database.ConfigKeyRelayAccount)
	if err != nil {
		return fmt.Errorf("loading relay account setting: %w", err)
	}

	entries, err := r.config.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("loading routing settings: %w", err)
	}
	defaults := make(map[string]string)
	for _, e := range entries {
		if scheme, ok := strings.CutPrefix(e.Key, database.ConfigKeyDefaultOutgoingPrefix); ok && e.Value != "" {
			defaults[scheme] = e.Value
		}
	}

	byID := make(map[string]models.Account, len(accs))
	for _, a := range accs {
		byID[a.ID] = a
	}

	if relay != "" {
		if _, ok := byID[relay]; !ok {
			r.logger.Warn("configured relay account is unknown or disabled", "relay", relay)
			relay = ""
		}
	}

	r.mu.Lock()
	r.byID = byID
	r.ordered = accs
	r.relay = relay
	r.defaults = defaults
	r.mu.Unlock()

	r.logger.Info("account snapshot reloaded",
		"accounts", len(accs), "relay", relay, "scheme_defaults", len(defaults))
	return nil
}

// Account returns a copy of the account with the given id, or nil if it is
// unknown or disabled.
func (r *Registry) Account(id string) *models.Account {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[id]
	if !ok {
		return nil
	}
	return &a
}

// HasPermission reports whether the account exists and its owning component
// is authorized to carry calls.
func (r *Registry) HasPermission(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[id]
	return ok && a.Authorized
}

// RelayAccount returns the configured relay account id, or "" when no
// usable relay is configured.
func (r *Registry) RelayAccount() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.relay
}

// DefaultOutgoingAccount returns the account calls of the given scheme fall
// back to. An explicit setting wins; otherwise the highest-priority account
// supporting the scheme is used. Returns "" when nothing qualifies.
func (r *Registry) DefaultOutgoingAccount(scheme string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if id, ok := r.defaults[scheme]; ok {
		if _, known := r.byID[id]; known {
			return id
		}
	}
	for _, a := range r.ordered {
		if accountSupportsScheme(&a, scheme) {
			return a.ID
		}
	}
	return ""
}

// Accounts returns a copy of the enabled accounts in priority order.
func (r *Registry) Accounts() []models.Account {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Account, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Count returns the number of enabled accounts in the snapshot.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ordered)
}

// accountSupportsScheme parses the account's scheme list. Accounts with no
// scheme list handle tel calls only.
func accountSupportsScheme(a *models.Account, scheme string) bool {
	if a.Schemes == "" {
		return scheme == "tel"
	}
	var schemes []string
	if err := json.Unmarshal([]byte(a.Schemes), &schemes); err != nil {
		return scheme == "tel"
	}
	for _, s := range schemes {
		if s == scheme {
			return true
		}
	}
	return false
}
