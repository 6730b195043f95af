package resolve

import (
	"log/slog"
	"slices"

	"github.com/callbroker/callbroker/internal/database/models"
)

// Builder assembles the prioritized candidate list for a request. Each
// candidate is an (relay, target) account pair; the executor walks the list
// in order.
type Builder struct {
	accounts  AccountRegistry
	emergency EmergencyClassifier
	logger    *slog.Logger
}

// NewBuilder creates a candidate list builder.
func NewBuilder(accounts AccountRegistry, emergency EmergencyClassifier, logger *slog.Logger) *Builder {
	return &Builder{
		accounts:  accounts,
		emergency: emergency,
		logger:    logger.With("subsystem", "candidate-builder"),
	}
}

// Build returns the candidate list for the request. Emergency handles
// replace the normal list entirely; otherwise the list holds the explicit
// target account, or the scheme's default outgoing account, possibly
// rewritten to go through the relay account. An empty list means no account
// can place this call.
func (b *Builder) Build(req *Request) []Attempt {
	if b.emergency.IsEmergencyNumber(req.Handle) {
		return b.buildEmergency(req)
	}

	target := req.TargetAccount
	if target == "" {
		target = b.accounts.DefaultOutgoingAccount(req.Handle.Scheme)
	}
	if target == "" {
		b.logger.Warn("no account for call", "handle", req.Handle.String())
		return nil
	}

	attempts := []Attempt{{RelayAccount: target, TargetAccount: target}}
	b.adjustForRelay(attempts)
	return attempts
}

// adjustForRelay rewrites a single direct candidate to be placed through
// the relay account. This only applies when a relay is configured, it is
// not the target itself, and the target is a network subscription account.
func (b *Builder) adjustForRelay(attempts []Attempt) {
	if len(attempts) != 1 {
		return
	}
	relay := b.accounts.RelayAccount()
	if relay == "" || relay == attempts[0].TargetAccount {
		return
	}
	target := b.accounts.Account(attempts[0].TargetAccount)
	if target == nil || !target.HasCapability(models.CapabilitySubscription) {
		return
	}

	b.logger.Debug("routing call through relay account",
		"relay", relay, "target", attempts[0].TargetAccount)
	attempts[0].RelayAccount = relay
}

// buildEmergency lists every subscription account that can place emergency
// calls, in priority order, then appends a relay fallback when the relay
// itself is emergency-capable. The fallback is deduplicated against the
// direct candidates.
func (b *Builder) buildEmergency(req *Request) []Attempt {
	var attempts []Attempt
	for _, a := range b.accounts.Accounts() {
		if a.HasCapability(models.CapabilityEmergency) && a.HasCapability(models.CapabilitySubscription) {
			attempts = append(attempts, Attempt{RelayAccount: a.ID, TargetAccount: a.ID})
		}
	}

	relay := b.accounts.RelayAccount()
	if relay != "" {
		if ra := b.accounts.Account(relay); ra != nil && ra.HasCapability(models.CapabilityEmergency) {
			if def := b.accounts.DefaultOutgoingAccount(req.Handle.Scheme); def != "" {
				fallback := Attempt{RelayAccount: relay, TargetAccount: def}
				if !slices.Contains(attempts, fallback) {
					attempts = append(attempts, fallback)
				}
			}
		}
	}

	b.logger.Info("emergency candidate list built",
		"handle", req.Handle.String(), "candidates", len(attempts))
	return attempts
}
