// Package resolve turns a call origination request into a live connection by
// building a prioritized candidate list of accounts and trying providers one
// at a time until one accepts, the list runs out, or the caller aborts.
package resolve

import (
	"context"

	"github.com/callbroker/callbroker/internal/database/models"
)

// AccountRegistry resolves account identifiers to account descriptors and
// answers the routing questions the candidate builder asks. Implementations
// must be safe for concurrent use.
type AccountRegistry interface {
	// Account returns the account with the given id, or nil if unknown.
	Account(id string) *models.Account

	// HasPermission reports whether the account's owning component is
	// authorized to carry calls.
	HasPermission(id string) bool

	// RelayAccount returns the configured relay account id, or "".
	RelayAccount() string

	// DefaultOutgoingAccount returns the fallback account for the given
	// handle scheme, or "".
	DefaultOutgoingAccount(scheme string) string

	// Accounts returns all enabled accounts in priority order.
	Accounts() []models.Account
}

// EmergencyClassifier decides whether a handle addresses an emergency
// service.
type EmergencyClassifier interface {
	IsEmergencyNumber(h Handle) bool
}

// Connection is a live call created by a provider.
type Connection interface {
	ID() string
	Hangup(ctx context.Context) error
}

// ResponseChannel receives the outcome of a connection attempt or of a whole
// resolution. Providers call it from arbitrary goroutines; implementations
// must tolerate that. Exactly one of the two methods is invoked.
type ResponseChannel interface {
	OnCreateSuccess(conn Connection)
	OnCreateFailure(cause Cause, message string)
}

// Provider places calls for one component. CreateConnection must not block;
// the outcome is reported through the channel. Abort tells the provider to
// tear down whatever it has built for the request so far.
type Provider interface {
	CreateConnection(req *Request, rc ResponseChannel)
	Abort(req *Request)
}

// ProviderRegistry maps a component name to its live provider, or nil when
// the component has none.
type ProviderRegistry interface {
	Provider(component string) Provider
}

// RecordWriter persists terminal resolution records.
type RecordWriter interface {
	Create(ctx context.Context, rec *models.CallRecord) error
}

// ResolutionError is returned for failures detected before any attempt is
// dispatched, carrying the terminal cause the caller would otherwise have
// received through the response channel.
type ResolutionError struct {
	Cause   Cause
	Message string
}

func (e *ResolutionError) Error() string {
	if e.Message == "" {
		return string(e.Cause)
	}
	return string(e.Cause) + ": " + e.Message
}
