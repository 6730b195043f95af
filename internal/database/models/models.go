package models

import "time"

// Account capability bits. An account advertises what it can do; the
// resolver reads these when building and ordering candidate lists.
const (
	// CapabilitySubscription marks an account backed by a carrier
	// subscription (a physical line or SIM) rather than a pure VoIP service.
	CapabilitySubscription int64 = 1 << 0

	// CapabilityEmergency marks an account that may place emergency calls.
	CapabilityEmergency int64 = 1 << 1

	// CapabilityCallProvider marks an account whose owning component can
	// create outgoing connections.
	CapabilityCallProvider int64 = 1 << 2

	// CapabilityRelay marks an account that brokers calls to subscription
	// accounts on their behalf.
	CapabilityRelay int64 = 1 << 3
)

// Account represents a registered call account: a route a call can be
// placed on, owned by a component (gateway) that provides connections.
type Account struct {
	Sequence        int64  // assigned row id; stable ordering tiebreak
	ID              string // caller-facing identifier, e.g. "carrier-a"
	Label           string
	Component       string // owning component; keys into the provider registry
	Capabilities    int64
	SlotIndex       int    // physical slot for subscription accounts, -1 otherwise
	Schemes         string // JSON array of handle schemes the account accepts
	VoicemailNumber string // dialed in place of a "voicemail:" handle
	Authorized      bool   // owning component may be bound
	Enabled         bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HasCapability reports whether the account advertises all bits in c.
func (a *Account) HasCapability(c int64) bool {
	return a.Capabilities&c == c
}

// Gateway represents the SIP endpoint of an owning component. The provider
// registry binds one live provider per enabled gateway, keyed by component.
type Gateway struct {
	ID           int64
	Component    string // unique name referenced by Account.Component
	Enabled      bool
	Host         string
	Port         int
	Transport    string
	Username     string
	Password     string
	AuthUsername string
	CallerIDNum  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SystemConfig represents a key-value configuration entry.
type SystemConfig struct {
	ID        int64
	Key       string
	Value     string
	UpdatedAt time.Time
}

// CallRecord is the audit record written when a resolution reaches a
// terminal state. The cause on a failed record is the last provider-reported
// failure, not a generic one.
type CallRecord struct {
	ID           int64
	CallID       string
	Handle       string
	StartTime    time.Time
	EndTime      *time.Time
	RelayAccount string
	Target       string
	Attempts     int
	Disposition  string // "connected" | "failed" | "canceled"
	Cause        string
	CauseMessage string
}

// AdminUser represents a control API user.
type AdminUser struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
