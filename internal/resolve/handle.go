package resolve

import (
	"fmt"
	"strings"
)

// Handle schemes understood by the resolver.
const (
	SchemeTel       = "tel"
	SchemeSIP       = "sip"
	SchemeVoicemail = "voicemail"
)

// ErrInvalidHandle is returned when a destination handle cannot be parsed.
var ErrInvalidHandle = fmt.Errorf("invalid handle")

// Handle is a destination address with an explicit scheme, e.g. "tel:911"
// or "sip:alice@example.com".
type Handle struct {
	Scheme  string
	Address string
}

// ParseHandle parses a raw "scheme:address" handle. The scheme is lowered;
// both parts must be non-empty.
func ParseHandle(raw string) (Handle, error) {
	scheme, address, ok := strings.Cut(raw, ":")
	if !ok || scheme == "" || address == "" {
		return Handle{}, fmt.Errorf("%w: %q", ErrInvalidHandle, raw)
	}
	return Handle{Scheme: strings.ToLower(scheme), Address: address}, nil
}

// String returns the handle in "scheme:address" form.
func (h Handle) String() string {
	return h.Scheme + ":" + h.Address
}

// IsZero reports whether the handle is empty.
func (h Handle) IsZero() bool {
	return h.Scheme == "" && h.Address == ""
}
