package sip

import (
	"fmt"

	"github.com/callbroker/callbroker/internal/resolve"
)

// mapFailureStatus translates a final SIP failure status from a gateway
// into a resolution failure cause.
func mapFailureStatus(statusCode int, reason string) (resolve.Cause, string) {
	msg := fmt.Sprintf("gateway responded %d %s", statusCode, reason)
	switch {
	case statusCode == 404 || statusCode == 484 || statusCode == 604:
		return resolve.CauseInvalidNumber, msg
	case statusCode == 401 || statusCode == 403 || statusCode == 407:
		return resolve.CauseNoPermission, msg
	default:
		return resolve.CauseOutgoingFailure, msg
	}
}
