package resolve

// Cause classifies why a resolution attempt or a whole resolution failed.
type Cause string

const (
	// CauseInvalidNumber means the destination handle could not be parsed
	// or dialed.
	CauseInvalidNumber Cause = "invalid_number"

	// CauseVoicemailNumberMissing means a voicemail handle was dialed but
	// the target account has no voicemail number configured.
	CauseVoicemailNumberMissing Cause = "voicemail_number_missing"

	// CauseNoPermission means an account's owning component is not
	// authorized to be bound. Candidates failing this check are skipped
	// silently; the cause only surfaces if it empties the list.
	CauseNoPermission Cause = "no_permission"

	// CauseNoProvider means no live provider exists for an account's
	// owning component. Skipped like CauseNoPermission.
	CauseNoProvider Cause = "no_provider_available"

	// CauseOutgoingFailure is the generic terminal failure reported when
	// the candidate list is exhausted with no better cause recorded.
	CauseOutgoingFailure Cause = "outgoing_failure"

	// CauseOutgoingCanceled is reported when the caller aborts.
	CauseOutgoingCanceled Cause = "outgoing_canceled"
)

// State of a resolution.
type State int

const (
	StateIdle State = iota
	StateAttempting
	StateConnected
	StateFailed
	StateAborted
)

// Terminal reports whether the state is one of the three terminal states.
func (s State) Terminal() bool {
	return s == StateConnected || s == StateFailed || s == StateAborted
}

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAttempting:
		return "attempting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Attempt pairs the relay account that is contacted with the target account
// the call is ultimately placed on. For a direct attempt both fields are
// equal. The candidate list is an ordered sequence of Attempt values; order
// encodes priority.
type Attempt struct {
	RelayAccount  string
	TargetAccount string
}

// Request represents one call origination being resolved. ChosenRelay and
// ChosenTarget are bound by the executor as attempts are dispatched; once a
// provider accepts, ownership of the request transfers to the caller.
type Request struct {
	ID            string
	Handle        Handle
	TargetAccount string // caller-specified target account, optional

	// Resolution state, written only by the executor.
	ChosenRelay  string
	ChosenTarget string
}
