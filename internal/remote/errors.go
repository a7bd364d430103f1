package remote

import "fmt"

// ErrorKind is the failure classification decided once at the remote-call
// boundary and matched exhaustively by the sync manager.
type ErrorKind int

const (
	// KindTransient covers 5xx responses and transport failures; retried
	// with bounded backoff.
	KindTransient ErrorKind = iota

	// KindConflict is a 409: the remote already holds a newer state and wins.
	KindConflict

	// KindAuth is a 401: credentials are stale, fatal for the whole queue.
	KindAuth

	// KindUnknown is any unclassified condition; failed without retry so the
	// drain never loops on it.
	KindUnknown
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindConflict:
		return "conflict"
	case KindAuth:
		return "auth"
	default:
		return "unknown"
	}
}

// Error is a classified remote failure. Status is the HTTP status when one
// was received, 0 for transport-level failures.
type Error struct {
	Kind    ErrorKind
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("remote %s error: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("remote %s error (status %d): %s", e.Kind, e.Status, e.Message)
}

// classifyStatus maps an HTTP status to an error kind.
func classifyStatus(status int) ErrorKind {
	switch {
	case status == 409:
		return KindConflict
	case status == 401:
		return KindAuth
	case status >= 500:
		return KindTransient
	default:
		return KindUnknown
	}
}
