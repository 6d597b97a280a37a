package orchestrator

import "errors"

var (
	// ErrSchemeUnsupported indicates no registered provider advertises the
	// URL scheme of a pull request.
	ErrSchemeUnsupported = errors.New("no provider for scheme")

	// ErrNameUnresolved indicates a domain, virtual host, or "vhost#app"
	// name could not be resolved against the configuration tree.
	ErrNameUnresolved = errors.New("name not resolved")

	// ErrPullFailed indicates every candidate URL of a pull request was
	// rejected by its provider.
	ErrPullFailed = errors.New("pull rejected by all providers")
)

// Result is the outcome of an application create or delete. Exists and
// NotExists are idempotency signals, not failures.
type Result int

const (
	ResultFailed Result = iota
	ResultSucceeded
	ResultExists
	ResultNotExists
)

func (r Result) String() string {
	switch r {
	case ResultSucceeded:
		return "succeeded"
	case ResultExists:
		return "exists"
	case ResultNotExists:
		return "not-exists"
	default:
		return "failed"
	}
}
