package engine

import (
	"errors"

	"github.com/rowkeeper/dbsync/internal/sourceid"
)

// Error kinds per §7. These are sentinels, not types — wrap with
// fmt.Errorf("...: %w", ErrRemoteTransient) and classify with errors.Is,
// matching the teacher's GraphError/sentinel pattern
// (internal/graph/errors.go).
var (
	// ErrCredential: authentication/authorization failed. Nothing in this
	// repository wraps errors with it or retries on it: a mid-run
	// authorization failure from internal/notion is not retried.
	ErrCredential = errors.New("engine: credential error")

	// ErrLock: the process-wide lock was not acquired within the
	// configured wait. Non-fatal — the caller should exit cleanly.
	ErrLock = errors.New("engine: lock unavailable")

	// ErrRemoteTransient: HTTP 429, 5xx, network timeouts. Retried with
	// backoff by internal/retryutil.
	ErrRemoteTransient = errors.New("engine: transient remote error")

	// ErrRemotePermanent: HTTP 4xx other than 429. Not retried; fails the
	// current row or database step.
	ErrRemotePermanent = errors.New("engine: permanent remote error")

	// ErrSchemaMismatch: a value could not be coerced to the declared
	// column kind. The cell is cleared or skipped; never fatal.
	ErrSchemaMismatch = errors.New("engine: schema mismatch")

	// ErrInvariantViolation: e.g. Single-In-Progress violated. The engine
	// self-heals; never fatal.
	ErrInvariantViolation = errors.New("engine: invariant violation")

	// ErrLocalIO: a local read/write/rename failed. Fails the current
	// database step; the next run retries.
	ErrLocalIO = errors.New("engine: local I/O error")

	// ErrProgrammer: an unexpected nil/broken invariant was caught at the
	// run boundary. The ExecutionRecord is marked failed and the process
	// exits non-zero.
	ErrProgrammer = errors.New("engine: internal error")
)

// RowError is one row-scoped failure, contributing exactly one entry to
// the ExecutionRecord's errors[] (§7 propagation policy).
type RowError struct {
	Database  sourceid.DatabaseID
	Component string
	Row       string
	Kind      error
	Message   string
}
