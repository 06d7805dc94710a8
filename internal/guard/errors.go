package guard

import "errors"

// Sentinel errors for the failure taxonomy. Gateway implementations wrap
// platform errors with ErrPermissionDenied or ErrTargetNotFound so handlers
// can classify them with errors.Is.
var (
	// ErrPermissionDenied means the platform rejected a mutation, typically
	// because the actor outranks the guardian. The step is skipped and an
	// alert is emitted.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrTargetNotFound means the target entity vanished between detection
	// and reversal. The step is skipped silently.
	ErrTargetNotFound = errors.New("target not found")

	// ErrNoAgents means no auxiliary restore agents could be established.
	// Role restore aborts before any mutation.
	ErrNoAgents = errors.New("no restore agents available")

	// ErrGuildUnavailable means the guild could not be resolved through the
	// gateway.
	ErrGuildUnavailable = errors.New("guild unavailable")

	// ErrEmptyCaches means the gateway reported no roles or no channels.
	// Treated as a not-yet-ready connection rather than a truly empty
	// guild, so capture refuses to persist it.
	ErrEmptyCaches = errors.New("role or channel caches empty")
)
