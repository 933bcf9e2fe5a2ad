package remote

import "errors"

// Standard remote store errors.
//
// These sentinels give every Store implementation a consistent failure
// vocabulary. The transfer layer classifies per-file failures with
// errors.Is against this set so the user-facing message can distinguish
// retryable conditions from ones that need user intervention.
//
// Implementations wrap these with context:
//
//	return fmt.Errorf("object %s: %w", id, remote.ErrNotFound)
var (
	// ErrNotFound indicates the referenced object does not exist on the
	// remote side.
	ErrNotFound = errors.New("remote object not found")

	// ErrRemoteUnavailable indicates a network or API failure. This is a
	// transient condition: retrying the operation may succeed.
	ErrRemoteUnavailable = errors.New("remote store unavailable")

	// ErrPermissionDenied indicates the caller lacks access to the object.
	// Retrying without re-authentication will not help.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrQuotaExceeded indicates the remote storage quota is exhausted.
	// Retrying will not help until the user frees space.
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// ErrLocalIO indicates a disk read/write failure on the local side of
	// a transfer.
	ErrLocalIO = errors.New("local I/O failure")
)

// Retryable reports whether a failed operation is worth retrying without
// user intervention. Permission and quota failures are permanent until the
// user acts; everything else (network, timeouts, local disk hiccups) may
// clear up.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrQuotaExceeded) {
		return false
	}
	return true
}
