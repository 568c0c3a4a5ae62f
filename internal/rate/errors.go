package rate

import "errors"

// ErrBackendUnavailable wraps Redis transport failures. Callers must treat
// it as a deny: an unreachable limiter never grants free attempts.
var ErrBackendUnavailable = errors.New("rate limiter backend unavailable")
