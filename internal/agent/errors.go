package agent

import "errors"

// ErrModelCall indicates the underlying model call failed. The query is
// abandoned without retry; callers distinguish it with errors.Is to map it
// to a 502-style failure instead of a bad request.
var ErrModelCall = errors.New("model call failed")
