package txparser

import "errors"

// ErrTruncatedInput is returned when a block's transaction bytes run
// out before a field the parser expected to find could be read.
var ErrTruncatedInput = errors.New("txparser: truncated input")
