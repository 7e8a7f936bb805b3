package scans

import "errors"

// ErrNotFound indicates the scan does not exist or is owned by another caller.
var ErrNotFound = errors.New("scan not found")

// ErrInvalidTransition indicates a status write that would move a record
// backwards or out of a terminal state. The write is discarded.
var ErrInvalidTransition = errors.New("invalid status transition")
