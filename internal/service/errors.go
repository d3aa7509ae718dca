package service

import "errors"

// ErrResultNotReady is returned when a download is requested for a job
// that has not reached COMPLETED.
var ErrResultNotReady = errors.New("result not ready")
