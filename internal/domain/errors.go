package domain

import "errors"

// ErrNotRegistered indicates a place has no configured alert recipients.
// Treated as a handled, non-retryable skip by the alert state machine.
var ErrNotRegistered = errors.New("place not registered for alerts")
