package timer

import "errors"

// Validation errors. An operation that returns one of these leaves the timer untouched.
var (
	ErrCustomerNameRequired = errors.New("customer name is required")
	ErrDescriptionRequired  = errors.New("description is required before starting")
	ErrDescriptionLocked    = errors.New("description cannot be edited after start")
	ErrAlreadyStarted       = errors.New("timer is already running")
	ErrChangeAfterStart     = errors.New("cannot change time after the timer has started")
	ErrInvalidDuration      = errors.New("invalid duration")
	ErrUnlimitedDisabled    = errors.New("unlimited timers are disabled")
	ErrConfirmationRequired = errors.New("confirmation required")
	ErrNoTimeRemaining      = errors.New("no time remaining")
	ErrTimerNotFound        = errors.New("timer not found")
	ErrTimerTerminated      = errors.New("timer has already ended")
)
