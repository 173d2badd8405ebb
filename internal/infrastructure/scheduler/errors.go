package scheduler

import "errors"

var (
	// ErrLockBusy is returned by a Locker when another instance holds the lock
	ErrLockBusy = errors.New("scheduler lock held elsewhere")

	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid scheduler configuration")

	// ErrNotRunning is returned when kicking a stopped dispatcher
	ErrNotRunning = errors.New("dispatcher is not running")
)
