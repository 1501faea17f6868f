package status

import "errors"

var (
	ErrQueueNotFound  = errors.New("queue: queue not found")
	ErrQueueInactive  = errors.New("queue: queue is not active")
	ErrEmptyName      = errors.New("queue: name is required")
	ErrNameTaken      = errors.New("queue: that name is already in this queue")
	ErrAlreadyInQueue = errors.New("queue: you are already in this queue")
	ErrNotHost        = errors.New("queue: only the host can do that")
	ErrCodeExhausted  = errors.New("queue: could not allocate a unique queue code")
)
