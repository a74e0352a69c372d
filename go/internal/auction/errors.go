package auction

import "errors"

var (
	ErrNoState                  = errors.New("no auction state")
	ErrNotCurrentStudent        = errors.New("student is not the current pick")
	ErrStudentUnavailable       = errors.New("student is not available")
	ErrUnknownStudent           = errors.New("unknown student")
	ErrUnknownVanguard          = errors.New("unknown vanguard")
	ErrInsufficientBudget       = errors.New("insufficient budget")
	ErrNotInQueue               = errors.New("student is not in the queue")
	ErrCannotMoveCurrentStudent = errors.New("cannot move the current student")
	ErrStudentNotSold           = errors.New("student is not sold")
	ErrStudentNotUnsold         = errors.New("student is not unsold")
	ErrNoActionToUndo           = errors.New("no action to undo")
	ErrQueueEmpty               = errors.New("queue is empty")
	ErrInvalidPrice             = errors.New("price must not be negative")
	ErrInvalidBackup            = errors.New("invalid backup")
)
