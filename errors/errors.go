package errors

import "fmt"

var (
	ErrWorkerPanic        = fmt.Errorf("worker panic")
	ErrEmptyMessage       = fmt.Errorf("message body is empty")
	ErrNotSynced          = fmt.Errorf("session is not synced")
	ErrAlreadyJoined      = fmt.Errorf("session already joined")
	ErrSessionClosed      = fmt.Errorf("session closed")
	ErrSubscriptionClosed = fmt.Errorf("subscription closed")
)
