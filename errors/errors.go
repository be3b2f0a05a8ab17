package errors

import "fmt"

var (
	ErrWorkerPanic     = fmt.Errorf("worker panic")
	ErrHandlerPanic    = fmt.Errorf("handler panic")
	ErrMessageNotFound = fmt.Errorf("message not found")
	ErrUserNotFound    = fmt.Errorf("user not found")
	ErrInvalidToken    = fmt.Errorf("invalid or expired token")
)
