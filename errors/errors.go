package errors

import "fmt"

var (
	ErrWorkerPanic        = fmt.Errorf("worker panic")
	ErrUserAlreadyExists  = fmt.Errorf("email already in use")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrInvalidPassword    = fmt.Errorf("password does not meet complexity rules")
	ErrTokenGeneration    = fmt.Errorf("token generation failed")
	ErrUserNotFound       = fmt.Errorf("user not found")
	ErrMessageNotFound    = fmt.Errorf("message not found")
	ErrEmptyContent       = fmt.Errorf("message content is required")
	ErrEmptyRecipient     = fmt.Errorf("message recipient is required")
	ErrChannelClosed      = fmt.Errorf("channel closed")
)
