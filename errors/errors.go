package errors

import "fmt"

var (
	ErrWorkerPanic        = fmt.Errorf("worker panic")
	ErrInvalidPayload     = fmt.Errorf("invalid event payload")
	ErrEmptyWords         = fmt.Errorf("no words have been found")
	ErrInvalidPassword    = fmt.Errorf("password does not meet complexity rules")
	ErrInvalidToken       = fmt.Errorf("invalid or expired token")
	ErrInvalidCredentials = fmt.Errorf("invalid email or password")
	ErrUserAlreadyExists  = fmt.Errorf("user already exists")
	ErrMessageNotFound    = fmt.Errorf("message not found")
	ErrInvalidChatType    = fmt.Errorf("chat type must be direct or group")
	ErrMissingReceiver    = fmt.Errorf("direct message needs a receiver")
	ErrNotAnImage         = fmt.Errorf("attachment is not an image")
)
