package apns

import (
	"errors"
	"fmt"
)

// Validation errors returned by Message.Validate and Engine.Enqueue. Nothing is
// queued when one of them is returned.
var (
	ErrIncorrectDeviceTokenLength = errors.New("apns: device token must be 64 bytes")
	ErrCollapseIDTooLarge         = errors.New("apns: collapse id exceeds 64 bytes")
	ErrIncorrectPriority          = errors.New("apns: background notification requires low priority")
	ErrPayloadTooLarge            = errors.New("apns: payload too large")
	ErrMissingAppBundle           = errors.New("apns: app bundle is required")
	ErrNoDeviceTokens             = errors.New("apns: no device tokens")
)

// PayloadTooLargeError carries the size limit of the message mode that was exceeded.
type PayloadTooLargeError struct {
	MaxSize int
	Size    int
}

func (e *PayloadTooLargeError) Error() string {
	return fmt.Sprintf("apns: payload too large: %d bytes, max %d", e.Size, e.MaxSize)
}

func (e *PayloadTooLargeError) Is(target error) bool {
	return target == ErrPayloadTooLarge
}
