package bridge

// Predefined errors.
var (
	ErrQueueClosed        = NewBridgeError("queue closed")
	ErrMaxSessionsReached = NewBridgeError("maximum concurrent sessions reached")
	ErrInvalidDestination = NewBridgeError("invalid media destination")
	ErrEmptyCallID        = NewBridgeError("empty call id")
)

// BridgeError represents errors specific to the call bridge.
type BridgeError struct {
	message string
}

func NewBridgeError(message string) *BridgeError {
	return &BridgeError{message: message}
}

func (e *BridgeError) Error() string {
	return e.message
}
