package protocol

// ErrorCode classifies a protocol-level error.
type ErrorCode string

const (
	CodeConnectionError ErrorCode = "CONNECTION_ERROR"
	CodeAuthFailed      ErrorCode = "AUTH_FAILED"
	CodeRateLimit       ErrorCode = "RATE_LIMIT"
	CodeContextTooLarge ErrorCode = "CONTEXT_TOO_LARGE"
	CodeMessageTooLong  ErrorCode = "MESSAGE_TOO_LONG"
	CodeStreamAborted   ErrorCode = "STREAM_ABORTED"
	CodeServerError     ErrorCode = "SERVER_ERROR"
	CodeTimeout         ErrorCode = "TIMEOUT"
)

// Retryable reports the default retry guidance for a code. Individual error
// messages may override it (a state error is SERVER_ERROR but not retryable).
func (c ErrorCode) Retryable() bool {
	switch c {
	case CodeAuthFailed, CodeStreamAborted, CodeConnectionError, CodeMessageTooLong:
		return false
	default:
		return true
	}
}

// NewError builds an ErrorMessage with the code's default retryability.
func NewError(code ErrorCode, message string) ErrorMessage {
	return ErrorMessage{
		Code:      code,
		Message:   message,
		Retryable: code.Retryable(),
	}
}

// NewMessageError builds an ErrorMessage tied to a specific message id.
func NewMessageError(code ErrorCode, message, messageID string) ErrorMessage {
	e := NewError(code, message)
	e.MessageID = messageID
	return e
}
