package channel

import "github.com/chris-alexander-pop/agentcore/pkg/errors"

// Error codes for channel operations.
const (
	CodeConnectionFailed = "CHANNEL_CONN_FAILED"
	CodeDeliverTimeout   = "CHANNEL_DELIVER_TIMEOUT"
	CodePublishFailed    = "CHANNEL_PUBLISH_FAILED"
	CodeSubscribeFailed  = "CHANNEL_SUBSCRIBE_FAILED"
	CodeClosed           = "CHANNEL_CLOSED"
	CodeRemoteError      = "CHANNEL_REMOTE_ERROR"
)

// ErrConnectionFailed creates an error for broker connection failures.
func ErrConnectionFailed(err error) *errors.AppError {
	return errors.New(CodeConnectionFailed, "failed to connect to channel broker", err)
}

// ErrDeliverTimeout creates an error for a request/reply that timed out.
func ErrDeliverTimeout(err error) *errors.AppError {
	return errors.New(CodeDeliverTimeout, "timed out waiting for reply", err)
}

// ErrPublishFailed creates an error for publish failures.
func ErrPublishFailed(err error) *errors.AppError {
	return errors.New(CodePublishFailed, "failed to publish message", err)
}

// ErrSubscribeFailed creates an error for subscribe failures.
func ErrSubscribeFailed(err error) *errors.AppError {
	return errors.New(CodeSubscribeFailed, "failed to subscribe", err)
}

// ErrClosed creates an error for use of a closed channel.
func ErrClosed(err error) *errors.AppError {
	return errors.New(CodeClosed, "channel is closed", err)
}

// ErrRemote wraps a remote Error envelope surfaced to the caller of a
// request-style publish. The code is the remote handler's own error code
// (e.g. "cancelled"), not CodeRemoteError.
func ErrRemote(code, msg string) *errors.AppError {
	return errors.New(code, msg, nil)
}
