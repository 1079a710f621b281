package homeworks

import (
	"errors"
	"fmt"
)

// Domain errors for the Homeworks bridge package.
var (
	// ErrNotConnected is returned when an operation requires a live
	// connection but the client is not connected to the processor.
	ErrNotConnected = errors.New("homeworks: not connected to processor")

	// ErrConnectionFailed is returned when the connection to the processor
	// cannot be established.
	ErrConnectionFailed = errors.New("homeworks: connection to processor failed")

	// ErrConnectionLost is returned for commands that were in flight when
	// the connection dropped. The reply, if the processor ever sent one,
	// is unrecoverable.
	ErrConnectionLost = errors.New("homeworks: connection lost")

	// ErrLoginFailed is returned when the processor rejects the
	// integration credentials. Not retried: reconnecting with the same
	// credentials would fail the same way.
	ErrLoginFailed = errors.New("homeworks: login rejected")

	// ErrCommandTimeout is returned when no matching reply arrives within
	// the configured per-command timeout.
	ErrCommandTimeout = errors.New("homeworks: command timed out")

	// ErrFrameTooLong is returned by the framer when a line exceeds the
	// configured maximum. The connection is torn down and re-established
	// since framing can no longer be trusted.
	ErrFrameTooLong = errors.New("homeworks: protocol line exceeds maximum length")

	// ErrQueueFull is returned by Submit when the submission queue is at
	// capacity.
	ErrQueueFull = errors.New("homeworks: command queue full")

	// ErrClosed is returned for operations on a closed client.
	ErrClosed = errors.New("homeworks: client closed")

	// ErrInvalidArgument is returned by command constructors for
	// out-of-range or malformed arguments, before anything reaches the
	// processor.
	ErrInvalidArgument = errors.New("homeworks: invalid argument")
)

// commandErrorMessages maps processor error codes from ~ERROR replies to
// descriptions, per the Homeworks QS integration protocol.
var commandErrorMessages = map[int]string{
	1: "parameter count mismatch",
	2: "object does not exist",
	3: "invalid action number",
	4: "parameter data out of range",
	5: "parameter data malformed",
	6: "unsupported command",
}

// CommandError is a command rejection reported by the processor via an
// ~ERROR reply line.
type CommandError struct {
	// Code is the processor's error code.
	Code int

	// Command is the formatted command string that was rejected.
	Command string
}

// Error implements the error interface.
func (e *CommandError) Error() string {
	msg, ok := commandErrorMessages[e.Code]
	if !ok {
		msg = fmt.Sprintf("unknown error %d", e.Code)
	}
	if e.Command != "" {
		return fmt.Sprintf("homeworks: %s (command: %s)", msg, e.Command)
	}
	return "homeworks: " + msg
}
