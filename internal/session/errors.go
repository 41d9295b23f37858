package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"

	"tools.zach/dev/richcord/internal/discord"
	"tools.zach/dev/richcord/internal/presence"
)

// Error codes carried by [Error].
const (
	CodeConnectFailed   = "connect_failed"
	CodeNotConnected    = "not_connected"
	CodeDisconnected    = "disconnected"
	CodeInvalidPresence = "invalid_presence"
	CodeSendFailed      = "send_failed"
	CodeAborted         = "aborted"
)

// Error is the structured error reported to callers and to the error
// notification. Code is empty for failures that fit no category.
type Error struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`

	Err error `json:"-"`
}

func (e *Error) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error with the same non-empty code, so errors that
// crossed a process boundary still compare equal to the sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code != "" && t.Code == e.Code
}

var (
	// ErrNotConnected is returned by presence operations before a session
	// is connected.
	ErrNotConnected = &Error{Code: CodeNotConnected, Message: "not connected to Discord"}

	// ErrAborted is returned by a connect that was interrupted by Disconnect.
	ErrAborted = &Error{Code: CodeAborted, Message: "connect aborted by disconnect"}
)

// newError wraps cause under code, keeping its text as the details.
func newError(code, message string, cause error) *Error {
	e := &Error{Code: code, Message: message, Err: cause}
	if cause != nil {
		e.Details = cause.Error()
	}
	return e
}

// sendErrorCode picks the code for a failed command. Discord RPC errors
// keep their numeric code as rpc_<n>.
func sendErrorCode(err error) string {
	var de *discord.Error
	if errors.As(err, &de) && de.Code != 0 {
		return fmt.Sprintf("rpc_%d", de.Code)
	}
	return CodeSendFailed
}

// AsError converts any error into an *Error, keeping one that already is.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	var verr *presence.ValidationError
	if errors.As(err, &verr) {
		return &Error{Code: CodeInvalidPresence, Message: "invalid presence", Details: strings.Join(verr.Problems, "; "), Err: err}
	}
	return &Error{Message: err.Error(), Err: err}
}

// disconnectMarkers are matched against error text when no structured
// signal identifies a lost connection.
var disconnectMarkers = []string{"connection", "disconnected", "not connected", "broken pipe"}

// IsDisconnect reports whether err means the Discord connection is gone.
// Structured errors are checked first. Error text is only consulted for
// errors that carry no recognizable type.
func IsDisconnect(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var de *discord.Error
	if errors.As(err, &de) && !errors.Is(err, discord.ErrConnectionClosed) {
		return false
	}

	for _, target := range []error{
		discord.ErrNotConnected,
		discord.ErrConnectionClosed,
		io.EOF,
		io.ErrUnexpectedEOF,
		io.ErrClosedPipe,
		net.ErrClosed,
		syscall.EPIPE,
		syscall.ECONNRESET,
	} {
		if errors.Is(err, target) {
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range disconnectMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
