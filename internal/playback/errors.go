package playback

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies why a session ended up in PhaseFailed
type ErrorKind int

const (
	ConnectionFailed ErrorKind = iota
	UnsupportedFormat
	Timeout
	UnexpectedStreamEnd
)

var errorKindNames = map[ErrorKind]string{
	ConnectionFailed:    "connection_failed",
	UnsupportedFormat:   "unsupported_format",
	Timeout:             "timeout",
	UnexpectedStreamEnd: "unexpected_stream_end",
}

func (k ErrorKind) String() string {
	if name, ok := errorKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("error_kind(%d)", int(k))
}

// MarshalText renders the kind as its snake_case name
func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ErrorInfo describes a playback failure. It doubles as an error so
// backends can return it directly and keep their classification.
type ErrorInfo struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *ErrorInfo) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewError builds an ErrorInfo with a formatted message
func NewError(kind ErrorKind, format string, args ...interface{}) *ErrorInfo {
	return &ErrorInfo{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// AsErrorInfo classifies an arbitrary backend error. An *ErrorInfo
// anywhere in the chain is returned as is; deadlines and network
// timeouts map to Timeout; everything else is ConnectionFailed.
func AsErrorInfo(err error) *ErrorInfo {
	if err == nil {
		return nil
	}

	var info *ErrorInfo
	if errors.As(err, &info) {
		copied := *info
		return &copied
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &ErrorInfo{Kind: Timeout, Message: err.Error()}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &ErrorInfo{Kind: Timeout, Message: err.Error()}
	}

	return &ErrorInfo{Kind: ConnectionFailed, Message: err.Error()}
}
