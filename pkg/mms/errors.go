package mms

import (
	"errors"
	"fmt"
)

const (
	OpConnect  = "connect"
	OpDescribe = "describe"
	OpPlay     = "play"
	OpRead     = "read"
)

var (
	ErrInvalidURL     = errors.New("invalid URL")
	ErrUnsupportedURL = errors.New("unsupported URL for this protocol")
	ErrNotConnected   = errors.New("transport not connected")
)

// ProtocolError reports a failure of a transport operation.
type ProtocolError struct {
	Protocol  string
	Operation string
	URL       string
	Err       error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s protocol error during %s for %s: %v",
		e.Protocol, e.Operation, e.URL, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

func NewProtocolError(protocol, operation, url string, err error) error {
	if err == nil {
		return nil
	}

	return &ProtocolError{
		Protocol:  protocol,
		Operation: operation,
		URL:       url,
		Err:       err,
	}
}

// ConnectError reports that a connection could not be established.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect to %s: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// IsConnectError reports whether err is a connection establishment failure.
func IsConnectError(err error) bool {
	var ce *ConnectError
	return errors.As(err, &ce)
}
