package mms

import (
	"context"
	"errors"
)

const (
	// Scheme is the URI scheme served by this protocol family.
	Scheme = "mms"

	// DefaultPort is used when the URI carries no explicit port.
	DefaultPort = 1755

	// DefaultHTTPPort is the port of the HTTP-tunneled fallback framing.
	DefaultHTTPPort = 80
)

// MessageKind tags a control message.
type MessageKind int

const (
	MessageOther MessageKind = iota
	// MessageStreamSwitch reports that the stream is ready to be played.
	MessageStreamSwitch
	// MessageEndOfStream reports that the server sent the last media unit.
	MessageEndOfStream
)

func (k MessageKind) String() string {
	switch k {
	case MessageStreamSwitch:
		return "stream-switch"
	case MessageEndOfStream:
		return "end-of-stream"
	default:
		return "other"
	}
}

// ControlMessage is an out-of-band protocol message.
type ControlMessage struct {
	Kind MessageKind
	// Name is the wire name of the message, informational only.
	Name string
}

// UnitKind tags a data unit.
type UnitKind int

const (
	UnitMedia UnitKind = iota
	UnitHeader
)

func (k UnitKind) String() string {
	if k == UnitHeader {
		return "header"
	}

	return "media"
}

// DataUnit is a single framed payload delivered by the transport.
type DataUnit struct {
	Kind UnitKind
	Data []byte
}

// IsHeader reports whether the unit carries container metadata.
func (u DataUnit) IsHeader() bool {
	return u.Kind == UnitHeader
}

// ControlHandler receives control messages.
type ControlHandler interface {
	HandleMessage(msg ControlMessage)
}

// DataHandler receives header and media units in arrival order.
type DataHandler interface {
	HandleUnit(unit DataUnit)
}

// LifecycleHandler receives transport lifecycle events and failures.
type LifecycleHandler interface {
	// TransportFailed reports a failure. Connection establishment failures
	// are wrapped in a *ConnectError.
	TransportFailed(err error)
	// SessionClosed reports that the transport session has ended.
	SessionClosed()
}

// Handlers groups the event sinks a transport delivers to.
type Handlers struct {
	Control   ControlHandler
	Data      DataHandler
	Lifecycle LifecycleHandler
}

// Validate ensures all handlers are present.
func (h Handlers) Validate() error {
	if h.Control == nil || h.Data == nil || h.Lifecycle == nil {
		return errors.New("mms: control, data and lifecycle handlers are required")
	}

	return nil
}

// Transport is the control surface of a protocol client. Events are
// delivered to the Handlers given at construction, from a goroutine owned
// by the transport.
type Transport interface {
	// Connect starts connecting and returns once the attempt is under way.
	Connect(ctx context.Context) error
	// StartStreaming asks the server to stream media from the given packet.
	StartStreaming(packet int64) error
	// Disconnect tears down the connection. Safe to call more than once.
	Disconnect() error
	// PauseSupported reports whether streaming can start at a packet offset.
	PauseSupported() bool
	// Speed returns the current transfer rate in bytes per second.
	Speed() float64
}

// TransportFactory builds a transport for a URI, bound to the given handlers.
type TransportFactory func(uri string, handlers Handlers) (Transport, error)
