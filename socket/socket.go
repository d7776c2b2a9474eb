package socket

import (
	"errors"
)

// Source names the origin of an event: one of the two network channels or
// one of the form inputs.
type Source string

const (
	SourceTransport  Source = "ws"
	SourceFeed       Source = "events"
	SourceSSID       Source = "ssid"
	SourcePassphrase Source = "psw"
	SourceHostname   Source = "hostname"
	SourceLine       Source = "line"
)

type Event string

const (
	EventOpen    Event = "open"
	EventMessage Event = "message"
	EventClose   Event = "close"
	EventError   Event = "error"
	EventInput   Event = "input"

	// EventMessageChanged is the custom event type the device pushes on its
	// feed whenever its status message changes.
	EventMessageChanged Event = "message_changed"
)

// Message is one event flowing through a Table.
type Message struct {
	Source Source
	Event  Event
	Data   string
	Err    error
}

// Output is the display side of the default wiring: a log area and a
// status line.
type Output interface {
	AppendLine(line string)
	SetStatus(status string)
}

const (
	StatusClosed = "Events Closed"
	StatusError  = "Events Error"
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrNoTransport      = errors.New("socket: no transport configured")
)
