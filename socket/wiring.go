package socket

import (
	"context"

	"github.com/containerd/log"
)

// Wiring returns the device page's event table: echoed lines go to the log
// area, a failing or closing channel is torn down and reported, and feed
// change notifications are logged. Nothing reconnects.
func Wiring(ctx context.Context, c *Client, out Output) Table {
	logger := log.G(ctx).WithField("client", c.ID())

	return Table{
		{Source: SourceTransport, Event: EventMessage, Handler: func(msg Message) {
			out.AppendLine(msg.Data)
		}},
		{Source: SourceTransport, Event: EventClose, Handler: func(msg Message) {
			_ = c.CloseTransport()
			c.setStatus(StatusClosed)
			out.SetStatus(StatusClosed)
		}},
		{Source: SourceTransport, Event: EventError, Handler: func(msg Message) {
			_ = c.CloseTransport()
			logger.WithError(msg.Err).Error("websocket error")
			c.setStatus(StatusError)
			out.SetStatus(StatusError)
		}},
		{Source: SourceFeed, Event: EventError, Handler: func(msg Message) {
			_ = c.CloseFeed()
			logger.WithError(msg.Err).Info(StatusClosed)
		}},
		{Source: SourceFeed, Event: EventMessageChanged, Handler: func(msg Message) {
			logger.WithField("data", msg.Data).Info("Got SSE data")
		}},
	}
}
