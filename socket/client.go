package socket

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/kleeedolinux/devsettings/debug"
	"github.com/kleeedolinux/devsettings/socket/transport"
)

// Client owns the two device channels and funnels everything they produce
// through one Table. Handlers run on the goroutine that calls Run, one
// message at a time.
type Client struct {
	mu       sync.RWMutex
	id       string
	conn     Transport
	feed     Feed
	table    Table
	connOpen bool
	feedOpen bool
	status   string

	inbox     chan Message
	readers   sync.WaitGroup
	done      chan struct{}
	stop      chan struct{}
	closeOnce sync.Once
	started   bool
}

// Transport is the bidirectional text channel.
type Transport interface {
	Connect(ctx context.Context) error
	Send(data []byte) error
	Receive() ([]byte, error)
	Close() error
}

// Feed is the one-directional server push channel.
type Feed interface {
	Connect(ctx context.Context) error
	Next() (transport.Event, error)
	Close() error
}

type ClientOption func(*Client)

// WithTable installs the bindings the client dispatches through.
func WithTable(t Table) ClientOption {
	return func(c *Client) {
		c.table = append(Table(nil), t...)
	}
}

// minInbox holds the open or error message each channel queues during
// Connect, before anything runs the dispatch loop.
const minInbox = 2

// WithInboxSize bounds how many undispatched messages may queue up. Sizes
// below two are raised to two.
func WithInboxSize(n int) ClientOption {
	return func(c *Client) {
		c.inbox = make(chan Message, max(n, minInbox))
	}
}

// NewClient builds a client over conn and feed. Either may be nil.
func NewClient(conn Transport, feed Feed, opts ...ClientOption) *Client {
	c := &Client{
		id:    uuid.NewString(),
		conn:  conn,
		feed:  feed,
		inbox: make(chan Message, 64),
		done:  make(chan struct{}),
		stop:  make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *Client) ID() string {
	return c.id
}

// On appends a binding to the client's table. Bindings must be registered
// before Run.
func (c *Client) On(source Source, event Event, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.table = c.table.On(source, event, h)
}

// Handle appends bindings to the client's table.
func (c *Client) Handle(bindings ...Binding) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.table = append(c.table, bindings...)
}

// Bindings returns a copy of the current table.
func (c *Client) Bindings() Table {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return append(Table(nil), c.table...)
}

// Connect opens both channels. A channel that fails to open produces an
// error message for its source, the same way a browser fires "error" on a
// socket it could not open; the joined connect errors are also returned.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.mu.Unlock()

	var errs []error

	if c.conn != nil {
		if err := c.conn.Connect(ctx); err != nil {
			debug.Printf("Client %s: transport connect failed: %v", c.id, err)
			errs = append(errs, fmt.Errorf("transport: %w", err))
			c.enqueue(Message{Source: SourceTransport, Event: EventError, Err: err})
		} else {
			c.mu.Lock()
			c.connOpen = true
			c.mu.Unlock()
			c.enqueue(Message{Source: SourceTransport, Event: EventOpen})
			c.readers.Add(1)
			go c.receiveLoop()
		}
	}

	if c.feed != nil {
		if err := c.feed.Connect(ctx); err != nil {
			debug.Printf("Client %s: feed connect failed: %v", c.id, err)
			errs = append(errs, fmt.Errorf("feed: %w", err))
			c.enqueue(Message{Source: SourceFeed, Event: EventError, Err: err})
		} else {
			c.mu.Lock()
			c.feedOpen = true
			c.mu.Unlock()
			c.enqueue(Message{Source: SourceFeed, Event: EventOpen})
			c.readers.Add(1)
			go c.feedLoop()
		}
	}

	go func() {
		c.readers.Wait()
		close(c.done)
	}()

	return errors.Join(errs...)
}

func (c *Client) receiveLoop() {
	defer c.readers.Done()
	for {
		data, err := c.conn.Receive()
		if err != nil {
			if errors.Is(err, transport.ErrClosed) {
				c.enqueue(Message{Source: SourceTransport, Event: EventClose, Err: err})
			} else {
				c.enqueue(Message{Source: SourceTransport, Event: EventError, Err: err})
			}
			return
		}

		c.enqueue(Message{Source: SourceTransport, Event: EventMessage, Data: string(data)})
	}
}

func (c *Client) feedLoop() {
	defer c.readers.Done()
	for {
		ev, err := c.feed.Next()
		if err != nil {
			// An EventSource reports every end of stream as an error.
			c.enqueue(Message{Source: SourceFeed, Event: EventError, Err: err})
			return
		}

		c.enqueue(Message{Source: SourceFeed, Event: Event(ev.Type), Data: ev.Data})
	}
}

func (c *Client) enqueue(msg Message) {
	select {
	case c.inbox <- msg:
	case <-c.stop:
	}
}

// Run dispatches queued messages until ctx ends, the client is closed, or
// both channels have finished and every message was handled.
func (c *Client) Run(ctx context.Context) error {
	c.mu.RLock()
	started := c.started
	c.mu.RUnlock()
	if !started {
		return fmt.Errorf("socket: run before connect: %w", ErrConnectionClosed)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stop:
			return nil
		case msg := <-c.inbox:
			c.dispatch(msg)
		case <-c.done:
			for {
				select {
				case msg := <-c.inbox:
					c.dispatch(msg)
				default:
					return nil
				}
			}
		}
	}
}

func (c *Client) dispatch(msg Message) {
	table := c.Bindings()
	if n := table.Dispatch(msg); n == 0 {
		debug.Printf("Client %s: no binding for %s/%s", c.id, msg.Source, msg.Event)
	}
}

// Send writes one text message on the transport.
func (c *Client) Send(text string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.conn == nil {
		return ErrNoTransport
	}
	if !c.connOpen {
		return ErrConnectionClosed
	}

	return c.conn.Send([]byte(text))
}

// IsConnected reports whether the transport is open.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.connOpen
}

// CloseTransport tears the transport down. It is safe to call repeatedly.
func (c *Client) CloseTransport() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connOpen {
		return nil
	}
	c.connOpen = false
	return c.conn.Close()
}

// CloseFeed tears the feed down. It is safe to call repeatedly.
func (c *Client) CloseFeed() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.feedOpen {
		return nil
	}
	c.feedOpen = false
	return c.feed.Close()
}

func (c *Client) setStatus(status string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.status = status
}

// Status returns the last status string set by the wiring.
func (c *Client) Status() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.status
}

// Close stops dispatching and closes both channels.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.stop)
	})
	return errors.Join(c.CloseTransport(), c.CloseFeed())
}
