package transport

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kleeedolinux/devsettings/debug"
)

// MaxLineSize is the longest stream line accepted. A longer line ends the
// stream with bufio.ErrTooLong.
const MaxLineSize = 1 << 20

// Event is one dispatched Server-Sent Event.
type Event struct {
	Type  string
	Data  string
	ID    string
	Retry time.Duration
}

// EventSource reads a text/event-stream over a single GET. It never
// reconnects: once the stream ends, Next keeps returning an error.
type EventSource struct {
	mu        sync.Mutex
	client    *http.Client
	url       string
	headers   http.Header
	connected bool
	body      io.ReadCloser
	scanner   *bufio.Scanner
	lastID    string
	started   bool

	ctx        context.Context
	cancelFunc context.CancelFunc
}

type EventSourceOption func(*EventSource)

func WithEventSourceHeaders(headers http.Header) EventSourceOption {
	return func(s *EventSource) {
		for k, v := range headers {
			s.headers[k] = v
		}
	}
}

func WithHTTPClient(client *http.Client) EventSourceOption {
	return func(s *EventSource) {
		if client != nil {
			s.client = client
		}
	}
}

func NewEventSource(url string, opts ...EventSourceOption) *EventSource {
	s := &EventSource{
		client:  &http.Client{},
		url:     url,
		headers: make(http.Header),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *EventSource) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return nil
	}

	childCtx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(childCtx, http.MethodGet, s.url, nil)
	if err != nil {
		cancel()
		return fmt.Errorf("transport: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	for k, values := range s.headers {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}

	debug.Printf("EventSource: Connecting to %s", s.url)
	resp, err := s.client.Do(req)
	if err != nil {
		cancel()
		return fmt.Errorf("transport: connect %s: %w", s.url, err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return fmt.Errorf("transport: connect %s: %s", s.url, resp.Status)
	}
	if mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err != nil || mediaType != "text/event-stream" {
		resp.Body.Close()
		cancel()
		return fmt.Errorf("transport: connect %s: unexpected content type %q", s.url, resp.Header.Get("Content-Type"))
	}

	s.ctx = childCtx
	s.cancelFunc = cancel
	s.body = resp.Body
	s.scanner = bufio.NewScanner(resp.Body)
	s.scanner.Buffer(make([]byte, 0, 4096), MaxLineSize)
	s.scanner.Split(scanStreamLines())
	s.connected = true

	return nil
}

// Next blocks until the next event is dispatched. Comment lines such as
// keepalives are consumed silently.
func (s *EventSource) Next() (Event, error) {
	s.mu.Lock()
	scanner := s.scanner
	connected := s.connected
	s.mu.Unlock()

	if !connected || scanner == nil {
		return Event{}, ErrClosed
	}

	var (
		eventType string
		data      strings.Builder
		hasData   bool
		retry     time.Duration
	)

	for scanner.Scan() {
		line := scanner.Text()
		if !s.started {
			s.started = true
			line = strings.TrimPrefix(line, "\uFEFF")
		}

		if line == "" {
			if !hasData {
				eventType = ""
				continue
			}
			ev := Event{
				Type:  eventType,
				Data:  strings.TrimSuffix(data.String(), "\n"),
				ID:    s.lastEventID(),
				Retry: retry,
			}
			if ev.Type == "" {
				ev.Type = "message"
			}
			debug.Printf("EventSource: %s %q", ev.Type, ev.Data)
			return ev, nil
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "event":
			eventType = value
		case "data":
			data.WriteString(value)
			data.WriteByte('\n')
			hasData = true
		case "id":
			if !strings.ContainsRune(value, 0) {
				s.setLastEventID(value)
			}
		case "retry":
			if ms, err := strconv.Atoi(value); err == nil && ms >= 0 {
				retry = time.Duration(ms) * time.Millisecond
			}
		}
	}

	if err := scanner.Err(); err != nil {
		s.mu.Lock()
		closedLocally := !s.connected
		s.mu.Unlock()
		if closedLocally {
			return Event{}, fmt.Errorf("%w: %v", ErrClosed, err)
		}
		return Event{}, fmt.Errorf("transport: read stream: %w", err)
	}
	return Event{}, fmt.Errorf("%w: stream ended", ErrClosed)
}

// scanStreamLines splits on CRLF, LF or a lone CR. A CR at the end of the
// buffered data ends the line at once; a LF arriving next is skipped.
func scanStreamLines() bufio.SplitFunc {
	var skipLF bool
	return func(data []byte, atEOF bool) (int, []byte, error) {
		start := 0
		if skipLF && len(data) > 0 {
			skipLF = false
			if data[0] == '\n' {
				start = 1
			}
		}

		if i := bytes.IndexAny(data[start:], "\r\n"); i >= 0 {
			i += start
			if data[i] == '\r' {
				if i+1 == len(data) {
					skipLF = true
				} else if data[i+1] == '\n' {
					return i + 2, data[start:i], nil
				}
			}
			return i + 1, data[start:i], nil
		}
		if atEOF && len(data) > start {
			return len(data), data[start:], nil
		}
		return start, nil, nil
	}
}

func (s *EventSource) lastEventID() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastID
}

func (s *EventSource) setLastEventID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastID = id
}

func (s *EventSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return nil
	}

	debug.Printf("EventSource: Closing stream")
	s.connected = false
	s.cancelFunc()
	return s.body.Close()
}
