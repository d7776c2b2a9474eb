package transport_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"github.com/kleeedolinux/devsettings/internal/fakedevice"
	"github.com/kleeedolinux/devsettings/socket/transport"
)

func streamServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Check(t, is.Equal(r.Header.Get("Accept"), "text/event-stream"))
		w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func readAll(t *testing.T, s *transport.EventSource) ([]transport.Event, error) {
	t.Helper()
	var events []transport.Event
	for {
		ev, err := s.Next()
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
}

func TestEventSourceParsesStream(t *testing.T) {
	body := ": keepalive\n\n" +
		"event: message_changed\ndata:\n\n" +
		"data: line one\ndata: line two\nid: 7\nretry: 1500\n\n" +
		"event: ignored\n\n" +
		"data\n\n" +
		"event: message_changed\r\ndata: crlf\r\n\r\n" +
		"data: unterminated"

	srv := streamServer(t, body)
	s := transport.NewEventSource(srv.URL)
	assert.NilError(t, s.Connect(context.Background()))
	defer s.Close()

	events, err := readAll(t, s)
	assert.Check(t, is.ErrorIs(err, transport.ErrClosed))

	want := []transport.Event{
		{Type: "message_changed", Data: ""},
		{Type: "message", Data: "line one\nline two", ID: "7", Retry: 1500 * time.Millisecond},
		{Type: "message", Data: "", ID: "7"},
		{Type: "message_changed", Data: "crlf", ID: "7"},
	}
	if diff := cmp.Diff(want, events); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestEventSourceLineEndings(t *testing.T) {
	long := strings.Repeat("a", 70000)

	tests := []struct {
		name string
		body string
		want []transport.Event
	}{
		{
			name: "lone CR",
			body: "event: message_changed\rdata: cr\r\r",
			want: []transport.Event{{Type: "message_changed", Data: "cr"}},
		},
		{
			name: "byte order mark",
			body: "\uFEFFevent: message_changed\ndata: x\n\n",
			want: []transport.Event{{Type: "message_changed", Data: "x"}},
		},
		{
			name: "line longer than the default scanner buffer",
			body: "data: " + long + "\n\n",
			want: []transport.Event{{Type: "message", Data: long}},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := transport.NewEventSource(streamServer(t, tc.body).URL)
			assert.NilError(t, s.Connect(context.Background()))
			defer s.Close()

			events, err := readAll(t, s)
			assert.Check(t, is.ErrorIs(err, transport.ErrClosed))
			if diff := cmp.Diff(tc.want, events); diff != "" {
				t.Fatalf("events mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEventSourceRejectsBadResponses(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.NotFound(w, r)
			},
		},
		{
			name: "wrong content type",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				_, _ = io.WriteString(w, "<html>")
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			s := transport.NewEventSource(srv.URL)
			assert.Check(t, s.Connect(context.Background()) != nil)

			_, err := s.Next()
			assert.Check(t, is.ErrorIs(err, transport.ErrClosed))
		})
	}
}

func TestEventSourceWithDevice(t *testing.T) {
	dev := fakedevice.New(fakedevice.WithKeepalive(10 * time.Millisecond))
	srv := httptest.NewServer(dev)
	defer srv.Close()

	s := transport.NewEventSource(srv.URL + "/events")
	assert.NilError(t, s.Connect(context.Background()))
	defer s.Close()

	ev, err := s.Next()
	assert.NilError(t, err)
	assert.Check(t, is.Equal(ev.Type, "message_changed"))
	assert.Check(t, is.Equal(ev.Data, ""))

	dev.Publish("flashing")
	ev, err = s.Next()
	assert.NilError(t, err)
	assert.Check(t, is.DeepEqual(ev, transport.Event{Type: "message_changed", Data: "flashing"}))
}

func TestEventSourceCloseUnblocksNext(t *testing.T) {
	dev := fakedevice.New(fakedevice.WithKeepalive(time.Hour))
	srv := httptest.NewServer(dev)
	defer srv.Close()

	s := transport.NewEventSource(srv.URL + "/events")
	assert.NilError(t, s.Connect(context.Background()))
	_, err := s.Next()
	assert.NilError(t, err)

	errs := make(chan error, 1)
	go func() {
		_, err := s.Next()
		errs <- err
	}()

	time.Sleep(20 * time.Millisecond)
	assert.NilError(t, s.Close())

	select {
	case err := <-errs:
		assert.Check(t, err != nil)
		assert.Check(t, !errors.Is(err, io.EOF))
	case <-time.After(5 * time.Second):
		t.Fatal("Next did not return after Close")
	}
}
