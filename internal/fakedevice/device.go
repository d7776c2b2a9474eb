// Package fakedevice is an in-process stand-in for the device's web server.
// It echoes WebSocket frames on "ws", streams "message_changed" events on
// "events" and records whatever is posted to "settings".
package fakedevice

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/containerd/log"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// MaxMessageLen is the longest status message the device keeps; longer
// messages are cut at a rune boundary.
const MaxMessageLen = 128

// Settings is one decoded settings POST.
type Settings struct {
	SSID       string `json:"ssid"`
	Passphrase string `json:"psw"`
	Hostname   string `json:"hostname"`
}

type Device struct {
	mu        sync.Mutex
	router    *mux.Router
	upgrader  websocket.Upgrader
	keepalive time.Duration
	status    int
	prefix    string

	settings    []Settings
	posted      chan Settings
	subscribers map[chan string]struct{}
	conns       map[*echoConn]struct{}
}

type Option func(*Device)

// WithKeepalive sets how often an idle event stream gets a comment line.
func WithKeepalive(d time.Duration) Option {
	return func(dev *Device) {
		dev.keepalive = d
	}
}

// WithSettingsStatus makes the settings endpoint answer with code.
func WithSettingsStatus(code int) Option {
	return func(dev *Device) {
		dev.status = code
	}
}

// WithPathPrefix mounts the device below prefix, e.g. "/setup".
func WithPathPrefix(prefix string) Option {
	return func(dev *Device) {
		dev.prefix = prefix
	}
}

func New(opts ...Option) *Device {
	d := &Device{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			Subprotocols:    []string{"echo"},
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		keepalive:   10 * time.Second,
		status:      http.StatusOK,
		posted:      make(chan Settings, 16),
		subscribers: make(map[chan string]struct{}),
		conns:       make(map[*echoConn]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}

	r := mux.NewRouter()
	sub := r
	if d.prefix != "" {
		sub = r.PathPrefix(d.prefix).Subrouter()
	}
	sub.Path("/").Methods(http.MethodGet).HandlerFunc(d.handleIndex)
	sub.Path("/ws").Methods(http.MethodGet).HandlerFunc(d.handleWebSocket)
	sub.Path("/events").Methods(http.MethodGet).HandlerFunc(d.handleEvents)
	sub.Path("/settings").Methods(http.MethodPost).HandlerFunc(d.handleSettings)
	d.router = r

	return d
}

func (d *Device) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.router.ServeHTTP(w, r)
}

// Publish pushes a new status message to every open event stream. Like
// the device, a slow reader only ever sees the latest message.
func (d *Device) Publish(msg string) {
	msg = truncate(msg, MaxMessageLen)

	d.mu.Lock()
	defer d.mu.Unlock()

	for ch := range d.subscribers {
		select {
		case <-ch:
		default:
		}
		ch <- msg
	}
}

// Subscribers reports how many event streams are open.
func (d *Device) Subscribers() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.subscribers)
}

// Settings returns every settings POST received so far.
func (d *Device) Settings() []Settings {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]Settings(nil), d.settings...)
}

// Posted yields each settings POST as it arrives.
func (d *Device) Posted() <-chan Settings {
	return d.posted
}

// CloseSockets ends every echo connection with a normal closure frame.
func (d *Device) CloseSockets() {
	for _, c := range d.takeConns() {
		c.Close()
	}
}

// DropSockets tears every echo connection down without a closing
// handshake, the way a device reboot would.
func (d *Device) DropSockets() {
	for _, c := range d.takeConns() {
		c.Drop()
	}
}

func (d *Device) takeConns() []*echoConn {
	d.mu.Lock()
	defer d.mu.Unlock()

	conns := make([]*echoConn, 0, len(d.conns))
	for c := range d.conns {
		conns = append(conns, c)
	}
	return conns
}

func (d *Device) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, "<!doctype html><title>device</title>")
}

func (d *Device) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := d.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.G(r.Context()).WithError(err).Debug("fakedevice: websocket upgrade failed")
		return
	}

	c := newEchoConn(conn)
	d.mu.Lock()
	d.conns[c] = struct{}{}
	d.mu.Unlock()

	c.serve()

	d.mu.Lock()
	delete(d.conns, c)
	d.mu.Unlock()
}

func (d *Device) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch := make(chan string, 1)
	d.mu.Lock()
	d.subscribers[ch] = struct{}{}
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		delete(d.subscribers, ch)
		d.mu.Unlock()
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, "message_changed", ""); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(d.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg := <-ch:
			if err := writeEvent(w, "message_changed", msg); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := io.WriteString(w, ":\n\n"); err != nil {
				return
			}
		}
		flusher.Flush()
	}
}

func (d *Device) handleSettings(w http.ResponseWriter, r *http.Request) {
	var s Settings
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		http.Error(w, fmt.Sprintf("bad settings: %v", err), http.StatusBadRequest)
		return
	}

	d.mu.Lock()
	d.settings = append(d.settings, s)
	status := d.status
	d.mu.Unlock()

	select {
	case d.posted <- s:
	default:
	}

	w.WriteHeader(status)
	_, _ = io.WriteString(w, http.StatusText(status))
}

var lineBreaks = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// writeEvent frames data as one data line per line of text.
func writeEvent(w io.Writer, event, data string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "event: %s\n", event)
	for _, line := range strings.Split(lineBreaks.Replace(data), "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteString("\n")
	_, err := io.WriteString(w, b.String())
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
