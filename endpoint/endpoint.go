// Package endpoint derives the device's channel and form endpoints from the
// URL of its configuration page.
package endpoint

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	WebSocketPath = "ws"
	EventsPath    = "events"
	SettingsPath  = "settings"
)

// Endpoints are the three URLs a configuration page talks to.
type Endpoints struct {
	Page      *url.URL
	WebSocket *url.URL
	Events    *url.URL
	Settings  *url.URL
}

// Parse resolves endpoints from a raw page URL.
func Parse(raw string) (Endpoints, error) {
	page, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Endpoints{}, fmt.Errorf("endpoint: invalid page url %q: %w", raw, err)
	}
	return Resolve(page)
}

// Resolve derives the endpoints the way a page loaded from page would: the
// socket lives next to the page under "ws" with the scheme switched to
// ws/wss, and "events" and "settings" are relative references.
func Resolve(page *url.URL) (Endpoints, error) {
	if page == nil {
		return Endpoints{}, fmt.Errorf("endpoint: page url is required")
	}
	var wsScheme string
	switch strings.ToLower(page.Scheme) {
	case "https":
		wsScheme = "wss"
	case "http":
		wsScheme = "ws"
	default:
		return Endpoints{}, fmt.Errorf("endpoint: unsupported page scheme %q", page.Scheme)
	}
	if page.Host == "" {
		return Endpoints{}, fmt.Errorf("endpoint: page url %q has no host", page.String())
	}

	dir := page.Path
	if idx := strings.LastIndex(dir, "/"); idx >= 0 {
		dir = dir[:idx+1]
	} else {
		dir = "/"
	}

	ws := &url.URL{
		Scheme: wsScheme,
		Host:   page.Host,
		Path:   dir + WebSocketPath,
	}

	return Endpoints{
		Page:      page,
		WebSocket: ws,
		Events:    page.ResolveReference(&url.URL{Path: EventsPath}),
		Settings:  page.ResolveReference(&url.URL{Path: SettingsPath}),
	}, nil
}
