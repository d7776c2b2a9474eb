package endpoint

import (
	"testing"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		page     string
		ws       string
		events   string
		settings string
	}{
		{
			name:     "root page",
			page:     "http://192.168.1.1/",
			ws:       "ws://192.168.1.1/ws",
			events:   "http://192.168.1.1/events",
			settings: "http://192.168.1.1/settings",
		},
		{
			name:     "host without path",
			page:     "http://esp-device.local",
			ws:       "ws://esp-device.local/ws",
			events:   "http://esp-device.local/events",
			settings: "http://esp-device.local/settings",
		},
		{
			name:     "secure page in a sub directory",
			page:     "https://example.test:8443/admin/index.html?tab=wifi",
			ws:       "wss://example.test:8443/admin/ws",
			events:   "https://example.test:8443/admin/events",
			settings: "https://example.test:8443/admin/settings",
		},
		{
			name:     "directory page keeps its directory",
			page:     "http://10.0.0.7/setup/",
			ws:       "ws://10.0.0.7/setup/ws",
			events:   "http://10.0.0.7/setup/events",
			settings: "http://10.0.0.7/setup/settings",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse(tc.page)
			assert.NilError(t, err)
			assert.Check(t, is.Equal(got.WebSocket.String(), tc.ws))
			assert.Check(t, is.Equal(got.Events.String(), tc.events))
			assert.Check(t, is.Equal(got.Settings.String(), tc.settings))
		})
	}
}

func TestParseRejects(t *testing.T) {
	for _, raw := range []string{"ftp://device/", "http://", "::not a url", "/relative/only"} {
		_, err := Parse(raw)
		assert.Check(t, err != nil, "expected error for %q", raw)
	}
}
