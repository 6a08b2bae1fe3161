package metadata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"lifeline/pkg/requestcontext"
)

func TestClientIPFromRequest(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		want       string
	}{
		{
			name:       "first forwarded hop wins",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1", "X-Real-IP": "198.51.100.2"},
			remoteAddr: "10.0.0.9:443",
			want:       "203.0.113.7",
		},
		{
			name:       "real ip used when forwarded-for missing",
			headers:    map[string]string{"X-Real-IP": " 198.51.100.2 "},
			remoteAddr: "10.0.0.9:443",
			want:       "198.51.100.2",
		},
		{
			name:       "cloudflare header after real ip",
			headers:    map[string]string{"CF-Connecting-IP": "192.0.2.44"},
			remoteAddr: "10.0.0.9:443",
			want:       "192.0.2.44",
		},
		{
			name:       "blank forwarded value falls through",
			headers:    map[string]string{"X-Forwarded-For": " , 10.0.0.1", "X-Real-IP": "198.51.100.2"},
			remoteAddr: "10.0.0.9:443",
			want:       "198.51.100.2",
		},
		{
			name:       "remote address host without port",
			remoteAddr: "[2001:db8::1]:8080",
			want:       "2001:db8::1",
		},
		{
			name:       "nothing resolvable is the shared unknown bucket",
			remoteAddr: "",
			want:       UnknownClient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/services/submissions", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIPFromRequest(req))
		})
	}
}

func TestClientMetadataMiddleware(t *testing.T) {
	var got string
	h := ClientMetadata(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetClientIP(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "203.0.113.7", got)
	assert.Equal(t, UnknownClient, GetClientIP(context.Background()))
}

func TestDeviceFromUserAgent(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		contains []string
		exact    string
	}{
		{
			name:  "missing header",
			raw:   "  ",
			exact: "",
		},
		{
			name:  "crawler",
			raw:   "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
			exact: "bot",
		},
		{
			name:     "desktop browser",
			raw:      "Mozilla/5.0 (X11; Linux x86_64; rv:120.0) Gecko/20100101 Firefox/120.0",
			contains: []string{"Firefox on ", "Linux"},
		},
		{
			name: "phone browser",
			raw: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 " +
				"(KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
			contains: []string{"Safari on ", "(mobile)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeviceFromUserAgent(tt.raw)
			if tt.contains == nil {
				assert.Equal(t, tt.exact, got)
				return
			}
			for _, want := range tt.contains {
				assert.Contains(t, got, want)
			}
		})
	}
}

func TestClientMetadataMiddleware_RecordsDevice(t *testing.T) {
	var device, raw string
	h := ClientMetadata(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		device = requestcontext.ClientDevice(r.Context())
		raw = requestcontext.UserAgent(r.Context())
	}))

	ua := "Mozilla/5.0 (X11; Linux x86_64; rv:120.0) Gecko/20100101 Firefox/120.0"
	req := httptest.NewRequest(http.MethodPost, "/v1/services/submissions", nil)
	req.Header.Set("User-Agent", ua)
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, ua, raw)
	assert.Equal(t, DeviceFromUserAgent(ua), device)
	assert.Empty(t, requestcontext.ClientDevice(context.Background()))
}
