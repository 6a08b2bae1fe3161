package metadata

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"lifeline/pkg/requestcontext"
)

// UnknownClient is the shared bucket for callers whose address cannot be
// resolved. Every unidentifiable caller lands in it, so they still share a
// budget.
const UnknownClient = "unknown"

// forwardedHeaders are consulted in order; the first non-empty value wins.
var forwardedHeaders = []string{
	"X-Forwarded-For",
	"X-Real-IP",
	"CF-Connecting-IP",
}

// ClientMetadata extracts client IP address and User-Agent from the request
// and adds them to the context for use by handlers and services.
// This middleware should be applied early in the chain.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("User-Agent")
		ctx := requestcontext.WithClientMetadata(r.Context(), ClientIPFromRequest(r), raw)
		ctx = requestcontext.WithClientDevice(ctx, DeviceFromUserAgent(raw))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetClientIP retrieves the client IP address from the context, falling back
// to UnknownClient when the middleware did not run.
func GetClientIP(ctx context.Context) string {
	if ip := requestcontext.ClientIP(ctx); ip != "" {
		return ip
	}
	return UnknownClient
}

// ClientIPFromRequest resolves a best-effort caller address: forwarded
// headers in priority order, then the connection's remote host, then
// UnknownClient.
func ClientIPFromRequest(r *http.Request) string {
	for _, h := range forwardedHeaders {
		v := r.Header.Get(h)
		if v == "" {
			continue
		}
		// X-Forwarded-For is "client, proxy1, proxy2"; the first hop is the client.
		if idx := strings.Index(v, ","); idx != -1 {
			v = v[:idx]
		}
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}

	if addr := strings.TrimSpace(r.RemoteAddr); addr != "" {
		if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
			return host
		}
		return addr
	}

	return UnknownClient
}

// DeviceFromUserAgent reduces a User-Agent header to the short label kept on
// audit events: "bot", or the browser and OS with a mobile marker. An empty
// header yields an empty label.
func DeviceFromUserAgent(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	ua := useragent.New(raw)
	if ua.Bot() {
		return "bot"
	}
	device, _ := ua.Browser()
	if device == "" {
		device = "unknown"
	}
	if os := ua.OS(); os != "" {
		device += " on " + os
	}
	if ua.Mobile() {
		device += " (mobile)"
	}
	return device
}
