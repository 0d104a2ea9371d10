package metadata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func runMiddleware(t *testing.T, cfg *Config, remoteAddr string, headers map[string]string) context.Context {
	t.Helper()

	var capturedCtx context.Context
	handler := NewMiddleware(cfg).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedCtx = r.Context()
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.RemoteAddr = remoteAddr
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	handler.ServeHTTP(httptest.NewRecorder(), req)
	return capturedCtx
}

func TestClientMetadataWithoutTrustedProxies(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		expectedIP string
		expectedUA string
	}{
		{
			name: "X-Forwarded-For from untrusted peer is ignored",
			headers: map[string]string{
				"X-Forwarded-For": "203.0.113.1, 198.51.100.1",
				"User-Agent":      "Mozilla/5.0",
			},
			remoteAddr: "192.168.1.1:12345",
			expectedIP: "192.168.1.1",
			expectedUA: "Mozilla/5.0",
		},
		{
			name: "X-Real-IP from untrusted peer is ignored",
			headers: map[string]string{
				"X-Real-IP":  "203.0.113.2",
				"User-Agent": "curl/7.64.1",
			},
			remoteAddr: "192.168.1.1:12345",
			expectedIP: "192.168.1.1",
			expectedUA: "curl/7.64.1",
		},
		{
			name:       "falls back to RemoteAddr",
			headers:    map[string]string{"User-Agent": "test-agent"},
			remoteAddr: "192.168.1.100:54321",
			expectedIP: "192.168.1.100",
			expectedUA: "test-agent",
		},
		{
			name:       "IPv6 RemoteAddr",
			headers:    map[string]string{},
			remoteAddr: "[::1]:8080",
			expectedIP: "::1",
			expectedUA: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := runMiddleware(t, DefaultConfig(), tt.remoteAddr, tt.headers)
			assert.Equal(t, tt.expectedIP, ClientIP(ctx))
			assert.Equal(t, tt.expectedUA, UserAgent(ctx))
		})
	}
}

func TestClientMetadataWithTrustedProxy(t *testing.T) {
	cfg := &Config{TrustedProxies: ParseTrustedProxies([]string{"10.0.0.0/8"})}

	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		expectedIP string
	}{
		{
			name:       "first XFF entry wins behind trusted proxy",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.1, 198.51.100.1"},
			remoteAddr: "10.0.0.5:12345",
			expectedIP: "203.0.113.1",
		},
		{
			name:       "X-Real-IP honored behind trusted proxy",
			headers:    map[string]string{"X-Real-IP": "203.0.113.2"},
			remoteAddr: "10.0.0.5:12345",
			expectedIP: "203.0.113.2",
		},
		{
			name:       "XFF from outside the trusted range is ignored",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.1"},
			remoteAddr: "172.16.0.1:12345",
			expectedIP: "172.16.0.1",
		},
		{
			name:       "garbage XFF falls back to peer address",
			headers:    map[string]string{"X-Forwarded-For": "not-an-ip"},
			remoteAddr: "10.0.0.5:12345",
			expectedIP: "10.0.0.5",
		},
		{
			name:       "oversized XFF falls back to peer address",
			headers:    map[string]string{"X-Forwarded-For": strings.Repeat("1", MaxXFFHeaderLength+1)},
			remoteAddr: "10.0.0.5:12345",
			expectedIP: "10.0.0.5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := runMiddleware(t, cfg, tt.remoteAddr, tt.headers)
			assert.Equal(t, tt.expectedIP, ClientIP(ctx))
		})
	}
}

func TestClientIPUnknownWithoutMiddleware(t *testing.T) {
	assert.Equal(t, "unknown", ClientIP(context.Background()))
	assert.Empty(t, UserAgent(context.Background()))
}

func TestParseTrustedProxiesSkipsInvalid(t *testing.T) {
	prefixes := ParseTrustedProxies([]string{"10.0.0.0/8", "garbage", " 192.168.0.0/16 "})
	assert.Len(t, prefixes, 2)
}
