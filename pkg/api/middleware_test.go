package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withTrustedProxies(proxies ...string) envOption {
	return func(_ *Deps, o *Options) {
		o.TrustedProxies = proxies
	}
}

func TestClientIP(t *testing.T) {
	proxies, err := parseTrustedProxies([]string{"10.0.0.0/8", "192.168.1.5"})
	require.NoError(t, err)

	tests := []struct {
		name   string
		remote string
		xff    string
		xri    string
		want   string
	}{
		{"direct peer", "203.0.113.9:5100", "", "", "203.0.113.9"},
		{"untrusted peer cannot forward", "203.0.113.9:5100", "198.51.100.1", "198.51.100.2", "203.0.113.9"},
		{"trusted proxy forwards", "10.1.2.3:443", "198.51.100.1", "", "198.51.100.1"},
		{"rightmost untrusted hop wins", "10.1.2.3:443", "1.1.1.1, 198.51.100.1, 10.9.9.9", "", "198.51.100.1"},
		{"bare address proxy", "192.168.1.5:80", "198.51.100.7", "", "198.51.100.7"},
		{"real ip fallback", "10.1.2.3:443", "", "198.51.100.3", "198.51.100.3"},
		{"garbage header ignored", "10.1.2.3:443", "not-an-ip", "", "10.1.2.3"},
		{"only proxies in chain", "10.1.2.3:443", "10.4.4.4", "", "10.1.2.3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/posts", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}
			assert.Equal(t, tt.want, proxies.clientIP(r))
		})
	}
}

func TestParseTrustedProxiesRejectsGarbage(t *testing.T) {
	_, err := parseTrustedProxies([]string{"10.0.0.0/33"})
	assert.Error(t, err)
	_, err = parseTrustedProxies([]string{"proxy.internal"})
	assert.Error(t, err)

	proxies, err := parseTrustedProxies([]string{"", " ::1 "})
	require.NoError(t, err)
	assert.True(t, proxies.contains("::1"))
}

func postFrom(t *testing.T, env *testEnv, forwardedFor string) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, env.ts.URL+"/api/posts", strings.NewReader(`{"content":"report"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", forwardedFor)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func TestRateLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	env := newTestEnv(t, withRateLimit(0.001, 1))

	assert.Equal(t, http.StatusCreated, postFrom(t, env, "198.51.100.1"))
	assert.Equal(t, http.StatusTooManyRequests, postFrom(t, env, "198.51.100.2"))
}

func TestRateLimitBehindTrustedProxy(t *testing.T) {
	env := newTestEnv(t, withRateLimit(0.001, 1), withTrustedProxies("127.0.0.1", "::1"))

	assert.Equal(t, http.StatusCreated, postFrom(t, env, "198.51.100.1"))
	assert.Equal(t, http.StatusCreated, postFrom(t, env, "198.51.100.2"))
	assert.Equal(t, http.StatusTooManyRequests, postFrom(t, env, "198.51.100.1"))
}

func TestRequestID(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/posts", "", nil)
	assert.Len(t, resp.Header.Get("X-Request-ID"), 36)

	req, err := http.NewRequest(http.MethodGet, env.ts.URL+"/api/zones", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "trace-42")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "trace-42", resp.Header.Get("X-Request-ID"))
}
