package httpmiddleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func requestFrom(remote string, headers map[string]string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if remote != "" {
		req.RemoteAddr = remote
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req
}

func TestRateLimit(t *testing.T) {
	tests := []struct {
		name     string
		cfg      RateLimitConfig
		requests []*http.Request
		want     []int
	}{
		{
			name: "under limit",
			cfg:  RateLimitConfig{Max: 3, Window: time.Minute},
			requests: []*http.Request{
				requestFrom("192.168.1.1:1", nil),
				requestFrom("192.168.1.1:2", nil),
				requestFrom("192.168.1.1:3", nil),
			},
			want: []int{200, 200, 200},
		},
		{
			name: "over limit",
			cfg:  RateLimitConfig{Max: 2, Window: time.Minute},
			requests: []*http.Request{
				requestFrom("10.0.0.1:1", nil),
				requestFrom("10.0.0.1:1", nil),
				requestFrom("10.0.0.1:1", nil),
			},
			want: []int{200, 200, 429},
		},
		{
			name: "clients are independent",
			cfg:  RateLimitConfig{Max: 1, Window: time.Minute},
			requests: []*http.Request{
				requestFrom("10.0.0.1:1", nil),
				requestFrom("10.0.0.2:1", nil),
				requestFrom("10.0.0.1:2", nil),
			},
			want: []int{200, 200, 429},
		},
		{
			name: "forwarded client wins over remote addr",
			cfg:  RateLimitConfig{Max: 1, Window: time.Minute},
			requests: []*http.Request{
				requestFrom("192.168.1.1:1", map[string]string{"X-Forwarded-For": "203.0.113.50, 70.41.3.18"}),
				requestFrom("192.168.1.2:1", map[string]string{"X-Forwarded-For": "203.0.113.50"}),
				requestFrom("192.168.1.2:1", map[string]string{"X-Real-IP": "198.51.100.7"}),
			},
			want: []int{200, 429, 200},
		},
		{
			name: "custom key",
			cfg: RateLimitConfig{Max: 1, Window: time.Minute, KeyFunc: func(r *http.Request) string {
				return r.Header.Get("X-API-Key")
			}},
			requests: []*http.Request{
				requestFrom("", map[string]string{"X-API-Key": "key-a"}),
				requestFrom("", map[string]string{"X-API-Key": "key-a"}),
				requestFrom("", map[string]string{"X-API-Key": "key-b"}),
			},
			want: []int{200, 429, 200},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := RateLimit(tt.cfg)(okHandler())
			for i, req := range tt.requests {
				w := httptest.NewRecorder()
				handler.ServeHTTP(w, req)
				assert.Equal(t, tt.want[i], w.Code, "request %d", i+1)
				assert.Equal(t, strconv.Itoa(tt.cfg.Max), w.Header().Get("X-RateLimit-Limit"))
				assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
			}
		})
	}
}

func TestRateLimit_RejectionBody(t *testing.T) {
	handler := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute})(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("10.0.0.1:1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("10.0.0.1:1", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	retry, err := strconv.Atoi(w.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.InDelta(t, 60, retry, 1)

	var body struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, 429, body.Code)
	assert.Equal(t, "rate limit exceeded", body.Message)
}

func TestRateLimiter_Refill(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{Max: 2, Window: time.Second})
	now := time.Now()

	_, _, _, ok := rl.allow("k", now)
	require.True(t, ok)
	_, _, _, ok = rl.allow("k", now)
	require.True(t, ok)
	_, _, wait, ok := rl.allow("k", now)
	require.False(t, ok)
	assert.InDelta(t, 500*time.Millisecond, wait, float64(10*time.Millisecond))

	remaining, _, _, ok := rl.allow("k", now.Add(600*time.Millisecond))
	assert.True(t, ok, "one token refills every half second")
	assert.Zero(t, remaining)
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{Max: 1, Window: time.Minute})
	now := time.Now()

	rl.allow("stale", now.Add(-2*time.Minute))
	rl.allow("fresh", now)
	rl.cleanup(now)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.visitors, "stale")
	assert.Contains(t, rl.visitors, "fresh")
}
