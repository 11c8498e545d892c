package convertkit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func newTestClient(t *testing.T, server *httptest.Server, cfg Config) (*Client, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	cfg.BaseURL = server.URL
	return NewClient(server.Client(), newTestLogger(&buf), cfg), &buf
}

func TestNewClient_AppliesDefaults(t *testing.T) {
	var buf bytes.Buffer
	c := NewClient(http.DefaultClient, newTestLogger(&buf), Config{})

	if c.config.BaseURL != DefaultBaseURL {
		t.Errorf("BaseURL = %q, want %q", c.config.BaseURL, DefaultBaseURL)
	}
	if c.config.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", c.config.Timeout, DefaultTimeout)
	}
	if c.config.RatePerMinute != DefaultRatePerMinute {
		t.Errorf("RatePerMinute = %d, want %d", c.config.RatePerMinute, DefaultRatePerMinute)
	}
}

func TestClient_Subscribe_Unconfigured_SkipsAndSucceeds(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer server.Close()

	cases := []Config{
		{},
		{APIKey: "key-only"},
		{FormID: "form-only"},
	}
	for _, cfg := range cases {
		c, buf := newTestClient(t, server, cfg)

		res := c.Subscribe(context.Background(), "a@example.com", "A")
		if !res.Success {
			t.Errorf("cfg %+v: Success = false, want true", cfg)
		}
		if res.Error != "" {
			t.Errorf("cfg %+v: Error = %q, want empty", cfg, res.Error)
		}
		if !strings.Contains(buf.String(), "not configured") {
			t.Errorf("cfg %+v: expected warning log, got %s", cfg, buf.String())
		}
	}

	if atomic.LoadInt32(&calls) != 0 {
		t.Errorf("provider was called %d times, want 0", calls)
	}
}

func TestClient_Subscribe_SendsFormRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/v3/forms/12345/subscribe" {
			t.Errorf("path = %s, want /v3/forms/12345/subscribe", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}

		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}
		if body["api_key"] != "secret" || body["email"] != "a@example.com" || body["first_name"] != "Alice" {
			t.Errorf("body = %v", body)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"subscription":{"id":1}}`))
	}))
	defer server.Close()

	c, _ := newTestClient(t, server, Config{APIKey: "secret", FormID: "12345"})

	res := c.Subscribe(context.Background(), "a@example.com", "Alice")
	if !res.Success {
		t.Errorf("Success = false, Error = %q", res.Error)
	}
}

func TestClient_Subscribe_ErrorStatus_UsesMessageFromBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"Authorization Failed","message":"API Key not valid"}`))
	}))
	defer server.Close()

	c, buf := newTestClient(t, server, Config{APIKey: "bad", FormID: "1"})

	res := c.Subscribe(context.Background(), "a@example.com", "A")
	if res.Success {
		t.Fatal("Success = true, want false")
	}
	if res.Error != "API Key not valid" {
		t.Errorf("Error = %q, want %q", res.Error, "API Key not valid")
	}
	if !strings.Contains(buf.String(), `"http_status":401`) {
		t.Errorf("expected http_status in log, got %s", buf.String())
	}
}

func TestClient_Subscribe_ErrorStatus_FallsBackToErrorField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"Not Found"}`))
	}))
	defer server.Close()

	c, _ := newTestClient(t, server, Config{APIKey: "k", FormID: "missing"})

	res := c.Subscribe(context.Background(), "a@example.com", "A")
	if res.Success || res.Error != "Not Found" {
		t.Errorf("res = %+v, want failure with %q", res, "Not Found")
	}
}

func TestClient_Subscribe_ErrorStatus_UnparseableBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>bad gateway</html>"))
	}))
	defer server.Close()

	c, _ := newTestClient(t, server, Config{APIKey: "k", FormID: "1"})

	res := c.Subscribe(context.Background(), "a@example.com", "A")
	if res.Success {
		t.Fatal("Success = true, want false")
	}
	if res.Error != defaultErrorMessage {
		t.Errorf("Error = %q, want %q", res.Error, defaultErrorMessage)
	}
}

func TestClient_Subscribe_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	c, _ := newTestClient(t, server, Config{APIKey: "k", FormID: "1"})
	server.Close()

	res := c.Subscribe(context.Background(), "a@example.com", "A")
	if res.Success {
		t.Fatal("Success = true, want false")
	}
	if res.Error == "" {
		t.Error("expected transport error text")
	}
}

func TestClient_Subscribe_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	c, _ := newTestClient(t, server, Config{APIKey: "k", FormID: "1", Timeout: 50 * time.Millisecond})

	start := time.Now()
	res := c.Subscribe(context.Background(), "a@example.com", "A")
	if res.Success {
		t.Fatal("Success = true, want false")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Subscribe took %v, expected to be bounded by timeout", elapsed)
	}
}

// 1回だけ試行し、リトライしない
func TestClient_Subscribe_SingleAttempt(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c, _ := newTestClient(t, server, Config{APIKey: "k", FormID: "1"})
	c.Subscribe(context.Background(), "a@example.com", "A")

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("provider calls = %d, want 1", got)
	}
}

func TestClient_Subscribe_LocalThrottleExhausted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	// 1 req/min: 2回目はタイムアウト内に枠を確保できない
	c, _ := newTestClient(t, server, Config{APIKey: "k", FormID: "1", RatePerMinute: 1, Timeout: 50 * time.Millisecond})

	if res := c.Subscribe(context.Background(), "a@example.com", "A"); !res.Success {
		t.Fatalf("first call failed: %q", res.Error)
	}
	res := c.Subscribe(context.Background(), "b@example.com", "B")
	if res.Success {
		t.Fatal("second call Success = true, want false")
	}
}
