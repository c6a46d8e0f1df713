package textgen

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"menagerie/internal/services"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(
		Config{APIKey: "test-key", BaseURL: server.URL, Model: "test-model"},
		WithRetry(3, 10*time.Millisecond, 100*time.Millisecond),
		WithSleeper(func(time.Duration) {}),
	)
}

func TestCompleteJSONReturnsContent(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"{\"lion\":\"ok\"}"}}]}`))
	})

	content, err := client.CompleteJSON(context.Background(), Request{
		System: "system prompt",
		Users:  []string{"user prompt"},
	})
	if err != nil {
		t.Fatalf("CompleteJSON: %v", err)
	}
	if content != `{"lion":"ok"}` {
		t.Errorf("content = %q", content)
	}
}

func TestCompleteJSONRetriesRateLimit(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"done"}}]}`))
	}))
	defer server.Close()

	var slept []time.Duration
	client := NewClient(
		Config{APIKey: "test-key", BaseURL: server.URL, Model: "test-model"},
		WithRetry(3, 10*time.Millisecond, 5*time.Second),
		WithSleeper(func(d time.Duration) { slept = append(slept, d) }),
	)

	content, err := client.CompleteJSON(context.Background(), Request{System: "s", Users: []string{"u"}})
	if err != nil {
		t.Fatalf("CompleteJSON: %v", err)
	}
	if content != "done" {
		t.Errorf("content = %q", content)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if len(slept) != 2 {
		t.Fatalf("sleeps = %d, want 2", len(slept))
	}
	if slept[0] != time.Second {
		t.Errorf("first delay = %v, want Retry-After 1s", slept[0])
	}
}

func TestCompleteJSONAuthFailureIsNotRetried(t *testing.T) {
	calls := 0
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key"}}`))
	})

	_, err := client.CompleteJSON(context.Background(), Request{System: "s", Users: []string{"u"}})
	var authErr *services.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("err = %v, want AuthError", err)
	}
	if authErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d", authErr.StatusCode)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestCompleteJSONExhaustsRetryBudget(t *testing.T) {
	calls := 0
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.CompleteJSON(context.Background(), Request{System: "s", Users: []string{"u"}})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestCompleteJSONRequiresAPIKey(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://localhost", Model: "m"})
	_, err := client.CompleteJSON(context.Background(), Request{System: "s", Users: []string{"u"}})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
}

func TestDecodeJSONStripsCodeFence(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{"plain", `{"lion": "I'm a Lion."}`},
		{"fenced", "```json\n{\"lion\": \"I'm a Lion.\"}\n```"},
		{"bare fence", "```\n{\"lion\": \"I'm a Lion.\"}\n```"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var out map[string]string
			if err := DecodeJSON(tc.input, &out); err != nil {
				t.Fatalf("DecodeJSON: %v", err)
			}
			if out["lion"] != "I'm a Lion." {
				t.Errorf("lion = %q", out["lion"])
			}
		})
	}
}

func TestDecodeJSONRejectsGarbage(t *testing.T) {
	var out map[string]string
	if err := DecodeJSON("not json at all", &out); err == nil {
		t.Fatal("expected decode error")
	}
}
