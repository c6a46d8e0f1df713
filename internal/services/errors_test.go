package services

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestKnownLimitReason(t *testing.T) {
	for _, reason := range []string{
		"insufficient_credits", "quota_exceeded", "rate_limit_exceeded",
		"voice_limit_reached", "subscription_required", " Quota_Exceeded ",
	} {
		if !KnownLimitReason(reason) {
			t.Errorf("KnownLimitReason(%q) = false", reason)
		}
	}
	for _, reason := range []string{"", "server_error", "invalid_api_key"} {
		if KnownLimitReason(reason) {
			t.Errorf("KnownLimitReason(%q) = true", reason)
		}
	}
}

func TestAsProviderLimitUnwraps(t *testing.T) {
	limit := &ProviderLimitError{Provider: "speech", Reason: "quota_exceeded", StatusCode: 402}
	wrapped := fmt.Errorf("render lion: %w", limit)

	got, ok := AsProviderLimit(wrapped)
	if !ok || got.Reason != "quota_exceeded" {
		t.Fatalf("AsProviderLimit = %v, %v", got, ok)
	}
	if _, ok := AsProviderLimit(errors.New("plain")); ok {
		t.Error("plain error matched as provider limit")
	}
}

func TestIsFatal(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"provider limit", &ProviderLimitError{Provider: "speech", Reason: "insufficient_credits"}, true},
		{"wrapped auth", fmt.Errorf("call: %w", &AuthError{Provider: "textgen", StatusCode: 401}), true},
		{"configuration", Wrap(ErrConfiguration, "textgen", "missing api key", nil), true},
		{"transient", Wrap(ErrTransient, "speech", "http 502", nil), false},
		{"plain", errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsFatal(tc.err); got != tc.want {
				t.Errorf("IsFatal = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestAuthErrorTruncatesBody(t *testing.T) {
	err := &AuthError{Provider: "speech", StatusCode: 403, Body: strings.Repeat("x", 500)}
	msg := err.Error()
	if len(msg) > 300 {
		t.Errorf("message too long: %d chars", len(msg))
	}
	if !strings.Contains(msg, "http 403") {
		t.Errorf("message missing status: %q", msg)
	}
}

func TestWrapKeepsMarker(t *testing.T) {
	base := errors.New("connection refused")
	err := Wrap(ErrTransient, "speech", "render", base)
	if !errors.Is(err, ErrTransient) {
		t.Error("marker lost")
	}
	if !errors.Is(err, base) {
		t.Error("cause lost")
	}
	if err := Wrap(nil, "speech", "render", nil); !errors.Is(err, ErrTransient) {
		t.Error("nil marker should default to transient")
	}
}
