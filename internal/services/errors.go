// Package services defines the shared error taxonomy for the external
// providers the pipeline talks to.
//
// Three classes matter to callers:
//   - transient failures (retried in place, then reported per item),
//   - configuration/credential failures (abort the run immediately), and
//   - provider limit conditions (quota or account limits that make further
//     calls pointless; abort the run and report how to resume).
//
// Limit and auth conditions are typed errors matched with errors.As, never
// by string inspection.
package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrTransient     = errors.New("transient failure")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
)

// limitReasons are the provider detail codes that indicate an account-level
// condition no retry can fix within this run.
var limitReasons = map[string]struct{}{
	"insufficient_credits":  {},
	"quota_exceeded":        {},
	"rate_limit_exceeded":   {},
	"voice_limit_reached":   {},
	"subscription_required": {},
}

// KnownLimitReason reports whether a provider detail code names an
// account-limit condition.
func KnownLimitReason(reason string) bool {
	_, ok := limitReasons[strings.TrimSpace(strings.ToLower(reason))]
	return ok
}

// ProviderLimitError is a fatal account/quota condition from a provider.
// The orchestrator stops the whole run when it sees one.
type ProviderLimitError struct {
	Provider   string
	Reason     string
	StatusCode int
}

func (e *ProviderLimitError) Error() string {
	return fmt.Sprintf("%s provider limit: %s (http %d)", e.Provider, e.Reason, e.StatusCode)
}

// AsProviderLimit unwraps err into a ProviderLimitError if one is present.
func AsProviderLimit(err error) (*ProviderLimitError, bool) {
	var limitErr *ProviderLimitError
	if errors.As(err, &limitErr) {
		return limitErr, true
	}
	return nil, false
}

// AuthError is a credential failure (401/403) from a provider. It must abort
// the run: silently falling back would mask a broken key and burn the speech
// budget on low-quality fallback text.
type AuthError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("%s authentication failed: http %d: %s", e.Provider, e.StatusCode, body)
}

// IsFatal reports whether err must halt the entire run rather than being
// retried or skipped.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var limitErr *ProviderLimitError
	var authErr *AuthError
	return errors.As(err, &limitErr) || errors.As(err, &authErr) || errors.Is(err, ErrConfiguration)
}

// Wrap tags err with a sentinel marker and component/operation context.
func Wrap(marker error, component, operation string, err error) error {
	if marker == nil {
		marker = ErrTransient
	}
	detail := component
	if operation = strings.TrimSpace(operation); operation != "" {
		if detail != "" {
			detail += ": " + operation
		} else {
			detail = operation
		}
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}
