package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

type ErrorKind string

const (
	KindAuth    ErrorKind = "auth"
	KindQuota   ErrorKind = "quota"
	KindSafety  ErrorKind = "safety"
	KindTimeout ErrorKind = "timeout"
	KindUnknown ErrorKind = "unknown"
)

// ProviderError is a generation or embedding failure tagged with a category
// derived from the provider's error message.
type ProviderError struct {
	Kind ErrorKind
	Err  error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Message is the user-facing description, with the provider detail appended.
func (e *ProviderError) Message() string {
	var summary string
	switch e.Kind {
	case KindAuth:
		summary = "The AI provider rejected the credentials. Check the API key."
	case KindQuota:
		summary = "The AI provider quota or rate limit was exceeded. Try again later."
	case KindSafety:
		summary = "The AI provider blocked the response with its safety filter."
	case KindTimeout:
		summary = "The AI provider did not answer in time."
	default:
		summary = "The AI provider returned an error."
	}
	return fmt.Sprintf("%s (%v)", summary, e.Err)
}

var kindMarkers = []struct {
	kind    ErrorKind
	markers []string
}{
	{KindAuth, []string{"api key", "api_key", "apikey", "unauthorized", "401", "permission", "authentication", "invalid credentials"}},
	{KindQuota, []string{"quota", "429", "rate limit", "ratelimit", "resource exhausted", "resource_exhausted", "too many requests"}},
	{KindSafety, []string{"safety", "blocked", "content filter", "content_filter", "harm_category"}},
}

// Classify wraps err in a ProviderError. Already classified errors and nil
// pass through unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}

	return &ProviderError{Kind: kindOf(err), Err: err}
}

func kindOf(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	msg := strings.ToLower(err.Error())
	for _, km := range kindMarkers {
		for _, marker := range km.markers {
			if strings.Contains(msg, marker) {
				return km.kind
			}
		}
	}

	if strings.Contains(msg, "deadline exceeded") || strings.Contains(msg, "timeout") {
		return KindTimeout
	}
	return KindUnknown
}

// KindOf reports the category of err, KindUnknown for unclassified errors.
func KindOf(err error) ErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if err == nil {
		return ""
	}
	return kindOf(err)
}
