package llmerrors

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassifyStatusCodes(t *testing.T) {
	cases := []struct {
		err  string
		want ErrorType
	}{
		{"request failed with status code: 401", ErrorTypeAuth},
		{"request failed with status code: 403", ErrorTypeAuth},
		{"request failed with status code: 429", ErrorTypeRateLimit},
		{"request failed with status code: 400", ErrorTypeBadPrompt},
		{"request failed with status code: 500", ErrorTypeTransient},
		{"request failed with status code: 503", ErrorTypeTransient},
	}
	for _, tc := range cases {
		got := Classify(errors.New(tc.err))
		if got.Type != tc.want {
			t.Errorf("Classify(%q) = %s, want %s", tc.err, got.Type, tc.want)
		}
	}
}

func TestClassifyStringPatterns(t *testing.T) {
	cases := []struct {
		err  string
		want ErrorType
	}{
		{"dial tcp: connection refused", ErrorTypeTransient},
		{"unexpected EOF", ErrorTypeTransient},
		{"read: connection reset by peer", ErrorTypeTransient},
		{"quota exceeded for this project", ErrorTypeRateLimit},
		{"invalid api key provided", ErrorTypeAuth},
		{"request body too large", ErrorTypeBadPrompt},
		{"something completely different", ErrorTypeUnknown},
	}
	for _, tc := range cases {
		got := Classify(errors.New(tc.err))
		if got.Type != tc.want {
			t.Errorf("Classify(%q) = %s, want %s", tc.err, got.Type, tc.want)
		}
	}
}

func TestClassifyContextErrors(t *testing.T) {
	if got := Classify(context.DeadlineExceeded); got.Type != ErrorTypeTransient {
		t.Errorf("deadline exceeded classified as %s", got.Type)
	}
	if got := Classify(context.Canceled); got.Type != ErrorTypeTransient {
		t.Errorf("canceled classified as %s", got.Type)
	}
}

func TestClassifyPassesThroughClassified(t *testing.T) {
	original := NewError(ErrorTypeRateLimit, "slow down")
	if got := Classify(original); got != original {
		t.Error("already-classified error was re-classified")
	}

	wrapped := fmt.Errorf("call failed: %w", original)
	if got := Classify(wrapped); got.Type != ErrorTypeRateLimit {
		t.Errorf("wrapped classified error lost its type: %s", got.Type)
	}
}

func TestClassifyNil(t *testing.T) {
	if Classify(nil) != nil {
		t.Error("Classify(nil) should be nil")
	}
}

func TestIsRetryable(t *testing.T) {
	retryable := []ErrorType{ErrorTypeRateLimit, ErrorTypeTransient, ErrorTypeEmptyResponse, ErrorTypeUnknown}
	for _, et := range retryable {
		if !NewError(et, "x").IsRetryable() {
			t.Errorf("%s should be retryable", et)
		}
	}

	for _, et := range []ErrorType{ErrorTypeAuth, ErrorTypeBadPrompt} {
		if NewError(et, "x").IsRetryable() {
			t.Errorf("%s should not be retryable", et)
		}
	}
}

func TestRetryConfigsNonRetryableHaveZeroRetries(t *testing.T) {
	for _, et := range []ErrorType{ErrorTypeAuth, ErrorTypeBadPrompt} {
		if cfg := NewError(et, "x").GetRetryConfig(); cfg.MaxRetries != 0 {
			t.Errorf("%s has %d retries, want 0", et, cfg.MaxRetries)
		}
	}
}

func TestTypeOfAndIs(t *testing.T) {
	err := NewErrorWithStatus(ErrorTypeAuth, 401, "bad key")

	if TypeOf(err) != ErrorTypeAuth {
		t.Errorf("TypeOf = %s", TypeOf(err))
	}
	if TypeOf(errors.New("plain")) != ErrorTypeUnknown {
		t.Error("plain error should be unknown")
	}
	if !Is(err, ErrorTypeAuth) || Is(err, ErrorTypeRateLimit) {
		t.Error("Is misclassified the error")
	}
}

func TestErrorMessageFormat(t *testing.T) {
	err := NewError(ErrorTypeRateLimit, "slow down")
	want := "LLM error (rate_limit): slow down"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	cause := errors.New("boom")
	wrapped := NewErrorWithCause(ErrorTypeTransient, cause, "")
	if !errors.Is(wrapped, cause) {
		t.Error("Unwrap chain broken")
	}
}
