package toolerr

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"typed", New(Validation, "bad"), Validation},
		{"wrapped typed", fmt.Errorf("search: %w", Upstream(502, "bad gateway")), UpstreamError},
		{"deadline", fmt.Errorf("fetch: %w", context.DeadlineExceeded), UpstreamTimeout},
		{"canceled", context.Canceled, UpstreamTimeout},
		{"net timeout", timeoutErr{}, UpstreamTimeout},
		{"plain", errors.New("boom"), Internal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Fatalf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestToEnvelope_Retryable(t *testing.T) {
	tests := []struct {
		err       error
		kind      Kind
		retryable bool
	}{
		{New(Validation, "missing query"), Validation, false},
		{Upstream(503, "unavailable"), UpstreamError, true},
		{Upstream(429, "slow down"), UpstreamError, true},
		{NotFound("trial", "NCT00000000"), UpstreamError, false},
		{context.DeadlineExceeded, UpstreamTimeout, true},
		{New(MissingCredential, "no key"), MissingCredential, false},
	}
	for _, tt := range tests {
		env := ToEnvelope(tt.err)
		if env.Kind != tt.kind {
			t.Fatalf("%v: expected kind %s, got %s", tt.err, tt.kind, env.Kind)
		}
		if env.Retryable != tt.retryable {
			t.Fatalf("%v: expected retryable=%v", tt.err, tt.retryable)
		}
	}
}

func TestNotFound_Message(t *testing.T) {
	env := ToEnvelope(NotFound("drug", "DB99999"))
	if env.Status != 404 {
		t.Fatalf("expected status 404, got %d", env.Status)
	}
	if env.Message != "drug not found: DB99999" {
		t.Fatalf("unexpected message %q", env.Message)
	}
	if env.String() != "UpstreamError: drug not found: DB99999 (upstream status 404)" {
		t.Fatalf("unexpected text %q", env.String())
	}
}
