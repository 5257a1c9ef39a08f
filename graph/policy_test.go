package graph

import (
	"errors"
	"math/rand"
	"testing"
	"time"
)

func TestRetryPolicy_Validate(t *testing.T) {
	tests := []struct {
		name    string
		policy  RetryPolicy
		wantErr bool
	}{
		{"valid", RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}, false},
		{"single attempt", RetryPolicy{MaxAttempts: 1}, false},
		{"zero attempts", RetryPolicy{MaxAttempts: 0}, true},
		{"negative attempts", RetryPolicy{MaxAttempts: -1}, true},
		{"max below base", RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: time.Millisecond}, true},
		{"max uncapped", RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 0}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if tt.wantErr && !errors.Is(err, ErrInvalidRetryPolicy) {
				t.Errorf("expected ErrInvalidRetryPolicy, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestBackoff(t *testing.T) {
	base := 100 * time.Millisecond
	maxDelay := time.Second
	rng := rand.New(rand.NewSource(1))

	t.Run("grows exponentially", func(t *testing.T) {
		for attempt, want := range []time.Duration{base, 2 * base, 4 * base} {
			got := backoff(attempt, base, maxDelay, rng)
			if got < want || got >= want+base {
				t.Errorf("attempt %d: expected [%v, %v), got %v", attempt, want, want+base, got)
			}
		}
	})

	t.Run("caps at max", func(t *testing.T) {
		got := backoff(10, base, maxDelay, rng)
		if got < maxDelay || got >= maxDelay+base {
			t.Errorf("expected [%v, %v), got %v", maxDelay, maxDelay+base, got)
		}
	})

	t.Run("defaults zero base", func(t *testing.T) {
		got := backoff(0, 0, 0, nil)
		if got != 100*time.Millisecond {
			t.Errorf("expected 100ms default, got %v", got)
		}
	})

	t.Run("nil rng skips jitter", func(t *testing.T) {
		got := backoff(1, base, maxDelay, nil)
		if got != 2*base {
			t.Errorf("expected exact %v, got %v", 2*base, got)
		}
	})
}
