package retry

import (
	"testing"
	"time"

	"PortfolioPulse/internal/model"
)

func TestNextDelay_ExponentialByKind(t *testing.T) {
	p := DefaultPolicy()
	tests := []struct {
		kind    model.ErrorKind
		attempt int
		delay   time.Duration
		ok      bool
	}{
		{model.KindRateLimited, 0, 60 * time.Second, true},
		{model.KindRateLimited, 1, 120 * time.Second, true},
		{model.KindRateLimited, 2, 0, false},
		{model.KindTransport, 0, 15 * time.Second, true},
		{model.KindTransport, 1, 30 * time.Second, true},
		{model.KindTransport, 2, 0, false},
		{model.KindMalformed, 0, 15 * time.Second, true},
		{model.KindMalformed, 1, 0, false},
		{model.KindNotFound, 0, 0, false},
		{model.KindInvalidObservation, 0, 0, false},
		{model.KindPersistenceFailure, 0, 0, false},
	}
	for _, tt := range tests {
		delay, ok := p.NextDelay(tt.kind, tt.attempt)
		if ok != tt.ok || delay != tt.delay {
			t.Errorf("NextDelay(%s, %d) = (%v, %v), want (%v, %v)", tt.kind, tt.attempt, delay, ok, tt.delay, tt.ok)
		}
	}
}

func TestNextDelay_CappedAtMaxDelay(t *testing.T) {
	p := Policy{
		Rules:    map[model.ErrorKind]Rule{model.KindTransport: {Base: time.Minute, MaxAttempts: 10}},
		MaxDelay: 3 * time.Minute,
	}
	delay, ok := p.NextDelay(model.KindTransport, 5)
	if !ok {
		t.Fatal("expected retry")
	}
	if delay != 3*time.Minute {
		t.Errorf("expected delay capped at 3m, got %v", delay)
	}
}

func TestNextDelay_SyntheticSequence(t *testing.T) {
	p := DefaultPolicy()
	// RateLimited, RateLimited, then RateLimited again: third failure gives up.
	var waits []time.Duration
	for attempt := 0; ; attempt++ {
		d, ok := p.NextDelay(model.KindRateLimited, attempt)
		if !ok {
			break
		}
		waits = append(waits, d)
	}
	if len(waits) != 2 {
		t.Fatalf("expected 2 waits before giving up, got %d", len(waits))
	}
	if waits[1] != 2*waits[0] {
		t.Errorf("expected doubling backoff, got %v", waits)
	}
}

func TestMaxAttempts(t *testing.T) {
	p := DefaultPolicy()
	if got := p.MaxAttempts(model.KindTransport); got != 3 {
		t.Errorf("MaxAttempts(Transport) = %d, want 3", got)
	}
	if got := p.MaxAttempts(model.KindNotFound); got != 1 {
		t.Errorf("MaxAttempts(NotFound) = %d, want 1", got)
	}
}
