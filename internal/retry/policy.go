// Package retry decides whether and when a failed provider call is retried.
package retry

import (
	"time"

	"PortfolioPulse/internal/model"
)

// Rule is the backoff configuration for one error kind.
type Rule struct {
	Base        time.Duration `yaml:"base"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// Policy is a pure exponential backoff policy keyed by error kind.
// Kinds without a rule are never retried.
type Policy struct {
	Rules    map[model.ErrorKind]Rule
	MaxDelay time.Duration
}

// DefaultPolicy returns the production defaults. RateLimited waits longer
// than Transport since the caller is already over quota.
func DefaultPolicy() Policy {
	return Policy{
		Rules: map[model.ErrorKind]Rule{
			model.KindRateLimited: {Base: 60 * time.Second, MaxAttempts: 3},
			model.KindTransport:   {Base: 15 * time.Second, MaxAttempts: 3},
			model.KindMalformed:   {Base: 15 * time.Second, MaxAttempts: 2},
		},
		MaxDelay: 5 * time.Minute,
	}
}

// MaxAttempts returns the total number of attempts allowed for kind.
func (p Policy) MaxAttempts(kind model.ErrorKind) int {
	r, ok := p.Rules[kind]
	if !ok || r.MaxAttempts < 1 {
		return 1
	}
	return r.MaxAttempts
}

// NextDelay returns how long to wait before the next attempt after the
// attempt with zero-based index attempt failed with kind. ok is false when
// the caller must give up.
func (p Policy) NextDelay(kind model.ErrorKind, attempt int) (delay time.Duration, ok bool) {
	if attempt < 0 {
		attempt = 0
	}
	if attempt+1 >= p.MaxAttempts(kind) {
		return 0, false
	}
	base := p.Rules[kind].Base
	if base <= 0 {
		return 0, true
	}
	delay = base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay, true
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay, true
}
