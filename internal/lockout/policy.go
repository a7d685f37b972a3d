// Package lockout maps failed login attempts to lockout windows.
//
// Everything here is pure: callers pass the clock in and persist the result
// as the account's locked-until timestamp.
package lockout

import (
	"sort"
	"time"
)

// Band locks an account for Duration once its failed attempts reach Threshold.
type Band struct {
	Threshold int           `mapstructure:"threshold"`
	Duration  time.Duration `mapstructure:"duration"`
}

// DefaultBands is the progressive ladder applied to login failures.
var DefaultBands = []Band{
	{Threshold: 5, Duration: 15 * time.Minute},
	{Threshold: 10, Duration: time.Hour},
	{Threshold: 15, Duration: 24 * time.Hour},
}

// Policy evaluates a set of bands. The zero value uses DefaultBands.
type Policy struct {
	bands []Band
}

// NewPolicy returns a policy over bands, sorted from highest threshold down.
// An empty slice yields the default ladder.
func NewPolicy(bands []Band) *Policy {
	if len(bands) == 0 {
		bands = DefaultBands
	}

	sorted := make([]Band, len(bands))
	copy(sorted, bands)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Threshold > sorted[j].Threshold
	})

	return &Policy{bands: sorted}
}

var defaultPolicy = NewPolicy(nil)

// Duration returns the lockout window for attempts, or false when the count
// is below every band.
func (p *Policy) Duration(attempts int) (time.Duration, bool) {
	bands := p.bands
	if bands == nil {
		bands = defaultPolicy.bands
	}

	// highest first, so a jump across several thresholds lands in the right band
	for _, b := range bands {
		if attempts >= b.Threshold {
			return b.Duration, true
		}
	}
	return 0, false
}

// LockedUntil returns the expiry to persist after attempts failures at now.
func (p *Policy) LockedUntil(now time.Time, attempts int) *time.Time {
	d, ok := p.Duration(attempts)
	if !ok {
		return nil
	}
	until := now.Add(d)
	return &until
}

// RemainingAttempts is how many more failures are allowed before the first
// lockout triggers. It is zero once any band applies.
func (p *Policy) RemainingAttempts(attempts int) int {
	bands := p.bands
	if bands == nil {
		bands = defaultPolicy.bands
	}
	first := bands[len(bands)-1].Threshold
	if attempts >= first {
		return 0
	}
	return first - attempts
}

// Duration applies the default ladder.
func Duration(attempts int) (time.Duration, bool) {
	return defaultPolicy.Duration(attempts)
}

// IsLocked reports whether until is set and still in the future at now.
func IsLocked(now time.Time, until *time.Time) bool {
	return until != nil && now.Before(*until)
}
