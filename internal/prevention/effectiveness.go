package prevention

import (
	"sync"
	"time"
)

// EffectivenessConfig configures how outcome reports move a rule's
// effectiveness score.
type EffectivenessConfig struct {
	// BoostAmount is the increase when a rule prevented a recurrence (+0.1 default).
	BoostAmount float64
	// DecayAmount is the decrease when the issue recurred anyway (-0.05 default).
	DecayAmount float64
	// Ceiling is the maximum effectiveness (1.0 default).
	Ceiling float64
	// Floor is the minimum effectiveness (0.0 default).
	Floor float64
}

// DefaultEffectivenessConfig returns the default effectiveness configuration.
func DefaultEffectivenessConfig() EffectivenessConfig {
	return EffectivenessConfig{
		BoostAmount: 0.1,
		DecayAmount: 0.05,
		Ceiling:     1.0,
		Floor:       0.0,
	}
}

// Adjust returns current moved by one outcome report, clamped to
// [Floor, Ceiling].
func Adjust(current float64, prevented bool, cfg EffectivenessConfig) float64 {
	var next float64
	if prevented {
		next = current + cfg.BoostAmount
		if next > cfg.Ceiling {
			next = cfg.Ceiling
		}
	} else {
		next = current - cfg.DecayAmount
		if next < cfg.Floor {
			next = cfg.Floor
		}
	}
	return next
}

// CreditLimiter caps how often a single rule may be credited with a
// prevented recurrence. Hosts tend to report the same success in bursts;
// only the first perWindow reports inside a window raise effectiveness.
// A nil limiter credits every report.
type CreditLimiter struct {
	mu        sync.Mutex
	perWindow int
	window    time.Duration
	credited  map[string][]time.Time
}

// NewCreditLimiter allows perWindow credits per rule in any window.
func NewCreditLimiter(perWindow int, window time.Duration) *CreditLimiter {
	return &CreditLimiter{
		perWindow: perWindow,
		window:    window,
		credited:  make(map[string][]time.Time),
	}
}

// DefaultCreditLimiter allows three credits per rule per hour.
func DefaultCreditLimiter() *CreditLimiter {
	return NewCreditLimiter(3, time.Hour)
}

// Allow reports whether ruleID may be credited at the given time and, if
// so, counts the credit.
func (c *CreditLimiter) Allow(ruleID string, at time.Time) bool {
	if c == nil {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	// Drop credits that have left the window; the slice is kept in time order.
	history := c.credited[ruleID]
	start := 0
	for start < len(history) && !history[start].After(at.Add(-c.window)) {
		start++
	}
	history = history[start:]

	if len(history) >= c.perWindow {
		c.credited[ruleID] = history
		return false
	}
	c.credited[ruleID] = append(history, at)
	return true
}
