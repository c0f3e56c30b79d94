package domain

import "time"

// Cooldown is a ticker-scoped anti-whipsaw lock.
type Cooldown struct {
	ID            int64     `json:"id"`
	Ticker        string    `json:"ticker"`
	ActivatedAt   time.Time `json:"activated_at"`
	CooldownUntil time.Time `json:"cooldown_until"`
	Reason        string    `json:"reason"`
	Active        bool      `json:"active"`
}

// Remaining returns how long the lock still holds at now, never negative.
func (c Cooldown) Remaining(now time.Time) time.Duration {
	if d := c.CooldownUntil.Sub(now); d > 0 {
		return d
	}
	return 0
}
