// ABOUTME: Poll pacing policy for job-status polling: fixed interval by default,
// ABOUTME: optional growth factor with a delay cap and a maximum poll count.
package packing

import (
	"math"
	"time"
)

// DefaultPollInterval is the base delay between job-status polls.
const DefaultPollInterval = 500 * time.Millisecond

// PollPolicy controls how often and how long PollJobStatus queries the
// status backend. The zero value polls every DefaultPollInterval forever.
type PollPolicy struct {
	Interval time.Duration // base delay between polls (default 500ms)
	Factor   float64       // per-poll delay growth; <= 1 means fixed interval
	MaxDelay time.Duration // cap on the grown delay (default 30s)
	MaxPolls int           // 0 = unbounded
}

// DelayForPoll calculates the delay before poll number n (0-indexed):
// Interval * Factor^n, capped at MaxDelay.
func (p PollPolicy) DelayForPoll(n int) time.Duration {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if p.Factor <= 1 {
		return interval
	}

	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}

	delay := float64(interval) * math.Pow(p.Factor, float64(n))
	return time.Duration(math.Min(delay, float64(maxDelay)))
}
