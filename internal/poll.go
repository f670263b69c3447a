package internal

import "time"

// Poller sleeps a fixed interval between retries, unlike an exponential
// backoff whose wait grows: the teardown and window-full retry loops in this
// module are specified to poll at constant cadences (200ms, 1s, ...), so
// growing the wait would change observable behavior.
type Poller struct {
	Interval time.Duration
}

// NewPoller returns a Poller that sleeps interval between Wait calls.
func NewPoller(interval time.Duration) Poller {
	return Poller{Interval: interval}
}

// Wait sleeps for the poller's fixed interval.
func (p Poller) Wait() {
	time.Sleep(p.Interval)
}
