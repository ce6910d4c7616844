package pace

import "time"

// Snapshot is a lightweight diagnostic view of a limiter.
type Snapshot struct {
	Name     string        `json:"name"`
	Rate     string        `json:"rate"`
	Interval time.Duration `json:"interval"`

	Running     bool `json:"running"`
	QueueLen    int  `json:"queue_len"`
	PriorityLen int  `json:"priority_len"`

	Burst             bool          `json:"burst"`
	RequestsAllowed   int           `json:"requests_allowed,omitempty"`
	RequestsMade      int           `json:"requests_made,omitempty"`
	BurstFree         int           `json:"burst_free,omitempty"`
	ThrottledInterval time.Duration `json:"throttled_interval,omitempty"`
}

func (l *Limiter) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	snap := Snapshot{
		Name:        l.name,
		Rate:        l.rate.String(),
		Interval:    l.interval,
		Running:     l.running,
		QueueLen:    l.q.len(),
		PriorityLen: l.q.priorityLen(),
		Burst:       l.burst,
	}
	if l.burst {
		snap.RequestsAllowed = l.rate.Count
		snap.RequestsMade = l.requestsMade
		snap.BurstFree = l.burstFree
		snap.ThrottledInterval = l.throttled
	}
	return snap
}
