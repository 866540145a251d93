package recovery

import "time"

// TimelockGate enforces the minimum delay between initiation and the first
// accepted approval. Initiation and cancellation are never gated.
type TimelockGate struct {
	delay time.Duration
}

func NewTimelockGate(delay time.Duration) TimelockGate {
	return TimelockGate{delay: delay}
}

func (g TimelockGate) Delay() time.Duration {
	return g.delay
}

// Open reports whether an approval submitted at now is accepted for a request
// initiated at initiatedAt.
func (g TimelockGate) Open(now time.Time, initiatedAt time.Time) bool {
	return now.Sub(initiatedAt) >= g.delay
}

func (g TimelockGate) OpensAt(initiatedAt time.Time) time.Time {
	return initiatedAt.Add(g.delay)
}

// Remaining returns how long until the gate opens, zero once it is open.
func (g TimelockGate) Remaining(now time.Time, initiatedAt time.Time) time.Duration {
	left := g.OpensAt(initiatedAt).Sub(now)
	if left < 0 {
		return 0
	}
	return left
}
