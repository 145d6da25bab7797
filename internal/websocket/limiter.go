package websocket

import "time"

// connLimiter is a fixed-window message budget for one connection: capacity
// points, fully refilled every window. It is only touched from the
// connection's read goroutine, so no locking is needed, and its state dies
// with the connection.
type connLimiter struct {
	capacity int
	window   time.Duration
	points   int
	resetAt  time.Time
	now      func() time.Time
}

func newConnLimiter(capacity int, window time.Duration) *connLimiter {
	return &connLimiter{
		capacity: capacity,
		window:   window,
		now:      time.Now,
	}
}

func (l *connLimiter) allow() bool {
	now := l.now()
	if now.After(l.resetAt) {
		l.points = l.capacity
		l.resetAt = now.Add(l.window)
	}

	if l.points <= 0 {
		return false
	}

	l.points--
	return true
}
