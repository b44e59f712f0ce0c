package gateway

import "sync"

// summaryGate ensures the day-completion summary fires at most once per
// calendar day within the process. Durable once-per-day state is layered on
// top through the artifact store; the gate stops concurrent submitters from
// racing past that check.
type summaryGate struct {
	mu      sync.Mutex
	sentDay string
}

// tryAcquire claims the day when it has not been claimed yet. It returns
// false when the summary for that day was already sent.
func (g *summaryGate) tryAcquire(day string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sentDay == day {
		return false
	}
	g.sentDay = day
	return true
}

// revoke releases a claimed day so a failed send can be retried on the next
// completion check.
func (g *summaryGate) revoke(day string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sentDay == day {
		g.sentDay = ""
	}
}
