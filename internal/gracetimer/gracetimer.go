// Package gracetimer implements the Disconnect-Grace Timer Pool: when an
// owner's last connection drops, their invite is not torn down immediately
// — a grace window is started, and the invite is only removed if no
// connection for that same identity resubscribes before it fires.
package gracetimer

import (
	"sync"
	"time"
)

// Pool tracks one pending grace timer per identity key. Fire callbacks run
// on their own goroutine (per time.AfterFunc), exactly like the rest of
// the standard library's timer API — callers that need serialization
// (the lobby coordinator does) must funnel the callback through their own
// command channel rather than mutating shared state directly from it.
type Pool struct {
	mu     sync.Mutex
	timers map[string]*entry
}

type entry struct {
	timer *time.Timer
}

// New returns an empty grace timer pool.
func New() *Pool {
	return &Pool{timers: make(map[string]*entry)}
}

// Start arms a grace timer for key, to fire after d. If a timer is already
// pending for key it is replaced (the previous one is stopped first) —
// starting a second grace period for the same identity always supersedes
// the first rather than stacking.
//
// onFire receives the same key it was armed with. Because Stop cannot
// guarantee a concurrently-firing timer's callback is suppressed, the pool
// identifies each armed timer by its entry's pointer identity: a callback
// only fires onFire if its own entry is still the one registered for key,
// so a reschedule or cancel that raced with an in-flight fire silently
// wins.
func (p *Pool) Start(key string, d time.Duration, onFire func(key string)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.timers[key]; ok {
		existing.timer.Stop()
		delete(p.timers, key)
	}

	e := &entry{}
	e.timer = time.AfterFunc(d, func() {
		p.mu.Lock()
		current, ok := p.timers[key]
		isCurrent := ok && current == e
		if isCurrent {
			delete(p.timers, key)
		}
		p.mu.Unlock()
		if isCurrent {
			onFire(key)
		}
	})
	p.timers[key] = e
}

// Cancel stops a pending grace timer for key, if any. Resubscription
// (the owner's identity reappearing with a new connection before the grace
// window elapses) calls this.
func (p *Pool) Cancel(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.timers[key]; ok {
		e.timer.Stop()
		delete(p.timers, key)
	}
}

// IsPending reports whether a grace timer is currently armed for key.
func (p *Pool) IsPending(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.timers[key]
	return ok
}

// Len returns the number of currently-armed timers, for diagnostics.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.timers)
}
