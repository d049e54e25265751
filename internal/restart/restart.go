// Package restart implements the "server restarting" gate: a global switch
// an operator flips before a deploy, which the Policy Layer consults to
// decide whether non-admin invite creation is allowed.
package restart

import (
	"sync"
	"time"
)

// Coordinator is the "Restart coordinator" external collaborator from
// spec.md §1.
type Coordinator interface {
	IsServerRestarting() bool
	MinutesUntilRestart() (minutes int, known bool)
}

// Gate is a simple operator-driven Coordinator implementation: Announce
// arms a countdown to a specific time, Cancel disarms it.
type Gate struct {
	mu    sync.RWMutex
	at    time.Time
	armed bool
}

// NewGate returns a Gate with no restart scheduled.
func NewGate() *Gate {
	return &Gate{}
}

// Announce arms the gate for a restart at the given time.
func (g *Gate) Announce(at time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.at = at
	g.armed = true
}

// Cancel disarms any scheduled restart.
func (g *Gate) Cancel() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.armed = false
}

// IsServerRestarting reports whether a restart is currently announced.
func (g *Gate) IsServerRestarting() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.armed
}

// MinutesUntilRestart returns the minutes remaining until the announced
// restart, or known=false if none is armed.
func (g *Gate) MinutesUntilRestart() (int, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.armed {
		return 0, false
	}
	remaining := time.Until(g.at)
	if remaining < 0 {
		remaining = 0
	}
	minutes := int(remaining / time.Minute)
	if remaining%time.Minute > 0 {
		minutes++
	}
	return minutes, true
}
