package bridge

import "sync"

// TurnGate admits at most one query per turn number.
type TurnGate struct {
	mu       sync.Mutex
	last     int
	accepted bool
}

// Admit reports whether turn may issue a query and, if so, records it as
// the last accepted turn. A refused call leaves the gate unchanged.
func (g *TurnGate) Admit(turn int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.accepted && turn == g.last {
		return false
	}
	g.last = turn
	g.accepted = true
	return true
}

// Last returns the last accepted turn; ok is false before the first one.
func (g *TurnGate) Last() (turn int, ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last, g.accepted
}
