package session

import (
	"sync"
	"time"

	"github.com/junduck/replayd/internal/epoch"
)

// ConnSession is the per-transport state from SPEC_FULL.md §3: the live
// clients multiplexed over one connection, and the single active-replay
// flag shared across all of them (only one replay may be in flight per
// connection).
type ConnSession struct {
	mu      sync.Mutex
	clients map[string]*ClientSession

	TimeConfig epoch.Config

	activeReplayID string
	replayActive   bool
}

// NewConnSession creates an empty connection session carrying the given
// time representation (epoch unit + timezone). The value is fixed at
// creation; init does not change it.
func NewConnSession(timeConfig epoch.Config) *ConnSession {
	return &ConnSession{
		clients:    make(map[string]*ClientSession),
		TimeConfig: timeConfig,
	}
}

// Login creates a new ClientSession for cid, replacing any existing one.
// Rejected by the handler layer with REPLAY_ACTIVE while a replay is in
// flight — ConnSession itself doesn't enforce that so it stays a plain
// state holder, matching the teacher's config/session types that hold data
// without validation logic.
func (c *ConnSession) Login(client *ClientSession) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clients[client.CID] = client
}

// Logout removes cid's ClientSession, if any.
func (c *ConnSession) Logout(cid string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.clients, cid)
}

// Client looks up cid's ClientSession.
func (c *ConnSession) Client(cid string) (*ClientSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cs, ok := c.clients[cid]
	return cs, ok
}

// Clients returns a snapshot slice of all live ClientSessions, in no
// particular order; the replay orchestrator iterates them in the order
// returned.
func (c *ConnSession) Clients() []*ClientSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*ClientSession, 0, len(c.clients))
	for _, cs := range c.clients {
		out = append(out, cs)
	}
	return out
}

// BeginReplay marks a replay active under replayID, failing if one is
// already in flight.
func (c *ConnSession) BeginReplay(replayID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.replayActive {
		return false
	}
	c.replayActive = true
	c.activeReplayID = replayID
	return true
}

// EndReplay clears the active-replay flag. Always called on replay exit —
// success, error, or transport close — per SPEC_FULL.md §4.4 step 8.
func (c *ConnSession) EndReplay() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replayActive = false
	c.activeReplayID = ""
}

// ReplayActive reports whether a replay is currently in flight on this
// connection.
func (c *ConnSession) ReplayActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.replayActive
}

// AdvanceReplayTime updates every client's replay-time cursor, per
// SPEC_FULL.md §4.4 step 5b.
func (c *ConnSession) AdvanceReplayTime(ts time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cs := range c.clients {
		cs.ReplayTime = ts
	}
}
