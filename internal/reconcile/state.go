package reconcile

import "sync"

// State is the phase of the reconciliation cycle.
type State int

const (
	StateIdle State = iota
	StatePulling
	StatePushing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePulling:
		return "pulling"
	case StatePushing:
		return "pushing"
	}
	return "unknown"
}

// cycle owns the engine state. At most one cycle runs at a time: begin
// fails while the state is not idle.
type cycle struct {
	mu           sync.Mutex
	state        State
	onTransition func(from, to State)
}

// begin moves Idle -> to. It reports false when a cycle is already running.
func (c *cycle) begin(to State) bool {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return false
	}
	from := c.state
	c.state = to
	c.mu.Unlock()

	c.notify(from, to)
	return true
}

func (c *cycle) advance(to State) {
	c.mu.Lock()
	from := c.state
	c.state = to
	c.mu.Unlock()

	if from != to {
		c.notify(from, to)
	}
}

func (c *cycle) current() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *cycle) notify(from, to State) {
	if c.onTransition != nil {
		c.onTransition(from, to)
	}
}
