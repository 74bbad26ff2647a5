package engine

// agenda is the FIFO of activations collected during one matching pass.
//
// Terminal nodes push while the database is Matching. Once the pass has
// finished, the database pops and fires them in order with the database
// in the Acting phase. Each insert gets its own agenda, so a nested
// insert's activations all fire before control returns to the action
// that made it.
type agenda struct {
	items []*Activation
	head  int
}

func newAgenda() *agenda {
	return &agenda{items: make([]*Activation, 0, 8)}
}

// push adds an activation to the back of the agenda.
func (a *agenda) push(act *Activation) {
	a.items = append(a.items, act)
}

// pop removes and returns the front activation.
func (a *agenda) pop() (*Activation, bool) {
	if a.head >= len(a.items) {
		return nil, false
	}
	act := a.items[a.head]
	a.items[a.head] = nil
	a.head++
	return act, true
}

// Len returns the number of activations still waiting.
func (a *agenda) Len() int {
	return len(a.items) - a.head
}
