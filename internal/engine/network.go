package engine

import (
	"fmt"
	"slices"

	"github.com/roach88/rulescript/internal/env"
	"github.com/roach88/rulescript/internal/fact"
)

// Condition tests a candidate fact at an alpha node. e already holds
// the pattern's binding for f.
type Condition func(f *fact.Fact, e *env.Env) (bool, error)

// JoinTest tests a pair of tokens meeting at a join node.
type JoinTest func(left, right *Match) (bool, error)

// Action runs once per complete match, with the database in the Acting
// phase.
type Action func(act *Activation) error

// Pattern is one condition of a rule.
type Pattern struct {
	// Type matches facts of this record type or any type extending it.
	Type string

	// Bind names the matched fact in the token environment.
	Bind string

	// Test is an optional single-fact condition.
	Test Condition

	// Join is an optional condition joining this pattern to every
	// pattern before it. The first pattern must not have one.
	Join JoinTest

	// Signature identifies Type, Bind and Test. Patterns with the same
	// non-empty signature share one alpha node.
	Signature string
}

// Rule is a compiled rule ready to be added to a Database.
type Rule struct {
	ID       string
	Patterns []Pattern
	Action   Action
}

// Port selects one input of a join node.
type Port int

const (
	PortLeft Port = iota
	PortRight
)

// String implements fmt.Stringer.
func (p Port) String() string {
	if p == PortLeft {
		return "left"
	}
	return "right"
}

// Slot is the receiving end of a network edge.
type Slot interface {
	// Receive processes an incoming token.
	Receive(m *Match) error

	// Retract withdraws the token with the given key and everything
	// derived from it.
	Retract(key string)

	// Clear drops this node's memories and those of every node below it.
	Clear()
}

// rootNode dispatches every inserted fact to the alpha nodes in
// registration order.
type rootNode struct {
	children []Slot
}

func (n *rootNode) Receive(m *Match) error {
	for _, c := range n.children {
		if err := c.Receive(m); err != nil {
			return err
		}
	}
	return nil
}

func (n *rootNode) Retract(key string) {
	for _, c := range n.children {
		c.Retract(key)
	}
}

func (n *rootNode) Clear() {
	for _, c := range n.children {
		c.Clear()
	}
}

// alphaNode tests single facts. It keeps no tokens, only the roots that
// last passed. A remembered root that fails on re-insert is retracted
// from everything below.
type alphaNode struct {
	db       *Database
	id       string
	typeName string
	bind     string
	test     Condition
	children []Slot
	passed   map[int64]bool
}

func (n *alphaNode) Receive(m *Match) error {
	f := m.Value
	if !n.db.isA(f.Type.Name, n.typeName) {
		return nil
	}
	e := m.Env
	if n.bind != "" {
		e = e.Extend(n.bind, f.Ref())
	}
	if n.test != nil {
		ok, err := n.test(f, e)
		if err != nil {
			return err
		}
		if !ok {
			if n.passed[m.Root.ID] {
				delete(n.passed, m.Root.ID)
				n.Retract(matchKey(n.id, []int64{m.Root.ID}))
			}
			return nil
		}
	}
	n.passed[m.Root.ID] = true

	out := &Match{
		ID:       n.db.GenerateMatchID(),
		Value:    f,
		Root:     m.Root,
		Bind:     n.bind,
		Env:      e,
		position: n.id,
		roots:    []int64{m.Root.ID},
	}
	for _, c := range n.children {
		if err := c.Receive(out); err != nil {
			return err
		}
	}
	return nil
}

func (n *alphaNode) Retract(key string) {
	for _, c := range n.children {
		c.Retract(key)
	}
}

func (n *alphaNode) Clear() {
	clear(n.passed)
	for _, c := range n.children {
		c.Clear()
	}
}

// joinNode pairs tokens from two inputs. Each side keeps a memory of the
// tokens it has received, in arrival order.
type joinNode struct {
	db       *Database
	id       string
	rule     string
	test     JoinTest
	left     []*Match
	right    []*Match
	ports    [2]*joinPort
	children []Slot
}

func newJoinNode(db *Database, id, rule string, test JoinTest) *joinNode {
	n := &joinNode{db: db, id: id, rule: rule, test: test}
	n.ports[PortLeft] = &joinPort{node: n, side: PortLeft}
	n.ports[PortRight] = &joinPort{node: n, side: PortRight}
	return n
}

// port returns the input selected by p.
func (n *joinNode) port(p Port) *joinPort {
	return n.ports[p]
}

// joinPort is one input of a join node.
type joinPort struct {
	node *joinNode
	side Port
}

func (p *joinPort) Receive(m *Match) error {
	return p.node.receive(p.side, m)
}

func (p *joinPort) Retract(key string) {
	p.node.retract(p.side, key)
}

func (p *joinPort) Clear() {
	p.node.Clear()
}

func (n *joinNode) memory(p Port) *[]*Match {
	if p == PortLeft {
		return &n.left
	}
	return &n.right
}

// receive stores t on its side, retracting any older token with the
// same key, then pairs it with every token held on the other side.
func (n *joinNode) receive(side Port, t *Match) error {
	n.retract(side, t.Key())
	mem := n.memory(side)
	*mem = append(*mem, t)

	// Matching never mutates memories, and tokens only flow downstream,
	// so the other side is stable while we iterate.
	other := *n.memory(1 - side)
	for _, o := range other {
		l, r := t, o
		if side == PortRight {
			l, r = o, t
		}
		if n.test != nil {
			ok, err := n.test(l, r)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
		}
		out := &Match{
			ID:       n.db.GenerateMatchID(),
			Value:    t.Value,
			Root:     t.Root,
			Bind:     t.Bind,
			Env:      env.Merge(l.Env, r.Env),
			position: n.id,
			roots:    append(slices.Clone(l.roots), r.roots...),
		}
		for _, c := range n.children {
			if err := c.Receive(out); err != nil {
				return err
			}
		}
	}
	return nil
}

// retract removes the token with key from one side and withdraws every
// pairing it may have produced, whether or not the join test passed.
func (n *joinNode) retract(side Port, key string) {
	mem := n.memory(side)
	var gone []*Match
	*mem = slices.DeleteFunc(*mem, func(o *Match) bool {
		if o.Key() != key {
			return false
		}
		gone = append(gone, o)
		return true
	})
	for _, t := range gone {
		for _, o := range *n.memory(1 - side) {
			l, r := t, o
			if side == PortRight {
				l, r = o, t
			}
			out := matchKey(n.id, append(slices.Clone(l.roots), r.roots...))
			for _, c := range n.children {
				c.Retract(out)
			}
		}
	}
}

// Clear drops both memories and clears downstream.
func (n *joinNode) Clear() {
	n.left = nil
	n.right = nil
	for _, c := range n.children {
		c.Clear()
	}
}

// Size returns the number of tokens held on each side.
func (n *joinNode) Size() (left, right int) {
	return len(n.left), len(n.right)
}

// terminalNode is a rule's leaf. It queues an activation for every
// complete match and remembers the newest match per key, so activations
// superseded before they fire can be skipped.
type terminalNode struct {
	db     *Database
	rule   *Rule
	latest map[string]*Match
}

func (n *terminalNode) Receive(m *Match) error {
	n.latest[m.Key()] = m
	n.db.schedule(&Activation{db: n.db, Rule: n.rule, Match: m})
	return nil
}

func (n *terminalNode) Retract(key string) {
	if _, ok := n.latest[key]; ok {
		delete(n.latest, key)
		n.db.logger.Debug("match retracted",
			"rule", n.rule.ID,
			"key", key,
		)
	}
}

func (n *terminalNode) Clear() {
	clear(n.latest)
}

// current reports whether m is still the newest match for its key.
func (n *terminalNode) current(m *Match) bool {
	return n.latest[m.Key()] == m
}

// network is the compiled match graph of a Database.
type network struct {
	root      *rootNode
	alphas    map[string]*alphaNode
	joins     []*joinNode
	terminals map[string]*terminalNode
	nextID    int
}

func newNetwork() *network {
	return &network{
		root:      &rootNode{},
		alphas:    make(map[string]*alphaNode),
		terminals: make(map[string]*terminalNode),
	}
}

func (nw *network) newID(prefix string) string {
	nw.nextID++
	return fmt.Sprintf("%s%d", prefix, nw.nextID)
}

// alpha returns the alpha node for p, reusing a shared one when the
// signature matches.
func (nw *network) alpha(db *Database, p Pattern) *alphaNode {
	if p.Signature != "" {
		if a, ok := nw.alphas[p.Signature]; ok {
			return a
		}
	}
	a := &alphaNode{
		db:       db,
		id:       nw.newID("a"),
		typeName: p.Type,
		bind:     p.Bind,
		test:     p.Test,
		passed:   make(map[int64]bool),
	}
	if p.Signature != "" {
		nw.alphas[p.Signature] = a
	}
	nw.root.children = append(nw.root.children, a)
	return a
}

// build wires a rule into the network: a chain of joins fed by one alpha
// node per pattern, ending at the rule's terminal node.
func (nw *network) build(db *Database, r *Rule) {
	term := &terminalNode{db: db, rule: r, latest: make(map[string]*Match)}
	nw.terminals[r.ID] = term

	var upstream interface{ addChild(Slot) }
	first := nw.alpha(db, r.Patterns[0])
	upstream = first
	for _, p := range r.Patterns[1:] {
		j := newJoinNode(db, nw.newID("j"), r.ID, p.Join)
		nw.joins = append(nw.joins, j)
		upstream.addChild(j.port(PortLeft))
		nw.alpha(db, p).addChild(j.port(PortRight))
		upstream = j
	}
	upstream.addChild(term)
}

func (n *alphaNode) addChild(s Slot) { n.children = append(n.children, s) }
func (n *joinNode) addChild(s Slot)  { n.children = append(n.children, s) }

// clear resets every memory in the network.
func (nw *network) clear() {
	nw.root.Clear()
}
