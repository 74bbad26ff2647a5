// Package env implements the binding environment carried along a match.
//
// An Env is a chain of immutable frames. Each frame holds an
// insertion-ordered set of name→value bindings and falls through to its
// parent on lookup. Every operation that adds bindings returns a new
// frame; no frame is modified after construction, so a token's
// environment can be shared by any number of later tokens.
//
// A nil *Env is a valid empty environment.
package env

import (
	"github.com/roach88/rulescript/internal/ir"
)

// Env is one frame of a binding environment.
type Env struct {
	parent *Env
	names  []string
	values map[string]ir.IRValue
}

// New returns an empty root frame.
func New() *Env {
	return &Env{values: map[string]ir.IRValue{}}
}

func (e *Env) child(size int) *Env {
	return &Env{
		parent: e,
		names:  make([]string, 0, size),
		values: make(map[string]ir.IRValue, size),
	}
}

func (e *Env) put(name string, v ir.IRValue) {
	if _, ok := e.values[name]; !ok {
		e.names = append(e.names, name)
	}
	e.values[name] = v
}

// Extend returns a new frame binding name to v on top of e.
func (e *Env) Extend(name string, v ir.IRValue) *Env {
	f := e.child(1)
	f.put(name, v)
	return f
}

// AddAll returns a new frame on top of e holding a copy of every binding
// visible in src. Later changes anywhere in src's chain cannot reach the
// copy.
func (e *Env) AddAll(src *Env) *Env {
	names := src.Names()
	f := e.child(len(names))
	for _, name := range names {
		v, _ := src.Lookup(name)
		f.put(name, v)
	}
	return f
}

// Merge combines a join's left and right environments. Right-hand
// bindings shadow left-hand ones of the same name.
func Merge(left, right *Env) *Env {
	if left == nil {
		left = New()
	}
	return left.AddAll(right)
}

// Lookup finds name in this frame or the nearest ancestor that binds it.
func (e *Env) Lookup(name string) (ir.IRValue, bool) {
	for f := e; f != nil; f = f.parent {
		if v, ok := f.values[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Parent returns the enclosing frame, or nil for a root frame.
func (e *Env) Parent() *Env {
	if e == nil {
		return nil
	}
	return e.parent
}

// Names returns every visible name, outermost frame first, each frame in
// insertion order. A shadowed name appears once, at its outermost
// position.
func (e *Env) Names() []string {
	var frames []*Env
	for f := e; f != nil; f = f.parent {
		frames = append(frames, f)
	}
	seen := make(map[string]bool)
	var names []string
	for i := len(frames) - 1; i >= 0; i-- {
		for _, name := range frames[i].names {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names
}

// Len returns the number of visible names.
func (e *Env) Len() int {
	return len(e.Names())
}

// Object flattens the visible bindings into an IRObject.
func (e *Env) Object() ir.IRObject {
	obj := ir.IRObject{}
	for _, name := range e.Names() {
		obj[name], _ = e.Lookup(name)
	}
	return obj
}
