// Package script evaluates rule conditions and actions written in
// JavaScript, using goja.
//
// Each pattern's test, each join condition and each action body compiles
// into a JavaScript function whose parameters are the rule's bound names.
// Facts cross into JavaScript as plain objects holding their fields plus
// $id and $type; reference fields appear as {$ref: id}. These objects
// are snapshots. Actions change working memory only through the
// builtins:
//
//	insert(type, fields)  create a fact and insert it; returns the fact
//	insert(fact)          insert a fact made with create
//	create(type, fields)  create a fact without inserting it
//	set(fact, fields)     change a created, not yet inserted fact
//	update(fact, fields)  change an inserted fact and insert it again
//	ref(fact)             the reference {$ref: id} to a fact
//	deref(ref)            resolve {$ref: id} (or an id) to its fact
//	facts(type)           facts of a type currently in working memory
//	root()                the root fact of the running activation
//	log(...)              write values to the structured log
package script

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dop251/goja"

	"github.com/roach88/rulescript/internal/engine"
	"github.com/roach88/rulescript/internal/env"
	"github.com/roach88/rulescript/internal/fact"
	"github.com/roach88/rulescript/internal/ir"
)

// RootParam names the current fact inside a pattern test.
const RootParam = "$"

// ScriptError is an exception thrown by rule code itself, or a compile
// error in it.
type ScriptError struct {
	Rule    string
	Part    string // "test", "join" or "action"
	Pattern int
	Message string
}

// Error implements the error interface.
func (e *ScriptError) Error() string {
	if e.Part == "action" {
		return fmt.Sprintf("rule %s action: %s", e.Rule, e.Message)
	}
	return fmt.Sprintf("rule %s pattern %d %s: %s", e.Rule, e.Pattern, e.Part, e.Message)
}

// Interpreter owns one goja runtime shared by every rule bound to a
// database. It is not safe for concurrent use; neither is the database.
type Interpreter struct {
	vm      *goja.Runtime
	db      *engine.Database
	logger  *slog.Logger
	acting  []*engine.Activation
	failure error
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithLogger sets the logger used by log(). Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(i *Interpreter) { i.logger = l }
}

// New creates an interpreter for rules of db.
func New(db *engine.Database, opts ...Option) *Interpreter {
	i := &Interpreter{
		vm:     goja.New(),
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	i.installBuiltins()
	return i
}

// Bind compiles a rule spec into an engine rule.
func (i *Interpreter) Bind(spec ir.RuleSpec) (engine.Rule, error) {
	rule := engine.Rule{ID: spec.ID}
	var binds []string
	for n, p := range spec.When {
		pat := engine.Pattern{
			Type:      p.Type,
			Bind:      p.Bind,
			Signature: signature(p),
		}
		test, err := i.compileTest(spec.ID, n, p)
		if err != nil {
			return engine.Rule{}, err
		}
		pat.Test = test

		if p.Bind != "" {
			binds = append(binds, p.Bind)
		}
		if p.Join != "" {
			join, err := i.compileJoin(spec.ID, n, p.Join, binds)
			if err != nil {
				return engine.Rule{}, err
			}
			pat.Join = join
		}
		rule.Patterns = append(rule.Patterns, pat)
	}

	action, err := i.compileAction(spec.ID, spec.Then, binds)
	if err != nil {
		return engine.Rule{}, err
	}
	rule.Action = action
	return rule, nil
}

// signature identifies a pattern for alpha node sharing.
func signature(p ir.PatternSpec) string {
	match := "{}"
	if len(p.Match) > 0 {
		if b, err := ir.MarshalCanonical(p.Match); err == nil {
			match = string(b)
		}
	}
	return strings.Join([]string{p.Type, p.Bind, match, p.Test}, "\x00")
}

// compileFunc compiles a JavaScript function expression.
func (i *Interpreter) compileFunc(name string, params []string, body string) (goja.Callable, error) {
	src := fmt.Sprintf("(function(%s) {\n%s\n})", strings.Join(params, ", "), body)
	prog, err := goja.Compile(name, src, false)
	if err != nil {
		return nil, err
	}
	v, err := i.vm.RunProgram(prog)
	if err != nil {
		return nil, err
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return nil, fmt.Errorf("%s did not compile to a function", name)
	}
	return fn, nil
}

func (i *Interpreter) compileTest(rule string, n int, p ir.PatternSpec) (engine.Condition, error) {
	if len(p.Match) == 0 && p.Test == "" {
		return nil, nil
	}
	keys := p.Match.SortedKeys()

	var fn goja.Callable
	params := []string{RootParam}
	if p.Bind != "" {
		params = append(params, p.Bind)
	}
	if p.Test != "" {
		var err error
		fn, err = i.compileFunc(fmt.Sprintf("%s.when[%d].test", rule, n), params, "return ("+p.Test+");")
		if err != nil {
			return nil, &ScriptError{Rule: rule, Part: "test", Pattern: n, Message: err.Error()}
		}
	}

	return func(f *fact.Fact, _ *env.Env) (bool, error) {
		for _, k := range keys {
			v, ok := f.Get(k)
			if !ok || !ir.Equal(v, p.Match[k]) {
				return false, nil
			}
		}
		if fn == nil {
			return true, nil
		}
		view := i.view(f)
		args := []goja.Value{view}
		if p.Bind != "" {
			args = append(args, view)
		}
		res, err := i.call(fn, args)
		if err != nil {
			return false, i.scriptErr(err, &ScriptError{Rule: rule, Part: "test", Pattern: n})
		}
		return res.ToBoolean(), nil
	}, nil
}

func (i *Interpreter) compileJoin(rule string, n int, expr string, binds []string) (engine.JoinTest, error) {
	params := append([]string(nil), binds...)
	fn, err := i.compileFunc(fmt.Sprintf("%s.when[%d].join", rule, n), params, "return ("+expr+");")
	if err != nil {
		return nil, &ScriptError{Rule: rule, Part: "join", Pattern: n, Message: err.Error()}
	}
	return func(l, r *engine.Match) (bool, error) {
		merged := env.Merge(l.Env, r.Env)
		args, err := i.args(params, merged)
		if err != nil {
			return false, err
		}
		res, err := i.call(fn, args)
		if err != nil {
			return false, i.scriptErr(err, &ScriptError{Rule: rule, Part: "join", Pattern: n})
		}
		return res.ToBoolean(), nil
	}, nil
}

func (i *Interpreter) compileAction(rule, body string, binds []string) (engine.Action, error) {
	params := append([]string(nil), binds...)
	fn, err := i.compileFunc(rule+".then", params, body)
	if err != nil {
		return nil, &ScriptError{Rule: rule, Part: "action", Message: err.Error()}
	}
	return func(act *engine.Activation) error {
		args, err := i.args(params, act.Match.Env)
		if err != nil {
			return err
		}
		i.acting = append(i.acting, act)
		defer func() { i.acting = i.acting[:len(i.acting)-1] }()

		if _, err := i.call(fn, args); err != nil {
			return i.scriptErr(err, &ScriptError{Rule: rule, Part: "action"})
		}
		return nil
	}, nil
}

// args resolves bound names to JavaScript values.
func (i *Interpreter) args(params []string, e *env.Env) ([]goja.Value, error) {
	args := make([]goja.Value, len(params))
	for n, name := range params {
		v, ok := e.Lookup(name)
		if !ok {
			args[n] = goja.Undefined()
			continue
		}
		args[n] = i.toJS(v)
		if ref, ok := v.(ir.IRRef); ok {
			f, found := i.db.Fact(int64(ref))
			if !found {
				return nil, fmt.Errorf("binding %q refers to unknown fact %d", name, ref)
			}
			args[n] = i.view(f)
		}
	}
	return args, nil
}

// call runs fn and reports a Go error raised inside it by a builtin in
// preference to the JavaScript exception that carried it out.
func (i *Interpreter) call(fn goja.Callable, args []goja.Value) (goja.Value, error) {
	outer := i.failure
	i.failure = nil
	defer func() { i.failure = outer }()

	res, err := fn(goja.Undefined(), args...)
	failure := i.failure
	if failure != nil && (err != nil || engine.IsResourceError(failure)) {
		// Resource exhaustion is fatal even if the script caught it.
		return nil, failure
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// scriptErr converts a JavaScript exception into a ScriptError. Errors
// that came from Go are returned unchanged.
func (i *Interpreter) scriptErr(err error, se *ScriptError) error {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		se.Message = ex.Value().String()
		return se
	}
	var ie *goja.InterruptedError
	if errors.As(err, &ie) {
		se.Message = ie.Error()
		return se
	}
	return err
}

// throw raises err inside the running script. The original error is
// kept so call can return it unchanged.
func (i *Interpreter) throw(err error) {
	i.failure = err
	panic(i.vm.NewGoError(err))
}

// current returns the activation whose action is running.
func (i *Interpreter) current() *engine.Activation {
	if len(i.acting) == 0 {
		i.throw(fmt.Errorf("no rule action is running"))
	}
	return i.acting[len(i.acting)-1]
}
