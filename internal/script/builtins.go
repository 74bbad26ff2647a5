package script

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/roach88/rulescript/internal/fact"
	"github.com/roach88/rulescript/internal/ir"
)

func (i *Interpreter) installBuiltins() {
	for name, fn := range map[string]func(goja.FunctionCall) goja.Value{
		"insert": i.jsInsert,
		"create": i.jsCreate,
		"set":    i.jsSet,
		"update": i.jsUpdate,
		"ref":    i.jsRef,
		"deref":  i.jsDeref,
		"facts":  i.jsFacts,
		"root":   i.jsRoot,
		"log":    i.jsLog,
	} {
		if err := i.vm.Set(name, fn); err != nil {
			panic(fmt.Sprintf("installing builtin %s: %v", name, err))
		}
	}
}

// lookup resolves a fact argument.
func (i *Interpreter) lookup(v goja.Value) *fact.Fact {
	id, err := factID(v)
	if err != nil {
		i.throw(err)
	}
	f, ok := i.db.Fact(id)
	if !ok {
		i.throw(fmt.Errorf("unknown fact %d", id))
	}
	return f
}

// build creates a fact of the type named by the first argument with the
// fields in the second.
func (i *Interpreter) build(call goja.FunctionCall) *fact.Fact {
	typeName, ok := call.Argument(0).Export().(string)
	if !ok {
		i.throw(fmt.Errorf("expected a type name, got %v", call.Argument(0)))
	}
	fields, err := fieldsArg(call.Argument(1))
	if err != nil {
		i.throw(fmt.Errorf("%s: %w", typeName, err))
	}
	f, err := i.current().NewFact(typeName)
	if err != nil {
		i.throw(err)
	}
	if err := f.SetAll(fields); err != nil {
		i.throw(err)
	}
	return f
}

func (i *Interpreter) jsInsert(call goja.FunctionCall) goja.Value {
	act := i.current()
	var f *fact.Fact
	if _, isName := call.Argument(0).Export().(string); isName {
		f = i.build(call)
	} else {
		f = i.lookup(call.Argument(0))
	}
	if err := act.Insert(f); err != nil {
		i.throw(err)
	}
	return i.view(f)
}

func (i *Interpreter) jsCreate(call goja.FunctionCall) goja.Value {
	return i.view(i.build(call))
}

func (i *Interpreter) jsSet(call goja.FunctionCall) goja.Value {
	i.current()
	f := i.lookup(call.Argument(0))
	if i.db.Store().Contains(f.ID) {
		i.throw(fmt.Errorf("%s is in working memory; use update", f))
	}
	fields, err := fieldsArg(call.Argument(1))
	if err != nil {
		i.throw(err)
	}
	if err := f.SetAll(fields); err != nil {
		i.throw(err)
	}
	return i.view(f)
}

func (i *Interpreter) jsUpdate(call goja.FunctionCall) goja.Value {
	act := i.current()
	f := i.lookup(call.Argument(0))
	fields, err := fieldsArg(call.Argument(1))
	if err != nil {
		i.throw(err)
	}
	if err := act.Update(f, fields); err != nil {
		i.throw(err)
	}
	return i.view(f)
}

func (i *Interpreter) jsRef(call goja.FunctionCall) goja.Value {
	return i.toJS(i.lookup(call.Argument(0)).Ref())
}

func (i *Interpreter) jsDeref(call goja.FunctionCall) goja.Value {
	if goja.IsNull(call.Argument(0)) || goja.IsUndefined(call.Argument(0)) {
		return goja.Null()
	}
	return i.view(i.lookup(call.Argument(0)))
}

func (i *Interpreter) jsFacts(call goja.FunctionCall) goja.Value {
	typeName, ok := call.Argument(0).Export().(string)
	if !ok {
		i.throw(fmt.Errorf("expected a type name, got %v", call.Argument(0)))
	}
	var out []any
	for _, f := range i.db.Facts() {
		if i.db.IsA(f.TypeName(), typeName) {
			out = append(out, i.view(f))
		}
	}
	return i.vm.NewArray(out...)
}

func (i *Interpreter) jsRoot(goja.FunctionCall) goja.Value {
	return i.view(i.current().Root())
}

func (i *Interpreter) jsLog(call goja.FunctionCall) goja.Value {
	args := make([]any, 0, 2+len(call.Arguments))
	if len(i.acting) > 0 {
		args = append(args, "rule", i.acting[len(i.acting)-1].Rule.ID)
	}
	values := make([]any, len(call.Arguments))
	for n, a := range call.Arguments {
		if v, err := fromJS(a); err == nil {
			values[n] = ir.ToGo(v)
		} else {
			values[n] = a.String()
		}
	}
	args = append(args, "values", values)
	i.logger.Info("script log", args...)
	return goja.Undefined()
}
