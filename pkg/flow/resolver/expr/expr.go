// Package expr implements the sandboxed boolean expression interpreter used
// to evaluate condition-node expressions (§3, §4.F, §9). The validator
// (pkg/flow.Validate) already rejects any identifier outside the four
// allowed variables, so by the time an expression reaches Eval it is known
// to reference only {intent, scope, needsBackend, hasFiles}. Eval adds a
// second, independent layer of sandboxing: the goja VM it builds has no
// bindings beyond those four variables — no console, no requireable
// modules, no host function injected — so even a hand-edited template that
// slipped past validation cannot reach anything outside this call.
package expr

import (
	"fmt"

	"github.com/dop251/goja"
)

// Vars is the fixed set of variables a condition expression may reference.
type Vars struct {
	Intent       string
	Scope        string
	NeedsBackend bool
	HasFiles     bool
}

// Eval evaluates expr against vars and returns its boolean result. A parse
// or runtime error returns (false, err) — callers map that to "false plus a
// warning" per §4.F.
func Eval(expression string, vars Vars) (bool, error) {
	vm := goja.New()
	vm.Set("intent", vars.Intent)
	vm.Set("scope", vars.Scope)
	vm.Set("needsBackend", vars.NeedsBackend)
	vm.Set("hasFiles", vars.HasFiles)

	val, err := vm.RunString(expression)
	if err != nil {
		return false, fmt.Errorf("expr: evaluating %q: %w", expression, err)
	}
	b, ok := val.Export().(bool)
	if !ok {
		return false, fmt.Errorf("expr: %q did not evaluate to a boolean (got %T)", expression, val.Export())
	}
	return b, nil
}
