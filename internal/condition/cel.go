package condition

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// celCostLimit bounds evaluation cost so a hostile or runaway expression
// cannot exhaust the dispatcher.
const celCostLimit = 1_000_000

var (
	celEnvOnce sync.Once
	celEnv     *cel.Env
	celEnvErr  error
)

// env exposes the event to CEL as three dynamic top-level variables,
// matching the field paths the native expression language resolves.
func celEnvironment() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = cel.NewEnv(
			cel.Variable("event", cel.DynType),
			cel.Variable("payload", cel.DynType),
			cel.Variable("meta", cel.DynType),
		)
	})
	return celEnv, celEnvErr
}

// ActivationProvider is implemented by evaluation contexts that can expose
// the full event as a CEL activation map. Contexts that only support
// path resolution cannot evaluate "cel" conditions.
type ActivationProvider interface {
	Activation() map[string]interface{}
}

// CELExpr wraps a compiled CEL program as an expression-tree leaf.
type CELExpr struct {
	Source  string
	program cel.Program
}

func (*CELExpr) exprNode() {}

// CompileCEL compiles src once; the returned CELExpr is safe for concurrent
// evaluation.
func CompileCEL(src string) (*CELExpr, error) {
	env, err := celEnvironment()
	if err != nil {
		return nil, fmt.Errorf("cel environment: %w", err)
	}
	ast, issues := env.Compile(src)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("cel compile: %w", issues.Err())
	}
	prog, err := env.Program(ast, cel.CostLimit(celCostLimit))
	if err != nil {
		return nil, fmt.Errorf("cel program: %w", err)
	}
	return &CELExpr{Source: src, program: prog}, nil
}

func (c *CELExpr) eval(ctx EvalContext) (bool, error) {
	ap, ok := ctx.(ActivationProvider)
	if !ok {
		return false, fmt.Errorf("cel: evaluation context does not expose an activation")
	}
	out, _, err := c.program.Eval(ap.Activation())
	if err != nil {
		return false, fmt.Errorf("cel eval: %w", err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		// Non-boolean results never match.
		return false, nil
	}
	return b, nil
}
