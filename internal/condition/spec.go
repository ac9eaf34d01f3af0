package condition

import (
	"fmt"
	"strings"
)

// Spec kinds. "expr" and "cel" are leaf kinds holding a source string; the
// rest form the structural predicate tree.
const (
	KindCmp  = "cmp"
	KindAnd  = "and"
	KindOr   = "or"
	KindNot  = "not"
	KindExpr = "expr"
	KindCel  = "cel"
)

// Spec is the stored wire form of a rule condition: a tagged union keyed by
// Kind. Exactly the fields belonging to the kind may be set:
//
//	{"kind":"cmp","field":"payload.amount","op":">","value":1000}
//	{"kind":"and","all":[…]}   {"kind":"or","any":[…]}   {"kind":"not","of":{…}}
//	{"kind":"expr","expr":"payload.amount > 1000 AND payload.category == \"food\""}
//	{"kind":"cel","expr":"payload.amount > 1000"}
type Spec struct {
	Kind  string      `json:"kind" yaml:"kind"`
	Field string      `json:"field,omitempty" yaml:"field,omitempty"`
	Op    string      `json:"op,omitempty" yaml:"op,omitempty"`
	Value interface{} `json:"value,omitempty" yaml:"value,omitempty"`
	All   []Spec      `json:"all,omitempty" yaml:"all,omitempty"`
	Any   []Spec      `json:"any,omitempty" yaml:"any,omitempty"`
	Of    *Spec       `json:"of,omitempty" yaml:"of,omitempty"`
	Expr  string      `json:"expr,omitempty" yaml:"expr,omitempty"`
}

var knownOps = map[Operator]struct{}{
	OpEq: {}, OpNeq: {}, OpGt: {}, OpGte: {}, OpLt: {}, OpLte: {},
	OpContains: {}, OpMatches: {},
}

// Compile turns a Spec into an evaluable expression tree. A malformed spec
// is a configuration error: callers treat it as fail-closed (NOT_MATCHED).
func (s *Spec) Compile() (Expr, error) {
	switch s.Kind {
	case KindCmp:
		if s.Field == "" {
			return nil, fmt.Errorf("cmp: field is required")
		}
		op := Operator(s.Op)
		if _, ok := knownOps[op]; !ok {
			return nil, fmt.Errorf("cmp: unknown operator %q", s.Op)
		}
		return &ComparisonExpr{
			Left:  &FieldOperand{Path: strings.Split(s.Field, ".")},
			Op:    op,
			Right: &LiteralOperand{Value: normalizeLiteral(s.Value)},
		}, nil

	case KindAnd:
		return s.compileChain("and", s.All, "AND")

	case KindOr:
		return s.compileChain("or", s.Any, "OR")

	case KindNot:
		if s.Of == nil {
			return nil, fmt.Errorf("not: 'of' is required")
		}
		inner, err := s.Of.Compile()
		if err != nil {
			return nil, err
		}
		return &NotExpr{Expr: inner}, nil

	case KindExpr:
		if s.Expr == "" {
			return nil, fmt.Errorf("expr: expression is required")
		}
		return Parse(s.Expr)

	case KindCel:
		if s.Expr == "" {
			return nil, fmt.Errorf("cel: expression is required")
		}
		return CompileCEL(s.Expr)

	default:
		return nil, fmt.Errorf("unknown condition kind %q", s.Kind)
	}
}

func (s *Spec) compileChain(kind string, children []Spec, op string) (Expr, error) {
	if len(children) == 0 {
		return nil, fmt.Errorf("%s: at least one child is required", kind)
	}
	left, err := children[0].Compile()
	if err != nil {
		return nil, err
	}
	for i := 1; i < len(children); i++ {
		right, err := children[i].Compile()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: op, Left: left, Right: right}
	}
	return left, nil
}

// normalizeLiteral widens integer literals coming from YAML/JSON decoders so
// comparisons behave like parsed expression literals (always float64).
func normalizeLiteral(v interface{}) interface{} {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint64:
		return float64(n)
	case float32:
		return float64(n)
	}
	return v
}
