package condition

import (
	"fmt"
	"strconv"
	"testing"

	"pgregory.net/rapid"
)

// Parsed comparisons must agree with direct Go evaluation for any pair of
// numeric operands.
func TestComparison_NumericProperty(t *testing.T) {
	ops := map[string]func(a, b float64) bool{
		">":  func(a, b float64) bool { return a > b },
		">=": func(a, b float64) bool { return a >= b },
		"<":  func(a, b float64) bool { return a < b },
		"<=": func(a, b float64) bool { return a <= b },
		"==": func(a, b float64) bool { return a == b },
		"!=": func(a, b float64) bool { return a != b },
	}
	names := []string{">", ">=", "<", "<=", "==", "!="}

	rapid.Check(t, func(t *rapid.T) {
		a := rapid.Float64Range(-1e6, 1e6).Draw(t, "a")
		b := rapid.Float64Range(-1e6, 1e6).Draw(t, "b")
		op := rapid.SampledFrom(names).Draw(t, "op")

		src := fmt.Sprintf("payload.value %s %s", op, strconv.FormatFloat(b, 'f', -1, 64))
		ast, err := Parse(src)
		if err != nil {
			t.Fatalf("Parse(%q): %v", src, err)
		}
		got, err := Evaluate(ast, mapCtx{"payload": map[string]interface{}{"value": a}})
		if err != nil {
			t.Fatalf("Evaluate(%q): %v", src, err)
		}
		if want := ops[op](a, b); got != want {
			t.Fatalf("%v %s %v = %v, want %v", a, op, b, got, want)
		}
	})
}

// String equality must hold for any literal the tokenizer can represent.
func TestComparison_StringProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := rapid.StringMatching(`[a-zA-Z0-9_ .:-]{0,24}`).Draw(t, "s")
		src := fmt.Sprintf("payload.name == %q", s)
		ast, err := Parse(src)
		if err != nil {
			t.Fatalf("Parse(%q): %v", src, err)
		}
		got, err := Evaluate(ast, mapCtx{"payload": map[string]interface{}{"name": s}})
		if err != nil {
			t.Fatalf("Evaluate(%q): %v", src, err)
		}
		if !got {
			t.Fatalf("equality failed for %q", s)
		}
	})
}

// Double negation must not change the result.
func TestNot_InvolutionProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := rapid.Float64Range(-100, 100).Draw(t, "a")
		b := rapid.Float64Range(-100, 100).Draw(t, "b")
		data := mapCtx{"payload": map[string]interface{}{"value": a}}

		plain := fmt.Sprintf("payload.value > %s", strconv.FormatFloat(b, 'f', -1, 64))
		doubled := "NOT NOT (" + plain + ")"

		p, err := Parse(plain)
		if err != nil {
			t.Fatalf("Parse(%q): %v", plain, err)
		}
		d, err := Parse(doubled)
		if err != nil {
			t.Fatalf("Parse(%q): %v", doubled, err)
		}
		pv, err := Evaluate(p, data)
		if err != nil {
			t.Fatalf("Evaluate(%q): %v", plain, err)
		}
		dv, err := Evaluate(d, data)
		if err != nil {
			t.Fatalf("Evaluate(%q): %v", doubled, err)
		}
		if pv != dv {
			t.Fatalf("NOT NOT changed result: %v vs %v", pv, dv)
		}
	})
}
