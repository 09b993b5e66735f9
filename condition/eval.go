package condition

import (
	"strconv"
	"strings"

	"github.com/onnwee/twitchbot/params"
)

type kind int

const (
	kindString kind = iota
	kindBool
	kindInt
)

func (k kind) String() string {
	switch k {
	case kindBool:
		return "boolean"
	case kindInt:
		return "integer"
	default:
		return "string"
	}
}

type value struct {
	kind kind
	s    string
	b    bool
	i    int
}

// check infers the static kind of n and rejects operands that no coercion
// can serve.
func check(src string, n Node) (kind, error) {
	switch n := n.(type) {
	case StringLiteral, ParameterRef:
		return kindString, nil
	case BooleanLiteral:
		return kindBool, nil
	case IntegerLiteral:
		return kindInt, nil
	case BinaryOp:
		lk, err := check(src, n.Left)
		if err != nil {
			return 0, err
		}
		rk, err := check(src, n.Right)
		if err != nil {
			return 0, err
		}
		if n.Op.ordering() && (lk == kindBool || rk == kindBool) {
			return 0, syntaxErrorf(src, 0, "%s cannot order %s and %s in %s", n.Op, lk, rk, n)
		}
		return kindBool, nil
	}
	return 0, syntaxErrorf(src, 0, "unsupported node %T", n)
}

func eval(n Node, r params.Resolver) value {
	switch n := n.(type) {
	case StringLiteral:
		return value{kind: kindString, s: n.Value}
	case BooleanLiteral:
		return value{kind: kindBool, b: n.Value}
	case IntegerLiteral:
		return value{kind: kindInt, i: n.Value}
	case ParameterRef:
		// Conditions only see the parameter name; an unanswered lookup is "".
		s, _ := r.Lookup(strings.ToLower(n.Name), "")
		return value{kind: kindString, s: s}
	case BinaryOp:
		return evalBinary(n, r)
	}
	return value{kind: kindBool}
}

func evalBinary(n BinaryOp, r params.Resolver) value {
	switch n.Op {
	case OpAnd:
		return boolValue(truthy(eval(n.Left, r)) && truthy(eval(n.Right, r)))
	case OpOr:
		return boolValue(truthy(eval(n.Left, r)) || truthy(eval(n.Right, r)))
	case OpEq:
		return boolValue(equal(eval(n.Left, r), eval(n.Right, r)))
	case OpNeq:
		return boolValue(!equal(eval(n.Left, r), eval(n.Right, r)))
	}
	l, rr := number(eval(n.Left, r)), number(eval(n.Right, r))
	switch n.Op {
	case OpGt:
		return boolValue(l > rr)
	case OpLt:
		return boolValue(l < rr)
	case OpGe:
		return boolValue(l >= rr)
	case OpLe:
		return boolValue(l <= rr)
	}
	return boolValue(false)
}

func boolValue(b bool) value { return value{kind: kindBool, b: b} }

// truthy is the boolean coercion used by && and || and by the predicate
// result itself.
func truthy(v value) bool {
	switch v.kind {
	case kindBool:
		return v.b
	case kindInt:
		return v.i > 0
	default:
		return strings.EqualFold(strings.TrimSpace(v.s), "true")
	}
}

// number is the integer coercion used by ordering operators.
func number(v value) int {
	switch v.kind {
	case kindInt:
		return v.i
	case kindString:
		n, err := strconv.Atoi(strings.TrimSpace(v.s))
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}

func equal(a, b value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case kindBool:
		return a.b == b.b
	case kindInt:
		return a.i == b.i
	default:
		return a.s == b.s
	}
}
