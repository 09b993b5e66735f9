package condition

import (
	"strconv"
	"strings"
)

// Op is a binary operator.
type Op int

const (
	OpAnd Op = iota + 1
	OpOr
	OpEq
	OpNeq
	OpGt
	OpLt
	OpGe
	OpLe
)

var operatorSymbols = map[string]Op{
	"&&": OpAnd,
	"||": OpOr,
	"==": OpEq,
	"!=": OpNeq,
	">":  OpGt,
	"<":  OpLt,
	">=": OpGe,
	"<=": OpLe,
}

// String returns the upper-case operator name used in tree dumps.
func (o Op) String() string {
	switch o {
	case OpAnd:
		return "AND"
	case OpOr:
		return "OR"
	case OpEq:
		return "EQ"
	case OpNeq:
		return "NEQ"
	case OpGt:
		return "GT"
	case OpLt:
		return "LT"
	case OpGe:
		return "GE"
	case OpLe:
		return "LE"
	default:
		return "OP(" + strconv.Itoa(int(o)) + ")"
	}
}

func (o Op) logical() bool  { return o == OpAnd || o == OpOr }
func (o Op) ordering() bool { return o == OpGt || o == OpLt || o == OpGe || o == OpLe }

// Node is an immutable expression tree node. The set of node types is closed.
type Node interface {
	String() string
	node()
}

// StringLiteral is a quoted literal.
type StringLiteral struct{ Value string }

// BooleanLiteral is true or false.
type BooleanLiteral struct{ Value bool }

// IntegerLiteral is a whole number.
type IntegerLiteral struct{ Value int }

// ParameterRef is a {name} or {name:argument} reference resolved per event.
type ParameterRef struct {
	Name     string
	Argument string
}

// BinaryOp applies Op to two operands.
type BinaryOp struct {
	Op          Op
	Left, Right Node
}

func (StringLiteral) node()  {}
func (BooleanLiteral) node() {}
func (IntegerLiteral) node() {}
func (ParameterRef) node()   {}
func (BinaryOp) node()       {}

func (n StringLiteral) String() string  { return "'" + strings.ReplaceAll(n.Value, "'", `\'`) + "'" }
func (n BooleanLiteral) String() string { return strconv.FormatBool(n.Value) }
func (n IntegerLiteral) String() string { return strconv.Itoa(n.Value) }

func (n ParameterRef) String() string {
	if n.Argument != "" {
		return "{" + n.Name + ":" + n.Argument + "}"
	}
	return "{" + n.Name + "}"
}

func (n BinaryOp) String() string {
	return n.Op.String() + "(" + n.Left.String() + ", " + n.Right.String() + ")"
}
