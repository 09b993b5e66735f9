package condition

import (
	"strconv"
	"strings"
)

// Parse builds the expression tree for src without caching or type checking.
//
//	expr    := operand (operator expr)?
//	operand := string | integer | boolean | parameter
func Parse(src string) (Node, error) {
	p := &parser{lex: lexer{src: src}}
	return p.expr()
}

type parser struct {
	lex lexer
}

func (p *parser) expr() (Node, error) {
	left, err := p.operand()
	if err != nil {
		return nil, err
	}
	tok, err := p.lex.next()
	if err != nil {
		return nil, err
	}
	switch tok.kind {
	case tokEOF:
		return left, nil
	case tokOperator:
		right, err := p.expr()
		if err != nil {
			return nil, err
		}
		return BinaryOp{Op: operatorSymbols[tok.text], Left: left, Right: right}, nil
	default:
		return nil, syntaxErrorf(p.lex.src, tok.pos, "expected operator after %s", left)
	}
}

func (p *parser) operand() (Node, error) {
	tok, err := p.lex.next()
	if err != nil {
		return nil, err
	}
	switch tok.kind {
	case tokString:
		return StringLiteral{Value: tok.text}, nil
	case tokParameter:
		return ParameterRef{Name: tok.text, Argument: tok.arg}, nil
	case tokWord:
		if strings.EqualFold(tok.text, "true") {
			return BooleanLiteral{Value: true}, nil
		}
		if strings.EqualFold(tok.text, "false") {
			return BooleanLiteral{Value: false}, nil
		}
		if n, err := strconv.Atoi(tok.text); err == nil {
			return IntegerLiteral{Value: n}, nil
		}
		return nil, syntaxErrorf(p.lex.src, tok.pos, "unknown word %q (parameters are written as {name})", tok.text)
	case tokCall:
		return nil, syntaxErrorf(p.lex.src, tok.pos, "method call %q is not supported", tok.text)
	case tokOperator:
		return nil, syntaxErrorf(p.lex.src, tok.pos, "expected operand, found %q", tok.text)
	default:
		return nil, syntaxErrorf(p.lex.src, tok.pos, "unexpected end of condition")
	}
}
