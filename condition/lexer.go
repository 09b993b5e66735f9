package condition

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokString
	tokParameter
	tokOperator
	tokWord
	tokCall
)

type token struct {
	kind tokenKind
	text string
	arg  string
	pos  int
}

const operatorChars = "&|=!<>"

type lexer struct {
	src string
	pos int
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.src) {
		r, size := utf8.DecodeRuneInString(l.src[l.pos:])
		if !unicode.IsSpace(r) {
			return
		}
		l.pos += size
	}
}

func (l *lexer) next() (token, error) {
	l.skipSpace()
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, pos: l.pos}, nil
	}
	start := l.pos
	c := l.src[l.pos]
	switch {
	case c == '\'':
		return l.readString()
	case c == '{':
		return l.readParameter()
	case strings.IndexByte(operatorChars, c) >= 0:
		for l.pos < len(l.src) && strings.IndexByte(operatorChars, l.src[l.pos]) >= 0 {
			l.pos++
		}
		sym := l.src[start:l.pos]
		if _, ok := operatorSymbols[sym]; !ok {
			return token{}, syntaxErrorf(l.src, start, "unknown operator %q", sym)
		}
		return token{kind: tokOperator, text: sym, pos: start}, nil
	case c == '(':
		return token{}, syntaxErrorf(l.src, start, "unexpected '('")
	}
	return l.readWord()
}

// readString reads a '...' literal. \' and \\ are the only escapes; any other
// backslash is kept as written.
func (l *lexer) readString() (token, error) {
	start := l.pos
	l.pos++ // opening quote
	var b strings.Builder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == '\\' && l.pos+1 < len(l.src) && (l.src[l.pos+1] == '\'' || l.src[l.pos+1] == '\\'):
			b.WriteByte(l.src[l.pos+1])
			l.pos += 2
		case c == '\'':
			l.pos++
			return token{kind: tokString, text: b.String(), pos: start}, nil
		default:
			b.WriteByte(c)
			l.pos++
		}
	}
	return token{}, syntaxErrorf(l.src, start, "unterminated string literal")
}

func (l *lexer) readParameter() (token, error) {
	start := l.pos
	end := strings.IndexByte(l.src[start+1:], '}')
	if end < 0 {
		return token{}, syntaxErrorf(l.src, start, "unterminated parameter")
	}
	body := l.src[start+1 : start+1+end]
	l.pos = start + end + 2
	name, arg, _ := strings.Cut(body, ":")
	name = strings.TrimSpace(name)
	if name == "" {
		return token{}, syntaxErrorf(l.src, start, "empty parameter name")
	}
	return token{kind: tokParameter, text: name, arg: arg, pos: start}, nil
}

// readWord reads a bare word up to whitespace or the start of another token.
// A word directly followed by '(' is reported as a call so the parser can
// reject it with a useful message.
func (l *lexer) readWord() (token, error) {
	start := l.pos
	for l.pos < len(l.src) {
		r, size := utf8.DecodeRuneInString(l.src[l.pos:])
		if unicode.IsSpace(r) || r == '\'' || r == '{' || strings.ContainsRune(operatorChars, r) {
			break
		}
		if r == '(' {
			return token{kind: tokCall, text: l.src[start:l.pos], pos: start}, nil
		}
		l.pos += size
	}
	return token{kind: tokWord, text: l.src[start:l.pos], pos: start}, nil
}
