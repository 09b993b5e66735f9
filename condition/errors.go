package condition

import "fmt"

// SyntaxError reports a condition that cannot be compiled. Offset is the byte
// position in Source where the problem was detected.
type SyntaxError struct {
	Source string
	Offset int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("condition %q: %s (offset %d)", e.Source, e.Msg, e.Offset)
}

func syntaxErrorf(src string, offset int, format string, args ...any) *SyntaxError {
	return &SyntaxError{Source: src, Offset: offset, Msg: fmt.Sprintf(format, args...)}
}
