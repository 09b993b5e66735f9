package response

import (
	"strings"

	"github.com/onnwee/twitchbot/params"
)

// Substitute replaces each {name} or {name:argument} span in text with the
// resolver's answer. Names are lower-cased before lookup. Spans the resolver
// does not know are copied through unchanged, as is everything after a '{'
// that has no closing '}'. Substituted values are not scanned again.
func Substitute(text string, r params.Resolver) string {
	var b strings.Builder
	b.Grow(len(text))
	for {
		open := strings.IndexByte(text, '{')
		if open < 0 {
			break
		}
		closing := strings.IndexByte(text[open+1:], '}')
		if closing < 0 {
			break
		}
		closing += open + 1

		b.WriteString(text[:open])
		name, arg, _ := strings.Cut(text[open+1:closing], ":")
		if v, ok := r.Lookup(strings.ToLower(name), arg); ok {
			b.WriteString(v)
		} else {
			b.WriteString(text[open : closing+1])
		}
		text = text[closing+1:]
	}
	b.WriteString(text)
	return b.String()
}
