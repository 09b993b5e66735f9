// Package response models operator-authored replies: a Message is a set of
// alternative texts, and a Logic is an ordered list of conditionally guarded
// messages where the first matching element wins.
package response

import (
	"math/rand/v2"

	"github.com/onnwee/twitchbot/params"
)

// Message holds alternative texts for one reply. One variant is chosen
// uniformly at random each time it is rendered.
type Message struct {
	Variants []string
}

// NewMessage returns a Message with the given variants.
func NewMessage(variants ...string) Message {
	return Message{Variants: variants}
}

// Empty reports whether the message has nothing to say.
func (m Message) Empty() bool { return len(m.Variants) == 0 }

// Render picks a variant and substitutes its parameters. It reports false
// when the message has no variants.
func (m Message) Render(r params.Resolver) (string, bool) {
	return m.render(r, rand.IntN)
}

func (m Message) render(r params.Resolver, intN func(int) int) (string, bool) {
	switch len(m.Variants) {
	case 0:
		return "", false
	case 1:
		return Substitute(m.Variants[0], r), true
	}
	return Substitute(m.Variants[intN(len(m.Variants))], r), true
}
