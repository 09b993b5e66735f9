package response

import (
	"github.com/onnwee/twitchbot/condition"
	"github.com/onnwee/twitchbot/params"
)

// Element is one guarded branch of a Logic. Its condition is compiled when
// the element is built so malformed configuration fails at load time.
type Element struct {
	Condition string
	Message   Message

	pred *condition.Predicate
}

// NewElement compiles cond with e and pairs it with msg. An empty cond always
// matches.
func NewElement(e *condition.Engine, cond string, msg Message) (Element, error) {
	pred, err := e.Compile(cond)
	if err != nil {
		return Element{}, err
	}
	return Element{Condition: cond, Message: msg, pred: pred}, nil
}

// Matches evaluates the element's condition. Unconditional elements always
// match; a conditional element never matches without a resolver.
func (el Element) Matches(r params.Resolver) bool {
	if el.pred == nil {
		return true
	}
	if r == nil {
		return false
	}
	return el.pred.Eval(r)
}

// Logic is an ordered list of elements.
type Logic struct {
	Elements []Element
}

// Text returns a Logic with a single unconditional element.
func Text(variants ...string) Logic {
	if len(variants) == 0 {
		return Logic{}
	}
	return Logic{Elements: []Element{{Message: NewMessage(variants...)}}}
}

// Empty reports whether the logic can never produce output.
func (l Logic) Empty() bool {
	for _, el := range l.Elements {
		if !el.Message.Empty() {
			return false
		}
	}
	return true
}

// Select returns the first element whose condition holds.
func (l Logic) Select(r params.Resolver) (Element, bool) {
	for _, el := range l.Elements {
		if el.Matches(r) {
			return el, true
		}
	}
	return Element{}, false
}

// Evaluate renders the first matching element. It reports false when nothing
// matches or the matching element has no variants; silence is a valid result.
func (l Logic) Evaluate(r params.Resolver) (string, bool) {
	el, ok := l.Select(r)
	if !ok {
		return "", false
	}
	return el.Message.Render(r)
}
