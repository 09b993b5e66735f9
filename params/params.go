// Package params defines the parameter resolver shared by condition evaluation
// and template substitution.
//
// A Resolver answers a lookup of a named placeholder such as {username} or
// {random:20}. Names arrive lower-cased; the argument is the text after the
// first ':' inside the braces, or "" when there is none. The boolean result
// reports whether the resolver knows the name at all. An unknown name is not
// an error: conditions treat it as an empty string and templates leave the
// placeholder text untouched.
package params

import "strconv"

// Resolver maps (name, argument) to a value for a single chat event.
type Resolver func(name, argument string) (string, bool)

// Lookup calls r, treating a nil resolver as one that knows nothing.
func (r Resolver) Lookup(name, argument string) (string, bool) {
	if r == nil {
		return "", false
	}
	return r(name, argument)
}

// None is a resolver that never answers.
func None(string, string) (string, bool) { return "", false }

// Values is a fixed set of argument-independent answers.
type Values map[string]string

// Over returns a resolver that answers from v first and falls back to base.
func (v Values) Over(base Resolver) Resolver {
	return func(name, argument string) (string, bool) {
		if s, ok := v[name]; ok {
			return s, true
		}
		return base.Lookup(name, argument)
	}
}

// Chain returns a resolver that asks each resolver in turn and returns the
// first answer.
func Chain(resolvers ...Resolver) Resolver {
	return func(name, argument string) (string, bool) {
		for _, r := range resolvers {
			if s, ok := r.Lookup(name, argument); ok {
				return s, true
			}
		}
		return "", false
	}
}

// Bool renders a flag the way chat templates historically displayed it.
func Bool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// Int renders an integer parameter.
func Int(n int) string { return strconv.Itoa(n) }
