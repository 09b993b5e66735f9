package params

import "testing"

func TestValuesOverFallsBack(t *testing.T) {
	base := Resolver(func(name, argument string) (string, bool) {
		if name == "channel" {
			return "somechannel", true
		}
		return "", false
	})
	r := Values{"username": "ann"}.Over(base)

	if got, ok := r("username", ""); !ok || got != "ann" {
		t.Errorf("username = %q,%v want ann,true", got, ok)
	}
	if got, ok := r("channel", ""); !ok || got != "somechannel" {
		t.Errorf("channel = %q,%v want somechannel,true", got, ok)
	}
	if _, ok := r("missing", ""); ok {
		t.Errorf("missing should be absent")
	}
}

func TestChainOrder(t *testing.T) {
	first := Values{"a": "1"}.Over(nil)
	second := Values{"a": "2", "b": "3"}.Over(nil)
	r := Chain(first, nil, second)

	if got, _ := r("a", ""); got != "1" {
		t.Errorf("a = %q, want 1", got)
	}
	if got, _ := r("b", ""); got != "3" {
		t.Errorf("b = %q, want 3", got)
	}
}

func TestNilResolverLookup(t *testing.T) {
	var r Resolver
	if _, ok := r.Lookup("x", ""); ok {
		t.Error("nil resolver must not answer")
	}
}

func TestBool(t *testing.T) {
	if Bool(true) != "True" || Bool(false) != "False" {
		t.Errorf("Bool rendering mismatch: %q %q", Bool(true), Bool(false))
	}
}
