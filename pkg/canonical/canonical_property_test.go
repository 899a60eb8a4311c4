package canonical

import (
	"encoding/json"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestCanonicalize_IsIdempotent checks the invariant every signer and
// verifier in this system depends on: canonicalizing a value twice, or
// canonicalizing the JSON round-trip of an already-canonical document,
// always reproduces the exact same bytes. Map key order in Go is randomized
// per run, which makes this property worth generating over rather than
// asserting on a single fixed example.
func TestCanonicalize_IsIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	toAny := func(m map[string]string) map[string]any {
		v := make(map[string]any, len(m))
		for k, val := range m {
			v[k] = val
		}
		return v
	}

	properties.Property("Canonicalize(v) run twice yields identical bytes", prop.ForAll(
		func(m map[string]string) bool {
			v := toAny(m)
			first, err1 := Canonicalize(v)
			second, err2 := Canonicalize(v)
			if err1 != nil || err2 != nil {
				return err1 != nil && err2 != nil
			}
			return string(first) == string(second)
		},
		gen.MapOf(gen.AlphaString(), gen.AlphaString()),
	))

	properties.Property("re-canonicalizing canonical output is a fixed point", prop.ForAll(
		func(m map[string]string) bool {
			out, err := Canonicalize(toAny(m))
			if err != nil {
				return false
			}
			var roundTripped map[string]any
			if err := json.Unmarshal(out, &roundTripped); err != nil {
				return false
			}
			again, err := Canonicalize(roundTripped)
			if err != nil {
				return false
			}
			return string(out) == string(again)
		},
		gen.MapOf(gen.AlphaString(), gen.AlphaString()),
	))

	properties.TestingRun(t)
}
