// Package canonical implements the canonical-JSON serialization used
// uniformly for signing and hashing every attestation artifact: identities,
// credentials, presentations, delegations, and provenance entries.
//
// A value is canonicalized by recursively applying Unicode NFC to every
// string key and value, sorting object keys by UTF-16 code unit order (JCS,
// RFC 8785), emitting numbers in their shortest round-trippable form, and
// producing whitespace-free UTF-8 bytes with non-ASCII left literal.
package canonical

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"golang.org/x/text/unicode/norm"
)

// EncodingError is returned for values canonical can't deterministically
// serialize: NaN, +/-Inf, and anything else encoding/json refuses to
// marshal. Binary data is not rejected: a []byte leaf is serialized as a
// base64 string, as encoding/json does.
type EncodingError struct {
	Path   string
	Reason string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("canonical: cannot encode value at %s: %s", e.Path, e.Reason)
}

// Canonicalize returns the canonical byte serialization of v: the exact
// sequence that is signed and hashed throughout the system.
func Canonicalize(v any) ([]byte, error) {
	generic, err := toGeneric(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := encode(&buf, generic, ""); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// toGeneric round-trips v through the standard encoder so struct tags are
// respected, then decodes into interface{}/json.Number so the recursive
// encoder below has full control over formatting and ordering.
func toGeneric(v any) (any, error) {
	intermediate, err := json.Marshal(v)
	if err != nil {
		return nil, &EncodingError{Path: "$", Reason: err.Error()}
	}
	var generic any
	dec := json.NewDecoder(bytes.NewReader(intermediate))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("canonical: intermediate decode failed: %w", err)
	}
	return generic, nil
}

func encode(buf *bytes.Buffer, v any, path string) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case json.Number:
		return encodeNumber(buf, t, path)
	case string:
		return encodeString(buf, t)
	case []any:
		return encodeArray(buf, t, path)
	case map[string]any:
		return encodeObject(buf, t, path)
	default:
		return &EncodingError{Path: path, Reason: fmt.Sprintf("unsupported type %T", v)}
	}
}

func encodeNumber(buf *bytes.Buffer, n json.Number, path string) error {
	f, err := n.Float64()
	if err != nil {
		return &EncodingError{Path: path, Reason: "not a finite number"}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return &EncodingError{Path: path, Reason: "NaN/Inf has no canonical JSON form"}
	}
	// n.String() is already the shortest round-trippable textual form Go's
	// json package produced when it first parsed the input.
	buf.WriteString(n.String())
	return nil
}

func encodeString(buf *bytes.Buffer, s string) error {
	normalized := norm.NFC.String(s)
	b, err := json.Marshal(normalized)
	if err != nil {
		return fmt.Errorf("canonical: string encode failed: %w", err)
	}
	buf.Write(b)
	return nil
}

func encodeArray(buf *bytes.Buffer, arr []any, path string) error {
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encode(buf, elem, fmt.Sprintf("%s[%d]", path, i)); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

func encodeObject(buf *bytes.Buffer, obj map[string]any, path string) error {
	keys := make([]string, 0, len(obj))
	normalizedKeys := make(map[string]string, len(obj))
	for k := range obj {
		nk := norm.NFC.String(k)
		normalizedKeys[k] = nk
		keys = append(keys, k)
	}
	// RFC 8785 orders keys by UTF-16 code unit of the *normalized* key.
	sort.Slice(keys, func(i, j int) bool {
		return utf16Less(normalizedKeys[keys[i]], normalizedKeys[keys[j]])
	})

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encodeString(buf, k); err != nil {
			return err
		}
		buf.WriteByte(':')
		if err := encode(buf, obj[k], path+"/"+k); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

// utf16Less compares two strings by UTF-16 code unit sequence, as RFC 8785
// requires for object key ordering (not raw UTF-8 byte order, which differs
// for characters outside the Basic Multilingual Plane).
func utf16Less(a, b string) bool {
	ar, br := []rune(a), []rune(b)
	ai, bi := 0, 0
	for ai < len(ar) && bi < len(br) {
		au := runeToUTF16Unit(ar[ai])
		bu := runeToUTF16Unit(br[bi])
		if au != bu {
			return au < bu
		}
		if ar[ai] != br[bi] {
			// Same high surrogate: the low surrogates order the same way
			// as the code points do.
			return ar[ai] < br[bi]
		}
		ai++
		bi++
	}
	return len(ar) < len(br)
}

func runeToUTF16Unit(r rune) uint32 {
	if r < 0x10000 {
		return uint32(r)
	}
	// A rune outside the BMP is compared by its high surrogate
	// (0xD800-0xDBFF), which sorts above U+0000-U+D7FF and below
	// U+E000-U+FFFF; utf16Less breaks ties between two such runes by
	// their low surrogate.
	return 0xD800 + uint32(r-0x10000)>>10
}
