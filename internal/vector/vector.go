// Package vector converts embeddings to and from the textual form used by
// vector columns ("[0.100000,0.200000]") and computes cosine similarity.
//
// Stored embeddings come back in different shapes depending on the read
// path: a native array from one API, a bracketed string from another. [Parse]
// accepts all of them and reports anything else as [ErrMalformed]; [Decode]
// is the lenient form that returns an empty vector instead of an error.
package vector

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformed is returned by [Parse] when a value cannot be read as a vector.
var ErrMalformed = errors.New("vector: malformed embedding")

// Encode formats vec as a bracketed, comma-separated list with six decimal
// places per component.
func Encode(vec []float32) string {
	var b strings.Builder
	b.Grow(len(vec)*10 + 2)
	b.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'f', 6, 64))
	}
	b.WriteByte(']')
	return b.String()
}

// Decode is the lenient form of [Parse]: any value that cannot be parsed
// yields an empty (nil) vector.
func Decode(v any) []float32 {
	vec, err := Parse(v)
	if err != nil {
		return nil
	}
	return vec
}

// Parse reads an embedding from any of the representations a datastore may
// return. A nil value parses to an empty vector without error.
func Parse(v any) ([]float32, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []float32:
		return t, nil
	case []float64:
		out := make([]float32, len(t))
		for i, f := range t {
			out[i] = float32(f)
		}
		return out, nil
	case []any:
		return parseSlice(t)
	case string:
		return parseText(t)
	case *string:
		if t == nil {
			return nil, nil
		}
		return parseText(*t)
	case json.RawMessage:
		return parseRaw(t)
	case []byte:
		return parseRaw(t)
	default:
		return nil, fmt.Errorf("%w: unsupported type %T", ErrMalformed, v)
	}
}

func parseSlice(items []any) ([]float32, error) {
	out := make([]float32, 0, len(items))
	for i, item := range items {
		switch n := item.(type) {
		case float64:
			out = append(out, float32(n))
		case float32:
			out = append(out, n)
		case int:
			out = append(out, float32(n))
		case int64:
			out = append(out, float32(n))
		case json.Number:
			f, err := n.Float64()
			if err != nil {
				return nil, fmt.Errorf("%w: element %d: %v", ErrMalformed, i, err)
			}
			out = append(out, float32(f))
		default:
			return nil, fmt.Errorf("%w: element %d has type %T", ErrMalformed, i, item)
		}
	}
	return out, nil
}

// parseText strips the surrounding brackets and parses each comma-separated
// token. Empty tokens are skipped, so "[1,2,]" parses as [1 2].
func parseText(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")

	var out []float32
	for _, tok := range strings.Split(s, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		f, err := strconv.ParseFloat(tok, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrMalformed, tok)
		}
		out = append(out, float32(f))
	}
	return out, nil
}

// parseRaw handles JSON payloads, where the embedding is either a JSON array
// or a JSON string holding the bracketed text form.
func parseRaw(b []byte) ([]float32, error) {
	trimmed := strings.TrimSpace(string(b))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return parseText(s)
	case '[':
		var fs []float32
		if err := json.Unmarshal(b, &fs); err == nil {
			return fs, nil
		}
		return parseText(trimmed)
	default:
		return nil, fmt.Errorf("%w: unexpected JSON value", ErrMalformed)
	}
}
