// Package repair recovers well-formed JSON from model output that may be
// wrapped in markdown fences or cut off mid-structure by a token limit.
//
// Recovery only ever removes trailing text and closes brackets that were
// already open; it never invents values. When the cut lands inside an array
// element, that element is dropped and every earlier complete element kept.
package repair

import (
	"encoding/json"
	"errors"
	"strings"
)

var (
	// ErrUnrecoverable is returned when no well-formed prefix could be found.
	ErrUnrecoverable = errors.New("unrecoverable structured output")
	// ErrNotArray is returned by ParseArray for well-formed non-array values.
	ErrNotArray = errors.New("structured output is not an array")
)

var fences = strings.NewReplacer("```json", "", "```JSON", "", "```", "")

// Parse returns the JSON value encoded in raw, repairing truncation when
// strict parsing fails.
func Parse(raw string) (json.RawMessage, error) {
	s := strings.TrimSpace(fences.Replace(raw))
	if json.Valid([]byte(s)) {
		return json.RawMessage(s), nil
	}

	// Drop any leading prose before the structure starts.
	start := strings.IndexAny(s, "[{")
	if start < 0 {
		return nil, ErrUnrecoverable
	}
	s = s[start:]
	if json.Valid([]byte(s)) {
		return json.RawMessage(s), nil
	}

	cuts := boundaries(s)
	for i := len(cuts) - 1; i >= 0; i-- {
		attempt := s[:cuts[i].pos] + closers(cuts[i].open)
		if json.Valid([]byte(attempt)) {
			return json.RawMessage(attempt), nil
		}
	}
	return nil, ErrUnrecoverable
}

// ParseArray is Parse restricted to arrays of elements.
func ParseArray(raw string) ([]json.RawMessage, error) {
	v, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	var out []json.RawMessage
	if err := json.Unmarshal(v, &out); err != nil || out == nil {
		return nil, ErrNotArray
	}
	return out, nil
}

type cut struct {
	pos  int    // truncate s[:pos]
	open []byte // brackets still open at pos, outermost first
}

// boundaries scans s and records every position just after a complete
// object or array that is either an element of the outermost array or a
// direct member of a top-level object. Those are the places where cutting
// loses only whole trailing values.
func boundaries(s string) []cut {
	var (
		stack   []byte
		cuts    []cut
		inStr   bool
		escaped bool
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inStr {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			if len(stack) == 0 {
				return cuts
			}
			stack = stack[:len(stack)-1]
			if keepsWholeValues(stack) {
				open := make([]byte, len(stack))
				copy(open, stack)
				cuts = append(cuts, cut{pos: i + 1, open: open})
			}
		}
	}
	return cuts
}

func keepsWholeValues(stack []byte) bool {
	switch {
	case len(stack) == 0:
		return true
	case len(stack) == 1 && stack[0] == '{':
		return true
	}
	top := len(stack) - 1
	if stack[top] != '[' {
		return false
	}
	for i := 0; i < top; i++ {
		if stack[i] == '[' {
			return false
		}
	}
	return true
}

func closers(open []byte) string {
	var b strings.Builder
	for i := len(open) - 1; i >= 0; i-- {
		if open[i] == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return b.String()
}
