package model

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Score is a salience component as sent by an extraction service. Numbers
// and numeric strings are accepted; anything else leaves Valid false.
// Decoding a Score never fails.
type Score struct {
	Value float64
	Valid bool
}

func (s *Score) UnmarshalJSON(b []byte) error {
	*s = Score{}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil
	}
	switch x := v.(type) {
	case float64:
		s.Value, s.Valid = x, true
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
			s.Value, s.Valid = f, true
		}
	}
	if s.Valid && (math.IsNaN(s.Value) || math.IsInf(s.Value, 0)) {
		*s = Score{}
	}
	return nil
}

// Or returns the clamped value, or def when the score was missing or invalid.
func (s Score) Or(def float64) float64 {
	if !s.Valid {
		return def
	}
	return Clamp01(s.Value, def)
}

// DraftSalience is a salience object as sent by an extraction service.
// Present is false when the field was absent or not an object.
type DraftSalience struct {
	Novelty    Score `json:"novelty"`
	Relevance  Score `json:"relevance"`
	Emotional  Score `json:"emotional"`
	Predictive Score `json:"predictive"`
	Present    bool  `json:"-"`
}

func (d *DraftSalience) UnmarshalJSON(b []byte) error {
	*d = DraftSalience{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '{' {
		return nil
	}
	var aux struct {
		Novelty    Score `json:"novelty"`
		Relevance  Score `json:"relevance"`
		Emotional  Score `json:"emotional"`
		Predictive Score `json:"predictive"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return nil
	}
	d.Novelty, d.Relevance, d.Emotional, d.Predictive = aux.Novelty, aux.Relevance, aux.Emotional, aux.Predictive
	d.Present = true
	return nil
}

// Resolve fills every missing or invalid component from fallback. When the
// whole object was absent, fallback is returned as is.
func (d DraftSalience) Resolve(fallback Salience) Salience {
	if !d.Present {
		return fallback
	}
	return Salience{
		Novelty:    d.Novelty.Or(fallback.Novelty),
		Relevance:  d.Relevance.Or(fallback.Relevance),
		Emotional:  d.Emotional.Or(fallback.Emotional),
		Predictive: d.Predictive.Or(fallback.Predictive),
	}
}

// Labels is a list of strings as sent by an extraction service, used for
// tags and id lists. Non-string entries are dropped. Set is false when the
// field was absent, null, or not an array.
type Labels struct {
	Values []string
	Set    bool
}

func (l *Labels) UnmarshalJSON(b []byte) error {
	*l = Labels{}
	var raw []any
	if err := json.Unmarshal(b, &raw); err != nil || raw == nil {
		return nil
	}
	l.Set = true
	l.Values = make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			l.Values = append(l.Values, s)
		}
	}
	return nil
}

// Tags returns the labels cut to MaxTags, or def when unset.
func (l Labels) Tags(def []string) []string {
	if !l.Set {
		return TruncateTags(def)
	}
	return TruncateTags(l.Values)
}

// Contains reports whether id is one of the labels.
func (l Labels) Contains(id string) bool {
	for _, v := range l.Values {
		if v == id {
			return true
		}
	}
	return false
}

// Text is a string field as sent by an extraction service. Anything other
// than a JSON string decodes as empty.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		*t = ""
		return nil
	}
	*t = Text(s)
	return nil
}

// Blank reports whether t holds only whitespace.
func (t Text) Blank() bool { return strings.TrimSpace(string(t)) == "" }
