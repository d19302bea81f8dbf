package assessment

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ValueKind tags the variant held by a Value.
type ValueKind int

const (
	KindNone ValueKind = iota
	KindString
	KindNumber
	KindList
)

// Value is a submitted answer or an answer-key entry: a string, a number or an
// ordered list of strings. Comparisons always go through Canonical so that the
// JSON type of a value never changes the outcome of grading by accident.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	list []string
}

func StringValue(s string) Value    { return Value{kind: KindString, str: s} }
func NumberValue(f float64) Value   { return Value{kind: KindNumber, num: f} }
func ListValue(xs ...string) Value { return Value{kind: KindList, list: append([]string{}, xs...)} }

func (v Value) Kind() ValueKind { return v.kind }
func (v Value) IsZero() bool    { return v.kind == KindNone }

// Canonical returns the normalized string form. Numbers use the shortest
// decimal representation (4 and 4.0 are both "4"); lists render as a JSON
// array so they never equal a scalar.
func (v Value) Canonical() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return formatNumber(v.num)
	case KindList:
		b, _ := json.Marshal(v.list)
		return string(b)
	default:
		return ""
	}
}

// Elements returns the list members; ok is false for scalars.
func (v Value) Elements() ([]string, bool) {
	if v.kind != KindList {
		return nil, false
	}
	return v.list, true
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return []byte(formatNumber(v.num)), nil
	case KindList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	default:
		return []byte("null"), nil
	}
}

func (v *Value) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return invalid("empty answer value")
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return invalid("answer value: %v", err)
		}
		*v = StringValue(s)
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(b, &raw); err != nil {
			return invalid("answer value: %v", err)
		}
		out := make([]string, 0, len(raw))
		for _, r := range raw {
			var el Value
			if err := el.UnmarshalJSON(r); err != nil {
				return err
			}
			if el.kind == KindList {
				return invalid("nested lists are not allowed in answer values")
			}
			out = append(out, el.Canonical())
		}
		*v = Value{kind: KindList, list: out}
	case 'n', 't', 'f', '{':
		return invalid("answer value must be a string, number or list of strings")
	default:
		f, err := strconv.ParseFloat(string(b), 64)
		if err != nil {
			return invalid("answer value: %v", err)
		}
		*v = NumberValue(f)
	}
	return nil
}

// Values is a list of Values, used for answer keys.
type Values []Value

func (vs Values) Canonical() []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		out = append(out, v.Canonical())
	}
	return out
}

// numeric turns a string that spells a finite number into a number Value,
// so "4.0" and 4 compare equal on number questions.
func (v Value) numeric() Value {
	if v.kind != KindString {
		return v
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return v
	}
	return NumberValue(f)
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func encodeValue(v Value) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", errors.Wrap(err, "encode answer value")
	}
	return string(b), nil
}

func decodeValue(s string) (Value, error) {
	var v Value
	if s == "" || s == "null" {
		return v, nil
	}
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return Value{}, errors.Wrap(err, "decode answer value")
	}
	return v, nil
}
