// Package validate runs declarative field rules against request input.
//
// A rule list is evaluated eagerly: every failing rule contributes one
// FieldError, so a single field may report several problems.
package validate

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Location names where a rule reads its field from
type Location string

const (
	Body  Location = "body"
	Param Location = "param"
)

// Check inspects a field value. v is nil when the field is absent.
type Check func(v any) bool

// Rule is one {location, field, check, message} tuple
type Rule struct {
	Location Location
	Field    string
	Check    Check
	Message  string
}

// Rules is an ordered rule list for one route
type Rules []Rule

// FieldError describes one failed rule
type FieldError struct {
	Field    string   `json:"field"`
	Location Location `json:"location"`
	Message  string   `json:"message"`
	Value    any      `json:"value,omitempty"`
}

// Input is the request data rules are evaluated against
type Input struct {
	Body   map[string]any
	Params map[string]string
}

func (in Input) lookup(loc Location, field string) any {
	switch loc {
	case Param:
		if v, ok := in.Params[field]; ok {
			return v
		}
	case Body:
		if v, ok := in.Body[field]; ok {
			return v
		}
	}
	return nil
}

// BodyRule builds a rule reading field from the JSON body
func BodyRule(field string, check Check, message string) Rule {
	return Rule{Location: Body, Field: field, Check: check, Message: message}
}

// ParamRule builds a rule reading field from the path parameters
func ParamRule(field string, check Check, message string) Rule {
	return Rule{Location: Param, Field: field, Check: check, Message: message}
}

// Run evaluates every rule and returns the failures in rule order
func (rs Rules) Run(in Input) []FieldError {
	var errs []FieldError
	for _, r := range rs {
		v := in.lookup(r.Location, r.Field)
		if r.Check(v) {
			continue
		}
		errs = append(errs, FieldError{
			Field:    r.Field,
			Location: r.Location,
			Message:  r.Message,
			Value:    v,
		})
	}
	return errs
}

// With returns a new list holding rs followed by more
func (rs Rules) With(more ...Rule) Rules {
	out := make(Rules, 0, len(rs)+len(more))
	out = append(out, rs...)
	return append(out, more...)
}

var (
	numericRe = regexp.MustCompile(`^[+-]?([0-9]*[.])?[0-9]+$`)
	intRe     = regexp.MustCompile(`^[-+]?(0|[1-9][0-9]*)$`)
)

// NotEmpty fails for absent fields, null and the empty string
func NotEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	case json.Number:
		return x.String() != ""
	default:
		return true
	}
}

// IsNumeric accepts JSON numbers and decimal text
func IsNumeric(v any) bool {
	s, ok := text(v)
	return ok && numericRe.MatchString(s)
}

// IsInt accepts decimal integer text
func IsInt(v any) bool {
	s, ok := text(v)
	return ok && intRe.MatchString(s)
}

// IsBoolean accepts JSON booleans and the values true, false, 1 and 0
func IsBoolean(v any) bool {
	_, ok := AsBool(v)
	return ok
}

// Optional passes absent fields and applies check otherwise
func Optional(check Check) Check {
	return func(v any) bool {
		return v == nil || check(v)
	}
}

// Custom wraps an arbitrary predicate as a Check
func Custom(pred func(v any) bool) Check {
	return Check(pred)
}

// Positive reports whether v is loosely greater than zero
var Positive = Custom(func(v any) bool {
	return AsFloat(v) > 0
})

// text renders scalar values the way the rules compare them; it reports
// false for absent and structured values.
func text(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case json.Number:
		// exponent literals such as 1e2 compare as their decimal value
		if f, err := x.Float64(); err == nil {
			return strconv.FormatFloat(f, 'f', -1, 64), true
		}
		return x.String(), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case int:
		return strconv.Itoa(x), true
	case bool:
		return strconv.FormatBool(x), true
	default:
		return "", false
	}
}

// AsFloat coerces v to a number; values that are not numeric become NaN
// and the empty string becomes zero.
func AsFloat(v any) float64 {
	switch x := v.(type) {
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return math.NaN()
		}
		return f
	case float64:
		return x
	case int:
		return float64(x)
	case bool:
		if x {
			return 1
		}
		return 0
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

// AsBool coerces v to a boolean
func AsBool(v any) (bool, bool) {
	if b, ok := v.(bool); ok {
		return b, true
	}
	s, ok := text(v)
	if !ok {
		return false, false
	}
	switch s {
	case "true", "1":
		return true, true
	case "false", "0":
		return false, true
	}
	return false, false
}

// AsString renders v as text; absent values become ""
func AsString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := text(v); ok {
		return s
	}
	return fmt.Sprint(v)
}
