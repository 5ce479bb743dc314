package data

import (
	"fmt"
	"regexp"
)

// Validator checks values before they are stored in an element.
type Validator interface {
	Validate(value any) error
}

// ValidatorFunc adapts a function to the Validator interface.
type ValidatorFunc func(value any) error

func (f ValidatorFunc) Validate(value any) error { return f(value) }

// StringLength validates that a value is a string whose length is within
// [Min, Max]. Max <= 0 means no upper bound.
type StringLength struct {
	Min int
	Max int
}

func (v StringLength) Validate(value any) error {
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("want string, got %T", value)
	}
	if len(s) < v.Min {
		return fmt.Errorf("string length %d below minimum %d", len(s), v.Min)
	}
	if v.Max > 0 && len(s) > v.Max {
		return fmt.Errorf("string length %d above maximum %d", len(s), v.Max)
	}
	return nil
}

// IntRange validates that a value is an int within [Min, Max].
type IntRange struct {
	Min int
	Max int
}

func (v IntRange) Validate(value any) error {
	n, ok := value.(int)
	if !ok {
		return fmt.Errorf("want int, got %T", value)
	}
	if n < v.Min || n > v.Max {
		return fmt.Errorf("value %d outside range [%d, %d]", n, v.Min, v.Max)
	}
	return nil
}

// Pattern validates that a value is a string matching a regular expression.
type Pattern struct {
	re *regexp.Regexp
}

// NewPattern compiles the expression; it panics on an invalid pattern, which
// is appropriate for patterns written as literals.
func NewPattern(expr string) Pattern {
	return Pattern{re: regexp.MustCompile(expr)}
}

func (v Pattern) Validate(value any) error {
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("want string, got %T", value)
	}
	if !v.re.MatchString(s) {
		return fmt.Errorf("value %q does not match %s", s, v.re)
	}
	return nil
}

// OneOf validates that a value equals one of the allowed values.
type OneOf struct {
	Allowed []any
}

func (v OneOf) Validate(value any) error {
	for _, a := range v.Allowed {
		if a == value {
			return nil
		}
	}
	return fmt.Errorf("value %v not among allowed values", value)
}
