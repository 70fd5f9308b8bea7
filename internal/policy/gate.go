// Package policy decides whether a payload is safe to forward to a model.
package policy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/privylens/privylens/internal/redaction"
)

// ErrNotMasked is returned when a payload still contains raw contact or
// card data.
var ErrNotMasked = errors.New("payload must be masked according to policy")

var gateLabels = []redaction.Label{redaction.LabelEmail, redaction.LabelCard, redaction.LabelPhone}

// Violations returns the pattern categories still present in candidate.
func Violations(candidate string) []redaction.Label {
	var out []redaction.Label
	for _, l := range gateLabels {
		if redaction.PatternFor(l).MatchString(candidate) {
			out = append(out, l)
		}
	}
	return out
}

// EnsureMasked reports whether candidate is free of raw emails, cards and
// phone numbers. Placeholders such as "[EMAIL]" pass.
func EnsureMasked(candidate string) bool {
	for _, l := range gateLabels {
		if redaction.PatternFor(l).MatchString(candidate) {
			return false
		}
	}
	return true
}

// Check returns ErrNotMasked, annotated with the offending categories, when
// candidate is not masked.
func Check(candidate string) error {
	v := Violations(candidate)
	if len(v) == 0 {
		return nil
	}
	names := make([]string, len(v))
	for i, l := range v {
		names[i] = string(l)
	}
	return fmt.Errorf("%w: found %s", ErrNotMasked, strings.Join(names, ", "))
}
