package redaction

import "strings"

// Label names the category of a redacted span. Its placeholder is the label
// wrapped in square brackets, e.g. "[EMAIL]".
type Label string

const (
	LabelEmail        Label = "EMAIL"
	LabelPhone        Label = "PHONE"
	LabelCard         Label = "CARD"
	LabelName         Label = "NAME"
	LabelLocation     Label = "LOCATION"
	LabelOrganization Label = "ORGANIZATION"
	LabelMisc         Label = "MISCELLANEOUS"
)

// Placeholder returns the text substituted for a span with this label.
func (l Label) Placeholder() string {
	return "[" + string(l) + "]"
}

// Identity reports whether the label is one of the person, place or
// organisation categories produced by the entity recognizer.
func (l Label) Identity() bool {
	switch l {
	case LabelName, LabelLocation, LabelOrganization:
		return true
	}
	return false
}

var bioPrefixes = map[string]bool{"B": true, "I": true, "E": true, "S": true, "L": true, "U": true}

// splitTag splits a BIO(ES) tag such as "B-PER" into its prefix and type.
// Tags without a recognised prefix are returned whole as the type.
func splitTag(tag string) (string, string) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return "", ""
	}
	parts := strings.SplitN(tag, "-", 2)
	if len(parts) == 1 || !bioPrefixes[strings.ToUpper(parts[0])] {
		return "", tag
	}
	return strings.ToUpper(parts[0]), parts[1]
}

// NormalizeTag maps a recognizer tag to a Label. The outside tag "O" and
// empty tags report false.
func NormalizeTag(tag string) (Label, bool) {
	_, typ := splitTag(tag)
	switch strings.ToUpper(typ) {
	case "", "O":
		return "", false
	case "PER", "PERSON", "NAME":
		return LabelName, true
	case "LOC", "LOCATION", "GPE":
		return LabelLocation, true
	case "ORG", "ORGANIZATION", "ORGANISATION":
		return LabelOrganization, true
	case "MISC", "MISCELLANEOUS":
		return LabelMisc, true
	}
	return Label(strings.ToUpper(typ)), true
}
