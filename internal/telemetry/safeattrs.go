package telemetry

import (
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/privylens/privylens/internal/redaction"
)

const (
	maxAttrString = 512
	maxAttrSlice  = 32
)

// Keys whose values may carry user text or credentials.
var denyKeys = []string{
	"text",
	"masked",
	"content",
	"history",
	"prompt",
	"image",
	"authorization",
	"api_key",
	"token",
	"email",
	"phone",
	"card",
}

// SafeAttributes converts values into span attributes, dropping keys that
// may carry user data and strings that still contain a pattern match.
func SafeAttributes(values map[string]any) []attribute.KeyValue {
	if len(values) == 0 {
		return nil
	}
	var attrs []attribute.KeyValue
	for k, v := range values {
		lk := strings.ToLower(k)
		if slices.ContainsFunc(denyKeys, func(bad string) bool { return strings.Contains(lk, bad) }) {
			continue
		}
		switch val := v.(type) {
		case string:
			if len(val) > maxAttrString || len(redaction.MatchAll(val)) > 0 {
				continue
			}
			attrs = append(attrs, attribute.String(k, val))
		case bool:
			attrs = append(attrs, attribute.Bool(k, val))
		case int:
			attrs = append(attrs, attribute.Int(k, val))
		case int64:
			attrs = append(attrs, attribute.Int64(k, val))
		case float64:
			attrs = append(attrs, attribute.Float64(k, val))
		case []string:
			attrs = append(attrs, attribute.StringSlice(k, val[:min(len(val), maxAttrSlice)]))
		case []redaction.Label:
			labels := make([]string, 0, min(len(val), maxAttrSlice))
			for _, l := range val[:min(len(val), maxAttrSlice)] {
				labels = append(labels, string(l))
			}
			attrs = append(attrs, attribute.StringSlice(k, labels))
		}
	}
	return attrs
}
