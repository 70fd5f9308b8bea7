package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/privylens/privylens/internal/redaction"
	"github.com/privylens/privylens/internal/vision"
)

// readInput joins args, or reads stdin when there are none or the only
// argument is "-".
func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 0 || (len(args) == 1 && args[0] == "-") {
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return strings.TrimSuffix(string(b), "\n"), nil
	}
	return strings.Join(args, " "), nil
}

// parsePolicy reads "emails=false,faces=true" style toggles. Unnamed
// categories stay enabled.
func parsePolicy(s string) (redaction.Policy, error) {
	var p redaction.Policy
	if strings.TrimSpace(s) == "" {
		return p, nil
	}
	for _, part := range strings.Split(s, ",") {
		key, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return p, fmt.Errorf("policy entry %q must be key=bool", part)
		}
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		if err != nil {
			return p, fmt.Errorf("policy entry %q: %w", part, err)
		}
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "emails":
			p.Emails = redaction.Bool(b)
		case "phones":
			p.Phones = redaction.Bool(b)
		case "cards":
			p.Cards = redaction.Bool(b)
		case "faces":
			p.Faces = redaction.Bool(b)
		case "plates":
			p.Plates = redaction.Bool(b)
		case "ids":
			p.IDs = redaction.Bool(b)
		default:
			return p, fmt.Errorf("unknown policy category %q", key)
		}
	}
	return p, nil
}

// parseBox reads a normalized "x,y,w,h" box.
func parseBox(s string) (vision.BoundingBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return vision.BoundingBox{}, fmt.Errorf("box %q must be x,y,w,h", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return vision.BoundingBox{}, fmt.Errorf("box %q: %w", s, err)
		}
		v[i] = f
	}
	return vision.BoundingBox{X: v[0], Y: v[1], W: v[2], H: v[3]}, nil
}
