package llm

import (
	"context"
	"strings"
)

// EchoProvider replies with the masked prompt, word by word. It lets the
// proxy run without upstream credentials.
type EchoProvider struct{}

func NewEcho() *EchoProvider { return &EchoProvider{} }

func (p *EchoProvider) Name() string { return "echo" }

func (p *EchoProvider) Stream(ctx context.Context, req *Request, onDelta func(string) error) error {
	words := strings.Fields("You said: " + req.Masked)
	for i, w := range words {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i > 0 {
			w = " " + w
		}
		if err := onDelta(w); err != nil {
			return err
		}
	}
	return nil
}
