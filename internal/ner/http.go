package ner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/privylens/privylens/internal/redaction"
)

const maxResponseBytes = 4 << 20

// HTTPRecognizer calls a hosted token-classification endpoint that speaks
// the Hugging Face inference format: {"inputs": text} in, a JSON array of
// {word, entity, score} records out.
type HTTPRecognizer struct {
	url   string
	token string
	http  *http.Client
}

// NewHTTP returns a recognizer posting to url. token, when set, is sent as
// a bearer credential.
func NewHTTP(url, token string, timeout time.Duration) *HTTPRecognizer {
	if timeout <= 0 {
		timeout = redaction.DefaultNERTimeout
	}
	return &HTTPRecognizer{
		url:   strings.TrimSpace(url),
		token: strings.TrimSpace(token),
		http:  &http.Client{Timeout: timeout},
	}
}

type inferenceRequest struct {
	Inputs string `json:"inputs"`
}

// Recognize posts text and validates the returned records.
func (c *HTTPRecognizer) Recognize(ctx context.Context, text string) ([]redaction.RawEntityToken, error) {
	body, err := json.Marshal(inferenceRequest{Inputs: text})
	if err != nil {
		return nil, fmt.Errorf("ner: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ner: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ner: call: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("ner: read: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ner: unexpected status %d", resp.StatusCode)
	}
	return redaction.DecodeRawEntityTokens(data)
}
