package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOpenAITestServer(t *testing.T, handler http.HandlerFunc) *OpenAIProvider {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return NewOpenAI("test-api-key", ts.URL+"/v1", 5*time.Second)
}

func writeChunks(w http.ResponseWriter, deltas ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	for _, d := range deltas {
		chunk := openai.ChatCompletionStreamResponse{
			ID:    "chatcmpl-test",
			Model: "gpt-3.5-turbo",
			Choices: []openai.ChatCompletionStreamChoice{
				{Index: 0, Delta: openai.ChatCompletionStreamChoiceDelta{Content: d}},
			},
		}
		b, _ := json.Marshal(chunk)
		fmt.Fprintf(w, "data: %s\n\n", b)
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}

func TestOpenAIStream_Success(t *testing.T) {
	var got openai.ChatCompletionRequest
	provider := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-api-key", r.Header.Get("Authorization"))
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeChunks(w, "Hel", "", "lo")
	})

	var deltas []string
	err := provider.Stream(context.Background(), &Request{
		Model:       "gpt-3.5-turbo",
		History:     []Message{{Role: "user", Content: "hi"}, {Role: "bot", Content: "hello"}},
		Masked:      "My email is [EMAIL]",
		Temperature: 0.7,
		MaxTokens:   1000,
	}, func(d string) error {
		deltas = append(deltas, d)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "lo"}, deltas)

	require.Len(t, got.Messages, 4)
	assert.Equal(t, openai.ChatMessageRoleSystem, got.Messages[0].Role)
	assert.Equal(t, SystemPrompt, got.Messages[0].Content)
	assert.Equal(t, openai.ChatMessageRoleAssistant, got.Messages[2].Role)
	assert.Equal(t, "My email is [EMAIL]", got.Messages[3].Content)
	assert.True(t, got.Stream)
	assert.Equal(t, 1000, got.MaxTokens)
}

func TestOpenAIStream_Images(t *testing.T) {
	var raw map[string]any
	provider := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		writeChunks(w, "ok")
	})

	err := provider.Stream(context.Background(), &Request{
		Model:  "gpt-4o",
		Masked: "describe",
		Images: []string{"data:image/png;base64,AAAA"},
	}, func(string) error { return nil })
	require.NoError(t, err)

	msgs := raw["messages"].([]any)
	last := msgs[len(msgs)-1].(map[string]any)
	parts := last["content"].([]any)
	require.Len(t, parts, 2)
	assert.Equal(t, "text", parts[0].(map[string]any)["type"])
	assert.Equal(t, "image_url", parts[1].(map[string]any)["type"])
}

func TestOpenAIStream_APIError(t *testing.T) {
	provider := newOpenAITestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "Invalid API key", "type": "invalid_request_error"},
		})
	})

	called := false
	err := provider.Stream(context.Background(), &Request{Model: "gpt-3.5-turbo", Masked: "x"}, func(string) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openai stream")
	assert.False(t, called)
}

func TestOpenAIStream_DeltaErrorAborts(t *testing.T) {
	provider := newOpenAITestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeChunks(w, "a", "b", "c")
	})
	stop := errors.New("client gone")
	n := 0
	err := provider.Stream(context.Background(), &Request{Masked: "x"}, func(string) error {
		n++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, n)
}

func TestEchoProvider(t *testing.T) {
	var b strings.Builder
	err := NewEcho().Stream(context.Background(), &Request{Masked: "call [PHONE]"}, func(d string) error {
		b.WriteString(d)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "You said: call [PHONE]", b.String())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, NewEcho().Stream(ctx, &Request{Masked: "x"}, func(string) error { return nil }), context.Canceled)
}

func TestNew(t *testing.T) {
	_, err := New(Config{Provider: "openai"})
	assert.ErrorIs(t, err, ErrProviderUnavailable)

	p, err := New(Config{Provider: "openai", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())

	p, err = New(Config{Provider: "echo"})
	require.NoError(t, err)
	assert.Equal(t, "echo", p.Name())

	_, err = New(Config{Provider: "bard"})
	assert.ErrorIs(t, err, ErrUnknownProvider)
}
