package ner

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/privylens/privylens/internal/redaction"
)

func TestHTTPRecognizer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer hf-token", r.Header.Get("Authorization"))
		var body struct {
			Inputs string `json:"inputs"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Manish lives in Paris", body.Inputs)
		_, _ = w.Write([]byte(`[{"word":"Man","entity":"B-PER","score":0.99},{"word":"##ish","entity":"I-PER","score":0.98}]`))
	}))
	defer srv.Close()

	got, err := NewHTTP(srv.URL, "hf-token", time.Second).Recognize(context.Background(), "Manish lives in Paris")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "##ish", got[1].Word)
}

func TestHTTPRecognizer_Failures(t *testing.T) {
	status := http.StatusServiceUnavailable
	payload := `{"error":"model loading"}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(payload))
	}))
	defer srv.Close()
	rec := NewHTTP(srv.URL, "", time.Second)

	_, err := rec.Recognize(context.Background(), "x")
	assert.ErrorContains(t, err, "unexpected status 503")

	status = http.StatusOK
	_, err = rec.Recognize(context.Background(), "x")
	assert.ErrorIs(t, err, redaction.ErrMalformedEntities)
}

type fixedRecognizer []redaction.RawEntityToken

func (f fixedRecognizer) Recognize(context.Context, string) ([]redaction.RawEntityToken, error) {
	return f, nil
}

func TestLazy_RetriesAfterFailure(t *testing.T) {
	calls := 0
	l := NewLazy(func(context.Context) (redaction.Recognizer, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("bundle missing")
		}
		return fixedRecognizer{{Word: "Ana", Entity: "B-PER"}}, nil
	})

	_, err := l.Recognize(context.Background(), "Ana")
	assert.ErrorIs(t, err, ErrModelUnavailable)

	got, err := l.Recognize(context.Background(), "Ana")
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.NoError(t, l.Close())
}

func TestNew(t *testing.T) {
	r, err := New(Options{})
	require.NoError(t, err)
	assert.IsType(t, Noop{}, r)

	_, err = New(Options{Backend: "http"})
	assert.Error(t, err)

	r, err = New(Options{Backend: "http", URL: "http://localhost:1"})
	require.NoError(t, err)
	assert.IsType(t, &HTTPRecognizer{}, r)

	r, err = New(Options{Backend: "onnx", ModelDir: t.TempDir()})
	require.NoError(t, err)
	_, err = r.Recognize(context.Background(), "text")
	assert.ErrorIs(t, err, ErrModelUnavailable)

	_, err = New(Options{Backend: "spacy"})
	assert.ErrorContains(t, err, "unknown backend")
}
