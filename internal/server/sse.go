package server

import (
	"encoding/json"
	"fmt"
	"net/http"
)

type sseContent struct {
	Content string `json:"content"`
}

type sseError struct {
	Error string `json:"error"`
}

// sseWriter writes "data:" events. Headers are committed with the first
// event, so a handler can still answer with a JSON error before that.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	f, _ := w.(http.Flusher)
	return &sseWriter{w: w, flusher: f}
}

func setSSEHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	h.Del("Content-Length")
}

func (s *sseWriter) send(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.write(b)
}

func (s *sseWriter) done() error {
	return s.write([]byte("[DONE]"))
}

func (s *sseWriter) write(payload []byte) error {
	if !s.started {
		setSSEHeaders(s.w.Header())
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}
