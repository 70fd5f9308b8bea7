package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"

	"github.com/privylens/privylens/internal/llm"
	"github.com/privylens/privylens/internal/policy"
	"github.com/privylens/privylens/internal/redaction"
	"github.com/privylens/privylens/internal/scrub"
	"github.com/privylens/privylens/internal/telemetry"
	"github.com/privylens/privylens/internal/vision"
)

// multipartOverhead is the slack allowed on top of the file size for
// multipart framing and small form fields.
const multipartOverhead = 1 << 20

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg, details string) {
	writeJSON(w, status, errorResponse{Error: msg, Details: details})
}

func tooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type redactTextRequest struct {
	Text   *string          `json:"text"`
	Policy redaction.Policy `json:"policy"`
}

func (s *Server) handleRedactText(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	var body redactTextRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Text == nil {
		if tooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "Payload too large", "")
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid body: text required", "")
		return
	}

	ctx := r.Context()
	res, out := s.engine.RedactText(ctx, *body.Text, body.Policy)
	s.telemetry.RecordRedaction(ctx, out)
	trace.SpanFromContext(ctx).SetAttributes(telemetry.SafeAttributes(map[string]any{
		"redaction.pattern_spans": out.PatternSpans,
		"redaction.entity_spans":  out.EntitySpans,
		"redaction.merged_spans":  len(res.Spans),
		"redaction.ner_degraded":  out.NERDegraded,
	})...)
	if out.NERDegraded {
		w.Header().Set(DegradedHeader, "ner")
	}
	log.Debug().
		Func(telemetry.LogTraceFields(ctx)).
		Str("request_id", middleware.GetReqID(ctx)).
		Int("pattern_spans", out.PatternSpans).
		Int("entity_spans", out.EntitySpans).
		Int("merged_spans", len(res.Spans)).
		Msg("text_redacted")
	writeJSON(w, http.StatusOK, res.UTF16(*body.Text))
}

func (s *Server) handleRedactImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		if tooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "File too large", "")
			return
		}
		writeError(w, http.StatusBadRequest, "file is required", "")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	files := 0
	for _, fhs := range r.MultipartForm.File {
		files += len(fhs)
	}
	fhs := r.MultipartForm.File["file"]
	switch {
	case len(fhs) == 0:
		writeError(w, http.StatusBadRequest, "file is required", "")
		return
	case files > 1:
		writeError(w, http.StatusBadRequest, "Only one file is allowed", "")
		return
	case fhs[0].Size > s.cfg.MaxUploadBytes:
		writeError(w, http.StatusRequestEntityTooLarge, "File too large", "")
		return
	}

	req := vision.Request{}
	if v := r.FormValue("policy"); v != "" {
		if err := json.Unmarshal([]byte(v), &req.Policy); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid policy", "")
			return
		}
	}
	if v := r.FormValue("boxes"); v != "" {
		if err := json.Unmarshal([]byte(v), &req.Boxes); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid boxes", "")
			return
		}
	}

	f, err := fhs[0].Open()
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required", "")
		return
	}
	req.Data, err = io.ReadAll(f)
	_ = f.Close()
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required", "")
		return
	}

	ctx := r.Context()
	out, rep, err := s.images.Redact(ctx, req)
	switch {
	case errors.Is(err, vision.ErrEmptyImage), errors.Is(err, vision.ErrUnsupportedImage):
		writeError(w, http.StatusBadRequest, "Unsupported image", "")
		return
	case errors.Is(err, vision.ErrImageTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "Image too large", "")
		return
	case err != nil:
		log.Error().Func(telemetry.LogTraceFields(ctx)).Str("error", scrub.Err(err)).Msg("image_redaction_failed")
		writeError(w, http.StatusInternalServerError, "Failed to process image", "")
		return
	}
	s.telemetry.RecordFaces(ctx, rep.Faces, rep.Degraded)

	h := w.Header()
	h.Set("Content-Type", "image/png")
	h.Set("Content-Length", strconv.Itoa(len(out)))
	h.Set(FacesHeader, strconv.Itoa(rep.Faces))
	h.Set(RegionsHeader, strconv.Itoa(rep.Regions))
	if rep.Degraded {
		h.Set(DegradedHeader, "faces")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

type proxyRequest struct {
	Masked   *string       `json:"masked"`
	Messages []llm.Message `json:"messages"`
	Images   []string      `json:"images"`
}

// gateViolations checks the masked prompt and every user turn of the
// history. Assistant turns are model output and are not gated.
func gateViolations(body proxyRequest) []redaction.Label {
	if v := policy.Violations(*body.Masked); len(v) > 0 {
		return v
	}
	for _, m := range body.Messages {
		if m.Role != "user" {
			continue
		}
		if v := policy.Violations(m.Content); len(v) > 0 {
			return v
		}
	}
	return nil
}

func (s *Server) handleLLMProxy(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	var body proxyRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Masked == nil {
		if tooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "Payload too large", "")
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid body: masked required", "")
		return
	}
	for _, img := range body.Images {
		if !strings.HasPrefix(img, "data:image/") {
			writeError(w, http.StatusBadRequest, "Invalid body: images must be data URLs", "")
			return
		}
	}

	ctx := r.Context()
	if labels := gateViolations(body); len(labels) > 0 {
		s.telemetry.RecordGateRejection(ctx, labels)
		trace.SpanFromContext(ctx).SetAttributes(telemetry.SafeAttributes(map[string]any{
			"gate.labels": labels,
		})...)
		log.Info().
			Func(telemetry.LogTraceFields(ctx)).
			Str("request_id", middleware.GetReqID(ctx)).
			Interface("labels", labels).
			Msg("gate_rejected")
		writeError(w, http.StatusBadRequest, "Payload must be masked according to policy", "")
		return
	}

	if s.provider == nil {
		writeError(w, http.StatusInternalServerError, "Failed to generate response", llm.ErrProviderUnavailable.Error())
		return
	}

	req := &llm.Request{
		Model:       s.chat.Model,
		History:     body.Messages,
		Masked:      *body.Masked,
		Images:      body.Images,
		Temperature: s.chat.Temperature,
		MaxTokens:   s.chat.MaxTokens,
	}
	sse := newSSEWriter(w)
	err := s.provider.Stream(ctx, req, func(delta string) error {
		return sse.send(sseContent{Content: delta})
	})
	if err != nil {
		if ctx.Err() != nil {
			log.Debug().Str("request_id", middleware.GetReqID(ctx)).Msg("client_disconnected")
			return
		}
		log.Warn().
			Func(telemetry.LogTraceFields(ctx)).
			Str("provider", s.provider.Name()).
			Str("error", scrub.Err(err)).
			Bool("streaming", sse.started).
			Msg("llm_stream_failed")
		if !sse.started {
			writeError(w, http.StatusInternalServerError, "Failed to generate response", scrub.Err(err))
			return
		}
		_ = sse.send(sseError{Error: "Stream interrupted"})
		return
	}
	_ = sse.done()
}
