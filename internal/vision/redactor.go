package vision

import (
	"context"
	"image"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/privylens/privylens/internal/redaction"
)

var tracer = otel.Tracer("github.com/privylens/privylens/internal/vision")

const (
	DefaultDetectTimeout = 10 * time.Second
	DefaultMaxPixels     = 40_000_000
)

// Request is one image to redact. Boxes are extra regions chosen by the
// caller, pixelated regardless of policy.
type Request struct {
	Data   []byte
	Policy redaction.Policy
	Boxes  []BoundingBox
}

// Report summarises a redaction.
type Report struct {
	Faces    int  `json:"faces"`
	Regions  int  `json:"regions"`
	Width    int  `json:"width"`
	Height   int  `json:"height"`
	Cached   bool `json:"cached"`
	Degraded bool `json:"degraded"`
}

// ImageRedactor pixelates faces and caller-supplied regions and returns
// the result as PNG.
type ImageRedactor struct {
	detector   Detector
	detectorID string
	cache      Cache
	timeout    time.Duration
	maxPixels  int
	margin     Margin
	faceOpts   PixelateOptions
	boxOpts    PixelateOptions
}

type ImageOption func(*ImageRedactor)

// WithCache caches detections under id, which must change when the
// detector model does.
func WithCache(c Cache, id string) ImageOption {
	return func(r *ImageRedactor) { r.cache, r.detectorID = c, id }
}

func WithDetectTimeout(d time.Duration) ImageOption {
	return func(r *ImageRedactor) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func WithMaxPixels(n int) ImageOption {
	return func(r *ImageRedactor) { r.maxPixels = n }
}

func WithFacePixelation(o PixelateOptions) ImageOption {
	return func(r *ImageRedactor) { r.faceOpts = o }
}

func WithBoxPixelation(o PixelateOptions) ImageOption {
	return func(r *ImageRedactor) { r.boxOpts = o }
}

func WithFaceMargin(m Margin) ImageOption {
	return func(r *ImageRedactor) { r.margin = m }
}

// NewImageRedactor returns a redactor using detector for faces. A nil
// detector disables face detection.
func NewImageRedactor(detector Detector, opts ...ImageOption) *ImageRedactor {
	r := &ImageRedactor{
		detector:  detector,
		timeout:   DefaultDetectTimeout,
		maxPixels: DefaultMaxPixels,
		margin:    FaceMargin,
		faceOpts:  PixelateOptions{Intensity: FaceIntensity},
		boxOpts:   PixelateOptions{Intensity: DefaultIntensity},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Redact decodes req.Data, pixelates detected faces when the policy allows
// and every box in req.Boxes, and encodes the result as PNG. A failing
// detector degrades to box-only redaction.
func (r *ImageRedactor) Redact(ctx context.Context, req Request) ([]byte, Report, error) {
	ctx, span := tracer.Start(ctx, "vision.redact_image")
	defer span.End()

	var rep Report
	img, err := Decode(req.Data, r.maxPixels)
	if err != nil {
		span.RecordError(err)
		return nil, rep, err
	}
	out, _ := RedactRegions(img, nil, PixelateOptions{})
	rep.Width, rep.Height = out.Bounds().Dx(), out.Bounds().Dy()

	if req.Policy.FacesEnabled() && r.detector != nil {
		dets, cached, err := r.detect(ctx, req.Data, img)
		rep.Cached = cached
		if err != nil {
			rep.Degraded = true
			span.RecordError(err)
			log.Warn().Err(err).Msg("face detection unavailable; redacting requested regions only")
		}
		faces := make([]BoundingBox, 0, len(dets))
		for _, d := range dets {
			faces = append(faces, d.Expand(r.margin))
		}
		rep.Faces = Pixelate(out, faces, r.faceOpts)
	}
	rep.Regions = Pixelate(out, req.Boxes, r.boxOpts)

	span.SetAttributes(
		attribute.Int("image.width", rep.Width),
		attribute.Int("image.height", rep.Height),
		attribute.Int("faces", rep.Faces),
		attribute.Int("regions", rep.Regions),
		attribute.Bool("detector.degraded", rep.Degraded),
	)
	data, err := EncodePNG(out)
	if err != nil {
		return nil, rep, err
	}
	return data, rep, nil
}

func (r *ImageRedactor) detect(ctx context.Context, data []byte, img image.Image) ([]Detection, bool, error) {
	var key string
	if r.cache != nil {
		key = CacheKey(r.detectorID, data)
		if dets, ok := r.cache.Get(key); ok {
			return dets, true, nil
		}
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	dets, err := r.detector.Detect(ctx, img)
	if err != nil {
		return nil, false, err
	}
	if r.cache != nil {
		r.cache.Set(key, dets)
	}
	return dets, false, nil
}
