package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/privylens/privylens/internal/config"
	"github.com/privylens/privylens/internal/llm"
	"github.com/privylens/privylens/internal/ner"
	"github.com/privylens/privylens/internal/redaction"
	"github.com/privylens/privylens/internal/vision"
)

// closers collects resources to release on exit.
type closers []io.Closer

func (c *closers) add(v any) {
	if cl, ok := v.(io.Closer); ok {
		*c = append(*c, cl)
	}
}

func (c closers) Close() error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		errs = append(errs, c[i].Close())
	}
	return errors.Join(errs...)
}

func buildRecognizer(cfg config.NERConfig) (redaction.Recognizer, error) {
	return ner.New(ner.Options{
		Backend:  cfg.Backend,
		ModelDir: cfg.ModelDir,
		ORTLib:   cfg.ORTLib,
		URL:      cfg.URL,
		Token:    cfg.Token,
		Timeout:  cfg.Timeout,
	})
}

func buildEngine(cfg config.NERConfig, rec redaction.Recognizer) *redaction.Engine {
	return redaction.NewEngine(rec,
		redaction.WithNERTimeout(cfg.Timeout),
		redaction.WithAggregateOptions(redaction.AggregateOptions{
			IncludeMisc: cfg.IncludeMisc,
			MinScore:    cfg.MinScore,
		}),
	)
}

// buildDetector returns nil when face detection is disabled.
func buildDetector(cfg config.VisionConfig) (vision.Detector, string, error) {
	switch cfg.Detector {
	case "", "none":
		return nil, "", nil
	case "http":
		return vision.NewHTTPDetector(cfg.URL, cfg.Token, cfg.Timeout), "http:" + cfg.URL, nil
	case "onnx":
		id := fmt.Sprintf("ultraface:%s:%g", cfg.ModelPath, cfg.ScoreThreshold)
		return vision.NewLazyDetector(func(context.Context) (vision.Detector, error) {
			d, err := vision.LoadUltraFace(cfg.ModelPath, cfg.ORTLib, cfg.ScoreThreshold)
			if err != nil {
				return nil, err
			}
			return d, nil
		}), id, nil
	}
	return nil, "", fmt.Errorf("unknown face detector %q", cfg.Detector)
}

// buildImageRedactor wires the detector, the optional detection cache and
// pixelation settings.
func buildImageRedactor(cfg config.VisionConfig, res *closers) (*vision.ImageRedactor, error) {
	det, id, err := buildDetector(cfg)
	if err != nil {
		return nil, err
	}
	res.add(det)

	opts := []vision.ImageOption{
		vision.WithDetectTimeout(cfg.Timeout),
		vision.WithMaxPixels(cfg.MaxPixels),
		vision.WithFacePixelation(vision.PixelateOptions{Intensity: cfg.Intensity, BlurSigma: cfg.BlurSigma}),
		vision.WithBoxPixelation(vision.PixelateOptions{Intensity: cfg.BoxIntensity, BlurSigma: cfg.BlurSigma}),
	}
	if det != nil && cfg.Cache {
		cache, err := vision.OpenCache(cfg.CachePath, cfg.CacheEntries)
		if err != nil {
			return nil, err
		}
		res.add(cache)
		opts = append(opts, vision.WithCache(cache, id))
	}
	return vision.NewImageRedactor(det, opts...), nil
}

func buildProvider(cfg config.LLMConfig) (llm.Provider, error) {
	return llm.New(llm.Config{
		Provider: cfg.Provider,
		APIKey:   cfg.APIKey,
		BaseURL:  cfg.BaseURL,
		Timeout:  cfg.Timeout,
	})
}
