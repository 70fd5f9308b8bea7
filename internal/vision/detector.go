package vision

import (
	"context"
	"image"
	"slices"

	"github.com/privylens/privylens/internal/lazy"
)

// Detection is a detected face with its confidence.
type Detection struct {
	BoundingBox
	Score float64 `json:"score"`
}

// Detector finds faces in an image.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]Detection, error)
}

// NoopDetector never finds anything.
type NoopDetector struct{}

func (NoopDetector) Detect(context.Context, image.Image) ([]Detection, error) { return nil, nil }

// LazyDetector loads its detector on first use and retries failed loads.
type LazyDetector struct {
	cell *lazy.Cell[Detector]
}

func NewLazyDetector(load func(context.Context) (Detector, error)) *LazyDetector {
	return &LazyDetector{cell: lazy.New(load)}
}

func (l *LazyDetector) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	d, err := l.cell.Get(ctx)
	if err != nil {
		return nil, err
	}
	return d.Detect(ctx, img)
}

// Close closes the loaded detector, if any.
func (l *LazyDetector) Close() error {
	d, ok := l.cell.Peek()
	if !ok {
		return nil
	}
	if c, ok := d.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// nonMaxSuppression keeps the highest-scoring detection of every group
// overlapping by more than iou.
func nonMaxSuppression(dets []Detection, iou float64) []Detection {
	sorted := slices.Clone(dets)
	slices.SortStableFunc(sorted, func(a, b Detection) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	var kept []Detection
	for _, d := range sorted {
		overlaps := false
		for _, k := range kept {
			if d.IoU(k.BoundingBox) > iou {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, d)
		}
	}
	return kept
}
