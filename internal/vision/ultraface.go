package vision

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	xdraw "golang.org/x/image/draw"

	"github.com/privylens/privylens/internal/ortenv"
)

const (
	ultraFaceWidth   = 320
	ultraFaceHeight  = 240
	ultraFaceAnchors = 4420
	ultraFaceIoU     = 0.3

	DefaultFaceThreshold = 0.7
)

// UltraFaceDetector runs the Ultra-Light-Fast-Generic-Face-Detector
// RFB-320 model. Inputs are 1x3x240x320 RGB scaled to [-1, 1]; outputs are
// per-anchor class scores and normalised corner boxes.
type UltraFaceDetector struct {
	mu        sync.Mutex
	session   *ort.AdvancedSession
	input     *ort.Tensor[float32]
	scores    *ort.Tensor[float32]
	boxes     *ort.Tensor[float32]
	threshold float64
}

// LoadUltraFace opens the model at path. threshold is the minimum face
// score kept.
func LoadUltraFace(path, libHint string, threshold float64) (*UltraFaceDetector, error) {
	if path == "" {
		return nil, errors.New("face model path is empty")
	}
	if err := ortenv.Init(libHint); err != nil {
		return nil, err
	}
	if threshold <= 0 || threshold >= 1 {
		threshold = DefaultFaceThreshold
	}

	anchors := int64(ultraFaceAnchors)
	if _, dims, err := ortenv.Output(path, "scores"); err == nil && len(dims) == 3 && dims[1] > 0 {
		anchors = dims[1]
	}

	d := &UltraFaceDetector{threshold: threshold}
	var err error
	if d.input, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 3, ultraFaceHeight, ultraFaceWidth)); err != nil {
		return nil, fmt.Errorf("allocate input tensor: %w", err)
	}
	if d.scores, err = ort.NewEmptyTensor[float32](ort.NewShape(1, anchors, 2)); err != nil {
		d.Close()
		return nil, fmt.Errorf("allocate scores tensor: %w", err)
	}
	if d.boxes, err = ort.NewEmptyTensor[float32](ort.NewShape(1, anchors, 4)); err != nil {
		d.Close()
		return nil, fmt.Errorf("allocate boxes tensor: %w", err)
	}
	opts, err := ortenv.SessionOptions(0, 0)
	if err != nil {
		d.Close()
		return nil, err
	}
	defer opts.Destroy()
	d.session, err = ort.NewAdvancedSession(path,
		[]string{"input"},
		[]string{"scores", "boxes"},
		[]ort.Value{d.input},
		[]ort.Value{d.scores, d.boxes},
		opts,
	)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("create face session: %w", err)
	}
	return d, nil
}

// Detect returns the faces in img after non-maximum suppression.
func (d *UltraFaceDetector) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	fillInput(d.input.GetData(), img)
	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("face detection: %w", err)
	}
	dets := decodeUltraFace(d.scores.GetData(), d.boxes.GetData(), d.threshold)
	return nonMaxSuppression(dets, ultraFaceIoU), nil
}

func (d *UltraFaceDetector) Close() error {
	if d.session != nil {
		d.session.Destroy()
	}
	for _, t := range []*ort.Tensor[float32]{d.input, d.scores, d.boxes} {
		if t != nil {
			t.Destroy()
		}
	}
	return nil
}

// fillInput resizes img to the model resolution and writes it in CHW
// order normalised as (p-127)/128.
func fillInput(dst []float32, img image.Image) {
	rgba := image.NewRGBA(image.Rect(0, 0, ultraFaceWidth, ultraFaceHeight))
	xdraw.BiLinear.Scale(rgba, rgba.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	plane := ultraFaceWidth * ultraFaceHeight
	for y := range ultraFaceHeight {
		for x := range ultraFaceWidth {
			off := rgba.PixOffset(x, y)
			i := y*ultraFaceWidth + x
			dst[i] = (float32(rgba.Pix[off]) - 127) / 128
			dst[plane+i] = (float32(rgba.Pix[off+1]) - 127) / 128
			dst[2*plane+i] = (float32(rgba.Pix[off+2]) - 127) / 128
		}
	}
}

// decodeUltraFace converts raw outputs into clamped detections scoring at
// least threshold.
func decodeUltraFace(scores, boxes []float32, threshold float64) []Detection {
	n := min(len(scores)/2, len(boxes)/4)
	var out []Detection
	for i := range n {
		score := float64(scores[2*i+1])
		if score < threshold {
			continue
		}
		x1, y1 := float64(boxes[4*i]), float64(boxes[4*i+1])
		x2, y2 := float64(boxes[4*i+2]), float64(boxes[4*i+3])
		b := BoundingBox{X: x1, Y: y1, W: x2 - x1, H: y2 - y1}.Clamp()
		if b.Empty() {
			continue
		}
		out = append(out, Detection{BoundingBox: b, Score: score})
	}
	return out
}
