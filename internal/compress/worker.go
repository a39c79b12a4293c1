package compress

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"

	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"

	"github.com/dmitrijs2005/mediaup/internal/logging"
)

// Result is the outcome of one compression run. When Applied is false,
// Bytes holds the untouched original: compression failure degrades to
// uploading the source bytes and is never fatal to the upload.
type Result struct {
	Bytes   []byte
	Applied bool
	Width   int
	Height  int
}

// ProgressFunc receives monotonically non-decreasing values in [0,100].
type ProgressFunc func(percent int)

// Worker decodes, scales and re-encodes a single image according to a
// Profile. It is stateless and safe for concurrent use; callers provide
// the separate execution context (one goroutine per in-flight item) and
// cancel through ctx.
//
// The worker does not correct EXIF orientation. That belongs to the remote
// processing step, so the transform is applied exactly once.
type Worker struct {
	log logging.Logger
}

// NewWorker returns a Worker logging through log.
func NewWorker(log logging.Logger) *Worker {
	return &Worker{log: log}
}

// Compress runs the decode -> scale -> encode stages, checking ctx before
// each one. The only error it ever returns is cancellation; decode and
// encode failures fall back to the original bytes with Applied=false.
// No progress callback fires after cancellation or after the result is
// returned.
func (w *Worker) Compress(ctx context.Context, src []byte, profile Profile, onProgress ProgressFunc) (Result, error) {
	report := func(p int) {
		if onProgress != nil && ctx.Err() == nil {
			onProgress(p)
		}
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	report(0)

	img, _, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		w.log.Warn(ctx, "image decode failed, uploading original", "err", err)
		return Result{Bytes: src, Applied: false}, nil
	}
	report(30)

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	img = scaleDown(img, profile.MaxDimension)
	report(70)

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: profile.Quality}); err != nil {
		w.log.Warn(ctx, "image encode failed, uploading original", "err", err)
		return Result{Bytes: src, Applied: false}, nil
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	report(100)

	b := img.Bounds()
	return Result{Bytes: buf.Bytes(), Applied: true, Width: b.Dx(), Height: b.Dy()}, nil
}

// scaleDown resamples img so its longer edge does not exceed maxDim.
// It never upscales.
func scaleDown(img image.Image, maxDim int) image.Image {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()

	longer := width
	if height > longer {
		longer = height
	}
	if maxDim <= 0 || longer <= maxDim {
		return img
	}

	scale := float64(maxDim) / float64(longer)
	newW := clampDim(int(float64(width)*scale+0.5), maxDim)
	newH := clampDim(int(float64(height)*scale+0.5), maxDim)

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

func clampDim(v, maxDim int) int {
	if v < 1 {
		return 1
	}
	if v > maxDim {
		return maxDim
	}
	return v
}
