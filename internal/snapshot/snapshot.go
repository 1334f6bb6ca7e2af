package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"regexp"

	"github.com/nfnt/resize"
	"github.com/rs/zerolog"

	"github.com/v0xg/playlistfill/internal/engine"
)

// Source captures the current viewport as an encoded image
type Source interface {
	Screenshot(ctx context.Context) ([]byte, error)
}

// Options configures failure screenshots
type Options struct {
	Dir      string
	MaxWidth uint
}

// Recorder saves a screenshot for every item that failed.
// It implements engine.Observer.
type Recorder struct {
	src  Source
	opts Options
	log  zerolog.Logger

	saved []string
}

var _ engine.Observer = (*Recorder)(nil)

// New creates a Recorder writing into opts.Dir
func New(src Source, opts Options, log zerolog.Logger) (*Recorder, error) {
	if opts.MaxWidth == 0 {
		opts.MaxWidth = 800
	}
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return &Recorder{src: src, opts: opts, log: log.With().Str("component", "snapshot").Logger()}, nil
}

// ItemSettled captures the page when r is a failure
func (r *Recorder) ItemSettled(ctx context.Context, rep engine.ItemReport) {
	if !rep.Outcome.Failed() {
		return
	}

	path, err := r.capture(ctx, rep)
	if err != nil {
		r.log.Warn().Err(err).Str("identity", rep.Identity).Msg("failed to save screenshot")
		return
	}
	r.saved = append(r.saved, path)
	r.log.Debug().Str("path", path).Msg("saved screenshot")
}

// RunFinished is a no-op
func (r *Recorder) RunFinished(context.Context, engine.Result) {}

// Saved returns the paths written so far
func (r *Recorder) Saved() []string {
	return r.saved
}

func (r *Recorder) capture(ctx context.Context, rep engine.ItemReport) (string, error) {
	data, err := r.src.Screenshot(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to capture screenshot: %w", err)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to decode screenshot: %w", err)
	}
	img = Shrink(img, r.opts.MaxWidth)

	name := fmt.Sprintf("%04d-%s-%s.png", rep.Seq, rep.Outcome, slug(rep.Identity))
	path := filepath.Join(r.opts.Dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return path, nil
}

// Shrink scales img down to maxWidth keeping its aspect ratio.
// Images already narrow enough are returned unchanged.
func Shrink(img image.Image, maxWidth uint) image.Image {
	if maxWidth == 0 || uint(img.Bounds().Dx()) <= maxWidth {
		return img
	}
	return resize.Resize(maxWidth, 0, img, resize.Lanczos3)
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

func slug(s string) string {
	s = unsafeChars.ReplaceAllString(s, "_")
	if len(s) > 48 {
		s = s[:48]
	}
	return s
}
