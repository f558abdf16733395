package capture

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"strconv"
	"time"

	"github.com/go-vgo/robotgo"

	"github.com/tiroq/tablewatch/internal/window"
)

// ScreenCapturer grabs OS window contents through robotgo. Each Capture call
// copies the screen region into a fresh RGBA buffer; robotgo's native bitmap
// is released before return.
type ScreenCapturer struct{}

// NewScreenCapturer creates the robotgo-backed capturer.
func NewScreenCapturer() *ScreenCapturer {
	return &ScreenCapturer{}
}

// Name returns the backend identifier.
func (sc *ScreenCapturer) Name() string { return "screen" }

// Capture grabs the surface's on-screen rectangle. The grab runs in its own
// goroutine so a wedged platform call cannot block the cycle past ctx.
func (sc *ScreenCapturer) Capture(ctx context.Context, s window.Surface) (*Frame, error) {
	if !s.Visible {
		return nil, &Error{SurfaceID: s.ID, Reason: ReasonMinimized}
	}
	if s.W <= 0 || s.H <= 0 {
		return nil, &Error{SurfaceID: s.ID, Reason: ReasonClosed}
	}

	type grabResult struct {
		img image.Image
		err error
	}
	ch := make(chan grabResult, 1)
	go func() {
		img, err := robotgo.CaptureImg(s.X, s.Y, s.W, s.H)
		if err != nil {
			ch <- grabResult{err: err}
			return
		}
		if img == nil {
			ch <- grabResult{err: fmt.Errorf("empty capture")}
			return
		}
		ch <- grabResult{img: img}
	}()

	select {
	case <-ctx.Done():
		return nil, &Error{SurfaceID: s.ID, Reason: ReasonTimeout, Err: ctx.Err()}
	case res := <-ch:
		if res.err != nil {
			return nil, &Error{SurfaceID: s.ID, Reason: ReasonPlatform, Err: res.err}
		}
		rgba := toRGBA(res.img)
		return &Frame{
			Image:        rgba,
			CapturedAt:   time.Now(),
			SurfaceID:    s.ID,
			SurfaceTitle: s.Title,
		}, nil
	}
}

// ScreenSurfaces enumerates visible OS windows through robotgo process and
// bounds queries.
type ScreenSurfaces struct{}

// NewScreenSurfaces creates the robotgo-backed surface provider.
func NewScreenSurfaces() *ScreenSurfaces {
	return &ScreenSurfaces{}
}

// Surfaces lists candidate windows. Windows without a resolvable title or
// with empty bounds are skipped; classification handles the rest.
func (ss *ScreenSurfaces) Surfaces() ([]window.Surface, error) {
	procs, err := robotgo.Process()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate processes: %w", err)
	}

	now := time.Now()
	out := make([]window.Surface, 0, len(procs))
	for _, p := range procs {
		title := robotgo.GetTitle(p.Pid)
		if title == "" {
			continue
		}
		x, y, w, h := robotgo.GetBounds(p.Pid)
		if w <= 0 || h <= 0 {
			continue
		}
		out = append(out, window.Surface{
			ID:        strconv.Itoa(p.Pid),
			Title:     title,
			X:         x,
			Y:         y,
			W:         w,
			H:         h,
			Visible:   true,
			FocusedAt: now, // robotgo exposes no focus history; treat as current
		})
	}
	return out, nil
}

// toRGBA converts any image into *image.RGBA without aliasing the source.
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		cp := image.NewRGBA(rgba.Bounds())
		copy(cp.Pix, rgba.Pix)
		return cp
	}
	b := img.Bounds()
	out := image.NewRGBA(b)
	draw.Draw(out, b, img, b.Min, draw.Src)
	return out
}
