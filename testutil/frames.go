package testutil

import (
	"context"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/tiroq/tablewatch/internal/capture"
	"github.com/tiroq/tablewatch/internal/window"
)

// SolidFrame builds a capture frame filled with one color.
func SolidFrame(w, h int, fill color.RGBA, surfaceID string) *capture.Frame {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, fill)
		}
	}
	return &capture.Frame{
		Image:      img,
		CapturedAt: time.Now(),
		SurfaceID:  surfaceID,
	}
}

// PaintRect fills a rectangle of the frame's image with one color.
func PaintRect(f *capture.Frame, r image.Rectangle, fill color.RGBA) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			f.Image.SetRGBA(x, y, fill)
		}
	}
}

// ScriptedCapturer replays a queue of frames and errors in order. When the
// script runs out, the last step repeats.
type ScriptedCapturer struct {
	mu    sync.Mutex
	steps []scriptStep
	calls int
}

type scriptStep struct {
	frame *capture.Frame
	err   error
}

// NewScriptedCapturer creates an empty script.
func NewScriptedCapturer() *ScriptedCapturer {
	return &ScriptedCapturer{}
}

// QueueFrame appends a successful capture to the script.
func (s *ScriptedCapturer) QueueFrame(f *capture.Frame) *ScriptedCapturer {
	s.mu.Lock()
	s.steps = append(s.steps, scriptStep{frame: f})
	s.mu.Unlock()
	return s
}

// QueueError appends a failing capture to the script.
func (s *ScriptedCapturer) QueueError(err error) *ScriptedCapturer {
	s.mu.Lock()
	s.steps = append(s.steps, scriptStep{err: err})
	s.mu.Unlock()
	return s
}

// Name implements capture.Capturer.
func (s *ScriptedCapturer) Name() string { return "scripted" }

// Capture implements capture.Capturer by replaying the script.
func (s *ScriptedCapturer) Capture(_ context.Context, surface window.Surface) (*capture.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.steps) == 0 {
		return nil, &capture.Error{SurfaceID: surface.ID, Reason: capture.ReasonPlatform}
	}
	idx := s.calls
	if idx >= len(s.steps) {
		idx = len(s.steps) - 1
	}
	s.calls++
	step := s.steps[idx]
	if step.err != nil {
		return nil, step.err
	}
	f := *step.frame
	f.SurfaceID = surface.ID
	f.SurfaceTitle = surface.Title
	return &f, nil
}

// Calls returns how many captures were requested.
func (s *ScriptedCapturer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// FuncTextReader adapts a function into a detect text reader.
type FuncTextReader struct {
	Fn func(image.Image) (string, error)
}

// ReadText invokes the wrapped function.
func (r FuncTextReader) ReadText(img image.Image) (string, error) {
	return r.Fn(img)
}
