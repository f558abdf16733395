// Package capture acquires raw frames from a selected visual surface. Each
// backend implements Capturer; failures are reported as typed CaptureErrors
// and never panic into the cycle loop.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/tiroq/tablewatch/internal/window"
)

// Frame is one captured image of a surface. The frame belongs to the cycle
// that produced it and must not be mutated by detectors.
type Frame struct {
	Image        *image.RGBA
	CapturedAt   time.Time
	SurfaceID    string
	SurfaceTitle string
}

// Reason classifies a capture failure.
type Reason string

const (
	ReasonClosed     Reason = "surface_closed"
	ReasonMinimized  Reason = "surface_minimized"
	ReasonPermission Reason = "permission_denied"
	ReasonPlatform   Reason = "platform_fault"
	ReasonTimeout    Reason = "timeout"
)

// Error is a typed capture failure. It feeds the fallback manager's failure
// counter and is always recovered at the call site.
type Error struct {
	SurfaceID string
	Reason    Reason
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("capture %s: %s: %v", e.SurfaceID, e.Reason, e.Err)
	}
	return fmt.Sprintf("capture %s: %s", e.SurfaceID, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// AsError extracts a capture *Error from err, if present.
func AsError(err error) (*Error, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// Capturer produces frames for classified surfaces. Implementations must be
// safe to call repeatedly at the cycle rate and must release any OS handle
// before returning.
type Capturer interface {
	Name() string
	Capture(ctx context.Context, s window.Surface) (*Frame, error)
}

// SurfaceProvider supplies the per-cycle snapshot of candidate surfaces.
type SurfaceProvider interface {
	Surfaces() ([]window.Surface, error)
}

// StaticSurfaces is a SurfaceProvider over a fixed list; used by the browser
// backend (one synthetic surface) and by tests.
type StaticSurfaces []window.Surface

// Surfaces returns the fixed list.
func (s StaticSurfaces) Surfaces() ([]window.Surface, error) {
	return []window.Surface(s), nil
}
