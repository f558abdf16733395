package capture

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/tiroq/tablewatch/internal/window"
)

const (
	browserNavigateTimeout   = 60 * time.Second
	browserScreenshotTimeout = 5 * time.Second
)

// BrowserCapturer captures frames from a browser-hosted table through
// chromedp. It owns a headless browser instance with nested contexts: the
// allocator context manages the browser process, the page context runs
// navigation and screenshots. Both are cancelled on Close.
type BrowserCapturer struct {
	url         string
	allocCtx    context.Context
	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc

	mu      sync.Mutex
	started bool
}

// NewBrowserCapturer creates a capturer for the given table URL. Start must
// be called before Capture.
func NewBrowserCapturer(url string) *BrowserCapturer {
	return &BrowserCapturer{url: url}
}

// Name returns the backend identifier.
func (bc *BrowserCapturer) Name() string { return "browser" }

// Start launches the browser and navigates to the table URL.
func (bc *BrowserCapturer) Start(parent context.Context) error {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if bc.started {
		return fmt.Errorf("browser already started")
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.WindowSize(1280, 800),
	)
	bc.allocCtx, bc.allocCancel = chromedp.NewExecAllocator(parent, opts...)
	bc.ctx, bc.cancel = chromedp.NewContext(bc.allocCtx)

	navCtx, navCancel := context.WithTimeout(bc.ctx, browserNavigateTimeout)
	defer navCancel()
	if err := chromedp.Run(navCtx, chromedp.Navigate(bc.url)); err != nil {
		bc.teardown()
		return fmt.Errorf("failed to navigate to %s: %w", bc.url, err)
	}
	bc.started = true
	return nil
}

// Capture takes a screenshot of the page. The screenshot has its own timeout
// in addition to ctx so a hung renderer cannot stall the cycle.
func (bc *BrowserCapturer) Capture(ctx context.Context, s window.Surface) (*Frame, error) {
	bc.mu.Lock()
	started := bc.started
	pageCtx := bc.ctx
	bc.mu.Unlock()
	if !started {
		return nil, &Error{SurfaceID: s.ID, Reason: ReasonClosed, Err: fmt.Errorf("browser not started")}
	}

	shotCtx, cancel := context.WithTimeout(pageCtx, browserScreenshotTimeout)
	defer cancel()

	var buf []byte
	done := make(chan error, 1)
	go func() {
		done <- chromedp.Run(shotCtx, chromedp.CaptureScreenshot(&buf))
	}()

	select {
	case <-ctx.Done():
		return nil, &Error{SurfaceID: s.ID, Reason: ReasonTimeout, Err: ctx.Err()}
	case err := <-done:
		if err != nil {
			reason := ReasonPlatform
			if shotCtx.Err() != nil {
				reason = ReasonTimeout
			}
			return nil, &Error{SurfaceID: s.ID, Reason: reason, Err: err}
		}
	}

	img, err := png.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, &Error{SurfaceID: s.ID, Reason: ReasonPlatform, Err: fmt.Errorf("failed to decode screenshot: %w", err)}
	}
	return &Frame{
		Image:        toRGBA(img),
		CapturedAt:   time.Now(),
		SurfaceID:    s.ID,
		SurfaceTitle: s.Title,
	}, nil
}

// Surface returns the synthetic surface representing the browser page, for
// use with a StaticSurfaces provider.
func (bc *BrowserCapturer) Surface(title string) window.Surface {
	return window.Surface{
		ID:        "browser",
		Title:     title,
		W:         1280,
		H:         800,
		Visible:   true,
		FocusedAt: time.Now(),
	}
}

// Close shuts the browser down and releases both contexts.
func (bc *BrowserCapturer) Close() {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	if !bc.started {
		return
	}
	bc.teardown()
	bc.started = false
}

func (bc *BrowserCapturer) teardown() {
	if bc.cancel != nil {
		bc.cancel()
	}
	if bc.allocCancel != nil {
		bc.allocCancel()
	}
}
