package testutil

import (
	"context"
	"errors"
	"image/color"
	"testing"

	"github.com/tiroq/tablewatch/internal/capture"
	"github.com/tiroq/tablewatch/internal/window"
)

func TestScriptedCapturerReplaysAndRepeatsLastStep(t *testing.T) {
	frame := SolidFrame(10, 10, color.RGBA{20, 90, 40, 255}, "seed")
	c := NewScriptedCapturer().
		QueueError(errors.New("warming up")).
		QueueFrame(frame)

	surface := window.Surface{ID: "w1", Title: "Table 1"}

	if _, err := c.Capture(context.Background(), surface); err == nil {
		t.Fatal("first step should fail")
	}

	for i := 0; i < 3; i++ {
		f, err := c.Capture(context.Background(), surface)
		if err != nil {
			t.Fatalf("capture %d: %v", i, err)
		}
		if f.SurfaceID != "w1" || f.SurfaceTitle != "Table 1" {
			t.Fatalf("frame not stamped with surface identity: %q/%q", f.SurfaceID, f.SurfaceTitle)
		}
	}
	if c.Calls() != 4 {
		t.Fatalf("calls: want 4, got %d", c.Calls())
	}
}

func TestScriptedCapturerEmptyScriptFailsAsPlatformFault(t *testing.T) {
	c := NewScriptedCapturer()
	_, err := c.Capture(context.Background(), window.Surface{ID: "w9"})
	ce, ok := capture.AsError(err)
	if !ok {
		t.Fatalf("want typed capture error, got %v", err)
	}
	if ce.Reason != capture.ReasonPlatform {
		t.Fatalf("reason: want %s, got %s", capture.ReasonPlatform, ce.Reason)
	}
	if ce.SurfaceID != "w9" {
		t.Fatalf("surface id: want w9, got %s", ce.SurfaceID)
	}
}
