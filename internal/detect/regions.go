package detect

import "github.com/tiroq/tablewatch/internal/imaging"

// Table layout regions, expressed as fractions of the captured frame. These
// match the common landscape table layout: board center, pot above it, hero
// bottom center, six seats around the rim.
var (
	regionPot    = imaging.Region{X: 0.35, Y: 0.30, W: 0.30, H: 0.07}
	regionBoard  = imaging.Region{X: 0.25, Y: 0.40, W: 0.50, H: 0.18}
	regionHero   = imaging.Region{X: 0.40, Y: 0.74, W: 0.20, H: 0.14}
	regionBlinds = imaging.Region{X: 0.00, Y: 0.00, W: 1.00, H: 0.05}

	boardSlots = 5
	heroSlots  = 2
)

// seatRegions are the six seat boxes clockwise from bottom center (hero).
var seatRegions = []imaging.Region{
	{X: 0.42, Y: 0.80, W: 0.16, H: 0.10}, // seat 0: hero, bottom center
	{X: 0.08, Y: 0.62, W: 0.16, H: 0.10}, // seat 1: bottom left
	{X: 0.08, Y: 0.22, W: 0.16, H: 0.10}, // seat 2: top left
	{X: 0.42, Y: 0.08, W: 0.16, H: 0.10}, // seat 3: top center
	{X: 0.76, Y: 0.22, W: 0.16, H: 0.10}, // seat 4: top right
	{X: 0.76, Y: 0.62, W: 0.16, H: 0.10}, // seat 5: bottom right
}

// buttonRegions sit just inside each seat toward the table center; the
// dealer marker is drawn there.
var buttonRegions = []imaging.Region{
	{X: 0.46, Y: 0.72, W: 0.06, H: 0.06},
	{X: 0.22, Y: 0.58, W: 0.06, H: 0.06},
	{X: 0.22, Y: 0.32, W: 0.06, H: 0.06},
	{X: 0.46, Y: 0.18, W: 0.06, H: 0.06},
	{X: 0.72, Y: 0.32, W: 0.06, H: 0.06},
	{X: 0.72, Y: 0.58, W: 0.06, H: 0.06},
}

// timerRegions are the decision-timer bars under each seat box.
var timerRegions = []imaging.Region{
	{X: 0.42, Y: 0.91, W: 0.16, H: 0.02},
	{X: 0.08, Y: 0.73, W: 0.16, H: 0.02},
	{X: 0.08, Y: 0.33, W: 0.16, H: 0.02},
	{X: 0.42, Y: 0.19, W: 0.16, H: 0.02},
	{X: 0.76, Y: 0.33, W: 0.16, H: 0.02},
	{X: 0.76, Y: 0.73, W: 0.16, H: 0.02},
}

// slotRegion returns the i-th of n equally spaced card slots within parent.
func slotRegion(parent imaging.Region, i, n int) imaging.Region {
	w := parent.W / float64(n)
	return imaging.Region{X: parent.X + float64(i)*w, Y: parent.Y, W: w, H: parent.H}
}
