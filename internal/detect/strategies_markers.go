package detect

import (
	"strings"

	"github.com/tiroq/tablewatch/internal/capture"
	"github.com/tiroq/tablewatch/internal/imaging"
)

// ButtonColorStrategy finds the dealer button by the white disc drawn inside
// one seat's button region.
type ButtonColorStrategy struct{}

// NewButtonColorStrategy creates the color-based dealer strategy.
func NewButtonColorStrategy() *ButtonColorStrategy {
	return &ButtonColorStrategy{}
}

// Name returns the strategy identifier.
func (s *ButtonColorStrategy) Name() string { return "button-color" }

// Detect returns the seat whose button region shows the marker disc.
func (s *ButtonColorStrategy) Detect(frame *capture.Frame) (Value, float64, error) {
	bestSeat, bestRatio := -1, 0.0
	for seat, region := range buttonRegions {
		box := imaging.Crop(frame.Image, region)
		ratio := imaging.MatchRatio(box, dealerButtonFg, 40)
		if ratio > bestRatio {
			bestSeat, bestRatio = seat, ratio
		}
	}
	if bestSeat < 0 || bestRatio < 0.25 {
		return nil, 0, nil
	}
	return SeatValue(bestSeat), 0.6 + 0.3*bestRatio, nil
}

// ButtonShapeStrategy confirms the dealer button by its round shape: the
// marker's white mass is centered, unlike chip stacks or text.
type ButtonShapeStrategy struct{}

// NewButtonShapeStrategy creates the shape-based dealer strategy.
func NewButtonShapeStrategy() *ButtonShapeStrategy {
	return &ButtonShapeStrategy{}
}

// Name returns the strategy identifier.
func (s *ButtonShapeStrategy) Name() string { return "button-shape" }

// Detect returns the seat with the most disc-like bright blob.
func (s *ButtonShapeStrategy) Detect(frame *capture.Frame) (Value, float64, error) {
	bestSeat, bestScore := -1, 0.0
	for seat, region := range buttonRegions {
		box := imaging.Crop(frame.Image, region)
		center := imaging.Crop(box, imaging.Region{X: 0.25, Y: 0.25, W: 0.5, H: 0.5})
		rim := imaging.MatchRatio(box, dealerButtonFg, 40)
		core := imaging.MatchRatio(center, dealerButtonFg, 40)
		// A disc is bright in the core and proportionally less on the rim.
		if core > 0.5 && core > rim {
			if score := core - rim; score > bestScore {
				bestSeat, bestScore = seat, score
			}
		}
	}
	if bestSeat < 0 {
		return nil, 0, nil
	}
	return SeatValue(bestSeat), 0.55, nil
}

// ActionColorStrategy detects the acting seat and a coarse action from the
// gold highlight clients draw around the seat that just acted.
type ActionColorStrategy struct{}

// NewActionColorStrategy creates the highlight-based action strategy.
func NewActionColorStrategy() *ActionColorStrategy {
	return &ActionColorStrategy{}
}

// Name returns the strategy identifier.
func (s *ActionColorStrategy) Name() string { return "action-color" }

// Detect finds the highlighted seat. The action label itself needs text, so
// this strategy reports "bet" when chips are visible and "check" otherwise.
func (s *ActionColorStrategy) Detect(frame *capture.Frame) (Value, float64, error) {
	bestSeat, bestRatio := -1, 0.0
	for seat, region := range seatRegions {
		box := imaging.Crop(frame.Image, region)
		ratio := imaging.MatchRatio(box, actionGold, 60)
		if ratio > bestRatio {
			bestSeat, bestRatio = seat, ratio
		}
	}
	if bestSeat < 0 || bestRatio < 0.05 {
		return nil, 0, nil
	}
	action := "check"
	chips := imaging.Crop(frame.Image, buttonRegions[bestSeat])
	if imaging.RednessRatio(chips) > 0.1 {
		action = "bet"
	}
	return ActionValue{Seat: bestSeat, Action: action}, 0.55, nil
}

// ActionTextStrategy reads the action label ("Raise 12.50") from the
// highlighted seat's box.
type ActionTextStrategy struct {
	reader TextReader
}

// NewActionTextStrategy creates the OCR action strategy.
func NewActionTextStrategy(reader TextReader) *ActionTextStrategy {
	return &ActionTextStrategy{reader: reader}
}

// Name returns the strategy identifier.
func (s *ActionTextStrategy) Name() string { return "action-ocr" }

var actionWords = []string{"fold", "check", "call", "bet", "raise", "all-in", "allin"}

// Detect scans seat boxes for an action label.
func (s *ActionTextStrategy) Detect(frame *capture.Frame) (Value, float64, error) {
	for seat, region := range seatRegions {
		box := imaging.Crop(frame.Image, region)
		if !seatOccupied(box) {
			continue
		}
		text, err := s.reader.ReadText(box)
		if err != nil {
			return nil, 0, err
		}
		lower := strings.ToLower(text)
		for _, word := range actionWords {
			if !strings.Contains(lower, word) {
				continue
			}
			if word == "allin" {
				word = "all-in"
			}
			v := ActionValue{Seat: seat, Action: word}
			if amount, ok := parseAmount(lower); ok {
				v.Amount = amount
			}
			return v, 0.7, nil
		}
	}
	return nil, 0, nil
}

// TimerBarStrategy reads the decision timer from the countdown bar's filled
// fraction under the acting seat.
type TimerBarStrategy struct {
	// FullSeconds is the bank a full bar represents.
	FullSeconds int
}

// NewTimerBarStrategy creates the bar-based timer strategy.
func NewTimerBarStrategy() *TimerBarStrategy {
	return &TimerBarStrategy{FullSeconds: 30}
}

// Name returns the strategy identifier.
func (s *TimerBarStrategy) Name() string { return "timer-bar" }

// Detect finds the seat with a visible timer bar and converts the filled
// fraction into remaining seconds.
func (s *TimerBarStrategy) Detect(frame *capture.Frame) (Value, float64, error) {
	for seat, region := range timerRegions {
		bar := imaging.Crop(frame.Image, region)
		filled := imaging.MatchRatio(bar, timerBarGreen, 70)
		if filled < 0.05 {
			continue
		}
		return TimeoutValue{
			Seat:        seat,
			SecondsLeft: int(filled * float64(s.FullSeconds)),
		}, 0.6, nil
	}
	return nil, 0, nil
}

// TimerTextStrategy reads the numeric countdown next to the acting seat.
type TimerTextStrategy struct {
	reader TextReader
}

// NewTimerTextStrategy creates the OCR timer strategy.
func NewTimerTextStrategy(reader TextReader) *TimerTextStrategy {
	return &TimerTextStrategy{reader: reader}
}

// Name returns the strategy identifier.
func (s *TimerTextStrategy) Name() string { return "timer-ocr" }

// Detect OCRs timer regions for a countdown number.
func (s *TimerTextStrategy) Detect(frame *capture.Frame) (Value, float64, error) {
	for seat, region := range timerRegions {
		bar := imaging.Crop(frame.Image, region)
		if imaging.Brightness(bar) > 235 {
			continue // blank
		}
		text, err := s.reader.ReadText(bar)
		if err != nil {
			return nil, 0, err
		}
		if amount, ok := parseAmount(text); ok && amount >= 0 && amount < 600 {
			return TimeoutValue{Seat: seat, SecondsLeft: int(amount)}, 0.55, nil
		}
	}
	return nil, 0, nil
}
