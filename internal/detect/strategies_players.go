package detect

import (
	"fmt"
	"image"
	"strings"

	"github.com/tiroq/tablewatch/internal/capture"
	"github.com/tiroq/tablewatch/internal/imaging"
)

// PlayerOCRStrategy reads each seat box for "name / stack" text.
type PlayerOCRStrategy struct {
	reader TextReader
}

// NewPlayerOCRStrategy creates the OCR player strategy.
func NewPlayerOCRStrategy(reader TextReader) *PlayerOCRStrategy {
	return &PlayerOCRStrategy{reader: reader}
}

// Name returns the strategy identifier.
func (s *PlayerOCRStrategy) Name() string { return "player-ocr" }

// Detect reads every seat box. Seats whose box reads as empty felt are
// reported absent rather than guessed.
func (s *PlayerOCRStrategy) Detect(frame *capture.Frame) (Value, float64, error) {
	var players PlayersValue
	for seat, region := range seatRegions {
		box := imaging.Crop(frame.Image, region)
		if !seatOccupied(box) {
			continue
		}
		text, err := s.reader.ReadText(box)
		if err != nil {
			return nil, 0, fmt.Errorf("seat %d: %w", seat, err)
		}
		name, stack := parseSeatText(text)
		if name == "" && stack == 0 {
			continue
		}
		players = append(players, Player{
			Seat:   seat,
			Name:   name,
			Stack:  stack,
			Active: true,
		})
	}
	if len(players) == 0 {
		return nil, 0, nil
	}
	return players, 0.75, nil
}

// parseSeatText splits seat box text into a name line and a stack amount.
// Seat boxes render name above stack; OCR output keeps the line order.
func parseSeatText(text string) (string, float64) {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	var name string
	var stack float64
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if amount, ok := parseAmount(line); ok && stack == 0 {
			stack = amount
			continue
		}
		if name == "" {
			name = line
		}
	}
	return name, stack
}

// SeatOccupancyStrategy detects which seats are occupied from pixel density
// alone. It reports seats without names or stacks, so it can only corroborate
// or contest the seat set, never the attributes.
type SeatOccupancyStrategy struct{}

// NewSeatOccupancyStrategy creates the occupancy strategy.
func NewSeatOccupancyStrategy() *SeatOccupancyStrategy {
	return &SeatOccupancyStrategy{}
}

// Name returns the strategy identifier.
func (s *SeatOccupancyStrategy) Name() string { return "seat-occupancy" }

// Detect reports the occupied seat set.
func (s *SeatOccupancyStrategy) Detect(frame *capture.Frame) (Value, float64, error) {
	var players PlayersValue
	for seat, region := range seatRegions {
		box := imaging.Crop(frame.Image, region)
		if seatOccupied(box) {
			players = append(players, Player{Seat: seat, Active: true})
		}
	}
	if len(players) == 0 {
		return nil, 0, nil
	}
	return players, 0.5, nil
}

// seatOccupied reports whether a seat box shows a player panel rather than
// bare felt: panels are darker and far less green than the table surface.
func seatOccupied(box *image.RGBA) bool {
	felt := imaging.MatchRatio(box, feltGreen, 70)
	return felt < 0.5 && imaging.Brightness(box) < 200
}
