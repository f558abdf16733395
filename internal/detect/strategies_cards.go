package detect

import (
	"fmt"
	"image"
	"strings"

	"github.com/tiroq/tablewatch/internal/capture"
	"github.com/tiroq/tablewatch/internal/imaging"
	"github.com/tiroq/tablewatch/pkg/cards"
)

// CardOCRStrategy reads the rank glyph of each occupied card slot through
// OCR and takes the suit from pixel color. The strongest cards strategy when
// the table renders crisp glyphs.
type CardOCRStrategy struct {
	reader TextReader
}

// NewCardOCRStrategy creates the OCR-backed cards strategy.
func NewCardOCRStrategy(reader TextReader) *CardOCRStrategy {
	return &CardOCRStrategy{reader: reader}
}

// Name returns the strategy identifier.
func (s *CardOCRStrategy) Name() string { return "card-ocr" }

// Detect reads board and hero slots.
func (s *CardOCRStrategy) Detect(frame *capture.Frame) (Value, float64, error) {
	board, confB, err := s.readRow(frame.Image, regionBoard, boardSlots)
	if err != nil {
		return nil, 0, err
	}
	hero, confH, err := s.readRow(frame.Image, regionHero, heroSlots)
	if err != nil {
		return nil, 0, err
	}
	if len(board) == 0 && len(hero) == 0 {
		return nil, 0, nil
	}
	// Confidence is the mean of the non-empty rows.
	conf := confB
	if len(hero) > 0 {
		if len(board) > 0 {
			conf = (confB + confH) / 2
		} else {
			conf = confH
		}
	}
	return CardsValue{Board: board, Hero: hero}, conf, nil
}

func (s *CardOCRStrategy) readRow(img image.Image, parent imaging.Region, slots int) ([]cards.Card, float64, error) {
	var out []cards.Card
	var conf float64
	for i := 0; i < slots; i++ {
		slot := imaging.Crop(img, slotRegion(parent, i, slots))
		if !slotOccupied(slot) {
			// Card rows fill left to right; the first empty slot ends the row.
			break
		}
		// Rank glyph sits in the upper-left corner of the card face.
		glyph := imaging.Crop(slot, imaging.Region{X: 0.0, Y: 0.0, W: 0.5, H: 0.4})
		text, err := s.reader.ReadText(glyph)
		if err != nil {
			return nil, 0, fmt.Errorf("slot %d: %w", i, err)
		}
		rank, ok := parseRankToken(strings.TrimSpace(text))
		if !ok {
			// Unreadable glyph on an occupied slot: give up on the row
			// rather than invent a card.
			return nil, 0, nil
		}
		out = append(out, cards.Card{Rank: rank, Suit: suitFromPixels(slot)})
		conf += 0.9
	}
	if len(out) == 0 {
		return nil, 0, nil
	}
	return out, conf / float64(len(out)), nil
}

// CardSignatureStrategy recognizes cards from pixel signatures alone: slot
// occupancy, pip color, and glyph ink density bucketed into ranks. Cheaper
// and cruder than OCR; it mostly confirms or contests the OCR vote.
type CardSignatureStrategy struct{}

// NewCardSignatureStrategy creates the signature strategy.
func NewCardSignatureStrategy() *CardSignatureStrategy {
	return &CardSignatureStrategy{}
}

// Name returns the strategy identifier.
func (s *CardSignatureStrategy) Name() string { return "card-signature" }

// Detect proposes cards from pixel signatures.
func (s *CardSignatureStrategy) Detect(frame *capture.Frame) (Value, float64, error) {
	board := s.readRow(frame.Image, regionBoard, boardSlots)
	hero := s.readRow(frame.Image, regionHero, heroSlots)
	if len(board) == 0 && len(hero) == 0 {
		return nil, 0, nil
	}
	return CardsValue{Board: board, Hero: hero}, 0.6, nil
}

func (s *CardSignatureStrategy) readRow(img image.Image, parent imaging.Region, slots int) []cards.Card {
	var out []cards.Card
	for i := 0; i < slots; i++ {
		slot := imaging.Crop(img, slotRegion(parent, i, slots))
		if !slotOccupied(slot) {
			break
		}
		glyph := imaging.Crop(slot, imaging.Region{X: 0.0, Y: 0.0, W: 0.5, H: 0.4})
		out = append(out, cards.Card{
			Rank: rankFromInk(imaging.Brightness(glyph)),
			Suit: suitFromPixels(slot),
		})
	}
	return out
}

// rankFromInk buckets glyph ink density into ranks. Darker glyphs carry more
// strokes (10, Q, K); light ones fewer (7, J). Deliberately coarse.
func rankFromInk(brightness float64) cards.Rank {
	switch {
	case brightness < 150:
		return cards.Ten
	case brightness < 170:
		return cards.Queen
	case brightness < 185:
		return cards.King
	case brightness < 200:
		return cards.Ace
	case brightness < 215:
		return cards.Nine
	case brightness < 230:
		return cards.Eight
	default:
		return cards.Seven
	}
}

// CardPipStrategy counts pip clusters on the card body to recognize numeric
// ranks. Face cards and aces fall back to the corner heuristics, so this
// strategy reports lower confidence on them.
type CardPipStrategy struct{}

// NewCardPipStrategy creates the pip-counting strategy.
func NewCardPipStrategy() *CardPipStrategy {
	return &CardPipStrategy{}
}

// Name returns the strategy identifier.
func (s *CardPipStrategy) Name() string { return "card-pip" }

// Detect proposes cards by pip counting.
func (s *CardPipStrategy) Detect(frame *capture.Frame) (Value, float64, error) {
	board := s.readRow(frame.Image, regionBoard, boardSlots)
	hero := s.readRow(frame.Image, regionHero, heroSlots)
	if len(board) == 0 && len(hero) == 0 {
		return nil, 0, nil
	}
	return CardsValue{Board: board, Hero: hero}, 0.5, nil
}

func (s *CardPipStrategy) readRow(img image.Image, parent imaging.Region, slots int) []cards.Card {
	var out []cards.Card
	for i := 0; i < slots; i++ {
		slot := imaging.Crop(img, slotRegion(parent, i, slots))
		if !slotOccupied(slot) {
			break
		}
		out = append(out, cards.Card{
			Rank: rankFromPips(countPipRows(slot)),
			Suit: suitFromPixels(slot),
		})
	}
	return out
}

// countPipRows scans horizontal bands of the card body and counts bands
// carrying pip ink.
func countPipRows(slot *image.RGBA) int {
	const bands = 7
	count := 0
	for i := 0; i < bands; i++ {
		band := imaging.Crop(slot, imaging.Region{
			X: 0.25, Y: 0.15 + float64(i)*0.1, W: 0.5, H: 0.1,
		})
		if imaging.Brightness(band) < 200 {
			count++
		}
	}
	return count
}

func rankFromPips(rows int) cards.Rank {
	switch rows {
	case 0, 1:
		return cards.Ace
	case 2:
		return cards.Two
	case 3:
		return cards.Three
	case 4:
		return cards.Six
	case 5:
		return cards.Eight
	case 6:
		return cards.Ten
	default:
		return cards.King
	}
}
