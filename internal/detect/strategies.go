package detect

import (
	"image"
	"image/color"
	"regexp"
	"strconv"
	"strings"

	"github.com/tiroq/tablewatch/internal/imaging"
	"github.com/tiroq/tablewatch/pkg/cards"
)

// Shared pixel heuristics and text parsers used by the strategy set.

var (
	cardFaceWhite  = color.RGBA{R: 245, G: 245, B: 240, A: 255}
	feltGreen      = color.RGBA{R: 30, G: 110, B: 60, A: 255}
	dealerButtonFg = color.RGBA{R: 250, G: 250, B: 250, A: 255}
	actionGold     = color.RGBA{R: 250, G: 210, B: 60, A: 255}
	timerBarGreen  = color.RGBA{R: 90, G: 200, B: 90, A: 255}
)

// slotOccupied reports whether a card slot shows a card face rather than
// felt: bright overall with a dominant near-white share.
func slotOccupied(slot image.Image) bool {
	return imaging.Brightness(slot) > 150 && imaging.MatchRatio(slot, cardFaceWhite, 60) > 0.35
}

var amountPattern = regexp.MustCompile(`[0-9][0-9.,]*`)

// parseAmount extracts a monetary amount from OCR text such as
// "Pot: $1,234.56". Returns ok=false when no number is present.
func parseAmount(text string) (float64, bool) {
	match := amountPattern.FindString(text)
	if match == "" {
		return 0, false
	}
	match = strings.ReplaceAll(match, ",", "")
	// A trailing dot is OCR noise, not a decimal point.
	match = strings.TrimSuffix(match, ".")
	v, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

var blindsPattern = regexp.MustCompile(`([0-9][0-9.,]*)\s*/\s*([0-9][0-9.,]*)`)
var antePattern = regexp.MustCompile(`(?i)ante\s*:?\s*([0-9][0-9.,]*)`)

// parseBlinds extracts "small/big" stakes and an optional ante from text such
// as "Table 5 - $1/$2 NL Hold'em (Ante 0.25)".
func parseBlinds(text string) (BlindsValue, bool) {
	m := blindsPattern.FindStringSubmatch(text)
	if m == nil {
		return BlindsValue{}, false
	}
	small, ok1 := parseAmount(m[1])
	big, ok2 := parseAmount(m[2])
	if !ok1 || !ok2 || small <= 0 || big < small {
		return BlindsValue{}, false
	}
	v := BlindsValue{Small: small, Big: big}
	if am := antePattern.FindStringSubmatch(text); am != nil {
		if ante, ok := parseAmount(am[1]); ok {
			v.Ante = ante
		}
	}
	return v, true
}

// parseRankToken maps an OCR rank token to a card rank.
func parseRankToken(tok string) (cards.Rank, bool) {
	switch strings.ToUpper(strings.TrimSpace(tok)) {
	case "2":
		return cards.Two, true
	case "3":
		return cards.Three, true
	case "4":
		return cards.Four, true
	case "5", "S": // tesseract often reads 5 as S on small glyphs
		return cards.Five, true
	case "6":
		return cards.Six, true
	case "7":
		return cards.Seven, true
	case "8", "B":
		return cards.Eight, true
	case "9":
		return cards.Nine, true
	case "10", "T", "IO", "1O":
		return cards.Ten, true
	case "J":
		return cards.Jack, true
	case "Q", "O0":
		return cards.Queen, true
	case "K":
		return cards.King, true
	case "A", "4A":
		return cards.Ace, true
	}
	return 0, false
}

// suitFromPixels guesses the suit of a card slot: red/black from the pip
// color, hearts vs diamonds (and spades vs clubs) from pip mass distribution.
// Best effort; the ensemble vote and downstream gating absorb the uncertainty.
func suitFromPixels(slot *image.RGBA) cards.Suit {
	red := imaging.RednessRatio(slot)

	// Compare ink density of the upper vs lower half of the pip area:
	// hearts and spades are top-heavy, diamonds and clubs more symmetric.
	b := slot.Bounds()
	upper := imaging.Crop(slot, imaging.Region{X: 0.2, Y: 0.25, W: 0.6, H: 0.25})
	lower := imaging.Crop(slot, imaging.Region{X: 0.2, Y: 0.50, W: 0.6, H: 0.25})
	topHeavy := b.Dy() > 0 && imaging.Brightness(upper) < imaging.Brightness(lower)

	if red > 0.04 {
		if topHeavy {
			return cards.Hearts
		}
		return cards.Diamonds
	}
	if topHeavy {
		return cards.Spades
	}
	return cards.Clubs
}
