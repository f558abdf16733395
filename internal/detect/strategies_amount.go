package detect

import (
	"github.com/tiroq/tablewatch/internal/capture"
	"github.com/tiroq/tablewatch/internal/imaging"
)

// AmountOCRStrategy reads the pot amount from the pot label region.
type AmountOCRStrategy struct {
	reader TextReader
}

// NewAmountOCRStrategy creates the OCR pot strategy.
func NewAmountOCRStrategy(reader TextReader) *AmountOCRStrategy {
	return &AmountOCRStrategy{reader: reader}
}

// Name returns the strategy identifier.
func (s *AmountOCRStrategy) Name() string { return "amount-ocr" }

// Detect OCRs the pot region and parses the amount.
func (s *AmountOCRStrategy) Detect(frame *capture.Frame) (Value, float64, error) {
	region := imaging.Crop(frame.Image, regionPot)
	text, err := s.reader.ReadText(region)
	if err != nil {
		return nil, 0, err
	}
	amount, ok := parseAmount(text)
	if !ok {
		return nil, 0, nil
	}
	return AmountValue(amount), 0.85, nil
}

// AmountDigitStrategy estimates the pot amount from digit-cell ink patterns
// without OCR. It only distinguishes digit count and leading digit, so its
// proposals carry low confidence and mainly corroborate the OCR reading's
// magnitude.
type AmountDigitStrategy struct{}

// NewAmountDigitStrategy creates the pixel digit strategy.
func NewAmountDigitStrategy() *AmountDigitStrategy {
	return &AmountDigitStrategy{}
}

// Name returns the strategy identifier.
func (s *AmountDigitStrategy) Name() string { return "amount-digits" }

// Detect estimates the amount from digit cells.
func (s *AmountDigitStrategy) Detect(frame *capture.Frame) (Value, float64, error) {
	region := imaging.Crop(frame.Image, regionPot)
	if imaging.Brightness(region) > 235 {
		// Blank label: no pot rendered.
		return nil, 0, nil
	}

	const cells = 8
	inked := 0
	var leading float64 = -1
	for i := 0; i < cells; i++ {
		cell := imaging.Crop(region, imaging.Region{
			X: float64(i) / cells, Y: 0, W: 1.0 / cells, H: 1,
		})
		b := imaging.Brightness(cell)
		if b < 210 {
			inked++
			if leading < 0 {
				// Bucket the leading digit by ink density.
				leading = digitFromInk(b)
			}
		}
	}
	if inked == 0 || leading < 0 {
		return nil, 0, nil
	}

	estimate := leading
	for i := 1; i < inked; i++ {
		estimate *= 10
	}
	return AmountValue(estimate), 0.4, nil
}

func digitFromInk(brightness float64) float64 {
	switch {
	case brightness < 120:
		return 8
	case brightness < 150:
		return 6
	case brightness < 175:
		return 4
	case brightness < 195:
		return 2
	default:
		return 1
	}
}

// BlindsOCRStrategy reads the stakes from the table's header strip.
type BlindsOCRStrategy struct {
	reader TextReader
}

// NewBlindsOCRStrategy creates the OCR blinds strategy.
func NewBlindsOCRStrategy(reader TextReader) *BlindsOCRStrategy {
	return &BlindsOCRStrategy{reader: reader}
}

// Name returns the strategy identifier.
func (s *BlindsOCRStrategy) Name() string { return "blinds-ocr" }

// Detect OCRs the header strip for "small/big" stakes.
func (s *BlindsOCRStrategy) Detect(frame *capture.Frame) (Value, float64, error) {
	region := imaging.Crop(frame.Image, regionBlinds)
	text, err := s.reader.ReadText(region)
	if err != nil {
		return nil, 0, err
	}
	blinds, ok := parseBlinds(text)
	if !ok {
		return nil, 0, nil
	}
	return blinds, 0.8, nil
}

// BlindsTitleStrategy parses the stakes from the surface title, which most
// clients render as e.g. "Table 5 - $1/$2 NL Hold'em". Needs no pixels at
// all, so it keeps working when the header strip is obscured.
type BlindsTitleStrategy struct{}

// NewBlindsTitleStrategy creates the title-parsing blinds strategy.
func NewBlindsTitleStrategy() *BlindsTitleStrategy {
	return &BlindsTitleStrategy{}
}

// Name returns the strategy identifier.
func (s *BlindsTitleStrategy) Name() string { return "blinds-title" }

// Detect parses the frame's surface title.
func (s *BlindsTitleStrategy) Detect(frame *capture.Frame) (Value, float64, error) {
	blinds, ok := parseBlinds(frame.SurfaceTitle)
	if !ok {
		return nil, 0, nil
	}
	return blinds, 0.75, nil
}
