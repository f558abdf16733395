package detect

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"sync"

	"github.com/otiai10/gosseract"
)

// TextReader extracts text from an image region. The OCR-backed strategies
// depend on this interface so tests can substitute deterministic fakes.
type TextReader interface {
	ReadText(img image.Image) (string, error)
}

// TesseractReader reads text through gosseract. The underlying client is not
// safe for concurrent use, so calls are serialized; strategies for different
// categories may run in parallel.
type TesseractReader struct {
	mu     sync.Mutex
	client *gosseract.Client
}

// NewTesseractReader creates a reader with a long-lived tesseract client.
func NewTesseractReader() *TesseractReader {
	return &TesseractReader{client: gosseract.NewClient()}
}

// ReadText OCRs the image.
func (t *TesseractReader) ReadText(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode region: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", fmt.Errorf("failed to load region: %w", err)
	}
	text, err := t.client.Text()
	if err != nil {
		return "", fmt.Errorf("ocr failed: %w", err)
	}
	return text, nil
}

// Close releases the tesseract client.
func (t *TesseractReader) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client.Close()
}
