// Package extract turns uploaded bytes into plain text. Documents get a
// two-tier strategy: the native text layer when one exists (exact and
// cheap), else per-page rasterization and recognition (lossy and
// expensive). Images go straight to recognition.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"textify/internal/entity"
)

var (
	ErrUnsupportedCategory = errors.New("unsupported file category")
	ErrUnreadableImage     = errors.New("unreadable image")
)

// PDFText extracts a document's native text layer.
type PDFText interface {
	Text(data []byte) (string, error)
}

// Rasterizer renders each document page to an image at the given DPI.
type Rasterizer interface {
	Render(ctx context.Context, data []byte, dpi int) ([][]byte, error)
}

// Recognizer returns the text it can read from a raster image.
type Recognizer interface {
	Recognize(ctx context.Context, img []byte) (string, error)
}

type Engine struct {
	pdfText    PDFText
	rasterizer Rasterizer
	recognizer Recognizer
	dpi        int
}

// 300 DPI is the quality/cost balance point for the recognition engine.
const DefaultDPI = 300

func NewEngine(pdfText PDFText, rasterizer Rasterizer, recognizer Recognizer, dpi int) *Engine {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	return &Engine{pdfText: pdfText, rasterizer: rasterizer, recognizer: recognizer, dpi: dpi}
}

func (e *Engine) Extract(ctx context.Context, data []byte, category entity.FileCategory) (string, error) {
	switch category {
	case entity.CategoryImage:
		return e.extractImage(ctx, data)
	case entity.CategoryDocument:
		return e.extractDocument(ctx, data)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedCategory, category)
	}
}

func (e *Engine) extractImage(ctx context.Context, data []byte) (string, error) {
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreadableImage, err)
	}
	return e.recognizer.Recognize(ctx, data)
}

func (e *Engine) extractDocument(ctx context.Context, data []byte) (string, error) {
	native, err := e.pdfText.Text(data)
	if err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	if strings.TrimSpace(native) != "" {
		return native, nil
	}

	// no native text layer: scanned document, recognize page by page
	pages, err := e.rasterizer.Render(ctx, data, e.dpi)
	if err != nil {
		return "", fmt.Errorf("rasterize document: %w", err)
	}

	var b strings.Builder
	for i, page := range pages {
		text, err := e.recognizer.Recognize(ctx, page)
		if err != nil {
			return "", fmt.Errorf("recognize page %d: %w", i+1, err)
		}
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(text)
	}
	return b.String(), nil
}
