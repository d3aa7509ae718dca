package extract

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Runner lets tests stub the external binaries.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	if err != nil {
		log.Printf("[extract] cmd=%s args=%q duration_ms=%d error=%v stderr=%s",
			name, strings.Join(args, " "), time.Since(start).Milliseconds(), err, truncate(errb.String(), 512))
	}
	return out.Bytes(), errb.Bytes(), err
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}

type TesseractConfig struct {
	Tesseract string // binary name or absolute path; empty -> "tesseract"
	Pdftoppm  string // empty -> "pdftoppm"
	Language  string // empty -> "eng"
}

func (c *TesseractConfig) defaults() {
	if c.Tesseract == "" {
		c.Tesseract = "tesseract"
	}
	if c.Pdftoppm == "" {
		c.Pdftoppm = "pdftoppm"
	}
	if c.Language == "" {
		c.Language = "eng"
	}
}

// tesseractRecognizer shells out to tesseract:
// tesseract <file> stdout -l <lang>
type tesseractRecognizer struct {
	cfg    TesseractConfig
	runner Runner
}

func NewTesseractRecognizer(cfg TesseractConfig) Recognizer {
	cfg.defaults()
	return &tesseractRecognizer{cfg: cfg, runner: execRunner{}}
}

func (r *tesseractRecognizer) Recognize(ctx context.Context, img []byte) (string, error) {
	tmp, err := os.CreateTemp("", "textify-ocr-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(img); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	out, errb, err := r.runner.Run(ctx, r.cfg.Tesseract, tmp.Name(), "stdout", "-l", r.cfg.Language)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w: %s", err, truncate(string(errb), 256))
	}
	return string(out), nil
}

// pdftoppmRasterizer renders PDF pages to PNGs:
// pdftoppm -r <dpi> -png <in.pdf> <tmp/page>
type pdftoppmRasterizer struct {
	cfg    TesseractConfig
	runner Runner
}

func NewPdftoppmRasterizer(cfg TesseractConfig) Rasterizer {
	cfg.defaults()
	return &pdftoppmRasterizer{cfg: cfg, runner: execRunner{}}
}

func (r *pdftoppmRasterizer) Render(ctx context.Context, data []byte, dpi int) ([][]byte, error) {
	tmpDir, err := os.MkdirTemp("", "textify-pp-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmpDir)

	in := filepath.Join(tmpDir, "in.pdf")
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return nil, err
	}

	prefix := filepath.Join(tmpDir, "page")
	if _, errb, err := r.runner.Run(ctx, r.cfg.Pdftoppm, "-r", fmt.Sprintf("%d", dpi), "-png", in, prefix); err != nil {
		return nil, fmt.Errorf("pdftoppm: %w: %s", err, truncate(string(errb), 256))
	}

	// pdftoppm pads page numbers to a uniform width, lexical order is page order
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if len(matches) == 0 {
		return nil, fmt.Errorf("pdftoppm produced no pages")
	}

	pages := make([][]byte, 0, len(matches))
	for _, m := range matches {
		img, err := os.ReadFile(m)
		if err != nil {
			return nil, err
		}
		pages = append(pages, img)
	}
	return pages, nil
}
