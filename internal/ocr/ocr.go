// Package ocr extracts text from downloaded images via tesseract.
package ocr

import (
	"context"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"github.com/rs/zerolog"
)

// Reader runs tesseract over image files. A fresh client is created per
// call; gosseract clients are not safe for concurrent reuse.
type Reader struct {
	languages []string
	logger    zerolog.Logger
}

// NewReader builds a Reader. languages is a comma-separated tesseract
// language list ("eng,rus"); empty means tesseract's default.
func NewReader(languages string, logger zerolog.Logger) *Reader {
	var langs []string
	for _, l := range strings.Split(languages, ",") {
		if l = strings.TrimSpace(l); l != "" {
			langs = append(langs, l)
		}
	}
	return &Reader{
		languages: langs,
		logger:    logger.With().Str("component", "ocr").Logger(),
	}
}

// ExtractText returns the recognized text, trimmed. Failures come back
// as an error; callers treat them as empty text.
func (r *Reader) ExtractText(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if len(r.languages) > 0 {
		if err := client.SetLanguage(r.languages...); err != nil {
			return "", err
		}
	}
	if err := client.SetImage(path); err != nil {
		return "", err
	}

	text, err := client.Text()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
