package pdftext

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/scale-ticket-service/internal/core/domain"
	"github.com/kirillkom/scale-ticket-service/internal/core/ports"
)

const (
	pdfContentType = "application/pdf"
	maxPDFBytes    = 20 << 20
)

// Extractor reads the text layer of PDF tickets printed by scale software.
// Images and PDFs without a usable text layer go to the fallback extractor.
type Extractor struct {
	images   ports.ObjectStorage
	fallback ports.OCRExtractor
	logger   *slog.Logger
}

func NewExtractor(images ports.ObjectStorage, fallback ports.OCRExtractor, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{images: images, fallback: fallback, logger: logger}
}

func (e *Extractor) Extract(ctx context.Context, image domain.ImageRef) (domain.Extraction, error) {
	if image.ContentType != pdfContentType {
		return e.delegate(ctx, image, "not a pdf")
	}

	text, err := e.readText(ctx, image.Key)
	if err != nil {
		if domain.IsKind(err, domain.ErrExtractionFailed) && e.fallback == nil {
			return domain.Extraction{}, err
		}
		e.logger.Info("pdf_text_layer_unavailable", "key", image.Key, "error", err)
		return e.delegate(ctx, image, "text layer unreadable")
	}

	extraction := ParseLabelledText(text)
	if len(extraction.Fields) == len(domain.RequiredFields) || e.fallback == nil {
		return extraction, nil
	}
	e.logger.Info("pdf_text_layer_incomplete", "key", image.Key, "fields", len(extraction.Fields))
	return e.delegate(ctx, image, "text layer incomplete")
}

func (e *Extractor) delegate(ctx context.Context, image domain.ImageRef, reason string) (domain.Extraction, error) {
	if e.fallback == nil {
		return domain.Extraction{}, domain.WrapError(
			domain.ErrExtractionFailed,
			"pdf text extract",
			fmt.Errorf("%s: %s and no image OCR configured", image.Key, reason),
		)
	}
	return e.fallback.Extract(ctx, image)
}

func (e *Extractor) readText(ctx context.Context, key string) (string, error) {
	rc, err := e.images.Open(ctx, key)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	raw, err := io.ReadAll(io.LimitReader(rc, maxPDFBytes))
	if err != nil {
		return "", fmt.Errorf("read ticket pdf: %w", err)
	}
	return plainText(raw)
}

// plainText recovers from panics inside the pdf reader, which it raises on some malformed files.
func plainText(raw []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = domain.WrapError(domain.ErrExtractionFailed, "read pdf text", fmt.Errorf("malformed pdf: %v", r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", domain.WrapError(domain.ErrExtractionFailed, "open pdf", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", domain.WrapError(domain.ErrExtractionFailed, "read pdf text", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", domain.WrapError(domain.ErrExtractionFailed, "read pdf text", err)
	}
	return buf.String(), nil
}
