package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"certmap/internal/domain"
	"certmap/internal/port"
)

// US Letter, used when a page declares no MediaBox.
const (
	defaultPageWidth  = 612
	defaultPageHeight = 792
)

// Extractor reads positioned text out of PDF documents.
type Extractor struct {
	timeout time.Duration
}

// New creates an Extractor that gives up after timeout. A zero timeout relies
// solely on the caller's context.
func New(timeout time.Duration) *Extractor {
	return &Extractor{timeout: timeout}
}

var _ port.LayoutExtractor = (*Extractor)(nil)

// Extract parses data as a PDF and returns its pages of text items plus the
// plain-text view. It returns domain.ErrTimeout once the deadline of ctx or
// the configured timeout passes, whether or not parsing is still running. A
// canceled ctx returns an error wrapping context.Canceled.
func (e *Extractor) Extract(ctx context.Context, data []byte) (*domain.Extraction, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("extractor.Extract: %w", domain.ErrInputNotFound)
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("extractor.Extract: %w", contextError(err))
	}

	type result struct {
		ext *domain.Extraction
		err error
	}
	done := make(chan result, 1)
	go func() {
		ext, err := extract(ctx, data)
		done <- result{ext: ext, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("extractor.Extract: %w", contextError(ctx.Err()))
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("extractor.Extract: %w", r.err)
		}
		return r.ext, nil
	}
}

func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrTimeout
	}
	return err
}

// ExtractFile reads the document at path and extracts it.
func (e *Extractor) ExtractFile(ctx context.Context, path string) (*domain.Extraction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("extractor.ExtractFile: %w: %s", domain.ErrInputNotFound, path)
		}
		return nil, fmt.Errorf("extractor.ExtractFile: %w", err)
	}
	return e.Extract(ctx, data)
}

func extract(ctx context.Context, data []byte) (ext *domain.Extraction, err error) {
	defer func() {
		if r := recover(); r != nil {
			ext, err = nil, fmt.Errorf("%w: %v", domain.ErrParseFailure, r)
		}
	}()

	// pdfcpu validates the file and resolves page boxes and rotation; the
	// text itself is read through the font-aware reader.
	pdfCtx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrParseFailure, err)
	}
	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrParseFailure, err)
	}

	ext = &domain.Extraction{Pages: make([]domain.Page, 0, pdfCtx.PageCount)}
	var plain strings.Builder
	for pageNr := 1; pageNr <= pdfCtx.PageCount; pageNr++ {
		if err := ctx.Err(); err != nil {
			return nil, contextError(err)
		}
		page, err := extractPage(pdfCtx, doc, pageNr)
		if err != nil {
			return nil, err
		}
		plain.WriteString(page.Text())
		plain.WriteString(domain.PageBreak)
		ext.Pages = append(ext.Pages, page)
	}
	ext.PlainText = plain.String()
	return ext, nil
}

func extractPage(pdfCtx *model.Context, doc *pdf.Reader, pageNr int) (domain.Page, error) {
	vp, err := pageViewport(pdfCtx, pageNr)
	if err != nil {
		return domain.Page{}, err
	}
	page := domain.Page{PageNumber: pageNr, Width: vp.width, Height: vp.height, Items: []domain.TextItem{}}
	if items := interpretPage(doc.Page(pageNr), vp); items != nil {
		page.Items = items
	}
	return page, nil
}

func pageViewport(pdfCtx *model.Context, pageNr int) (viewport, error) {
	_, _, inh, err := pdfCtx.PageDict(pageNr, false)
	if err != nil {
		return viewport{}, fmt.Errorf("%w: page %d: %v", domain.ErrParseFailure, pageNr, err)
	}
	if inh == nil {
		return newViewport(0, 0, defaultPageWidth, defaultPageHeight, 0), nil
	}
	box := inh.CropBox
	if box == nil {
		box = inh.MediaBox
	}
	if box == nil {
		return newViewport(0, 0, defaultPageWidth, defaultPageHeight, inh.Rotate), nil
	}
	return newViewport(box.LL.X, box.LL.Y, box.UR.X, box.UR.Y, inh.Rotate), nil
}
