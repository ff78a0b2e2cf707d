package internal

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/sirupsen/logrus"
)

func init() {
	// pdfcpu otherwise writes a config directory under the user's home.
	api.DisableConfigDir()
}

type RawImage struct {
	Name     string
	FileType string
	Data     []byte
}

type PDFPage struct {
	Number int // 1-based
	Text   string
	Images []RawImage
	Err    error // text extraction failure; images may still be present
}

type PDFExtractor interface {
	Pages(ctx context.Context, path string) ([]PDFPage, error)
}

var _ PDFExtractor = (*PDFReader)(nil)

// PDFReader reads page text with ledongthuc/pdf and raster images with pdfcpu.
// A page that breaks either reader is reported on the page and the rest of the
// document is still returned.
type PDFReader struct {
	logger logrus.FieldLogger
}

func NewPDFReader(logger logrus.FieldLogger) *PDFReader {
	return &PDFReader{logger: orDiscard(logger)}
}

func (r *PDFReader) Pages(ctx context.Context, path string) ([]PDFPage, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	n := reader.NumPage()
	pages := make([]PDFPage, n)

	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := pageText(reader, i)
		pages[i-1] = PDFPage{Number: i, Text: text, Err: err}
	}

	images, err := r.images(path)
	if err != nil {
		r.logger.WithError(err).WithField("path", path).Warn("image extraction failed, continuing with text only")
	}
	for page, imgs := range images {
		if page >= 1 && page <= n {
			pages[page-1].Images = imgs
		}
	}

	return pages, nil
}

func pageText(reader *pdf.Reader, number int) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			text, err = "", fmt.Errorf("page %d: %v", number, rec)
		}
	}()

	p := reader.Page(number)
	if p.V.IsNull() {
		return "", nil
	}

	text, err = p.GetPlainText(nil)
	if err != nil {
		return "", fmt.Errorf("page %d: %w", number, err)
	}
	return strings.TrimSpace(text), nil
}

func (r *PDFReader) images(path string) (byPage map[int][]RawImage, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("extract images: %v", rec)
		}
	}()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	byPage = make(map[int][]RawImage)
	digest := func(img model.Image, _ bool, _ int) error {
		raw, err := io.ReadAll(img)
		if err != nil {
			r.logger.WithError(err).WithFields(logrus.Fields{
				"page":  img.PageNr,
				"image": img.Name,
			}).Warn("skipping unreadable image")
			return nil
		}
		byPage[img.PageNr] = append(byPage[img.PageNr], RawImage{
			Name:     img.Name,
			FileType: img.FileType,
			Data:     raw,
		})
		return nil
	}

	if err := api.ExtractImages(bytes.NewReader(data), nil, digest, model.NewDefaultConfiguration()); err != nil {
		return byPage, fmt.Errorf("extract images: %w", err)
	}

	for page := range byPage {
		imgs := byPage[page]
		sort.SliceStable(imgs, func(i, j int) bool { return imgs[i].Name < imgs[j].Name })
	}

	return byPage, nil
}
