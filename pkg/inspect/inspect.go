// Package inspect extracts lightweight metadata from uploaded documents.
package inspect

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"github.com/disintegration/imaging"
	"github.com/ledongthuc/pdf"
)

// ErrUnsupported is returned for content types that are not inspected.
var ErrUnsupported = errors.New("content type not inspected")

// Inspect returns metadata for a PDF (page count) or a JPEG/PNG (pixel
// dimensions after EXIF orientation).
func Inspect(contentType string, data []byte) (map[string]string, error) {
	switch contentType {
	case "application/pdf":
		return inspectPDF(data)
	case "image/jpeg", "image/png":
		return inspectImage(data)
	default:
		return nil, ErrUnsupported
	}
}

func inspectPDF(data []byte) (meta map[string]string, err error) {
	// the pdf reader panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			meta, err = nil, fmt.Errorf("read pdf: %v", r)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}
	return map[string]string{"pages": strconv.Itoa(reader.NumPage())}, nil
}

func inspectImage(data []byte) (map[string]string, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	b := img.Bounds()
	return map[string]string{
		"width":  strconv.Itoa(b.Dx()),
		"height": strconv.Itoa(b.Dy()),
	}, nil
}
