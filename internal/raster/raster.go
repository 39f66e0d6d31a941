// Package raster writes decoded images in standard container formats.
package raster

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"strings"

	"github.com/xfmoulet/qoi"
	"golang.org/x/image/bmp"
)

// Format is an output image format.
type Format string

const (
	FormatBMP Format = "bmp"
	FormatPNG Format = "png"
	FormatQOI Format = "qoi"
)

// ErrUnknownFormat is returned for an unrecognized format name.
var ErrUnknownFormat = errors.New("raster: unknown format")

// Formats lists the supported output formats.
func Formats() []Format {
	return []Format{FormatBMP, FormatPNG, FormatQOI}
}

// ParseFormat parses a format name, case-insensitively. A leading dot is
// accepted so file extensions can be passed directly.
func ParseFormat(name string) (Format, error) {
	f := Format(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(name)), "."))
	for _, known := range Formats() {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
}

// Extension returns the file extension for f, including the dot.
func (f Format) Extension() string {
	return "." + string(f)
}

// ContentType returns the MIME type for f.
func (f Format) ContentType() string {
	switch f {
	case FormatBMP:
		return "image/bmp"
	case FormatPNG:
		return "image/png"
	case FormatQOI:
		return "image/qoi"
	}
	return "application/octet-stream"
}

// Encode writes img to w in format f.
func Encode(w io.Writer, img image.Image, f Format) error {
	var err error
	switch f {
	case FormatBMP:
		err = bmp.Encode(w, img)
	case FormatPNG:
		err = png.Encode(w, img)
	case FormatQOI:
		err = qoi.Encode(w, img)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, string(f))
	}
	if err != nil {
		return fmt.Errorf("encode %s: %w", f, err)
	}
	return nil
}
