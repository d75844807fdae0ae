// Package render substitutes color tokens into SVG map templates and
// rasterizes the result to PNG.
package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	"github.com/valyala/fasttemplate"
)

// ErrRender wraps every failure of a render sink.
var ErrRender = errors.New("render failed")

// Sink turns a template plus token values into an image file.
type Sink interface {
	Render(ctx context.Context, templatePath, outputPath string, tokens map[string]string) error
}

var tokenPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Substitute replaces every {token} whose name is an identifier. Other brace
// content such as CSS blocks passes through untouched. An identifier without
// a value is an error.
func Substitute(template string, tokens map[string]string) (string, error) {
	tpl, err := fasttemplate.NewTemplate(template, "{", "}")
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRender, err)
	}

	out, err := tpl.ExecuteFuncStringWithErr(func(w io.Writer, tag string) (int, error) {
		if !tokenPattern.MatchString(tag) {
			return w.Write([]byte("{" + tag + "}"))
		}

		v, ok := tokens[tag]
		if !ok {
			return 0, fmt.Errorf("%w: no value for token %q", ErrRender, tag)
		}

		return w.Write([]byte(v))
	})
	if err != nil {
		if errors.Is(err, ErrRender) {
			return "", err
		}

		return "", fmt.Errorf("%w: %w", ErrRender, err)
	}

	return out, nil
}

// SVGSink rasterizes SVG templates onto an opaque background.
type SVGSink struct {
	Background color.Color
	// Width resizes the output keeping the aspect ratio; 0 keeps the SVG size.
	Width int
}

// NewSVGSink creates a sink with a white background.
func NewSVGSink(width int) *SVGSink {
	return &SVGSink{Background: color.White, Width: width}
}

// Render reads templatePath, substitutes tokens and writes a PNG to outputPath.
func (s *SVGSink) Render(ctx context.Context, templatePath, outputPath string, tokens map[string]string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrRender, err)
	}

	raw, err := os.ReadFile(templatePath)
	if err != nil {
		return fmt.Errorf("%w: read template: %w", ErrRender, err)
	}

	svg, err := Substitute(string(raw), tokens)
	if err != nil {
		return fmt.Errorf("%s: %w", templatePath, err)
	}

	img, err := s.Rasterize(svg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("%w: create output directory: %w", ErrRender, err)
	}

	if err := imaging.Save(img, outputPath); err != nil {
		return fmt.Errorf("%w: save %s: %w", ErrRender, outputPath, err)
	}

	return nil
}

// Rasterize draws svg at its view box size over the background color.
func (s *SVGSink) Rasterize(svg string) (image.Image, error) {
	icon, err := oksvg.ReadIconStream(strings.NewReader(svg), oksvg.IgnoreErrorMode)
	if err != nil {
		return nil, fmt.Errorf("%w: parse svg: %w", ErrRender, err)
	}

	w, h := int(icon.ViewBox.W), int(icon.ViewBox.H)
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: svg has no usable viewBox (%dx%d)", ErrRender, w, h)
	}

	icon.SetTarget(0, 0, float64(w), float64(h))

	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	scanner := rasterx.NewScannerGV(w, h, canvas, canvas.Bounds())
	icon.Draw(rasterx.NewDasher(w, h, scanner), 1)

	bg := s.Background
	if bg == nil {
		bg = color.White
	}

	out := imaging.Overlay(imaging.New(w, h, bg), canvas, image.Pt(0, 0), 1.0)

	if s.Width > 0 && s.Width != w {
		out = imaging.Resize(out, s.Width, 0, imaging.Lanczos)
	}

	return out, nil
}
