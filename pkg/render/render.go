// Package render draws a sequence of chat messages onto a single raster image.
//
// The canvas has a fixed width and grows vertically with the content. Each
// message contributes a role label line followed by its word-wrapped content;
// messages are separated by one blank line.
package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log"
	"os"
	"strings"

	"github.com/aixgo-dev/pixelctx/pkg/tree"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// ErrNoMessages is returned when asked to render an empty conversation.
var ErrNoMessages = errors.New("no messages to render")

// Options configures the renderer. Zero fields take the defaults.
type Options struct {
	// Width is the canvas width in pixels. 768 keeps the image one tile wide.
	Width int `yaml:"width"`
	// FontSize is the font size in pixels.
	FontSize int `yaml:"font_size"`
	// LineSpacing is the extra space between lines in pixels.
	LineSpacing int `yaml:"line_spacing"`
	// Padding surrounds the text on every side.
	Padding int `yaml:"padding"`
	// FontPath is an optional TrueType/OpenType font file. The embedded Go
	// Regular font is used when empty or unreadable.
	FontPath string `yaml:"font_path"`
	// AccentColor colours role labels, as #rrggbb.
	AccentColor string `yaml:"accent_color"`
	// BaseColor colours message content, as #rrggbb.
	BaseColor string `yaml:"base_color"`
}

// DefaultOptions returns the dense layout used for context images.
func DefaultOptions() Options {
	return Options{
		Width:       768,
		FontSize:    8,
		LineSpacing: 1,
		Padding:     6,
		AccentColor: "#2563eb",
		BaseColor:   "#000000",
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Width <= 0 {
		o.Width = d.Width
	}
	if o.FontSize <= 0 {
		o.FontSize = d.FontSize
	}
	if o.LineSpacing < 0 {
		o.LineSpacing = d.LineSpacing
	}
	if o.Padding < 0 {
		o.Padding = d.Padding
	}
	if o.AccentColor == "" {
		o.AccentColor = d.AccentColor
	}
	if o.BaseColor == "" {
		o.BaseColor = d.BaseColor
	}
	return o
}

// Line is one row of the rendered canvas.
type Line struct {
	Text  string
	Label bool
}

// Renderer turns messages into images. A Renderer is safe for concurrent use;
// every call works on its own font face.
type Renderer struct {
	opts   Options
	font   *opentype.Font
	accent color.RGBA
	base   color.RGBA
}

// New creates a renderer for the given options.
func New(opts Options) (*Renderer, error) {
	opts = opts.withDefaults()
	if opts.Padding*2 >= opts.Width {
		return nil, fmt.Errorf("padding %d leaves no room in width %d", opts.Padding, opts.Width)
	}

	accent, err := parseHexColor(opts.AccentColor)
	if err != nil {
		return nil, fmt.Errorf("accent color: %w", err)
	}
	base, err := parseHexColor(opts.BaseColor)
	if err != nil {
		return nil, fmt.Errorf("base color: %w", err)
	}

	f, err := loadFont(opts.FontPath)
	if err != nil {
		return nil, err
	}

	return &Renderer{opts: opts, font: f, accent: accent, base: base}, nil
}

// Options returns the effective options.
func (r *Renderer) Options() Options {
	return r.opts
}

// LineHeight returns the vertical advance per line in pixels.
func (r *Renderer) LineHeight() int {
	return r.opts.FontSize + r.opts.LineSpacing
}

// MaxTextWidth returns the wrapping budget in pixels.
func (r *Renderer) MaxTextWidth() int {
	return r.opts.Width - 2*r.opts.Padding
}

func (r *Renderer) newFace() (font.Face, error) {
	face, err := opentype.NewFace(r.font, &opentype.FaceOptions{
		Size:    float64(r.opts.FontSize),
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("create font face: %w", err)
	}
	return face, nil
}

// TextWidth returns the rendered width of s in pixels.
func (r *Renderer) TextWidth(s string) (int, error) {
	face, err := r.newFace()
	if err != nil {
		return 0, err
	}
	defer func() { _ = face.Close() }()
	return faceMeasurer(face)(s), nil
}

// Wrap splits text into lines that fit maxWidth pixels in the renderer's font.
func (r *Renderer) Wrap(text string, maxWidth int) ([]string, error) {
	face, err := r.newFace()
	if err != nil {
		return nil, err
	}
	defer func() { _ = face.Close() }()
	return WrapWords(text, maxWidth, faceMeasurer(face)), nil
}

// Layout computes the lines of the canvas without drawing them.
func (r *Renderer) Layout(messages []tree.Message) ([]Line, error) {
	if len(messages) == 0 {
		return nil, ErrNoMessages
	}
	face, err := r.newFace()
	if err != nil {
		return nil, err
	}
	defer func() { _ = face.Close() }()
	return r.layout(messages, faceMeasurer(face)), nil
}

func (r *Renderer) layout(messages []tree.Message, measure Measurer) []Line {
	maxWidth := r.MaxTextWidth()
	lines := make([]Line, 0, 4*len(messages))

	for i, msg := range messages {
		lines = append(lines, Line{Text: strings.ToUpper(string(msg.Role)) + ":", Label: true})
		for _, l := range WrapWords(msg.Content, maxWidth, measure) {
			lines = append(lines, Line{Text: l})
		}
		if i < len(messages)-1 {
			lines = append(lines, Line{})
		}
	}
	return lines
}

// Height returns the canvas height needed for n lines.
func (r *Renderer) Height(n int) int {
	return n*r.LineHeight() + 2*r.opts.Padding
}

// Measure returns the canvas dimensions Render would produce.
func (r *Renderer) Measure(messages []tree.Message) (width, height int, err error) {
	lines, err := r.Layout(messages)
	if err != nil {
		return 0, 0, err
	}
	return r.opts.Width, r.Height(len(lines)), nil
}

// Render draws messages onto a white canvas of fixed width.
func (r *Renderer) Render(messages []tree.Message) (*image.RGBA, error) {
	if len(messages) == 0 {
		return nil, ErrNoMessages
	}
	face, err := r.newFace()
	if err != nil {
		return nil, err
	}
	defer func() { _ = face.Close() }()

	lines := r.layout(messages, faceMeasurer(face))
	img := image.NewRGBA(image.Rect(0, 0, r.opts.Width, r.Height(len(lines))))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	ascent := face.Metrics().Ascent.Ceil()
	accent := image.NewUniform(r.accent)
	base := image.NewUniform(r.base)
	d := &font.Drawer{Dst: img, Face: face}

	y := r.opts.Padding
	for _, line := range lines {
		if line.Text != "" {
			d.Src = base
			if line.Label {
				d.Src = accent
			}
			d.Dot = fixed.P(r.opts.Padding, y+ascent)
			d.DrawString(line.Text)
		}
		y += r.LineHeight()
	}
	return img, nil
}

func loadFont(path string) (*opentype.Font, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			f, perr := opentype.Parse(data)
			if perr == nil {
				return f, nil
			}
			err = perr
		}
		log.Printf("[Render] font %s unusable, falling back to Go Regular: %v", path, err)
	}

	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse embedded font: %w", err)
	}
	return f, nil
}

func parseHexColor(s string) (color.RGBA, error) {
	c := color.RGBA{A: 0xff}
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 {
		return c, fmt.Errorf("invalid color %q", s)
	}
	if _, err := fmt.Sscanf(s, "%02x%02x%02x", &c.R, &c.G, &c.B); err != nil {
		return c, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return c, nil
}
