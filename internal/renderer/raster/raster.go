// Package raster draws the cold and hot buckets onto an image for previews.
package raster

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"path/filepath"
	"strings"

	"github.com/OCAP2/draw/pkg/core"
	"github.com/chai2010/webp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/vector"
)

// Format is an output encoding.
type Format int

const (
	PNG Format = iota
	WebP
)

// FormatFromPath picks the encoding from a file extension; unknown extensions are PNG.
func FormatFromPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".webp") {
		return WebP
	}
	return PNG
}

// Style is the palette for one bucket.
type Style struct {
	Fill   color.NRGBA
	Stroke color.NRGBA
	Handle color.NRGBA
	// Width is the stroke width in pixels, Radius the point radius.
	Width  float64
	Radius float64
}

// Default palettes: blue for plain features, orange for the edit session.
var (
	ColdStyle = Style{
		Fill:   color.NRGBA{0x3b, 0xb2, 0xd0, 0x40},
		Stroke: color.NRGBA{0x3b, 0xb2, 0xd0, 0xff},
		Handle: color.NRGBA{0x3b, 0xb2, 0xd0, 0xff},
		Width:  2,
		Radius: 4,
	}
	HotStyle = Style{
		Fill:   color.NRGBA{0xfb, 0xb0, 0x3b, 0x40},
		Stroke: color.NRGBA{0xfb, 0xb0, 0x3b, 0xff},
		Handle: color.NRGBA{0xff, 0xff, 0xff, 0xff},
		Width:  2,
		Radius: 3,
	}
)

// Background is the canvas colour used by Render.
var Background = color.RGBA{0x20, 0x20, 0x20, 0xff}

// Canvas rasterizes geographic features through a projector.
type Canvas struct {
	proj core.Projector
	img  *image.RGBA
	r    *vector.Rasterizer
}

// NewCanvas creates a width x height canvas filled with bg.
func NewCanvas(p core.Projector, width, height int, bg color.Color) *Canvas {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.Draw(img, img.Bounds(), image.NewUniform(bg), image.Point{}, xdraw.Src)
	r := vector.NewRasterizer(width, height)
	r.DrawOp = xdraw.Over
	return &Canvas{proj: p, img: img, r: r}
}

// Image returns the canvas.
func (c *Canvas) Image() *image.RGBA {
	return c.img
}

// DrawCollection draws every feature of fc. Edit handles (meta vertex or
// midpoint) get the handle colour.
func (c *Canvas) DrawCollection(fc *geojson.FeatureCollection, s Style) {
	if fc == nil {
		return
	}
	for _, f := range fc.Features {
		meta, _ := f.Properties[core.PropMeta].(string)
		if meta == core.MetaVertex || meta == core.MetaMidpoint {
			if p, ok := f.Geometry.(orb.Point); ok {
				c.point(p, s.Radius, s.Handle)
			}
			continue
		}
		c.DrawGeometry(f.Geometry, s)
	}
}

// DrawGeometry draws a single geometry.
func (c *Canvas) DrawGeometry(g orb.Geometry, s Style) {
	switch v := g.(type) {
	case orb.Point:
		c.point(v, s.Radius, s.Stroke)
	case orb.LineString:
		c.stroke(v, s.Width, s.Stroke)
	case orb.Polygon:
		c.fill(v, s.Fill)
		for _, ring := range v {
			c.stroke(orb.LineString(ring), s.Width, s.Stroke)
		}
	}
}

func (c *Canvas) project(p orb.Point) (float32, float32) {
	sp := c.proj.Project(p)
	return float32(sp.X), float32(sp.Y)
}

func (c *Canvas) paint(col color.Color) {
	c.r.Draw(c.img, c.img.Bounds(), image.NewUniform(col), image.Point{})
	b := c.img.Bounds()
	c.r.Reset(b.Dx(), b.Dy())
	c.r.DrawOp = xdraw.Over
}

func (c *Canvas) fill(poly orb.Polygon, col color.Color) {
	for _, ring := range poly {
		if len(ring) < 3 {
			continue
		}
		x, y := c.project(ring[0])
		c.r.MoveTo(x, y)
		for _, p := range ring[1:] {
			x, y = c.project(p)
			c.r.LineTo(x, y)
		}
		c.r.ClosePath()
	}
	c.paint(col)
}

// stroke draws each segment as a quad of the given width.
func (c *Canvas) stroke(ls orb.LineString, width float64, col color.Color) {
	half := width / 2
	for i := 0; i+1 < len(ls); i++ {
		a := c.proj.Project(ls[i])
		b := c.proj.Project(ls[i+1])
		dx, dy := b.X-a.X, b.Y-a.Y
		l := math.Hypot(dx, dy)
		if l == 0 {
			continue
		}
		nx, ny := -dy/l*half, dx/l*half
		c.r.MoveTo(float32(a.X+nx), float32(a.Y+ny))
		c.r.LineTo(float32(b.X+nx), float32(b.Y+ny))
		c.r.LineTo(float32(b.X-nx), float32(b.Y-ny))
		c.r.LineTo(float32(a.X-nx), float32(a.Y-ny))
		c.r.ClosePath()
	}
	c.paint(col)
}

// point draws a filled octagon.
func (c *Canvas) point(p orb.Point, radius float64, col color.Color) {
	x, y := c.project(p)
	const sides = 8
	for i := 0; i < sides; i++ {
		a := 2 * math.Pi * float64(i) / sides
		px := x + float32(radius*math.Cos(a))
		py := y + float32(radius*math.Sin(a))
		if i == 0 {
			c.r.MoveTo(px, py)
		} else {
			c.r.LineTo(px, py)
		}
	}
	c.r.ClosePath()
	c.paint(col)
}

// Render draws cold under hot on a fresh canvas.
func Render(p core.Projector, width, height int, cold, hot *geojson.FeatureCollection) *image.RGBA {
	c := NewCanvas(p, width, height, Background)
	c.DrawCollection(cold, ColdStyle)
	c.DrawCollection(hot, HotStyle)
	return c.Image()
}

// Encode writes img in the given format.
func Encode(w io.Writer, img image.Image, f Format) error {
	switch f {
	case WebP:
		if err := webp.Encode(w, img, &webp.Options{Lossless: true}); err != nil {
			return fmt.Errorf("encode webp: %w", err)
		}
	default:
		if err := png.Encode(w, img); err != nil {
			return fmt.Errorf("encode png: %w", err)
		}
	}
	return nil
}
