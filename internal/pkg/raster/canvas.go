package raster

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/draftroom-io/floorplan/internal/pkg/dxf"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"
)

// canvas maps drawing units onto a white RGBA image with black geometry,
// mirroring the original renderer's background/color policy. Y grows up in
// drawing space and down in image space.
type canvas struct {
	img       *image.RGBA
	scale     float64
	minX      float64
	minY      float64
	margin    int
	lineWidth float64
}

var (
	black = image.NewUniform(color.Black)
)

func newCanvas(bounds Rect, scale float64, margin int) *canvas {
	w := int(math.Ceil(bounds.W()*scale)) + 2*margin
	h := int(math.Ceil(bounds.H()*scale)) + 2*margin
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	lw := scale / 2
	if lw < 1 {
		lw = 1
	}
	return &canvas{
		img:       img,
		scale:     scale,
		minX:      bounds.MinX,
		minY:      bounds.MinY,
		margin:    margin,
		lineWidth: lw,
	}
}

func (c *canvas) pt(p dxf.Point) (float32, float32) {
	x := float64(c.margin) + (p.X-c.minX)*c.scale
	y := float64(c.img.Bounds().Dy()-c.margin) - (p.Y-c.minY)*c.scale
	return float32(x), float32(y)
}

// strokePolyline draws each segment as a filled quad; the rasterizer has no
// stroker of its own.
func (c *canvas) strokePolyline(pts []dxf.Point, closed bool) {
	if len(pts) < 2 {
		return
	}
	b := c.img.Bounds()
	r := vector.NewRasterizer(b.Dx(), b.Dy())
	r.DrawOp = draw.Over

	half := c.lineWidth / 2
	seg := func(p1, p2 dxf.Point) {
		x1, y1 := c.pt(p1)
		x2, y2 := c.pt(p2)
		dx, dy := float64(x2-x1), float64(y2-y1)
		l := math.Hypot(dx, dy)
		if l == 0 {
			return
		}
		nx := float32(-dy / l * half)
		ny := float32(dx / l * half)
		r.MoveTo(x1+nx, y1+ny)
		r.LineTo(x2+nx, y2+ny)
		r.LineTo(x2-nx, y2-ny)
		r.LineTo(x1-nx, y1-ny)
		r.ClosePath()
	}

	for i := 1; i < len(pts); i++ {
		seg(pts[i-1], pts[i])
	}
	if closed {
		seg(pts[len(pts)-1], pts[0])
	}
	r.Draw(c.img, b, black, image.Point{})
}

func (c *canvas) fillPolygon(pts []dxf.Point) {
	if len(pts) < 3 {
		c.strokePolyline(pts, true)
		return
	}
	b := c.img.Bounds()
	r := vector.NewRasterizer(b.Dx(), b.Dy())
	r.DrawOp = draw.Over

	x, y := c.pt(pts[0])
	r.MoveTo(x, y)
	for _, p := range pts[1:] {
		x, y = c.pt(p)
		r.LineTo(x, y)
	}
	r.ClosePath()
	r.Draw(c.img, b, black, image.Point{})
}

const arcSegments = 64

func sampleArc(center dxf.Point, radius, startDeg, endDeg float64) []dxf.Point {
	if endDeg <= startDeg {
		endDeg += 360
	}
	start := startDeg * math.Pi / 180
	end := endDeg * math.Pi / 180
	pts := make([]dxf.Point, 0, arcSegments+1)
	for i := 0; i <= arcSegments; i++ {
		a := start + (end-start)*float64(i)/arcSegments
		pts = append(pts, dxf.Point{
			X: center.X + radius*math.Cos(a),
			Y: center.Y + radius*math.Sin(a),
		})
	}
	return pts
}

func sampleEllipse(center, major dxf.Point, ratio float64) []dxf.Point {
	a := math.Hypot(major.X, major.Y)
	if a == 0 {
		return nil
	}
	// unit vectors along the major and minor axes
	ux, uy := major.X/a, major.Y/a
	b := a * ratio
	pts := make([]dxf.Point, 0, arcSegments+1)
	for i := 0; i <= arcSegments; i++ {
		t := 2 * math.Pi * float64(i) / arcSegments
		ca, sa := a*math.Cos(t), b*math.Sin(t)
		pts = append(pts, dxf.Point{
			X: center.X + ca*ux - sa*uy,
			Y: center.Y + ca*uy + sa*ux,
		})
	}
	return pts
}

func (c *canvas) drawText(e dxf.Entity) {
	if e.Text == "" {
		return
	}
	face := basicfont.Face7x13
	w := font.MeasureString(face, e.Text).Ceil()
	if w <= 0 {
		return
	}
	metrics := face.Metrics()
	ascent := metrics.Ascent.Ceil()
	glyphH := ascent + metrics.Descent.Ceil()
	glyphs := image.NewRGBA(image.Rect(0, 0, w, glyphH))
	d := &font.Drawer{
		Dst:  glyphs,
		Src:  black,
		Face: face,
		Dot:  fixed.P(0, ascent),
	}
	d.DrawString(e.Text)

	targetH := int(math.Round(e.Height * c.scale))
	if targetH < 1 {
		targetH = 1
	}
	targetW := w * targetH / glyphH
	if targetW < 1 {
		targetW = 1
	}

	// anchor at the text's insertion point (bottom-left corner)
	x, y := c.pt(e.Position)
	dr := image.Rect(int(x), int(y)-targetH, int(x)+targetW, int(y))
	xdraw.ApproxBiLinear.Scale(c.img, dr, glyphs, glyphs.Bounds(), xdraw.Over, nil)
}

func (c *canvas) drawPoint(p dxf.Point) {
	x, y := c.pt(p)
	half := float32(c.lineWidth)
	b := c.img.Bounds()
	r := vector.NewRasterizer(b.Dx(), b.Dy())
	r.DrawOp = draw.Over
	r.MoveTo(x-half, y-half)
	r.LineTo(x+half, y-half)
	r.LineTo(x+half, y+half)
	r.LineTo(x-half, y+half)
	r.ClosePath()
	r.Draw(c.img, b, black, image.Point{})
}
