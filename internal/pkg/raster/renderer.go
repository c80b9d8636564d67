// Package raster turns filtered drawing geometry into raster previews: one
// image per maximal related geometry subset ("view") of each selected
// keyword.
package raster

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/draftroom-io/floorplan/internal/pkg/dxf"
	"github.com/draftroom-io/floorplan/internal/pkg/keyword"
	"golang.org/x/sync/errgroup"
)

// ErrInvalidDPI rejects non-positive resolutions before any geometry work.
var ErrInvalidDPI = errors.New("dpi must be positive")

type Options struct {
	DPI       float64
	MarginPx  int
	MaxPixels int
	// Workers caps concurrent view rasterizations.
	Workers int

	// EntityTypes is the inclusion filter; empty admits every supported
	// kind.
	EntityTypes []string
	// Blacklist and ExcludedLayers follow the classifier's semantics.
	// A nil Blacklist means the default one.
	Blacklist      []string
	ExcludedLayers []string
}

// View is one rendered geometry subset. A failed view carries Err and a nil
// Image; it never aborts sibling views.
type View struct {
	Keyword string
	Source  string
	Image   *image.RGBA
	Err     error

	entities []dxf.Entity
}

// KeywordViews preserves the caller's keyword order; views within a keyword
// are ordered deterministically (blocks by name order in the drawing, layer
// clusters by position).
type KeywordViews struct {
	Keyword string
	Views   []View
}

// painters dispatches rasterization per entity kind. Kinds absent from the
// table are silently excluded.
var painters = map[dxf.Kind]func(*canvas, dxf.Entity){
	dxf.KindLine: func(c *canvas, e dxf.Entity) {
		c.strokePolyline(e.Points, false)
	},
	dxf.KindPolyline: func(c *canvas, e dxf.Entity) {
		c.strokePolyline(e.Points, e.Closed)
	},
	dxf.KindSpline: func(c *canvas, e dxf.Entity) {
		c.strokePolyline(e.Points, false)
	},
	dxf.KindCircle: func(c *canvas, e dxf.Entity) {
		c.strokePolyline(sampleArc(e.Center, e.Radius, 0, 360), true)
	},
	dxf.KindArc: func(c *canvas, e dxf.Entity) {
		c.strokePolyline(sampleArc(e.Center, e.Radius, e.StartAngle, e.EndAngle), false)
	},
	dxf.KindEllipse: func(c *canvas, e dxf.Entity) {
		c.strokePolyline(sampleEllipse(e.Center, e.Major, e.Ratio), true)
	},
	dxf.KindHatch: func(c *canvas, e dxf.Entity) {
		c.fillPolygon(e.Points)
	},
	dxf.KindSolid: func(c *canvas, e dxf.Entity) {
		c.fillPolygon(e.Points)
	},
	dxf.KindText: func(c *canvas, e dxf.Entity) {
		c.drawText(e)
	},
	dxf.KindPoint: func(c *canvas, e dxf.Entity) {
		c.drawPoint(e.Center)
	},
}

// Render rasterizes every selected keyword's views. Zero matches for a
// keyword is defined behavior (an empty view list), not an error; only a
// bad DPI fails the call.
func Render(ctx context.Context, doc *dxf.Document, keywords []string, opts Options) ([]KeywordViews, error) {
	if opts.DPI <= 0 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidDPI, opts.DPI)
	}

	selected := normalizeKeywords(keywords)
	kindSet := map[dxf.Kind]bool{}
	for _, t := range opts.EntityTypes {
		kindSet[dxf.Kind(keyword.Normalize(t))] = true
	}
	excluded := map[string]bool{}
	for _, l := range opts.ExcludedLayers {
		excluded[keyword.Normalize(l)] = true
	}

	admit := func(e dxf.Entity) bool {
		if _, supported := painters[e.Kind]; !supported {
			return false
		}
		if len(kindSet) > 0 && !kindSet[e.Kind] {
			return false
		}
		if excluded[keyword.Normalize(e.Layer)] {
			return false
		}
		return true
	}

	out := make([]KeywordViews, len(selected))
	for i, kw := range selected {
		out[i] = KeywordViews{Keyword: kw}
		out[i].Views = collectViews(doc, kw, selected, opts, admit, excluded)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	g := &errgroup.Group{}
	g.SetLimit(workers)

	for i := range out {
		for j := range out[i].Views {
			v := &out[i].Views[j]
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					v.Err = err
					return nil
				}
				img, err := renderView(v.entities, opts)
				v.Image, v.Err = img, err
				return nil
			})
		}
	}
	_ = g.Wait()

	for i := range out {
		for j := range out[i].Views {
			out[i].Views[j].entities = nil
		}
	}
	return out, nil
}

func normalizeKeywords(keywords []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		n := keyword.Normalize(k)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

func collectViews(doc *dxf.Document, kw string, selected []string, opts Options, admit func(dxf.Entity) bool, excluded map[string]bool) []View {
	var views []View

	// block-sourced views: one per matching block definition
	for _, b := range doc.Blocks {
		if keyword.Blacklisted(b.Name, opts.Blacklist) {
			continue
		}
		if keyword.For(b.Name, selected) != kw {
			continue
		}
		ents := filterEntities(b.Entities, admit)
		if len(ents) == 0 {
			continue
		}
		views = append(views, View{Keyword: kw, Source: b.Name + ".block", entities: ents})
	}

	// layer-sourced views: one per spatial cluster of each matching layer
	for _, layer := range doc.Layers {
		if excluded[keyword.Normalize(layer)] {
			continue
		}
		if keyword.Blacklisted(layer, opts.Blacklist) {
			continue
		}
		if keyword.For(layer, selected) != kw {
			continue
		}
		var ents []dxf.Entity
		for _, e := range doc.Entities {
			if e.Layer == layer && admit(e) {
				ents = append(ents, e)
			}
		}
		for i, cluster := range clusters(ents) {
			views = append(views, View{
				Keyword:  kw,
				Source:   fmt.Sprintf("%s.layer-%d", layer, i),
				entities: cluster,
			})
		}
	}
	return views
}

func filterEntities(entities []dxf.Entity, admit func(dxf.Entity) bool) []dxf.Entity {
	var out []dxf.Entity
	for _, e := range entities {
		if admit(e) {
			out = append(out, e)
		}
	}
	return out
}

func renderView(entities []dxf.Entity, opts Options) (*image.RGBA, error) {
	bounds := boundsOf(entities)
	if !bounds.Valid() {
		return nil, errors.New("view has no drawable extent")
	}

	// standard point-to-pixel scaling, uniform on both axes
	scale := opts.DPI / 72.0
	margin := opts.MarginPx
	if margin < 0 {
		margin = 0
	}
	maxDim := math.Max(bounds.W(), bounds.H())
	if opts.MaxPixels > 0 && maxDim > 0 {
		if maxDim*scale+2*float64(margin) > float64(opts.MaxPixels) {
			scale = (float64(opts.MaxPixels) - 2*float64(margin)) / maxDim
			if scale <= 0 {
				return nil, fmt.Errorf("margin %dpx leaves no room inside max extent %dpx", margin, opts.MaxPixels)
			}
		}
	}

	c := newCanvas(bounds, scale, margin)
	for _, e := range entities {
		if paint, ok := painters[e.Kind]; ok {
			paint(c, e)
		}
	}
	return c.img, nil
}
