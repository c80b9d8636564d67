package raster

import (
	"math"
	"sort"

	"github.com/draftroom-io/floorplan/internal/pkg/dxf"
)

// Rect is an axis-aligned bounding box in drawing units.
type Rect struct {
	MinX, MinY, MaxX, MaxY float64
}

func emptyRect() Rect {
	return Rect{MinX: math.Inf(1), MinY: math.Inf(1), MaxX: math.Inf(-1), MaxY: math.Inf(-1)}
}

func (r Rect) Valid() bool { return r.MinX <= r.MaxX && r.MinY <= r.MaxY }
func (r Rect) W() float64  { return r.MaxX - r.MinX }
func (r Rect) H() float64  { return r.MaxY - r.MinY }

func (r Rect) union(o Rect) Rect {
	if !o.Valid() {
		return r
	}
	if !r.Valid() {
		return o
	}
	return Rect{
		MinX: math.Min(r.MinX, o.MinX),
		MinY: math.Min(r.MinY, o.MinY),
		MaxX: math.Max(r.MaxX, o.MaxX),
		MaxY: math.Max(r.MaxY, o.MaxY),
	}
}

func (r Rect) expand(d float64) Rect {
	return Rect{MinX: r.MinX - d, MinY: r.MinY - d, MaxX: r.MaxX + d, MaxY: r.MaxY + d}
}

func (r Rect) intersects(o Rect) bool {
	return r.MinX <= o.MaxX && o.MinX <= r.MaxX && r.MinY <= o.MaxY && o.MinY <= r.MaxY
}

func rectOfPoints(pts []dxf.Point) Rect {
	r := emptyRect()
	for _, p := range pts {
		r.MinX = math.Min(r.MinX, p.X)
		r.MinY = math.Min(r.MinY, p.Y)
		r.MaxX = math.Max(r.MaxX, p.X)
		r.MaxY = math.Max(r.MaxY, p.Y)
	}
	return r
}

// entityBounds computes a tight (arc: conservative) bounding box for one
// entity.
func entityBounds(e dxf.Entity) Rect {
	switch e.Kind {
	case dxf.KindCircle, dxf.KindArc:
		return Rect{
			MinX: e.Center.X - e.Radius, MinY: e.Center.Y - e.Radius,
			MaxX: e.Center.X + e.Radius, MaxY: e.Center.Y + e.Radius,
		}
	case dxf.KindEllipse:
		a := math.Hypot(e.Major.X, e.Major.Y)
		return Rect{
			MinX: e.Center.X - a, MinY: e.Center.Y - a,
			MaxX: e.Center.X + a, MaxY: e.Center.Y + a,
		}
	case dxf.KindText:
		w := 0.6 * e.Height * float64(len([]rune(e.Text)))
		return Rect{
			MinX: e.Position.X, MinY: e.Position.Y,
			MaxX: e.Position.X + w, MaxY: e.Position.Y + e.Height,
		}
	case dxf.KindPoint:
		return Rect{MinX: e.Center.X, MinY: e.Center.Y, MaxX: e.Center.X, MaxY: e.Center.Y}
	default:
		return rectOfPoints(e.Points)
	}
}

func boundsOf(entities []dxf.Entity) Rect {
	r := emptyRect()
	for _, e := range entities {
		r = r.union(entityBounds(e))
	}
	return r
}

// clusterGapFraction scales the overall extent into the distance under
// which two entities count as related geometry.
const clusterGapFraction = 0.02

// clusters partitions entities into maximal related subsets: union-find
// over bounding boxes expanded by a gap proportional to the set's extent.
// Cluster order is deterministic (by min X, then min Y).
func clusters(entities []dxf.Entity) [][]dxf.Entity {
	n := len(entities)
	if n == 0 {
		return nil
	}
	total := boundsOf(entities)
	gap := clusterGapFraction * math.Max(total.W(), total.H())

	boxes := make([]Rect, n)
	for i, e := range entities {
		boxes[i] = entityBounds(e).expand(gap / 2)
	}

	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	union := func(a, b int) { parent[find(a)] = find(b) }

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if boxes[i].intersects(boxes[j]) {
				union(i, j)
			}
		}
	}

	groups := map[int][]dxf.Entity{}
	for i, e := range entities {
		root := find(i)
		groups[root] = append(groups[root], e)
	}

	out := make([][]dxf.Entity, 0, len(groups))
	for _, g := range groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		bi, bj := boundsOf(out[i]), boundsOf(out[j])
		if bi.MinX != bj.MinX {
			return bi.MinX < bj.MinX
		}
		return bi.MinY < bj.MinY
	})
	return out
}
