package dxf

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrMalformed reports an unreadable drawing: truncated tag stream,
// non-numeric group code, missing section structure or an unsupported
// encoding. It is never retried.
var ErrMalformed = errors.New("malformed drawing")

const maxInsertDepth = 16

var binarySentinel = []byte("AutoCAD Binary DXF")

type tag struct {
	code  int
	value string
}

// Parse reads an ASCII DXF byte stream into a Document. Block definitions
// with zero references and layers without entities are kept; nested block
// references are flattened into the geometry they contribute.
func Parse(data []byte) (*Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrMalformed)
	}
	if bytes.HasPrefix(data, binarySentinel) {
		return nil, fmt.Errorf("%w: binary DXF is not supported", ErrMalformed)
	}

	tags, err := scanTags(data)
	if err != nil {
		return nil, err
	}

	p := &parser{tags: tags}
	doc := &Document{}
	blocks := map[string]*Block{}
	sections := 0

	for {
		t, ok := p.next()
		if !ok {
			break
		}
		if t.code != 0 {
			continue
		}
		switch t.value {
		case "EOF":
			// trailing tags after EOF are ignored
		case "SECTION":
			name, ok := p.next()
			if !ok || name.code != 2 {
				return nil, fmt.Errorf("%w: section without a name", ErrMalformed)
			}
			sections++
			switch name.value {
			case "TABLES":
				p.parseLayerTable(doc)
			case "BLOCKS":
				if err := p.parseBlocks(doc, blocks); err != nil {
					return nil, err
				}
			case "ENTITIES":
				nodes, err := p.parseEntityList("ENDSEC")
				if err != nil {
					return nil, err
				}
				doc.Entities = resolveNodes(nodes, blocks, 0)
			default:
				p.skipSection()
			}
		}
	}

	if sections == 0 {
		return nil, fmt.Errorf("%w: no sections found", ErrMalformed)
	}

	resolveBlockInserts(doc, blocks)
	collectLayers(doc)
	return doc, nil
}

// scanTags splits the stream into (group code, value) pairs.
func scanTags(data []byte) ([]tag, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var tags []tag
	for sc.Scan() {
		codeLine := strings.TrimSpace(sc.Text())
		// group codes are never blank; values may be, and are read below
		if codeLine == "" {
			continue
		}
		code, err := strconv.Atoi(codeLine)
		if err != nil {
			return nil, fmt.Errorf("%w: group code %q is not numeric", ErrMalformed, codeLine)
		}
		if !sc.Scan() {
			return nil, fmt.Errorf("%w: group code %d has no value", ErrMalformed, code)
		}
		tags = append(tags, tag{code: code, value: strings.TrimSpace(sc.Text())})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return tags, nil
}

type parser struct {
	tags []tag
	i    int
}

func (p *parser) next() (tag, bool) {
	if p.i >= len(p.tags) {
		return tag{}, false
	}
	t := p.tags[p.i]
	p.i++
	return t, true
}

func (p *parser) peek() (tag, bool) {
	if p.i >= len(p.tags) {
		return tag{}, false
	}
	return p.tags[p.i], true
}

// group collects a record's tags up to (not including) the next 0 tag.
func (p *parser) group() []tag {
	var g []tag
	for {
		t, ok := p.peek()
		if !ok || t.code == 0 {
			return g
		}
		p.i++
		g = append(g, t)
	}
}

func (p *parser) skipSection() {
	for {
		t, ok := p.next()
		if !ok {
			return
		}
		if t.code == 0 && t.value == "ENDSEC" {
			return
		}
	}
}

func (p *parser) parseLayerTable(doc *Document) {
	for {
		t, ok := p.next()
		if !ok {
			return
		}
		if t.code == 0 {
			switch t.value {
			case "ENDSEC":
				return
			case "LAYER":
				for _, lt := range p.group() {
					if lt.code == 2 {
						doc.Layers = append(doc.Layers, lt.value)
					}
				}
			}
		}
	}
}

func (p *parser) parseBlocks(doc *Document, blocks map[string]*Block) error {
	for {
		t, ok := p.next()
		if !ok {
			return nil
		}
		if t.code != 0 {
			continue
		}
		switch t.value {
		case "ENDSEC":
			return nil
		case "BLOCK":
			name := ""
			for _, ht := range p.group() {
				if ht.code == 2 {
					name = ht.value
				}
			}
			nodes, err := p.parseEntityList("ENDBLK")
			if err != nil {
				return err
			}
			// modelspace/paperspace pseudo blocks carry no reusable geometry
			if strings.HasPrefix(name, "*") {
				continue
			}
			b := &Block{Name: name}
			b.rawNodes = nodes
			blocks[name] = b
			doc.Blocks = append(doc.Blocks, b)
		}
	}
}

// node is one parsed record: either a concrete entity or an unresolved
// block reference.
type node struct {
	ent *Entity
	ins *insert
}

type insert struct {
	block    string
	layer    string
	at       Point
	sx, sy   float64
	rotation float64
}

func (p *parser) parseEntityList(terminator string) ([]node, error) {
	var nodes []node
	for {
		t, ok := p.next()
		if !ok {
			return nodes, nil
		}
		if t.code != 0 {
			continue
		}
		if t.value == terminator {
			// consume the terminator's own tags
			p.group()
			return nodes, nil
		}
		n, err := p.decodeRecord(t.value)
		if err != nil {
			return nil, err
		}
		if n != nil {
			nodes = append(nodes, *n)
		}
	}
}

func (p *parser) decodeRecord(typ string) (*node, error) {
	g := p.group()
	switch typ {
	case "INSERT":
		ins := &insert{block: str(g, 2), layer: str(g, 8), sx: 1, sy: 1}
		ins.at = Point{X: num(g, 10, 0), Y: num(g, 20, 0)}
		ins.sx = num(g, 41, 1)
		ins.sy = num(g, 42, 1)
		ins.rotation = num(g, 50, 0)
		if ins.block == "" {
			return nil, fmt.Errorf("%w: INSERT without a block name", ErrMalformed)
		}
		return &node{ins: ins}, nil
	case "POLYLINE":
		e := &Entity{Kind: KindPolyline, Layer: str(g, 8)}
		e.Closed = int(num(g, 70, 0))&1 != 0
		// vertices follow as records until SEQEND
		for {
			t, ok := p.peek()
			if !ok || t.code != 0 {
				break
			}
			if t.value == "VERTEX" {
				p.i++
				vg := p.group()
				e.Points = append(e.Points, Point{X: num(vg, 10, 0), Y: num(vg, 20, 0)})
				continue
			}
			if t.value == "SEQEND" {
				p.i++
				p.group()
			}
			break
		}
		return &node{ent: e}, nil
	}

	e := decodeEntity(typ, g)
	if e == nil {
		return nil, nil // unsupported type, inventoried nowhere
	}
	return &node{ent: e}, nil
}

func decodeEntity(typ string, g []tag) *Entity {
	layer := str(g, 8)
	switch typ {
	case "LINE":
		return &Entity{
			Kind:  KindLine,
			Layer: layer,
			Points: []Point{
				{X: num(g, 10, 0), Y: num(g, 20, 0)},
				{X: num(g, 11, 0), Y: num(g, 21, 0)},
			},
		}
	case "LWPOLYLINE":
		return &Entity{
			Kind:   KindPolyline,
			Layer:  layer,
			Points: pairs(g),
			Closed: int(num(g, 70, 0))&1 != 0,
		}
	case "CIRCLE":
		return &Entity{
			Kind:   KindCircle,
			Layer:  layer,
			Center: Point{X: num(g, 10, 0), Y: num(g, 20, 0)},
			Radius: num(g, 40, 0),
		}
	case "ARC":
		return &Entity{
			Kind:       KindArc,
			Layer:      layer,
			Center:     Point{X: num(g, 10, 0), Y: num(g, 20, 0)},
			Radius:     num(g, 40, 0),
			StartAngle: num(g, 50, 0),
			EndAngle:   num(g, 51, 360),
		}
	case "ELLIPSE":
		return &Entity{
			Kind:   KindEllipse,
			Layer:  layer,
			Center: Point{X: num(g, 10, 0), Y: num(g, 20, 0)},
			Major:  Point{X: num(g, 11, 0), Y: num(g, 21, 0)},
			Ratio:  num(g, 40, 1),
		}
	case "SPLINE":
		return &Entity{Kind: KindSpline, Layer: layer, Points: pairs(g)}
	case "TEXT", "MTEXT":
		return &Entity{
			Kind:     KindText,
			Layer:    layer,
			Text:     text(g),
			Height:   num(g, 40, 1),
			Position: Point{X: num(g, 10, 0), Y: num(g, 20, 0)},
		}
	case "HATCH":
		return &Entity{Kind: KindHatch, Layer: layer, Points: pairs(g), Closed: true}
	case "SOLID":
		c := [4]Point{
			{X: num(g, 10, 0), Y: num(g, 20, 0)},
			{X: num(g, 11, 0), Y: num(g, 21, 0)},
			{X: num(g, 12, 0), Y: num(g, 22, 0)},
			{X: num(g, 13, 0), Y: num(g, 23, 0)},
		}
		// DXF solids store the last two corners swapped
		return &Entity{
			Kind:   KindSolid,
			Layer:  layer,
			Points: []Point{c[0], c[1], c[3], c[2]},
			Closed: true,
		}
	case "POINT":
		return &Entity{
			Kind:   KindPoint,
			Layer:  layer,
			Center: Point{X: num(g, 10, 0), Y: num(g, 20, 0)},
		}
	}
	return nil
}

// resolveBlockInserts flattens nested references inside every block
// definition and tags all contributed entities with the defining block's
// name.
func resolveBlockInserts(doc *Document, blocks map[string]*Block) {
	for _, b := range doc.Blocks {
		b.Entities = resolveNodes(b.rawNodes, blocks, 0)
		for i := range b.Entities {
			b.Entities[i].Block = b.Name
		}
		b.rawNodes = nil
	}
}

func resolveNodes(nodes []node, blocks map[string]*Block, depth int) []Entity {
	var out []Entity
	for _, n := range nodes {
		if n.ent != nil {
			out = append(out, *n.ent)
			continue
		}
		out = append(out, expandInsert(n.ins, blocks, depth)...)
	}
	return out
}

func expandInsert(ins *insert, blocks map[string]*Block, depth int) []Entity {
	if depth >= maxInsertDepth {
		return nil
	}
	b, ok := blocks[ins.block]
	if !ok {
		return nil
	}
	inner := b.rawNodes
	var src []Entity
	if inner != nil {
		src = resolveNodes(inner, blocks, depth+1)
	} else {
		src = b.Entities
	}
	out := make([]Entity, 0, len(src))
	for _, e := range src {
		t := transformEntity(e, ins)
		t.Block = ins.block
		if t.Layer == "" || t.Layer == "0" {
			// entities on layer 0 inherit the reference's layer
			if ins.layer != "" {
				t.Layer = ins.layer
			}
		}
		out = append(out, t)
	}
	return out
}

func transformEntity(e Entity, ins *insert) Entity {
	rad := ins.rotation * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)

	xf := func(p Point) Point {
		x := p.X * ins.sx
		y := p.Y * ins.sy
		return Point{
			X: ins.at.X + x*cos - y*sin,
			Y: ins.at.Y + x*sin + y*cos,
		}
	}
	dir := func(p Point) Point {
		x := p.X * ins.sx
		y := p.Y * ins.sy
		return Point{X: x*cos - y*sin, Y: x*sin + y*cos}
	}

	if len(e.Points) > 0 {
		pts := make([]Point, len(e.Points))
		for i, p := range e.Points {
			pts[i] = xf(p)
		}
		e.Points = pts
	}
	e.Center = xf(e.Center)
	e.Position = xf(e.Position)
	e.Major = dir(e.Major)

	scale := (math.Abs(ins.sx) + math.Abs(ins.sy)) / 2
	e.Radius *= scale
	e.Height *= scale
	if e.Kind == KindArc {
		e.StartAngle += ins.rotation
		e.EndAngle += ins.rotation
	}
	return e
}

// collectLayers merges declared table layers with layers referenced only by
// entities so an inventory never misses one.
func collectLayers(doc *Document) {
	seen := map[string]bool{}
	var layers []string
	add := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		layers = append(layers, name)
	}
	for _, l := range doc.Layers {
		add(l)
	}
	for _, e := range doc.Entities {
		add(e.Layer)
	}
	for _, b := range doc.Blocks {
		for _, e := range b.Entities {
			add(e.Layer)
		}
	}
	doc.Layers = layers
}

func num(g []tag, code int, def float64) float64 {
	for _, t := range g {
		if t.code == code {
			if f, err := strconv.ParseFloat(t.value, 64); err == nil {
				return f
			}
		}
	}
	return def
}

func str(g []tag, code int) string {
	for _, t := range g {
		if t.code == code {
			return t.value
		}
	}
	return ""
}

// text joins code 1 with MTEXT continuation chunks (code 3).
func text(g []tag) string {
	var sb strings.Builder
	for _, t := range g {
		if t.code == 3 {
			sb.WriteString(t.value)
		}
	}
	for _, t := range g {
		if t.code == 1 {
			sb.WriteString(t.value)
		}
	}
	return sb.String()
}

// pairs collects repeated (10, 20) vertex tags in stream order.
func pairs(g []tag) []Point {
	var pts []Point
	for i := 0; i < len(g); i++ {
		if g[i].code != 10 {
			continue
		}
		x, err := strconv.ParseFloat(g[i].value, 64)
		if err != nil {
			continue
		}
		y := 0.0
		for j := i + 1; j < len(g); j++ {
			if g[j].code == 20 {
				y, _ = strconv.ParseFloat(g[j].value, 64)
				break
			}
			if g[j].code == 10 {
				break
			}
		}
		pts = append(pts, Point{X: x, Y: y})
	}
	return pts
}
