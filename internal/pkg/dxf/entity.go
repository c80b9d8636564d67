package dxf

// Kind discriminates the CAD entity variants the parser understands.
// Rendering dispatches on it through a function table; anything a drawing
// contains beyond these is inventoried by name and otherwise ignored.
type Kind string

const (
	KindLine     Kind = "LINE"
	KindPolyline Kind = "POLYLINE"
	KindCircle   Kind = "CIRCLE"
	KindArc      Kind = "ARC"
	KindEllipse  Kind = "ELLIPSE"
	KindSpline   Kind = "SPLINE"
	KindText     Kind = "TEXT"
	KindHatch    Kind = "HATCH"
	KindSolid    Kind = "SOLID"
	KindPoint    Kind = "POINT"
)

type Point struct {
	X float64
	Y float64
}

// Entity is a capability-tagged variant: Kind says which of the geometry
// fields are meaningful. Block is the name of the block definition the
// entity ultimately came from ("" for plain modelspace geometry); nested
// block references are resolved before an Entity reaches a consumer.
type Entity struct {
	Kind  Kind
	Layer string
	Block string

	// Points holds line endpoints, polyline/spline/hatch/solid vertices.
	Points []Point
	Closed bool

	// Circle, arc and ellipse geometry.
	Center     Point
	Radius     float64
	StartAngle float64 // degrees, counter-clockwise
	EndAngle   float64
	// Major is the major-axis endpoint relative to Center; Ratio the
	// minor/major axis ratio.
	Major Point
	Ratio float64

	// Text geometry.
	Text     string
	Height   float64
	Position Point
}
