package dxf

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doc(t *testing.T, tags ...string) *Document {
	t.Helper()
	d, err := Parse([]byte(strings.Join(tags, "\n") + "\n"))
	require.NoError(t, err)
	return d
}

func TestParseLine(t *testing.T) {
	d := doc(t,
		"0", "SECTION", "2", "ENTITIES",
		"0", "LINE", "8", "WALLS", "10", "1.5", "20", "2.5", "11", "4", "21", "6",
		"0", "ENDSEC",
		"0", "EOF",
	)

	require.Len(t, d.Entities, 1)
	e := d.Entities[0]
	assert.Equal(t, KindLine, e.Kind)
	assert.Equal(t, "WALLS", e.Layer)
	assert.Equal(t, "", e.Block)
	require.Len(t, e.Points, 2)
	assert.Equal(t, Point{X: 1.5, Y: 2.5}, e.Points[0])
	assert.Equal(t, Point{X: 4, Y: 6}, e.Points[1])
}

func TestParseLayerTableAndEmptyLayers(t *testing.T) {
	d := doc(t,
		"0", "SECTION", "2", "TABLES",
		"0", "TABLE", "2", "LAYER",
		"0", "LAYER", "2", "A-FLOOR1",
		"0", "LAYER", "2", "A-EMPTY",
		"0", "ENDTAB",
		"0", "ENDSEC",
		"0", "SECTION", "2", "ENTITIES",
		"0", "LINE", "8", "A-FLOOR1", "10", "0", "20", "0", "11", "1", "21", "1",
		"0", "LINE", "8", "UNDECLARED", "10", "0", "20", "0", "11", "2", "21", "2",
		"0", "ENDSEC",
		"0", "EOF",
	)

	// declared layers kept even with zero entities; referenced-only layers added
	assert.Equal(t, []string{"A-FLOOR1", "A-EMPTY", "UNDECLARED"}, d.Layers)
}

func TestParseBlockDefinitionWithZeroInstances(t *testing.T) {
	d := doc(t,
		"0", "SECTION", "2", "BLOCKS",
		"0", "BLOCK", "2", "DESK",
		"0", "CIRCLE", "8", "FURN", "10", "1", "20", "1", "40", "0.5",
		"0", "ENDBLK",
		"0", "ENDSEC",
		"0", "SECTION", "2", "ENTITIES",
		"0", "ENDSEC",
		"0", "EOF",
	)

	require.Len(t, d.Blocks, 1)
	b := d.Blocks[0]
	assert.Equal(t, "DESK", b.Name)
	require.Len(t, b.Entities, 1)
	assert.Equal(t, KindCircle, b.Entities[0].Kind)
	assert.Equal(t, "DESK", b.Entities[0].Block)
	assert.Empty(t, d.Entities)
}

func TestNestedInsertResolution(t *testing.T) {
	d := doc(t,
		"0", "SECTION", "2", "BLOCKS",
		"0", "BLOCK", "2", "INNER",
		"0", "LINE", "8", "GEOM", "10", "0", "20", "0", "11", "1", "21", "0",
		"0", "ENDBLK",
		"0", "BLOCK", "2", "OUTER",
		"0", "INSERT", "2", "INNER", "10", "10", "20", "0",
		"0", "ENDBLK",
		"0", "ENDSEC",
		"0", "SECTION", "2", "ENTITIES",
		"0", "INSERT", "2", "OUTER", "10", "0", "20", "5",
		"0", "ENDSEC",
		"0", "EOF",
	)

	// the reference chain resolves to the line it ultimately contributes
	require.Len(t, d.Entities, 1)
	e := d.Entities[0]
	assert.Equal(t, KindLine, e.Kind)
	assert.Equal(t, "OUTER", e.Block)
	assert.Equal(t, Point{X: 10, Y: 5}, e.Points[0])
	assert.Equal(t, Point{X: 11, Y: 5}, e.Points[1])

	// the OUTER definition itself also carries the flattened geometry
	outer := d.Block("OUTER")
	require.NotNil(t, outer)
	require.Len(t, outer.Entities, 1)
	assert.Equal(t, Point{X: 10, Y: 0}, outer.Entities[0].Points[0])
}

func TestInsertScaleAndRotation(t *testing.T) {
	d := doc(t,
		"0", "SECTION", "2", "BLOCKS",
		"0", "BLOCK", "2", "UNIT",
		"0", "LINE", "8", "G", "10", "0", "20", "0", "11", "1", "21", "0",
		"0", "ENDBLK",
		"0", "ENDSEC",
		"0", "SECTION", "2", "ENTITIES",
		"0", "INSERT", "2", "UNIT", "10", "0", "20", "0", "41", "2", "42", "2", "50", "90",
		"0", "ENDSEC",
		"0", "EOF",
	)

	require.Len(t, d.Entities, 1)
	end := d.Entities[0].Points[1]
	assert.InDelta(t, 0, end.X, 1e-9)
	assert.InDelta(t, 2, end.Y, 1e-9)
}

func TestPolylineVertexSequence(t *testing.T) {
	d := doc(t,
		"0", "SECTION", "2", "ENTITIES",
		"0", "POLYLINE", "8", "P", "70", "1",
		"0", "VERTEX", "10", "0", "20", "0",
		"0", "VERTEX", "10", "5", "20", "0",
		"0", "VERTEX", "10", "5", "20", "5",
		"0", "SEQEND",
		"0", "ENDSEC",
		"0", "EOF",
	)

	require.Len(t, d.Entities, 1)
	e := d.Entities[0]
	assert.Equal(t, KindPolyline, e.Kind)
	assert.True(t, e.Closed)
	assert.Len(t, e.Points, 3)
}

func TestSolidCornerOrder(t *testing.T) {
	d := doc(t,
		"0", "SECTION", "2", "ENTITIES",
		"0", "SOLID", "8", "S",
		"10", "0", "20", "0",
		"11", "1", "21", "0",
		"12", "0", "22", "1",
		"13", "1", "23", "1",
		"0", "ENDSEC",
		"0", "EOF",
	)

	require.Len(t, d.Entities, 1)
	// DXF stores the last two corners swapped; parsing unswaps them
	assert.Equal(t, []Point{{0, 0}, {1, 0}, {1, 1}, {0, 1}}, d.Entities[0].Points)
}

func TestEntityTypes(t *testing.T) {
	d := doc(t,
		"0", "SECTION", "2", "BLOCKS",
		"0", "BLOCK", "2", "B",
		"0", "TEXT", "8", "T", "1", "ROOM", "40", "2", "10", "0", "20", "0",
		"0", "ENDBLK",
		"0", "ENDSEC",
		"0", "SECTION", "2", "ENTITIES",
		"0", "CIRCLE", "8", "C", "10", "0", "20", "0", "40", "1",
		"0", "ARC", "8", "C", "10", "0", "20", "0", "40", "1", "50", "0", "51", "90",
		"0", "ENDSEC",
		"0", "EOF",
	)

	assert.Equal(t, []string{"ARC", "CIRCLE", "TEXT"}, d.EntityTypes())
}

func TestParseMalformed(t *testing.T) {
	cases := map[string]string{
		"empty input":       "",
		"whitespace only":   "  \n\n ",
		"binary sentinel":   "AutoCAD Binary DXF\x1a\x00",
		"non-numeric code":  "0\nSECTION\n2\nENTITIES\nLINE\n",
		"truncated pair":    "0\nSECTION\n2\nENTITIES\n0\n",
		"unnamed section":   "0\nSECTION\n0\nENDSEC\n0\nEOF\n",
		"no sections":       "0\nEOF\n",
		"insert sans block": "0\nSECTION\n2\nENTITIES\n0\nINSERT\n10\n0\n20\n0\n0\nENDSEC\n0\nEOF\n",
	}

	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(input))
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestParseTrailingBlankLines(t *testing.T) {
	input := []byte(strings.Join([]string{
		"0", "SECTION", "2", "ENTITIES",
		"0", "LINE", "8", "A", "10", "0", "20", "0", "11", "1", "21", "1",
		"0", "ENDSEC",
		"", // blank line between tag pairs
		"0", "EOF",
		"", "  ", "", // trailing whitespace after EOF
	}, "\n"))

	d, err := Parse(input)
	require.NoError(t, err)
	assert.Len(t, d.Entities, 1)
}

func TestParseDeterministic(t *testing.T) {
	input := []byte(strings.Join([]string{
		"0", "SECTION", "2", "ENTITIES",
		"0", "LINE", "8", "A", "10", "0", "20", "0", "11", "1", "21", "1",
		"0", "CIRCLE", "8", "B", "10", "2", "20", "2", "40", "1",
		"0", "ENDSEC",
		"0", "EOF",
	}, "\n"))

	first, err := Parse(input)
	require.NoError(t, err)
	second, err := Parse(input)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
