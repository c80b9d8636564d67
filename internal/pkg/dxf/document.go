package dxf

import "sort"

// Block is a named entity group from the BLOCKS section. Entities inside it
// are tagged with the block's name and have nested references flattened.
type Block struct {
	Name     string
	Entities []Entity

	// rawNodes holds parsed records until insert resolution runs.
	rawNodes []node
}

// Document is the in-memory model of one parsed drawing. It is immutable
// after parsing; classification and rendering only read it, so one document
// can serve concurrent requests.
type Document struct {
	// Layers are the names declared in the LAYER table plus any layer an
	// entity actually references.
	Layers []string
	// Blocks are the drawing's block definitions, including ones with zero
	// references.
	Blocks []*Block
	// Entities is resolved modelspace geometry. Entities contributed by an
	// INSERT carry the inserted block's name in Entity.Block.
	Entities []Entity
}

func (d *Document) Block(name string) *Block {
	for _, b := range d.Blocks {
		if b.Name == name {
			return b
		}
	}
	return nil
}

// EntityTypes returns the sorted distinct kinds observed anywhere in the
// drawing, for the ingest inventory response.
func (d *Document) EntityTypes() []string {
	seen := map[string]bool{}
	for _, e := range d.Entities {
		seen[string(e.Kind)] = true
	}
	for _, b := range d.Blocks {
		for _, e := range b.Entities {
			seen[string(e.Kind)] = true
		}
	}
	types := make([]string, 0, len(seen))
	for t := range seen {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
