// Package keyword derives floor/region labels from block and layer names.
// It is pure string work: normalization, allow/blacklist matching and set
// arithmetic. Identical inputs always produce identical, lexicographically
// sorted inventories.
package keyword

import (
	"sort"
	"strings"

	"github.com/draftroom-io/floorplan/internal/pkg/dxf"
)

// DefaultBlacklist holds the terms excluded from "meaningful" inventories
// when the caller does not supply a blacklist.
var DefaultBlacklist = []string{"ALL", "LEVEL", "TAG"}

// Options filter classification. All matching is case-insensitive and
// trimmed.
type Options struct {
	// Keywords is the allow-list of seed terms. Empty means derive
	// keywords from the names themselves.
	Keywords []string
	// Blacklist terms excluded from the meaningful set. Nil means
	// DefaultBlacklist; an explicit empty slice disables blacklisting.
	Blacklist []string
	// ExcludedLayers are exact layer names whose keywords never count as
	// meaningful (layer-sourced inventory only).
	ExcludedLayers []string
}

// Inventory is one source's keyword sets. Meaningful is always a subset of
// All; both are sorted and deduplicated.
type Inventory struct {
	Meaningful []string `json:"meaningful"`
	All        []string `json:"all"`
}

// Normalize uppercases and trims a raw name.
func Normalize(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// For maps a raw block or layer name to its keyword. With an allow-list the
// keyword is the first allow term contained in the normalized name; without
// one it is the longest content-bearing segment of the name (segments are
// split on non-alphanumeric runs, purely numeric segments and single
// characters are skipped).
func For(name string, allow []string) string {
	n := Normalize(name)
	if n == "" {
		return ""
	}
	for _, a := range allow {
		a = Normalize(a)
		if a != "" && strings.Contains(n, a) {
			return a
		}
	}
	if len(allow) > 0 {
		return ""
	}
	return derive(n)
}

func derive(n string) string {
	best := ""
	var seg strings.Builder
	flush := func() {
		s := seg.String()
		seg.Reset()
		if len(s) < 2 || numeric(s) {
			return
		}
		// longest wins; later segments win ties
		if len(s) >= len(best) {
			best = s
		}
	}
	for _, r := range n {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			seg.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	if best == "" {
		return n
	}
	return best
}

func numeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func blacklisted(name string, blacklist []string) bool {
	n := Normalize(name)
	for _, b := range blacklist {
		b = Normalize(b)
		if b != "" && strings.Contains(n, b) {
			return true
		}
	}
	return false
}

type set map[string]bool

func (s set) add(k string) {
	if k != "" {
		s[k] = true
	}
}

func (s set) sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func classifyNames(names []string, opts Options, excluded set) Inventory {
	blacklist := opts.Blacklist
	if blacklist == nil {
		blacklist = DefaultBlacklist
	}

	all, meaningful := set{}, set{}
	for _, name := range names {
		kw := For(name, opts.Keywords)
		if kw == "" && len(opts.Keywords) > 0 {
			// with an allow-list the unmatched name still shows up in
			// the unfiltered inventory under its derived keyword
			kw = derive(Normalize(name))
		}
		all.add(kw)
		if kw == "" {
			continue
		}
		if len(opts.Keywords) > 0 && For(name, opts.Keywords) == "" {
			continue
		}
		if blacklisted(name, blacklist) || excluded[Normalize(name)] {
			continue
		}
		meaningful.add(kw)
	}
	return Inventory{Meaningful: meaningful.sorted(), All: all.sorted()}
}

// Classify builds the block-sourced and layer-sourced inventories of a
// drawing.
func Classify(doc *dxf.Document, opts Options) (blocks Inventory, layers Inventory) {
	blockNames := make([]string, 0, len(doc.Blocks))
	for _, b := range doc.Blocks {
		blockNames = append(blockNames, b.Name)
	}

	excluded := set{}
	for _, l := range opts.ExcludedLayers {
		excluded.add(Normalize(l))
	}

	blocks = classifyNames(blockNames, opts, nil)
	layers = classifyNames(doc.Layers, opts, excluded)
	return blocks, layers
}

// Blacklisted reports whether a raw name contains any blacklist term, with
// nil falling back to DefaultBlacklist. The renderer uses it to drop
// blacklisted sources from view collection.
func Blacklisted(name string, blacklist []string) bool {
	if blacklist == nil {
		blacklist = DefaultBlacklist
	}
	return blacklisted(name, blacklist)
}
