// Package density implements a mutable density field: a base signed
// distance function sculpted by an append-only list of modifiers.
//
// Evaluation during an octree build goes through a Pass which caches every
// sampled value. The next pass starts from those cached values and only
// replays the modifiers added since, so an edit costs one shape evaluation
// per previously seen position.
package density

import (
	"sync"

	"github.com/soypat/dcterrain"
	"gonum.org/v1/gonum/spatial/r3"
)

// Field is a base density function plus sculpt modifiers. Negative values
// are solid. Field is safe for concurrent use, though at most one Pass
// may be open at a time.
type Field struct {
	base dcterrain.SDF3

	mu        sync.Mutex
	modifiers []Modifier
	// committed is the cache written by the last committed pass.
	committed map[r3.Vec]float64
	// applied is the number of modifiers folded into committed.
	applied    int
	firstBuild bool
	open       bool
}

// NewField returns a field evaluating base with no modifiers.
func NewField(base dcterrain.SDF3) *Field {
	if base == nil {
		panic("nil base density")
	}
	return &Field{
		base:       base,
		committed:  make(map[r3.Vec]float64),
		firstBuild: true,
	}
}

// AddModifier appends m and returns the new number of modifiers.
func (f *Field) AddModifier(m Modifier) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modifiers = append(f.modifiers, m)
	return len(f.modifiers)
}

// Modifiers returns a copy of the modifier list.
func (f *Field) Modifiers() []Modifier {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Modifier(nil), f.modifiers...)
}

// Applied returns how many modifiers the cached generation reflects.
func (f *Field) Applied() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.applied
}

// Evaluate computes the density at p from scratch over every modifier.
// Caches are neither read nor written.
func (f *Field) Evaluate(p r3.Vec) float64 {
	f.mu.Lock()
	mods := f.modifiers[:len(f.modifiers):len(f.modifiers)]
	f.mu.Unlock()
	return replay(f.base.Evaluate(p), p, mods)
}

// Bounds returns the bounds of the base density.
func (f *Field) Bounds() r3.Box { return f.base.Bounds() }

// Begin opens a build pass over the modifiers present now. Modifiers added
// while the pass is open are picked up by the next one.
// Begin panics if the previous pass was neither committed nor aborted.
func (f *Field) Begin() *Pass {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.open {
		panic("density: Begin called with a pass still open")
	}
	f.open = true
	n := len(f.modifiers)
	return &Pass{
		field:   f,
		base:    f.base,
		mods:    f.modifiers[:n:n],
		from:    f.applied,
		scratch: f.firstBuild,
		prev:    f.committed,
		cur:     make(map[r3.Vec]float64, len(f.committed)),
	}
}

func replay(d float64, p r3.Vec, mods []Modifier) float64 {
	for _, m := range mods {
		d = m.Apply(d, p)
	}
	return d
}

// Stats counts cache behaviour of a pass.
type Stats struct {
	// Hits is the number of evaluations served from the previous generation.
	Hits int
	// Misses is the number of evaluations computed from the base density.
	Misses int
	// Replayed is the number of modifier applications performed.
	Replayed int
	// Cached is the number of distinct positions sampled.
	Cached int
}

// Pass is one generation of the density cache. A Pass is not safe for
// concurrent use; it belongs to the goroutine building the octree.
type Pass struct {
	field   *Field
	base    dcterrain.SDF3
	mods    []Modifier
	from    int
	scratch bool
	prev    map[r3.Vec]float64
	cur     map[r3.Vec]float64
	stats   Stats
	done    bool
}

// Evaluate returns the density at p. Values cached by the previous pass
// only have the newer modifiers replayed on top of them.
func (ps *Pass) Evaluate(p r3.Vec) float64 {
	if d, ok := ps.cur[p]; ok {
		return d
	}
	var d float64
	cached, hit := ps.prev[p]
	if hit && !ps.scratch {
		ps.stats.Hits++
		ps.stats.Replayed += len(ps.mods) - ps.from
		d = replay(cached, p, ps.mods[ps.from:])
	} else {
		ps.stats.Misses++
		ps.stats.Replayed += len(ps.mods)
		d = replay(ps.base.Evaluate(p), p, ps.mods)
	}
	ps.cur[p] = d
	return d
}

// Stats returns the cache counters accumulated so far.
func (ps *Pass) Stats() Stats {
	s := ps.stats
	s.Cached = len(ps.cur)
	return s
}

// Modifiers returns the number of modifiers the pass evaluates.
func (ps *Pass) Modifiers() int { return len(ps.mods) }

// Commit makes this pass's cache the generation the next pass reads from.
// Calling Commit or Abort on an ended pass does nothing.
func (ps *Pass) Commit() {
	f := ps.field
	f.mu.Lock()
	defer f.mu.Unlock()
	if ps.done {
		return
	}
	ps.done = true
	f.committed = ps.cur
	f.applied = len(ps.mods)
	f.firstBuild = false
	f.open = false
}

// Abort discards the pass. The field keeps its last committed generation.
func (ps *Pass) Abort() {
	f := ps.field
	f.mu.Lock()
	defer f.mu.Unlock()
	if ps.done {
		return
	}
	ps.done = true
	ps.cur = nil
	f.open = false
}
