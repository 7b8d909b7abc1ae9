// Package repo provides an in-memory map-data repository, used by tests
// and by offline runs against an .osm snapshot file.
package repo

import (
	"context"
	"sort"
	"sync/atomic"

	"github.com/paulmach/osm"
)

// Memory holds one consistent snapshot of elements keyed by id.
type Memory struct {
	nodes map[osm.NodeID]*osm.Node
	ways  map[osm.WayID]*osm.Way
	rels  map[osm.RelationID]*osm.Relation
}

// NewMemory returns an empty snapshot.
func NewMemory() *Memory {
	return &Memory{
		nodes: make(map[osm.NodeID]*osm.Node),
		ways:  make(map[osm.WayID]*osm.Way),
		rels:  make(map[osm.RelationID]*osm.Relation),
	}
}

func (m *Memory) AddNode(n *osm.Node)         { m.nodes[n.ID] = n }
func (m *Memory) AddWay(w *osm.Way)           { m.ways[w.ID] = w }
func (m *Memory) AddRelation(r *osm.Relation) { m.rels[r.ID] = r }

// LoadOSM adds every element of the document to the snapshot.
func (m *Memory) LoadOSM(o *osm.OSM) {
	for _, n := range o.Nodes {
		m.AddNode(n)
	}
	for _, w := range o.Ways {
		m.AddWay(w)
	}
	for _, r := range o.Relations {
		m.AddRelation(r)
	}
}

// Way returns the way or nil when absent.
func (m *Memory) Way(ctx context.Context, id osm.WayID) (*osm.Way, error) {
	return m.ways[id], nil
}

// WayComplete returns the way together with every node it references.
// Nodes missing from the snapshot are simply absent from the map; the
// caller decides whether that is fatal.
func (m *Memory) WayComplete(ctx context.Context, id osm.WayID) (*osm.Way, map[osm.NodeID]*osm.Node, error) {
	w := m.ways[id]
	if w == nil {
		return nil, nil, nil
	}
	nodes := make(map[osm.NodeID]*osm.Node, len(w.Nodes))
	for _, wn := range w.Nodes {
		if n := m.nodes[wn.ID]; n != nil {
			nodes[wn.ID] = n
		}
	}
	return w, nodes, nil
}

// RelationsForWay returns all relations with a way member referencing id,
// ordered by relation id for determinism.
func (m *Memory) RelationsForWay(ctx context.Context, id osm.WayID) ([]*osm.Relation, error) {
	var out []*osm.Relation
	for _, rel := range m.rels {
		for _, mem := range rel.Members {
			if mem.Type == osm.TypeWay && mem.Ref == int64(id) {
				out = append(out, rel)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// IDSequence allocates ids for new elements, counting down from -1 per
// kind so they can never collide with persisted (positive) ids. Safe for
// concurrent use.
type IDSequence struct {
	node atomic.Int64
	way  atomic.Int64
}

// NewIDSequence returns a sequence starting at -1 for each kind.
func NewIDSequence() *IDSequence {
	return &IDSequence{}
}

func (s *IDSequence) NextNodeID() osm.NodeID {
	return osm.NodeID(s.node.Add(-1))
}

func (s *IDSequence) NextWayID() osm.WayID {
	return osm.WayID(s.way.Add(-1))
}
