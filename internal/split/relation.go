package split

import (
	"context"
	"fmt"
	"slices"

	"github.com/paulmach/osm"
	"go.uber.org/zap"

	"github.com/wegman-software/osmsplit/internal/logger"
)

// repairRelations rewrites every relation that references the split way so
// that no reference is lost, duplicated or reordered. Each touched
// relation is returned exactly once.
func repairRelations(ctx context.Context, repo MapDataRepository, way *osm.Way, chunks []*osm.Way) ([]*osm.Relation, error) {
	rels, err := repo.RelationsForWay(ctx, way.ID)
	if err != nil {
		return nil, fmt.Errorf("fetching relations for way %d: %w", way.ID, err)
	}

	var updated []*osm.Relation
	for _, rel := range rels {
		members, changed, err := rebuildMembers(ctx, repo, rel, way, chunks)
		if err != nil {
			return nil, err
		}
		if !changed {
			continue
		}
		repaired := *rel
		repaired.Members = members
		updated = append(updated, &repaired)
	}
	return updated, nil
}

// rebuildMembers splices replacement members into a fresh list, which
// keeps indices stable no matter how many members get replaced.
func rebuildMembers(ctx context.Context, repo MapDataRepository, rel *osm.Relation, way *osm.Way, chunks []*osm.Way) (osm.Members, bool, error) {
	out := make(osm.Members, 0, len(rel.Members)+len(chunks))
	changed := false

	for i, m := range rel.Members {
		if m.Type != osm.TypeWay || m.Ref != int64(way.ID) {
			out = append(out, m)
			continue
		}

		var repl osm.Members
		var err error
		switch m.Role {
		case "from", "to":
			repl, err = viaAdjacentReplacement(ctx, repo, rel, m, chunks)
		default:
			repl, err = allChunksReplacement(ctx, repo, rel, i, m, way, chunks)
		}
		if err != nil {
			return nil, false, err
		}
		if repl == nil {
			// Best effort: a from/to member whose via no chunk touches is
			// left pointing at the original way rather than blocking the
			// whole edit.
			logger.Get().Warn("leaving relation member unrepaired, no chunk touches a via node",
				zap.Int64("relation", int64(rel.ID)),
				zap.Int64("way", int64(way.ID)),
				zap.String("role", m.Role))
			out = append(out, m)
			continue
		}
		out = append(out, repl...)
		changed = true
	}
	return out, changed, nil
}

// viaAdjacentReplacement picks the single chunk that starts or ends at
// one of the relation's via nodes. A from/to member of a restriction-like
// relation must stay a single way touching the via. Returns nil when no
// chunk qualifies.
func viaAdjacentReplacement(ctx context.Context, repo MapDataRepository, rel *osm.Relation, m osm.Member, chunks []*osm.Way) (osm.Members, error) {
	vias, err := viaNodeIDs(ctx, repo, rel)
	if err != nil {
		return nil, err
	}
	for _, c := range chunks {
		if vias[c.Nodes[0].ID] || vias[c.Nodes[len(c.Nodes)-1].ID] {
			return osm.Members{{Type: osm.TypeWay, Ref: int64(c.ID), Role: m.Role}}, nil
		}
	}
	return nil, nil
}

// viaNodeIDs collects the node ids a from/to member may attach to: via
// nodes directly, the endpoints of via ways. destination_sign relations
// mark the pivot with the intersection role, older ones with sign. The
// result is never nil; an empty set means the relation has no usable via.
func viaNodeIDs(ctx context.Context, repo MapDataRepository, rel *osm.Relation) (map[osm.NodeID]bool, error) {
	role, fallback := "via", ""
	if rel.Tags.Find("type") == "destination_sign" {
		role, fallback = "intersection", "sign"
	}

	vias := membersWithRole(rel, role)
	if len(vias) == 0 && fallback != "" {
		vias = membersWithRole(rel, fallback)
	}

	ids := make(map[osm.NodeID]bool)
	for _, m := range vias {
		switch m.Type {
		case osm.TypeNode:
			ids[osm.NodeID(m.Ref)] = true
		case osm.TypeWay:
			w, err := repo.Way(ctx, osm.WayID(m.Ref))
			if err != nil {
				return nil, fmt.Errorf("fetching via way %d: %w", m.Ref, err)
			}
			if w == nil || len(w.Nodes) == 0 {
				continue
			}
			ids[w.Nodes[0].ID] = true
			ids[w.Nodes[len(w.Nodes)-1].ID] = true
		}
	}
	return ids, nil
}

func membersWithRole(rel *osm.Relation, role string) []osm.Member {
	var out []osm.Member
	for _, m := range rel.Members {
		if m.Role == role {
			out = append(out, m)
		}
	}
	return out
}

type orientation int

const (
	orientationUnknown orientation = iota
	orientationForward
	orientationBackward
)

// allChunksReplacement replaces the member with one member per chunk,
// contiguously at the same position. When the way provably ran backward
// through an ordered relation the chunks are inserted in reverse so
// adjacency is preserved.
func allChunksReplacement(ctx context.Context, repo MapDataRepository, rel *osm.Relation, idx int, m osm.Member, way *osm.Way, chunks []*osm.Way) (osm.Members, error) {
	repl := make(osm.Members, 0, len(chunks))
	for _, c := range chunks {
		repl = append(repl, osm.Member{Type: osm.TypeWay, Ref: int64(c.ID), Role: m.Role})
	}

	dir, err := orientationInRelation(ctx, repo, rel, idx, way)
	if err != nil {
		return nil, err
	}
	if dir == orientationBackward {
		slices.Reverse(repl)
	}
	return repl, nil
}

// orientationInRelation probes the nearest way members on either side of
// idx for a shared endpoint with the split way. An absent or ambiguous
// neighbor yields unknown, which keeps the original chunk order.
func orientationInRelation(ctx context.Context, repo MapDataRepository, rel *osm.Relation, idx int, way *osm.Way) (orientation, error) {
	first := way.Nodes[0].ID
	last := way.Nodes[len(way.Nodes)-1].ID
	if first == last {
		// closed: both ends are the same node, adjacency can't tell
		return orientationUnknown, nil
	}

	if prev := nearestWayMember(rel, idx, -1); prev != nil {
		dir, err := orientationAgainstNeighbor(ctx, repo, *prev, first, last, true)
		if err != nil || dir != orientationUnknown {
			return dir, err
		}
	}
	if next := nearestWayMember(rel, idx, +1); next != nil {
		return orientationAgainstNeighbor(ctx, repo, *next, first, last, false)
	}
	return orientationUnknown, nil
}

// nearestWayMember returns the closest way-type member before (step -1)
// or after (step +1) index i, or nil.
func nearestWayMember(rel *osm.Relation, i, step int) *osm.Member {
	for j := i + step; j >= 0 && j < len(rel.Members); j += step {
		if rel.Members[j].Type == osm.TypeWay {
			m := rel.Members[j]
			return &m
		}
	}
	return nil
}

// orientationAgainstNeighbor tests endpoint adjacency with one neighbor
// way. A preceding neighbor touching the way's first node means the way
// runs forward through the relation; for a following neighbor it is the
// other way around. A neighbor touching both or neither endpoint decides
// nothing.
func orientationAgainstNeighbor(ctx context.Context, repo MapDataRepository, m osm.Member, first, last osm.NodeID, preceding bool) (orientation, error) {
	w, err := repo.Way(ctx, osm.WayID(m.Ref))
	if err != nil {
		return orientationUnknown, fmt.Errorf("fetching neighbor way %d: %w", m.Ref, err)
	}
	if w == nil || len(w.Nodes) == 0 {
		return orientationUnknown, nil
	}

	nf := w.Nodes[0].ID
	nl := w.Nodes[len(w.Nodes)-1].ID
	touchesFirst := nf == first || nl == first
	touchesLast := nf == last || nl == last
	if touchesFirst == touchesLast {
		return orientationUnknown, nil
	}
	if touchesFirst == preceding {
		return orientationForward, nil
	}
	return orientationBackward, nil
}
