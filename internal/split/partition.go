package split

import (
	"slices"

	"github.com/paulmach/osm"

	"github.com/wegman-software/osmsplit/internal/geom"
)

// partitionWay materializes the resolved splits: it inserts mid-segment
// nodes, cuts the node sequence into chunks sharing their boundary nodes,
// merges the wrap-around chunk of a closed way and assigns identity and
// the already-cleaned tags. splits must be sorted front-to-back.
func partitionWay(way *osm.Way, splits []splitWayAt, ids IDProvider, tags osm.Tags) ([]*osm.Node, []*osm.Way) {
	nodeIDs := make([]osm.NodeID, len(way.Nodes))
	for i, wn := range way.Nodes {
		nodeIDs[i] = wn.ID
	}

	// Every insertion shifts all later indices by one, so the running
	// offset applies to both insertion slots and boundary indices.
	inserted := 0
	boundaries := make([]int, 0, len(splits))
	var newNodes []*osm.Node
	for _, s := range splits {
		if s.point == nil {
			boundaries = append(boundaries, s.index+inserted)
			continue
		}
		n := &osm.Node{
			ID:  ids.NextNodeID(),
			Lat: s.point.Lat(),
			Lon: s.point.Lon(),
		}
		at := s.index + 1 + inserted
		nodeIDs = slices.Insert(nodeIDs, at, n.ID)
		newNodes = append(newNodes, n)
		boundaries = append(boundaries, at)
		inserted++
	}

	parts := geom.SplitAt(nodeIDs, boundaries)

	// A closed way wraps around: the leading and trailing part meet at the
	// former closure node and form a single chunk. Dropping the trailing
	// part's last node drops the duplicated closure reference.
	if isClosed(way) && len(parts) > 1 {
		first, lastPart := parts[0], parts[len(parts)-1]
		if first[0] == lastPart[len(lastPart)-1] {
			parts = parts[:len(parts)-1]
			parts[0] = append(lastPart[:len(lastPart)-1], first...)
		}
	}

	keep := largestPart(parts)
	chunks := make([]*osm.Way, len(parts))
	for i, part := range parts {
		w := &osm.Way{
			Nodes: toWayNodes(part),
			Tags:  cloneTags(tags),
		}
		if i == keep {
			w.ID = way.ID
			w.Version = way.Version
		} else {
			w.ID = ids.NextWayID()
		}
		chunks[i] = w
	}
	return newNodes, chunks
}

// largestPart returns the index of the part with the most nodes; the
// earliest part wins ties. That part inherits the way's identity.
func largestPart(parts [][]osm.NodeID) int {
	best := 0
	for i, p := range parts {
		if len(p) > len(parts[best]) {
			best = i
		}
	}
	return best
}

func isClosed(w *osm.Way) bool {
	return len(w.Nodes) >= 2 && w.Nodes[0].ID == w.Nodes[len(w.Nodes)-1].ID
}

func toWayNodes(ids []osm.NodeID) osm.WayNodes {
	wn := make(osm.WayNodes, len(ids))
	for i, id := range ids {
		wn[i] = osm.WayNode{ID: id}
	}
	return wn
}

func cloneTags(tags osm.Tags) osm.Tags {
	if len(tags) == 0 {
		return nil
	}
	out := make(osm.Tags, len(tags))
	copy(out, tags)
	return out
}
