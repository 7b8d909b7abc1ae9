package split

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"

	"github.com/wegman-software/osmsplit/internal/geom"
)

// splitWayAt is a split normalized onto the fetched way: a cut at the node
// at index, or, when point is set, at a new node inserted between index
// and index+1.
type splitWayAt struct {
	index int
	point *orb.Point
	// along is the distance in meters from the node at index, -1 for cuts
	// at an existing node. It orders multiple cuts within one segment.
	along float64
}

// resolveSplits maps the raw split positions onto the way's node sequence
// and returns them deduplicated and sorted front-to-back. Cuts at an
// existing node sort before mid-segment cuts of the segment starting at
// that node; mid-segment cuts sort by distance along the segment; equal
// keys keep input order.
func resolveSplits(way *osm.Way, nodes map[osm.NodeID]*osm.Node, splits []SplitPosition) ([]splitWayAt, error) {
	positions := make([]orb.Point, len(way.Nodes))
	for i, wn := range way.Nodes {
		n := nodes[wn.ID]
		if n == nil {
			return nil, conflictf("node %d of way %d is missing from the fetched data", wn.ID, way.ID)
		}
		positions[i] = geom.Point(n)
	}

	closed := isClosed(way)
	resolved := make([]splitWayAt, 0, len(splits))
	for _, s := range splits {
		r, err := resolveSplit(way, positions, closed, s)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, r)
	}

	sort.SliceStable(resolved, func(i, j int) bool {
		if resolved[i].index != resolved[j].index {
			return resolved[i].index < resolved[j].index
		}
		return resolved[i].along < resolved[j].along
	})

	deduped := resolved[:0]
	for _, r := range resolved {
		if n := len(deduped); n > 0 && sameSplit(deduped[n-1], r) {
			continue
		}
		deduped = append(deduped, r)
	}
	return deduped, nil
}

func sameSplit(a, b splitWayAt) bool {
	if a.index != b.index || (a.point == nil) != (b.point == nil) {
		return false
	}
	return a.point == nil || *a.point == *b.point
}

func resolveSplit(way *osm.Way, positions []orb.Point, closed bool, s SplitPosition) (splitWayAt, error) {
	last := len(positions) - 1

	switch s := s.(type) {
	case SplitAtIndex:
		return nodeSplitAt(way, s.Index, closed, last)

	case SplitAtPoint:
		for i, p := range positions {
			if p == s.Position {
				return nodeSplitAt(way, i, closed, last)
			}
		}
		return splitWayAt{}, conflictf("way %d has no node at lon %v, lat %v",
			way.ID, s.Position.Lon(), s.Position.Lat())

	case SplitAtLinePosition:
		if s.Position == s.Start || s.Position == s.End {
			return splitWayAt{}, conflictf("split point on way %d coincides with an existing node", way.ID)
		}
		best, bestDist := -1, math.Inf(1)
		for i := 0; i < last; i++ {
			a, b := positions[i], positions[i+1]
			if !(a == s.Start && b == s.End) && !(a == s.End && b == s.Start) {
				continue
			}
			if d := geom.DistanceToSegment(s.Position, a, b); d < bestDist {
				best, bestDist = i, d
			}
		}
		if best < 0 {
			return splitWayAt{}, conflictf("way %d has no segment between the requested positions", way.ID)
		}
		p := s.Position
		return splitWayAt{index: best, point: &p, along: geom.Distance(positions[best], p)}, nil
	}

	return splitWayAt{}, conflictf("unsupported split position type %T", s)
}

func nodeSplitAt(way *osm.Way, i int, closed bool, last int) (splitWayAt, error) {
	if closed {
		if i < 0 || i > last {
			return splitWayAt{}, conflictf("split at node index %d is outside way %d", i, way.ID)
		}
		// the closure node appears at both ends, represent it once
		if i == last {
			i = 0
		}
		return splitWayAt{index: i, along: -1}, nil
	}
	if i <= 0 || i >= last {
		return splitWayAt{}, conflictf("split at node index %d would not divide way %d", i, way.ID)
	}
	return splitWayAt{index: i, along: -1}, nil
}
