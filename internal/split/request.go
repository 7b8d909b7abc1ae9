package split

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
)

// SplitPosition describes where a way should be cut. Positions are
// geographic so a request stays valid when the remote way is reversed;
// SplitAtIndex exists for callers that already hold a node index.
type SplitPosition interface {
	splitPosition()
}

// SplitAtPoint cuts the way at the existing node whose position equals
// Position.
type SplitAtPoint struct {
	Position orb.Point
}

// SplitAtLinePosition cuts the way between two adjacent nodes whose
// positions are Start and End (in either orientation), creating a new
// node at Position.
type SplitAtLinePosition struct {
	Start    orb.Point
	End      orb.Point
	Position orb.Point
}

// SplitAtIndex cuts the way directly at the node at Index.
type SplitAtIndex struct {
	Index int
}

func (SplitAtPoint) splitPosition()        {}
func (SplitAtLinePosition) splitPosition() {}
func (SplitAtIndex) splitPosition()        {}

// Request is one proposed split of a way.
type Request struct {
	WayID osm.WayID

	// FirstNodeID and LastNodeID are the way's endpoints as observed when
	// the split was proposed, captured before any remote round trip. They
	// anchor the conflict check in Action.Apply.
	FirstNodeID osm.NodeID
	LastNodeID  osm.NodeID

	Splits []SplitPosition
}

// ElementCounts is a per-kind tally of elements.
type ElementCounts struct {
	Nodes     int
	Ways      int
	Relations int
}

// NewElementCounts returns how many elements applying the request will
// produce, derived from the request shape alone: one node per mid-segment
// split, one way chunk per split plus the remainder, never a new relation.
func (r Request) NewElementCounts() ElementCounts {
	nodes := 0
	for _, s := range r.Splits {
		if _, ok := s.(SplitAtLinePosition); ok {
			nodes++
		}
	}
	return ElementCounts{Nodes: nodes, Ways: len(r.Splits) + 1, Relations: 0}
}
