package split

import (
	"context"

	"github.com/paulmach/osm"
)

// MapDataRepository is the read side of the element store the engine
// splits against. It may be backed by a local snapshot or a database;
// implementations return a nil element (and nil error) when the requested
// element is absent.
type MapDataRepository interface {
	// WayComplete returns the way together with every node it references.
	WayComplete(ctx context.Context, id osm.WayID) (*osm.Way, map[osm.NodeID]*osm.Node, error)
	Way(ctx context.Context, id osm.WayID) (*osm.Way, error)
	RelationsForWay(ctx context.Context, id osm.WayID) ([]*osm.Relation, error)
}

// IDProvider hands out ids for elements created by a split. Every call
// returns a value not previously returned and not colliding with any
// persisted id.
type IDProvider interface {
	NextNodeID() osm.NodeID
	NextWayID() osm.WayID
}
