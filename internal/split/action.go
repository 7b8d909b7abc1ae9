package split

import (
	"context"
	"errors"
	"fmt"

	"github.com/paulmach/osm"
	"go.uber.org/zap"

	"github.com/wegman-software/osmsplit/internal/logger"
)

// Action applies way splits against current map data. It only reads from
// the repository; persisting the produced elements is the caller's job.
type Action struct {
	repo  MapDataRepository
	ids   IDProvider
	extra []TagCleanupRule
}

// NewAction returns an Action backed by the given repository and id
// allocator. Extra tag cleanup rules run after the built-in ones.
func NewAction(repo MapDataRepository, ids IDProvider, extra ...TagCleanupRule) *Action {
	return &Action{repo: repo, ids: ids, extra: extra}
}

// ElementUpdates is the complete set of elements one split produced.
// Ways holds every chunk in geometric order along the original way;
// exactly one of them carries the original id and version, all others are
// new (negative id, version 0).
type ElementUpdates struct {
	CreatedNodes     []*osm.Node
	Ways             []*osm.Way
	UpdatedRelations []*osm.Relation
}

// Apply executes the split described by req against a freshly fetched
// snapshot. It returns either the full update set or an error; remote
// changes the split cannot survive are reported as a ConflictError. No
// partial result is ever produced.
func (a *Action) Apply(ctx context.Context, req Request) (*ElementUpdates, error) {
	if len(req.Splits) == 0 {
		return nil, errors.New("at least one split position is required")
	}

	way, nodes, err := a.repo.WayComplete(ctx, req.WayID)
	if err != nil {
		return nil, fmt.Errorf("fetching way %d: %w", req.WayID, err)
	}
	if way == nil {
		return nil, conflictf("way %d has been deleted", req.WayID)
	}
	if len(way.Nodes) < 2 {
		return nil, conflictf("way %d has fewer than two nodes", req.WayID)
	}

	// The endpoints captured when the split was proposed must survive as
	// endpoints. A pure reversal is compatible; anything else means the
	// geometry was edited (or this split already applied) and the request
	// no longer describes it.
	first := way.Nodes[0].ID
	last := way.Nodes[len(way.Nodes)-1].ID
	sameDirection := first == req.FirstNodeID && last == req.LastNodeID
	reversedDirection := first == req.LastNodeID && last == req.FirstNodeID
	if !sameDirection && !reversedDirection {
		return nil, conflictf("way %d was changed and the conflict cannot be resolved automatically", req.WayID)
	}

	if isClosed(way) && len(req.Splits) < 2 {
		return nil, conflictf("closed way %d must be split at least at two points", req.WayID)
	}

	resolved, err := resolveSplits(way, nodes, req.Splits)
	if err != nil {
		return nil, err
	}

	createdNodes, chunks := partitionWay(way, resolved, a.ids, cleanTags(way.Tags, a.extra))
	if len(chunks) < 2 {
		// Dedup can collapse a closed way's splits into one cut.
		if isClosed(way) {
			return nil, conflictf("closed way %d must be split at least at two points", req.WayID)
		}
		return nil, conflictf("splitting way %d would produce a single chunk", req.WayID)
	}

	updatedRelations, err := repairRelations(ctx, a.repo, way, chunks)
	if err != nil {
		return nil, err
	}

	logger.Get().Debug("way split applied",
		zap.Int64("way", int64(req.WayID)),
		zap.Int("splits", len(resolved)),
		zap.Int("new_nodes", len(createdNodes)),
		zap.Int("chunks", len(chunks)),
		zap.Int("relations", len(updatedRelations)))

	return &ElementUpdates{
		CreatedNodes:     createdNodes,
		Ways:             chunks,
		UpdatedRelations: updatedRelations,
	}, nil
}
