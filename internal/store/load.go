package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/paulmach/osm"
	"go.uber.org/zap"

	"github.com/wegman-software/osmsplit/internal/logger"
	"github.com/wegman-software/osmsplit/internal/nodeindex"
)

// LoadOSM bulk-loads a snapshot into the middle tables using COPY. When a
// flat nodes index is given, untagged node coordinates go there instead
// of the nodes table, which keeps the table small on large extracts.
func (s *Store) LoadOSM(ctx context.Context, o *osm.OSM, flat *nodeindex.FlatNodes) (nodes, ways, rels int64, err error) {
	log := logger.Get()

	tableNodes := make([]*osm.Node, 0, len(o.Nodes))
	for _, n := range o.Nodes {
		if flat != nil {
			flat.Put(int64(n.ID), n.Lat, n.Lon)
			if len(n.Tags) == 0 {
				continue
			}
		}
		tableNodes = append(tableNodes, n)
	}

	nodes, err = s.pool.CopyFrom(ctx,
		pgx.Identifier{s.cfg.DBSchema, "planet_osm_nodes"},
		[]string{"id", "lat", "lon", "tags", "version"},
		pgx.CopyFromSlice(len(tableNodes), func(i int) ([]any, error) {
			n := tableNodes[i]
			return []any{int64(n.ID), ScaleCoord(n.Lat), ScaleCoord(n.Lon), tagsToJSON(n.Tags), n.Version}, nil
		}),
	)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("COPY to planet_osm_nodes failed: %w", err)
	}
	if flat != nil {
		if err := flat.Sync(); err != nil {
			return 0, 0, 0, fmt.Errorf("syncing flat nodes: %w", err)
		}
	}
	log.Info("Node load complete", zap.Int64("rows", nodes), zap.Int("flat", len(o.Nodes)-len(tableNodes)))

	ways, err = s.pool.CopyFrom(ctx,
		pgx.Identifier{s.cfg.DBSchema, "planet_osm_ways"},
		[]string{"id", "nodes", "tags", "version"},
		pgx.CopyFromSlice(len(o.Ways), func(i int) ([]any, error) {
			w := o.Ways[i]
			nodeIDs := make([]int64, len(w.Nodes))
			for j, wn := range w.Nodes {
				nodeIDs[j] = int64(wn.ID)
			}
			return []any{int64(w.ID), nodeIDs, tagsToJSON(w.Tags), w.Version}, nil
		}),
	)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("COPY to planet_osm_ways failed: %w", err)
	}
	log.Info("Way load complete", zap.Int64("rows", ways))

	rels, err = s.pool.CopyFrom(ctx,
		pgx.Identifier{s.cfg.DBSchema, "planet_osm_rels"},
		[]string{"id", "members", "tags", "version"},
		pgx.CopyFromSlice(len(o.Relations), func(i int) ([]any, error) {
			r := o.Relations[i]
			raw := make([]member, len(r.Members))
			for j, m := range r.Members {
				raw[j] = member{Type: string(m.Type), Ref: m.Ref, Role: m.Role}
			}
			membersJSON, _ := json.Marshal(raw)
			return []any{int64(r.ID), membersJSON, tagsToJSON(r.Tags), r.Version}, nil
		}),
	)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("COPY to planet_osm_rels failed: %w", err)
	}
	log.Info("Relation load complete", zap.Int64("rows", rels))

	return nodes, ways, rels, nil
}
