// Package store is a PostgreSQL-backed map-data repository over the
// planet_osm_* middle tables, plus the write-back path for computed
// edits. Coordinates are stored as scaled integers (degrees * 1e7);
// untagged node coordinates may instead live in a flat nodes file.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/paulmach/osm"
	"go.uber.org/zap"

	"github.com/wegman-software/osmsplit/internal/config"
	"github.com/wegman-software/osmsplit/internal/logger"
	"github.com/wegman-software/osmsplit/internal/nodeindex"
	"github.com/wegman-software/osmsplit/internal/split"
)

// ScaleCoord converts a float64 lat/lon to scaled integer (× 10^7)
func ScaleCoord(coord float64) int32 {
	return int32(coord * 1e7)
}

// UnscaleCoord converts a scaled integer back to float64
func UnscaleCoord(scaled int32) float64 {
	return float64(scaled) / 1e7
}

// member mirrors osm.Member inside the JSONB members column.
type member struct {
	Type string `json:"type"`
	Ref  int64  `json:"ref"`
	Role string `json:"role"`
}

// wayMemberProbe is the jsonb @> containment probe for "references this
// way". It must not carry a role key: object containment requires every
// probe key to match, and the member's role is arbitrary.
type wayMemberProbe struct {
	Type string `json:"type"`
	Ref  int64  `json:"ref"`
}

func relationProbe(id osm.WayID) []byte {
	probe, _ := json.Marshal([]wayMemberProbe{{Type: string(osm.TypeWay), Ref: int64(id)}})
	return probe
}

// Store implements split.MapDataRepository on top of pgx.
type Store struct {
	cfg  *config.Config
	pool *pgxpool.Pool
	flat *nodeindex.FlatNodes
}

// New connects to PostgreSQL and, if configured, opens the flat nodes
// file used as coordinate fallback.
func New(ctx context.Context, cfg *config.Config) (*Store, error) {
	pool, err := pgxpool.New(ctx, cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{cfg: cfg, pool: pool}
	if cfg.FlatNodesFile != "" {
		flat, err := nodeindex.Open(cfg.FlatNodesFile)
		if err != nil {
			pool.Close()
			return nil, err
		}
		s.flat = flat
	}
	return s, nil
}

// Close releases the connection pool and the flat nodes file.
func (s *Store) Close() {
	if s.flat != nil {
		s.flat.Close()
	}
	s.pool.Close()
}

// EnsureTables creates the middle tables if they don't exist
func (s *Store) EnsureTables(ctx context.Context, dropExisting bool) error {
	log := logger.Get()

	tables := []struct {
		name   string
		schema string
	}{
		{
			name: "planet_osm_nodes",
			schema: `
				CREATE TABLE IF NOT EXISTS %s.planet_osm_nodes (
					id BIGINT PRIMARY KEY,
					lat INTEGER NOT NULL,
					lon INTEGER NOT NULL,
					tags JSONB,
					version INTEGER NOT NULL DEFAULT 0
				)`,
		},
		{
			name: "planet_osm_ways",
			schema: `
				CREATE TABLE IF NOT EXISTS %s.planet_osm_ways (
					id BIGINT PRIMARY KEY,
					nodes BIGINT[] NOT NULL,
					tags JSONB,
					version INTEGER NOT NULL DEFAULT 0
				)`,
		},
		{
			name: "planet_osm_rels",
			schema: `
				CREATE TABLE IF NOT EXISTS %s.planet_osm_rels (
					id BIGINT PRIMARY KEY,
					members JSONB NOT NULL,
					tags JSONB,
					version INTEGER NOT NULL DEFAULT 0
				)`,
		},
	}

	for _, t := range tables {
		fullName := fmt.Sprintf("%s.%s", s.cfg.DBSchema, t.name)
		if dropExisting {
			log.Info("Dropping table", zap.String("table", t.name))
			if _, err := s.pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", fullName)); err != nil {
				return fmt.Errorf("failed to drop table %s: %w", t.name, err)
			}
		}
		log.Info("Creating table", zap.String("table", t.name))
		if _, err := s.pool.Exec(ctx, fmt.Sprintf(t.schema, s.cfg.DBSchema)); err != nil {
			return fmt.Errorf("failed to create table %s: %w", t.name, err)
		}
	}

	indexes := []string{
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS planet_osm_ways_nodes_idx ON %s.planet_osm_ways USING GIN (nodes)", s.cfg.DBSchema),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS planet_osm_rels_members_idx ON %s.planet_osm_rels USING GIN (members jsonb_path_ops)", s.cfg.DBSchema),
	}
	for _, sql := range indexes {
		if _, err := s.pool.Exec(ctx, sql); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// Way retrieves a way by ID, nil when absent.
func (s *Store) Way(ctx context.Context, id osm.WayID) (*osm.Way, error) {
	var nodeIDs []int64
	var tagsJSON []byte
	var version int

	err := s.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT nodes, tags, version FROM %s.planet_osm_ways WHERE id = $1", s.cfg.DBSchema),
		int64(id),
	).Scan(&nodeIDs, &tagsJSON, &version)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying way %d: %w", id, err)
	}

	way := &osm.Way{ID: id, Version: version, Tags: tagsFromJSON(tagsJSON)}
	way.Nodes = make(osm.WayNodes, len(nodeIDs))
	for i, nid := range nodeIDs {
		way.Nodes[i] = osm.WayNode{ID: osm.NodeID(nid)}
	}
	return way, nil
}

// WayComplete returns the way and every node it references. Coordinates
// missing from the nodes table are resolved through the flat nodes file
// when one is configured.
func (s *Store) WayComplete(ctx context.Context, id osm.WayID) (*osm.Way, map[osm.NodeID]*osm.Node, error) {
	way, err := s.Way(ctx, id)
	if err != nil || way == nil {
		return nil, nil, err
	}

	ids := make([]int64, 0, len(way.Nodes))
	for _, wn := range way.Nodes {
		ids = append(ids, int64(wn.ID))
	}

	nodes := make(map[osm.NodeID]*osm.Node, len(ids))
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf("SELECT id, lat, lon, tags, version FROM %s.planet_osm_nodes WHERE id = ANY($1)", s.cfg.DBSchema),
		ids,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("querying nodes of way %d: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var nid int64
		var lat, lon int32
		var tagsJSON []byte
		var version int
		if err := rows.Scan(&nid, &lat, &lon, &tagsJSON, &version); err != nil {
			return nil, nil, err
		}
		nodes[osm.NodeID(nid)] = &osm.Node{
			ID:      osm.NodeID(nid),
			Lat:     UnscaleCoord(lat),
			Lon:     UnscaleCoord(lon),
			Tags:    tagsFromJSON(tagsJSON),
			Version: version,
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	if s.flat != nil {
		for _, wn := range way.Nodes {
			if _, ok := nodes[wn.ID]; ok {
				continue
			}
			if lat, lon, ok := s.flat.Get(int64(wn.ID)); ok {
				nodes[wn.ID] = &osm.Node{ID: wn.ID, Lat: lat, Lon: lon}
			}
		}
	}
	return way, nodes, nil
}

// RelationsForWay finds all relations with a way member referencing id,
// ordered by relation id.
func (s *Store) RelationsForWay(ctx context.Context, id osm.WayID) ([]*osm.Relation, error) {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT id, members, tags, version FROM %s.planet_osm_rels
			WHERE members @> $1::jsonb ORDER BY id`, s.cfg.DBSchema),
		relationProbe(id),
	)
	if err != nil {
		return nil, fmt.Errorf("querying relations for way %d: %w", id, err)
	}
	defer rows.Close()

	var rels []*osm.Relation
	for rows.Next() {
		var rid int64
		var membersJSON, tagsJSON []byte
		var version int
		if err := rows.Scan(&rid, &membersJSON, &tagsJSON, &version); err != nil {
			return nil, err
		}

		var raw []member
		if err := json.Unmarshal(membersJSON, &raw); err != nil {
			return nil, fmt.Errorf("decoding members of relation %d: %w", rid, err)
		}
		members := make(osm.Members, len(raw))
		for i, m := range raw {
			members[i] = osm.Member{Type: osm.Type(m.Type), Ref: m.Ref, Role: m.Role}
		}
		rels = append(rels, &osm.Relation{
			ID:      osm.RelationID(rid),
			Members: members,
			Tags:    tagsFromJSON(tagsJSON),
			Version: version,
		})
	}
	return rels, rows.Err()
}

// ApplyUpdates writes the result of a split back in one transaction:
// created nodes and new way chunks are inserted, the surviving way and
// repaired relations upserted.
func (s *Store) ApplyUpdates(ctx context.Context, u *split.ElementUpdates) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, n := range u.CreatedNodes {
		_, err := tx.Exec(ctx,
			fmt.Sprintf(`INSERT INTO %s.planet_osm_nodes (id, lat, lon, tags, version)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (id) DO UPDATE SET lat = $2, lon = $3, tags = $4, version = $5`, s.cfg.DBSchema),
			int64(n.ID), ScaleCoord(n.Lat), ScaleCoord(n.Lon), tagsToJSON(n.Tags), n.Version,
		)
		if err != nil {
			return fmt.Errorf("writing node %d: %w", n.ID, err)
		}
	}

	for _, w := range u.Ways {
		nodeIDs := make([]int64, len(w.Nodes))
		for i, wn := range w.Nodes {
			nodeIDs[i] = int64(wn.ID)
		}
		_, err := tx.Exec(ctx,
			fmt.Sprintf(`INSERT INTO %s.planet_osm_ways (id, nodes, tags, version)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (id) DO UPDATE SET nodes = $2, tags = $3, version = $4`, s.cfg.DBSchema),
			int64(w.ID), nodeIDs, tagsToJSON(w.Tags), w.Version,
		)
		if err != nil {
			return fmt.Errorf("writing way %d: %w", w.ID, err)
		}
	}

	for _, r := range u.UpdatedRelations {
		raw := make([]member, len(r.Members))
		for i, m := range r.Members {
			raw[i] = member{Type: string(m.Type), Ref: m.Ref, Role: m.Role}
		}
		membersJSON, _ := json.Marshal(raw)
		_, err := tx.Exec(ctx,
			fmt.Sprintf(`INSERT INTO %s.planet_osm_rels (id, members, tags, version)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (id) DO UPDATE SET members = $2, tags = $3, version = $4`, s.cfg.DBSchema),
			int64(r.ID), membersJSON, tagsToJSON(r.Tags), r.Version,
		)
		if err != nil {
			return fmt.Errorf("writing relation %d: %w", r.ID, err)
		}
	}

	return tx.Commit(ctx)
}

// IDAllocator hands out negative ids below everything persisted.
type IDAllocator struct {
	node atomic.Int64
	way  atomic.Int64
}

func (a *IDAllocator) NextNodeID() osm.NodeID {
	return osm.NodeID(a.node.Add(-1))
}

func (a *IDAllocator) NextWayID() osm.WayID {
	return osm.WayID(a.way.Add(-1))
}

// NewIDProvider seeds an allocator from the smallest persisted ids, so
// staged-but-uncommitted negative ids are never reissued.
func (s *Store) NewIDProvider(ctx context.Context) (*IDAllocator, error) {
	a := &IDAllocator{}

	var minNode, minWay int64
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT LEAST(COALESCE(MIN(id), 0), 0) FROM %s.planet_osm_nodes", s.cfg.DBSchema),
	).Scan(&minNode)
	if err != nil {
		return nil, fmt.Errorf("seeding node id allocator: %w", err)
	}
	err = s.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT LEAST(COALESCE(MIN(id), 0), 0) FROM %s.planet_osm_ways", s.cfg.DBSchema),
	).Scan(&minWay)
	if err != nil {
		return nil, fmt.Errorf("seeding way id allocator: %w", err)
	}

	a.node.Store(minNode)
	a.way.Store(minWay)
	return a, nil
}

func tagsFromJSON(data []byte) osm.Tags {
	if len(data) == 0 {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil || len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	tags := make(osm.Tags, 0, len(m))
	for _, k := range keys {
		tags = append(tags, osm.Tag{Key: k, Value: m[k]})
	}
	return tags
}

func tagsToJSON(tags osm.Tags) []byte {
	if len(tags) == 0 {
		return nil
	}
	data, _ := json.Marshal(tags.Map())
	return data
}
