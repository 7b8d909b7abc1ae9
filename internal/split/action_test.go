package split

import (
	"context"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"

	"github.com/wegman-software/osmsplit/internal/repo"
)

// testNode places a node at an explicit position.
func testNode(id osm.NodeID, lon, lat float64) *osm.Node {
	return &osm.Node{ID: id, Lon: lon, Lat: lat, Version: 1}
}

// testWay builds a way over the given node ids.
func testWay(id osm.WayID, ids ...osm.NodeID) *osm.Way {
	w := &osm.Way{ID: id, Version: 3}
	for _, nid := range ids {
		w.Nodes = append(w.Nodes, osm.WayNode{ID: nid})
	}
	return w
}

// nodesFor places every node of the way at lon = id degrees on the
// equator, so positions can be derived from ids in test fixtures.
func nodesFor(w *osm.Way) map[osm.NodeID]*osm.Node {
	m := make(map[osm.NodeID]*osm.Node)
	for _, wn := range w.Nodes {
		m[wn.ID] = testNode(wn.ID, float64(wn.ID), 0)
	}
	return m
}

func addWayWithNodes(m *repo.Memory, w *osm.Way) {
	for _, n := range nodesFor(w) {
		m.AddNode(n)
	}
	m.AddWay(w)
}

func chunkIDs(w *osm.Way) []osm.NodeID {
	ids := make([]osm.NodeID, len(w.Nodes))
	for i, wn := range w.Nodes {
		ids[i] = wn.ID
	}
	return ids
}

func sameIDs(a, b []osm.NodeID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func pt(lon, lat float64) orb.Point {
	return orb.Point{lon, lat}
}

func TestApplySplitsWay(t *testing.T) {
	mem := repo.NewMemory()
	w := testWay(10, 1, 2, 3, 4)
	w.Tags = osm.Tags{
		{Key: "highway", Value: "residential"},
		{Key: "step_count", Value: "5"},
	}
	addWayWithNodes(mem, w)

	action := NewAction(mem, repo.NewIDSequence())
	res, err := action.Apply(context.Background(), Request{
		WayID:       10,
		FirstNodeID: 1,
		LastNodeID:  4,
		Splits: []SplitPosition{
			SplitAtPoint{Position: pt(2, 0)},
			SplitAtLinePosition{Start: pt(3, 0), End: pt(4, 0), Position: pt(3.5, 0)},
		},
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if len(res.CreatedNodes) != 1 {
		t.Fatalf("expected 1 created node, got %d", len(res.CreatedNodes))
	}
	n := res.CreatedNodes[0]
	if n.ID >= 0 {
		t.Errorf("created node should have a negative id, got %d", n.ID)
	}
	if n.Lon != 3.5 || n.Lat != 0 {
		t.Errorf("created node at (%v, %v), want (3.5, 0)", n.Lon, n.Lat)
	}

	if len(res.Ways) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(res.Ways))
	}
	want := [][]osm.NodeID{{1, 2}, {2, 3, n.ID}, {n.ID, 4}}
	for i, chunk := range res.Ways {
		if !sameIDs(chunkIDs(chunk), want[i]) {
			t.Errorf("chunk %d nodes = %v, want %v", i, chunkIDs(chunk), want[i])
		}
	}

	// The middle chunk is the largest and inherits the way's identity.
	if res.Ways[1].ID != 10 || res.Ways[1].Version != 3 {
		t.Errorf("middle chunk has id %d version %d, want 10 v3", res.Ways[1].ID, res.Ways[1].Version)
	}
	for _, i := range []int{0, 2} {
		if res.Ways[i].ID >= 0 {
			t.Errorf("chunk %d should have a negative id, got %d", i, res.Ways[i].ID)
		}
		if res.Ways[i].Version != 0 {
			t.Errorf("chunk %d should have version 0, got %d", i, res.Ways[i].Version)
		}
	}

	// Whole-feature tags are stripped from every chunk.
	for i, chunk := range res.Ways {
		if chunk.Tags.Find("highway") != "residential" {
			t.Errorf("chunk %d lost the highway tag", i)
		}
		if chunk.Tags.Find("step_count") != "" {
			t.Errorf("chunk %d kept step_count", i)
		}
	}

	if len(res.UpdatedRelations) != 0 {
		t.Errorf("expected no relation updates, got %d", len(res.UpdatedRelations))
	}
}

func TestApplyMatchesElementCounts(t *testing.T) {
	mem := repo.NewMemory()
	addWayWithNodes(mem, testWay(10, 1, 2, 3, 4))

	req := Request{
		WayID:       10,
		FirstNodeID: 1,
		LastNodeID:  4,
		Splits: []SplitPosition{
			SplitAtPoint{Position: pt(2, 0)},
			SplitAtLinePosition{Start: pt(3, 0), End: pt(4, 0), Position: pt(3.5, 0)},
		},
	}
	counts := req.NewElementCounts()

	res, err := NewAction(mem, repo.NewIDSequence()).Apply(context.Background(), req)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if len(res.CreatedNodes) != counts.Nodes {
		t.Errorf("created %d nodes, predicted %d", len(res.CreatedNodes), counts.Nodes)
	}
	if len(res.Ways) != counts.Ways {
		t.Errorf("created %d ways, predicted %d", len(res.Ways), counts.Ways)
	}
	if counts.Relations != 0 {
		t.Errorf("predicted %d new relations, want 0", counts.Relations)
	}
}

func TestApplyAcceptsReversedWay(t *testing.T) {
	mem := repo.NewMemory()
	addWayWithNodes(mem, testWay(10, 1, 2, 3))

	// Endpoints captured before the way was reversed remotely.
	res, err := NewAction(mem, repo.NewIDSequence()).Apply(context.Background(), Request{
		WayID:       10,
		FirstNodeID: 3,
		LastNodeID:  1,
		Splits:      []SplitPosition{SplitAtPoint{Position: pt(2, 0)}},
	})
	if err != nil {
		t.Fatalf("Apply failed on reversed way: %v", err)
	}
	if len(res.Ways) != 2 {
		t.Errorf("expected 2 chunks, got %d", len(res.Ways))
	}
}

func TestApplyEndpointConflict(t *testing.T) {
	mem := repo.NewMemory()
	addWayWithNodes(mem, testWay(10, 1, 2, 3))

	_, err := NewAction(mem, repo.NewIDSequence()).Apply(context.Background(), Request{
		WayID:       10,
		FirstNodeID: 1,
		LastNodeID:  9,
		Splits:      []SplitPosition{SplitAtPoint{Position: pt(2, 0)}},
	})
	if !IsConflict(err) {
		t.Fatalf("expected a conflict, got %v", err)
	}
}

func TestApplyDeletedWayConflict(t *testing.T) {
	mem := repo.NewMemory()

	_, err := NewAction(mem, repo.NewIDSequence()).Apply(context.Background(), Request{
		WayID:       10,
		FirstNodeID: 1,
		LastNodeID:  3,
		Splits:      []SplitPosition{SplitAtPoint{Position: pt(2, 0)}},
	})
	if !IsConflict(err) {
		t.Fatalf("expected a conflict for a deleted way, got %v", err)
	}
}

func TestApplyClosedWayNeedsTwoSplits(t *testing.T) {
	mem := repo.NewMemory()
	addWayWithNodes(mem, testWay(20, 1, 2, 3, 4, 1))

	action := NewAction(mem, repo.NewIDSequence())
	_, err := action.Apply(context.Background(), Request{
		WayID:       20,
		FirstNodeID: 1,
		LastNodeID:  1,
		Splits:      []SplitPosition{SplitAtPoint{Position: pt(2, 0)}},
	})
	if !IsConflict(err) {
		t.Fatalf("expected a conflict for a single split on a closed way, got %v", err)
	}

	res, err := action.Apply(context.Background(), Request{
		WayID:       20,
		FirstNodeID: 1,
		LastNodeID:  1,
		Splits: []SplitPosition{
			SplitAtPoint{Position: pt(2, 0)},
			SplitAtPoint{Position: pt(4, 0)},
		},
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if len(res.Ways) != 2 {
		t.Fatalf("expected 2 chunks from a closed way with 2 splits, got %d", len(res.Ways))
	}
	for i, chunk := range res.Ways {
		if isClosed(chunk) {
			t.Errorf("chunk %d is closed, splitting must open the ring", i)
		}
	}
}

func TestApplyClosedWayDuplicateSplitsConflict(t *testing.T) {
	mem := repo.NewMemory()
	addWayWithNodes(mem, testWay(20, 1, 2, 3, 4, 1))

	// Two requests for the same cut collapse into one, which cannot
	// divide the loop; the conflict must say so.
	_, err := NewAction(mem, repo.NewIDSequence()).Apply(context.Background(), Request{
		WayID:       20,
		FirstNodeID: 1,
		LastNodeID:  1,
		Splits: []SplitPosition{
			SplitAtPoint{Position: pt(2, 0)},
			SplitAtIndex{Index: 1},
		},
	})
	if !IsConflict(err) {
		t.Fatalf("expected a conflict, got %v", err)
	}
	if !strings.Contains(err.Error(), "closed way") {
		t.Errorf("conflict reads %q, want the closed-way wording", err)
	}
}

func TestApplyEmptySplitsIsNotAConflict(t *testing.T) {
	mem := repo.NewMemory()
	addWayWithNodes(mem, testWay(10, 1, 2, 3))

	_, err := NewAction(mem, repo.NewIDSequence()).Apply(context.Background(), Request{
		WayID:       10,
		FirstNodeID: 1,
		LastNodeID:  3,
	})
	if err == nil {
		t.Fatal("expected an error for a request without splits")
	}
	if IsConflict(err) {
		t.Errorf("an empty request is a caller bug, not a conflict: %v", err)
	}
}

// Re-applying a split against the state it produced conflicts: the
// surviving way no longer has the captured endpoints.
func TestApplyIsNotRepeatable(t *testing.T) {
	mem := repo.NewMemory()
	addWayWithNodes(mem, testWay(10, 1, 2, 3))

	req := Request{
		WayID:       10,
		FirstNodeID: 1,
		LastNodeID:  3,
		Splits:      []SplitPosition{SplitAtPoint{Position: pt(2, 0)}},
	}
	res, err := NewAction(mem, repo.NewIDSequence()).Apply(context.Background(), req)
	if err != nil {
		t.Fatalf("first Apply failed: %v", err)
	}

	after := repo.NewMemory()
	for _, w := range res.Ways {
		addWayWithNodes(after, w)
	}
	for _, n := range res.CreatedNodes {
		after.AddNode(n)
	}

	_, err = NewAction(after, repo.NewIDSequence()).Apply(context.Background(), req)
	if !IsConflict(err) {
		t.Fatalf("expected re-applying the split to conflict, got %v", err)
	}
}

func TestApplyRepairsRelations(t *testing.T) {
	mem := repo.NewMemory()
	addWayWithNodes(mem, testWay(10, 1, 2, 3, 4, 5))
	addWayWithNodes(mem, testWay(11, 5, 6))
	mem.AddRelation(&osm.Relation{
		ID:   200,
		Tags: osm.Tags{{Key: "type", Value: "restriction"}},
		Members: osm.Members{
			{Type: osm.TypeWay, Ref: 10, Role: "from"},
			{Type: osm.TypeNode, Ref: 5, Role: "via"},
			{Type: osm.TypeWay, Ref: 11, Role: "to"},
		},
	})

	res, err := NewAction(mem, repo.NewIDSequence()).Apply(context.Background(), Request{
		WayID:       10,
		FirstNodeID: 1,
		LastNodeID:  5,
		Splits:      []SplitPosition{SplitAtPoint{Position: pt(3, 0)}},
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if len(res.UpdatedRelations) != 1 {
		t.Fatalf("expected 1 updated relation, got %d", len(res.UpdatedRelations))
	}

	// The from member must be the single chunk ending at the via node.
	rel := res.UpdatedRelations[0]
	if len(rel.Members) != 3 {
		t.Fatalf("relation has %d members, want 3", len(rel.Members))
	}
	var viaChunk *osm.Way
	for _, c := range res.Ways {
		if c.Nodes[len(c.Nodes)-1].ID == 5 {
			viaChunk = c
		}
	}
	if viaChunk == nil {
		t.Fatal("no chunk ends at the via node")
	}
	from := rel.Members[0]
	if from.Role != "from" || from.Ref != int64(viaChunk.ID) {
		t.Errorf("from member = %+v, want role from ref %d", from, viaChunk.ID)
	}

	// The original relation in the snapshot is untouched.
	if orig, _ := mem.RelationsForWay(context.Background(), 10); len(orig) != 1 {
		t.Errorf("snapshot relation list changed, got %d entries", len(orig))
	} else if orig[0].Members[0].Ref != 10 {
		t.Errorf("snapshot relation was mutated: %+v", orig[0].Members[0])
	}
}
