// Package requestfile reads split requests from YAML documents:
//
//	- way: 42
//	  first_node: 1
//	  last_node: 9
//	  splits:
//	    - node: {lat: 51.01, lon: 7.02}
//	    - segment:
//	        start: {lat: 51.01, lon: 7.02}
//	        end: {lat: 51.02, lon: 7.03}
//	        at: {lat: 51.015, lon: 7.025}
//	    - index: 3
//
// first_node/last_node are the endpoints captured when the split was
// proposed; when omitted they are captured from the snapshot the request
// is applied against.
package requestfile

import (
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"gopkg.in/yaml.v3"

	"github.com/wegman-software/osmsplit/internal/split"
)

type point struct {
	Lat float64 `yaml:"lat"`
	Lon float64 `yaml:"lon"`
}

func (p point) orb() orb.Point {
	return orb.Point{p.Lon, p.Lat}
}

type segment struct {
	Start point `yaml:"start"`
	End   point `yaml:"end"`
	At    point `yaml:"at"`
}

type splitDoc struct {
	Node    *point   `yaml:"node,omitempty"`
	Segment *segment `yaml:"segment,omitempty"`
	Index   *int     `yaml:"index,omitempty"`
}

type requestDoc struct {
	Way       int64      `yaml:"way"`
	FirstNode int64      `yaml:"first_node,omitempty"`
	LastNode  int64      `yaml:"last_node,omitempty"`
	Splits    []splitDoc `yaml:"splits"`
}

// Load reads a request file.
func Load(path string) ([]split.Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read request file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML request document.
func Parse(data []byte) ([]split.Request, error) {
	var docs []requestDoc
	if err := yaml.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("failed to parse request YAML: %w", err)
	}

	reqs := make([]split.Request, 0, len(docs))
	for i, doc := range docs {
		req, err := doc.request()
		if err != nil {
			return nil, fmt.Errorf("request %d: %w", i, err)
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

func (doc requestDoc) request() (split.Request, error) {
	if doc.Way == 0 {
		return split.Request{}, fmt.Errorf("way id is required")
	}
	if len(doc.Splits) == 0 {
		return split.Request{}, fmt.Errorf("at least one split is required")
	}

	req := split.Request{
		WayID:       osm.WayID(doc.Way),
		FirstNodeID: osm.NodeID(doc.FirstNode),
		LastNodeID:  osm.NodeID(doc.LastNode),
		Splits:      make([]split.SplitPosition, 0, len(doc.Splits)),
	}
	for j, s := range doc.Splits {
		pos, err := s.position()
		if err != nil {
			return split.Request{}, fmt.Errorf("split %d: %w", j, err)
		}
		req.Splits = append(req.Splits, pos)
	}
	return req, nil
}

func (s splitDoc) position() (split.SplitPosition, error) {
	set := 0
	for _, ok := range []bool{s.Node != nil, s.Segment != nil, s.Index != nil} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return nil, fmt.Errorf("exactly one of node, segment or index must be set")
	}

	switch {
	case s.Node != nil:
		return split.SplitAtPoint{Position: s.Node.orb()}, nil
	case s.Segment != nil:
		return split.SplitAtLinePosition{
			Start:    s.Segment.Start.orb(),
			End:      s.Segment.End.orb(),
			Position: s.Segment.At.orb(),
		}, nil
	default:
		return split.SplitAtIndex{Index: *s.Index}, nil
	}
}
