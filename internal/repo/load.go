package repo

import (
	"encoding/xml"
	"fmt"
	"os"

	"github.com/paulmach/osm"
)

// ReadOSMFile parses an .osm XML snapshot file.
func ReadOSMFile(path string) (*osm.OSM, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	var o osm.OSM
	if err := xml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("parsing snapshot %s: %w", path, err)
	}
	return &o, nil
}

// LoadOSMFile reads an .osm XML snapshot into a Memory repository.
func LoadOSMFile(path string) (*Memory, error) {
	o, err := ReadOSMFile(path)
	if err != nil {
		return nil, err
	}
	m := NewMemory()
	m.LoadOSM(o)
	return m, nil
}
