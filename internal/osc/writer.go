// Package osc encodes computed edits as osmChange documents, the diff
// format OSM tooling exchanges.
package osc

import (
	"encoding/xml"
	"fmt"
	"io"

	"github.com/paulmach/osm"

	"github.com/wegman-software/osmsplit/internal/split"
)

// Write encodes the given update sets as one osmChange document. New
// elements (negative ids) go into the create block, everything else into
// modify.
func Write(w io.Writer, generator string, updates ...*split.ElementUpdates) error {
	create := &osm.OSM{}
	modify := &osm.OSM{}

	for _, u := range updates {
		if u == nil {
			continue
		}
		for _, n := range u.CreatedNodes {
			create.Nodes = append(create.Nodes, n)
		}
		for _, way := range u.Ways {
			if way.ID < 0 {
				create.Ways = append(create.Ways, way)
			} else {
				modify.Ways = append(modify.Ways, way)
			}
		}
		for _, rel := range u.UpdatedRelations {
			modify.Relations = append(modify.Relations, rel)
		}
	}

	change := &osm.Change{
		Version:   "0.6",
		Generator: generator,
	}
	if len(create.Nodes)+len(create.Ways) > 0 {
		change.Create = create
	}
	if len(modify.Ways)+len(modify.Relations) > 0 {
		change.Modify = modify
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(change); err != nil {
		return fmt.Errorf("encoding osmChange: %w", err)
	}
	if err := enc.Flush(); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// Read decodes an osmChange document, the inverse of Write.
func Read(r io.Reader) (*osm.Change, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var change osm.Change
	if err := xml.Unmarshal(data, &change); err != nil {
		return nil, fmt.Errorf("decoding osmChange: %w", err)
	}
	return &change, nil
}
