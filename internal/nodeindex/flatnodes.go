// Package nodeindex stores node coordinates in a flat memory-mapped file,
// giving O(1) lookups for nodes whose coordinates are kept out of the
// database. The file is sparse: offset = nodeID * 8, lat and lon as
// fixed-point int32 (degrees * 1e7).
package nodeindex

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
)

const (
	entrySize = 8
	// DefaultMaxNodeID bounds the address space of a new index file.
	// 10 billion ids cover the OSM node id range with headroom; on a
	// sparse file only written entries use disk.
	DefaultMaxNodeID = 10_000_000_000
)

// FlatNodes is a memory-mapped node coordinate index.
type FlatNodes struct {
	file     *os.File
	data     mmap.MMap
	size     int64
	writable bool
}

// Create creates a new index for writing, sized for ids below maxNodeID.
func Create(path string, maxNodeID int64) (*FlatNodes, error) {
	size := maxNodeID * entrySize

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("creating flat nodes file: %w", err)
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, fmt.Errorf("sizing flat nodes file: %w", err)
	}

	data, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mapping flat nodes file: %w", err)
	}

	return &FlatNodes{file: f, data: data, size: size, writable: true}, nil
}

// Open opens an existing index read-only.
func Open(path string) (*FlatNodes, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening flat nodes file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat flat nodes file: %w", err)
	}

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mapping flat nodes file: %w", err)
	}

	return &FlatNodes{file: f, data: data, size: info.Size()}, nil
}

// Put stores a node's coordinates. Out-of-range ids are ignored.
func (fn *FlatNodes) Put(nodeID int64, lat, lon float64) {
	offset := nodeID * entrySize
	if nodeID < 0 || offset+entrySize > fn.size {
		return
	}
	binary.LittleEndian.PutUint32(fn.data[offset:], uint32(int32(lat*1e7)))
	binary.LittleEndian.PutUint32(fn.data[offset+4:], uint32(int32(lon*1e7)))
}

// Get retrieves a node's coordinates. The zero entry doubles as "absent";
// the one node at exactly (0, 0) is not representable, which is fine for
// real map data.
func (fn *FlatNodes) Get(nodeID int64) (lat, lon float64, ok bool) {
	offset := nodeID * entrySize
	if nodeID < 0 || offset+entrySize > fn.size {
		return 0, 0, false
	}

	latInt := int32(binary.LittleEndian.Uint32(fn.data[offset:]))
	lonInt := int32(binary.LittleEndian.Uint32(fn.data[offset+4:]))
	if latInt == 0 && lonInt == 0 {
		return 0, 0, false
	}
	return float64(latInt) / 1e7, float64(lonInt) / 1e7, true
}

// Sync flushes written entries to disk.
func (fn *FlatNodes) Sync() error {
	if !fn.writable {
		return nil
	}
	return fn.data.Flush()
}

// Close unmaps and closes the index.
func (fn *FlatNodes) Close() error {
	if err := fn.data.Unmap(); err != nil {
		fn.file.Close()
		return err
	}
	return fn.file.Close()
}
