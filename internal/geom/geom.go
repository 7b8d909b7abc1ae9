// Package geom holds the small amount of geometry and list math the split
// engine needs: point lookups on way nodes, point-to-segment distance and
// partitioning an ordered list at boundary indices.
package geom

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/osm"
)

// Point returns the node's position as an orb point (lon, lat).
func Point(n *osm.Node) orb.Point {
	return orb.Point{n.Lon, n.Lat}
}

// Distance returns the distance between two positions in meters.
func Distance(a, b orb.Point) float64 {
	return geo.Distance(a, b)
}

// DistanceToSegment returns the distance from p to the segment a-b.
// Planar distance is fine here: it is only used to rank candidate
// segments that share endpoint positions, never as a length.
func DistanceToSegment(p, a, b orb.Point) float64 {
	return planar.DistanceFrom(orb.LineString{a, b}, p)
}

// SplitAt partitions list at the given ascending boundary indices.
// Boundaries are inclusive on both sides: each part begins with the
// element the previous part ended on, standard split-at-index semantics
// for way geometry. Returned slices are copies.
func SplitAt[T any](list []T, indices []int) [][]T {
	parts := make([][]T, 0, len(indices)+1)
	prev := 0
	for _, i := range indices {
		part := make([]T, i-prev+1)
		copy(part, list[prev:i+1])
		parts = append(parts, part)
		prev = i
	}
	tail := make([]T, len(list)-prev)
	copy(tail, list[prev:])
	parts = append(parts, tail)
	return parts
}
