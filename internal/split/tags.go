package split

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/paulmach/osm"
)

// covers capacity, bicycle_parking:capacity, parking:lane:both:capacity,
// parking:lane:right:capacity:disabled, ...
var capacityKey = regexp.MustCompile(`^(.*:)?capacity(:.*)?$`)

// TagCleanupRule decides whether a tag is still valid on a piece of a
// split way. Deployments can add rules on top of the built-in ones.
type TagCleanupRule interface {
	RemoveOnSplit(key, value string) bool
}

// removeOnSplit implements the built-in cleanup: tags that count or
// measure the whole feature become wrong on each piece once the way is
// cut.
func removeOnSplit(key, value string) bool {
	switch key {
	case "step_count", "seats":
		return true
	case "steps":
		_, err := strconv.Atoi(value)
		return err == nil
	case "incline":
		return strings.ContainsAny(value, "0123456789")
	}
	return capacityKey.MatchString(key)
}

// cleanTags returns the way's tags with whole-feature attributes
// stripped, ready to be assigned to every chunk.
func cleanTags(tags osm.Tags, extra []TagCleanupRule) osm.Tags {
	out := make(osm.Tags, 0, len(tags))
	for _, t := range tags {
		if removeOnSplit(t.Key, t.Value) {
			continue
		}
		drop := false
		for _, r := range extra {
			if r.RemoveOnSplit(t.Key, t.Value) {
				drop = true
				break
			}
		}
		if !drop {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
