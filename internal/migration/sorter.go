package migration

import "sort"

// Sort returns a new slice of scripts sorted ascending by Version.
// Discovery order of the underlying directory is never trusted.
func Sort(scripts []Script) []Script {
	sorted := make([]Script, len(scripts))
	copy(sorted, scripts)

	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Version < sorted[j].Version
	})

	return sorted
}
