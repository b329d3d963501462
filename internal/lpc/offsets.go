// Package lpc implements labware position check support: ordering and
// deduplicating persisted labware offsets, picking the pipette that drives a
// calibration, sequencing the calibration workflow and tracking the working
// offsets captured while it runs.
package lpc

import (
	"sort"

	"deckcore/pkg/domain"
)

// SortUniqueOffsets returns the offsets newest first, keeping only the first
// (newest) offset per definition URI and location sequence. Offsets with equal
// CreatedAt keep their input order. The input slice is not modified and the
// returned offsets share no memory with it.
func SortUniqueOffsets(offsets []domain.LabwareOffset) []domain.LabwareOffset {
	sorted := make([]domain.LabwareOffset, len(offsets))
	copy(sorted, offsets)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})
	out := make([]domain.LabwareOffset, 0, len(sorted))
	for _, candidate := range sorted {
		shadowed := false
		for _, kept := range out {
			if kept.SameTarget(candidate) {
				shadowed = true
				break
			}
		}
		if !shadowed {
			out = append(out, candidate.Clone())
		}
	}
	return out
}

// FilterByDefinition returns copies of the offsets whose definition URI
// equals uri. An empty uri keeps everything.
func FilterByDefinition(offsets []domain.LabwareOffset, uri string) []domain.LabwareOffset {
	out := make([]domain.LabwareOffset, 0, len(offsets))
	for _, o := range offsets {
		if uri == "" || o.DefinitionURI == uri {
			out = append(out, o.Clone())
		}
	}
	return out
}
