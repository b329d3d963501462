package lpc

import (
	"deckcore/pkg/domain"
)

// WorkingOffset holds the positions captured for one labware location while
// a check is in progress. FinalPosition stays nil until the user confirms.
type WorkingOffset struct {
	InitialPosition *domain.Vector `json:"initialPosition,omitempty"`
	FinalPosition   *domain.Vector `json:"finalPosition,omitempty"`
}

// Delta is final minus initial; ok is false until both positions are set.
func (w *WorkingOffset) Delta() (domain.Vector, bool) {
	if w == nil || w.InitialPosition == nil || w.FinalPosition == nil {
		return domain.Vector{}, false
	}
	return w.FinalPosition.Sub(*w.InitialPosition), true
}

func (w *WorkingOffset) clone() *WorkingOffset {
	if w == nil {
		return nil
	}
	out := &WorkingOffset{}
	if w.InitialPosition != nil {
		v := *w.InitialPosition
		out.InitialPosition = &v
	}
	if w.FinalPosition != nil {
		v := *w.FinalPosition
		out.FinalPosition = &v
	}
	return out
}

// OffsetDetails pairs a location with its persisted and working offsets.
type OffsetDetails struct {
	LocationSequence domain.LocationSequence `json:"locationSequence"`
	ExistingOffset   *domain.LabwareOffset   `json:"existingOffset,omitempty"`
	WorkingOffset    *WorkingOffset          `json:"workingOffset,omitempty"`
}

func (d OffsetDetails) clone() OffsetDetails {
	out := OffsetDetails{
		LocationSequence: d.LocationSequence.Clone(),
		WorkingOffset:    d.WorkingOffset.clone(),
	}
	if d.ExistingOffset != nil {
		existing := d.ExistingOffset.Clone()
		out.ExistingOffset = &existing
	}
	return out
}

// LabwareDetails groups the offsets of one labware definition: the default
// offset that applies at any location, and one entry per concrete location
// the protocol uses.
type LabwareDetails struct {
	DefinitionURI           string          `json:"definitionUri"`
	DisplayName             string          `json:"displayName,omitempty"`
	DefaultOffset           OffsetDetails   `json:"defaultOffset"`
	LocationSpecificOffsets []OffsetDetails `json:"locationSpecificOffsets"`
}

func (d LabwareDetails) clone() LabwareDetails {
	out := d
	out.DefaultOffset = d.DefaultOffset.clone()
	out.LocationSpecificOffsets = make([]OffsetDetails, len(d.LocationSpecificOffsets))
	for i, o := range d.LocationSpecificOffsets {
		out.LocationSpecificOffsets[i] = o.clone()
	}
	return out
}

// find returns the details for loc; AnyLocation addresses the default offset.
func (d *LabwareDetails) find(loc domain.LocationSequence) *OffsetDetails {
	if loc.Any {
		return &d.DefaultOffset
	}
	for i := range d.LocationSpecificOffsets {
		if d.LocationSpecificOffsets[i].LocationSequence.Equal(loc) {
			return &d.LocationSpecificOffsets[i]
		}
	}
	return nil
}

// LabwareMap indexes labware details by definition URI.
type LabwareMap map[string]LabwareDetails

// Clone returns a deep copy.
func (m LabwareMap) Clone() LabwareMap {
	out := make(LabwareMap, len(m))
	for uri, details := range m {
		out[uri] = details.clone()
	}
	return out
}

// ClearAllWorkingOffsets returns a copy of m in which every default and
// location-specific working offset is nil. Persisted offsets are kept.
func ClearAllWorkingOffsets(m LabwareMap) LabwareMap {
	out := m.Clone()
	for uri, details := range out {
		details.DefaultOffset.WorkingOffset = nil
		for i := range details.LocationSpecificOffsets {
			details.LocationSpecificOffsets[i].WorkingOffset = nil
		}
		out[uri] = details
	}
	return out
}
