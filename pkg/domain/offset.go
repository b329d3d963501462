package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Vector is a calibration delta in millimeters.
type Vector struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// Add returns v + o.
func (v Vector) Add(o Vector) Vector { return Vector{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z} }

// Sub returns v - o.
func (v Vector) Sub(o Vector) Vector { return Vector{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z} }

// LocationKind identifies one component of a stacked labware location.
type LocationKind string

// Location component kinds.
const (
	LocationOnModule          LocationKind = "onModule"
	LocationOnLabware         LocationKind = "onLabware"
	LocationOnAddressableArea LocationKind = "onAddressableArea"
)

// LocationComponent is one layer of the stack a labware sits on.
type LocationComponent struct {
	Kind                LocationKind `json:"kind" yaml:"kind"`
	ModuleModel         string       `json:"moduleModel,omitempty" yaml:"moduleModel,omitempty"`
	LabwareURI          string       `json:"labwareUri,omitempty" yaml:"labwareUri,omitempty"`
	AddressableAreaName string       `json:"addressableAreaName,omitempty" yaml:"addressableAreaName,omitempty"`
}

// LocationSequence is either the "any location" sentinel or an ordered list
// of stacking components from the labware down to the deck.
type LocationSequence struct {
	Any        bool
	Components []LocationComponent
}

// AnyLocation is the sentinel sequence matching every location.
var AnyLocation = LocationSequence{Any: true}

// Sequence builds a concrete location sequence.
func Sequence(components ...LocationComponent) LocationSequence {
	return LocationSequence{Components: append([]LocationComponent(nil), components...)}
}

// Equal compares two sequences component by component, order-sensitive.
func (s LocationSequence) Equal(o LocationSequence) bool {
	if s.Any || o.Any {
		return s.Any == o.Any
	}
	if len(s.Components) != len(o.Components) {
		return false
	}
	for i := range s.Components {
		if s.Components[i] != o.Components[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy that shares no backing array.
func (s LocationSequence) Clone() LocationSequence {
	return LocationSequence{Any: s.Any, Components: append([]LocationComponent(nil), s.Components...)}
}

const anyLocationSentinel = "anyLocation"

// MarshalJSON encodes the sentinel as the string "anyLocation".
func (s LocationSequence) MarshalJSON() ([]byte, error) {
	if s.Any {
		return json.Marshal(anyLocationSentinel)
	}
	components := s.Components
	if components == nil {
		components = []LocationComponent{}
	}
	return json.Marshal(components)
}

// UnmarshalJSON accepts "anyLocation" or an array of components.
func (s *LocationSequence) UnmarshalJSON(data []byte) error {
	var sentinel string
	if err := json.Unmarshal(data, &sentinel); err == nil {
		if sentinel != anyLocationSentinel {
			return fmt.Errorf("unknown location sequence sentinel %q", sentinel)
		}
		*s = AnyLocation
		return nil
	}
	var components []LocationComponent
	if err := json.Unmarshal(data, &components); err != nil {
		return fmt.Errorf("decode location sequence: %w", err)
	}
	*s = LocationSequence{Components: components}
	return nil
}

// LabwareOffset is a persisted calibration correction. Offsets are never
// edited; a newer offset for the same definition and location shadows older
// ones.
type LabwareOffset struct {
	ID               string           `json:"id"`
	CreatedAt        time.Time        `json:"createdAt"`
	DefinitionURI    string           `json:"definitionUri"`
	LocationSequence LocationSequence `json:"locationSequence"`
	Vector           Vector           `json:"vector"`
}

// Clone returns a deep copy.
func (o LabwareOffset) Clone() LabwareOffset {
	cp := o
	cp.LocationSequence = o.LocationSequence.Clone()
	return cp
}

// SameTarget reports whether two offsets share (definitionUri, locationSequence).
func (o LabwareOffset) SameTarget(other LabwareOffset) bool {
	return o.DefinitionURI == other.DefinitionURI && o.LocationSequence.Equal(other.LocationSequence)
}
