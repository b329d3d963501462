// Package domain defines the value types shared by the command creators, the
// robot state simulator and the labware offset tooling: the invariant
// hardware catalog, the simulated robot state, robot commands and labware
// offsets.
package domain

import "sort"

// PipetteSpec describes the static capabilities of a pipette model.
type PipetteSpec struct {
	Name      string  `json:"name" yaml:"name"`
	Channels  int     `json:"channels" yaml:"channels"`
	MinVolume float64 `json:"minVolume" yaml:"minVolume"`
	MaxVolume float64 `json:"maxVolume" yaml:"maxVolume"`
}

// WellDefinition captures the geometry-independent data of a single well.
type WellDefinition struct {
	TotalLiquidVolume float64 `json:"totalLiquidVolume"`
}

// LabwareDefinition is the subset of a labware definition the simulator needs.
type LabwareDefinition struct {
	URI         string                    `json:"uri"`
	DisplayName string                    `json:"displayName"`
	IsTiprack   bool                      `json:"isTiprack"`
	TipVolume   float64                   `json:"tipVolume,omitempty"`
	Ordering    [][]string                `json:"ordering"`
	Wells       map[string]WellDefinition `json:"wells"`
}

// HasWell reports whether the definition contains the named well.
func (d LabwareDefinition) HasWell(name string) bool {
	_, ok := d.Wells[name]
	return ok
}

// AllWells returns well names in column-major order.
func (d LabwareDefinition) AllWells() []string {
	var out []string
	for _, column := range d.Ordering {
		out = append(out, column...)
	}
	return out
}

// ColumnOf returns the column containing the named well, or nil.
func (d LabwareDefinition) ColumnOf(well string) []string {
	for _, column := range d.Ordering {
		for _, name := range column {
			if name == well {
				return column
			}
		}
	}
	return nil
}

// ModuleType identifies the family of a hardware module.
type ModuleType string

// Supported module families.
const (
	ModuleTypeTemperature  ModuleType = "temperatureModuleType"
	ModuleTypeMagnetic     ModuleType = "magneticModuleType"
	ModuleTypeThermocycler ModuleType = "thermocyclerModuleType"
	ModuleTypeHeaterShaker ModuleType = "heaterShakerModuleType"
)

// PipetteEntity binds a protocol pipette id to its spec.
type PipetteEntity struct {
	ID   string
	Name string
	Spec PipetteSpec
	// TiprackURIs lists the tiprack definitions this pipette may draw from.
	TiprackURIs []string
}

// LabwareEntity binds a protocol labware id to its definition.
type LabwareEntity struct {
	ID            string
	DefinitionURI string
	Definition    LabwareDefinition
}

// ModuleEntity binds a protocol module id to its model and family.
type ModuleEntity struct {
	ID    string
	Model string
	Type  ModuleType
}

// InvariantContext is the read-only hardware and labware catalog of a
// protocol. It is built once when a protocol loads and never mutated.
type InvariantContext struct {
	// pipetteOrder is the declaration order of pipettes.
	pipetteOrder []string
	pipettes     map[string]PipetteEntity
	labware  map[string]LabwareEntity
	modules  map[string]ModuleEntity
}

// NewInvariantContext copies the supplied entities into a new context.
func NewInvariantContext(pipettes []PipetteEntity, labware []LabwareEntity, modules []ModuleEntity) *InvariantContext {
	inv := &InvariantContext{
		pipettes: make(map[string]PipetteEntity, len(pipettes)),
		labware:  make(map[string]LabwareEntity, len(labware)),
		modules:  make(map[string]ModuleEntity, len(modules)),
	}
	for _, p := range pipettes {
		p.TiprackURIs = append([]string(nil), p.TiprackURIs...)
		if _, dup := inv.pipettes[p.ID]; !dup {
			inv.pipetteOrder = append(inv.pipetteOrder, p.ID)
		}
		inv.pipettes[p.ID] = p
	}
	for _, l := range labware {
		inv.labware[l.ID] = l
	}
	for _, m := range modules {
		inv.modules[m.ID] = m
	}
	return inv
}

// Pipette looks up a pipette entity.
func (c *InvariantContext) Pipette(id string) (PipetteEntity, bool) {
	p, ok := c.pipettes[id]
	return p, ok
}

// Labware looks up a labware entity.
func (c *InvariantContext) Labware(id string) (LabwareEntity, bool) {
	l, ok := c.labware[id]
	return l, ok
}

// Module looks up a module entity.
func (c *InvariantContext) Module(id string) (ModuleEntity, bool) {
	m, ok := c.modules[id]
	return m, ok
}

// PipetteIDs returns pipette ids in ascending order.
func (c *InvariantContext) PipetteIDs() []string {
	return sortedKeys(c.pipettes)
}

// Pipettes returns pipette entities in the order they were declared.
func (c *InvariantContext) Pipettes() []PipetteEntity {
	out := make([]PipetteEntity, 0, len(c.pipetteOrder))
	for _, id := range c.pipetteOrder {
		p := c.pipettes[id]
		p.TiprackURIs = append([]string(nil), p.TiprackURIs...)
		out = append(out, p)
	}
	return out
}

// LabwareIDs returns labware ids in ascending order.
func (c *InvariantContext) LabwareIDs() []string {
	return sortedKeys(c.labware)
}

// ModuleIDs returns module ids in ascending order.
func (c *InvariantContext) ModuleIDs() []string {
	return sortedKeys(c.modules)
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
