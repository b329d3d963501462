package catalog

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"deckcore/pkg/domain"
)

var moduleTypes = map[string]domain.ModuleType{
	"temperatureModuleV1":  domain.ModuleTypeTemperature,
	"temperatureModuleV2":  domain.ModuleTypeTemperature,
	"magneticModuleV1":     domain.ModuleTypeMagnetic,
	"magneticModuleV2":     domain.ModuleTypeMagnetic,
	"thermocyclerModuleV1": domain.ModuleTypeThermocycler,
	"thermocyclerModuleV2": domain.ModuleTypeThermocycler,
	"heaterShakerModuleV1": domain.ModuleTypeHeaterShaker,
}

// ModuleTypeForModel returns the module family of a hardware model.
func ModuleTypeForModel(model string) (domain.ModuleType, bool) {
	t, ok := moduleTypes[model]
	return t, ok
}

// PipetteLoad declares a pipette used by a protocol.
type PipetteLoad struct {
	ID          string
	Name        string
	TiprackURIs []string
}

// LabwareLoad declares a labware used by a protocol.
type LabwareLoad struct {
	ID            string
	DefinitionURI string
}

// ModuleLoad declares a hardware module used by a protocol.
type ModuleLoad struct {
	ID    string
	Model string
}

// Loads is the set of declarations an invariant context is built from.
type Loads struct {
	Pipettes []PipetteLoad
	Labware  []LabwareLoad
	Modules  []ModuleLoad
}

// Build resolves every declaration and returns the protocol's invariant context.
func (c *Catalog) Build(ctx context.Context, loads Loads) (*domain.InvariantContext, error) {
	seen := make(map[string]string)
	claim := func(kind, id string) error {
		if id == "" {
			return fmt.Errorf("%s declared without id", kind)
		}
		if prev, dup := seen[id]; dup {
			return fmt.Errorf("id %q used by both %s and %s", id, prev, kind)
		}
		seen[id] = kind
		return nil
	}

	pipettes := make([]domain.PipetteEntity, 0, len(loads.Pipettes))
	for _, p := range loads.Pipettes {
		if err := claim("pipette", p.ID); err != nil {
			return nil, err
		}
		spec, err := c.Pipette(ctx, p.Name)
		if err != nil {
			return nil, err
		}
		pipettes = append(pipettes, domain.PipetteEntity{ID: p.ID, Name: p.Name, Spec: spec, TiprackURIs: p.TiprackURIs})
	}

	labware := make([]domain.LabwareEntity, 0, len(loads.Labware))
	for _, l := range loads.Labware {
		if err := claim("labware", l.ID); err != nil {
			return nil, err
		}
		def, err := c.Labware(ctx, l.DefinitionURI)
		if err != nil {
			return nil, err
		}
		labware = append(labware, domain.LabwareEntity{ID: l.ID, DefinitionURI: l.DefinitionURI, Definition: def})
	}

	modules := make([]domain.ModuleEntity, 0, len(loads.Modules))
	for _, m := range loads.Modules {
		if err := claim("module", m.ID); err != nil {
			return nil, err
		}
		t, ok := ModuleTypeForModel(m.Model)
		if !ok {
			return nil, fmt.Errorf("module %s: unknown model %q", m.ID, m.Model)
		}
		modules = append(modules, domain.ModuleEntity{ID: m.ID, Model: m.Model, Type: t})
	}

	c.log.Info("invariant context built",
		zap.Int("pipettes", len(pipettes)),
		zap.Int("labware", len(labware)),
		zap.Int("modules", len(modules)),
	)
	return domain.NewInvariantContext(pipettes, labware, modules), nil
}
