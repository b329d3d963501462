package protocol

import (
	"context"
	"fmt"

	"deckcore/internal/catalog"
	"deckcore/internal/stepgen"
	"deckcore/pkg/domain"
)

// Protocol is a loaded protocol ready for simulation.
type Protocol struct {
	Name      string
	Steps     []stepgen.Step
	Invariant *domain.InvariantContext
	Initial   domain.RobotState
}

// Loads returns the catalog declarations of the document.
func (d Document) Loads() catalog.Loads {
	var loads catalog.Loads
	for _, p := range d.Pipettes {
		loads.Pipettes = append(loads.Pipettes, catalog.PipetteLoad{ID: p.ID, Name: p.Name, TiprackURIs: p.Tipracks})
	}
	for _, l := range d.Labware {
		loads.Labware = append(loads.Labware, catalog.LabwareLoad{ID: l.ID, DefinitionURI: l.URI})
	}
	for _, m := range d.Modules {
		loads.Modules = append(loads.Modules, catalog.ModuleLoad{ID: m.ID, Model: m.Model})
	}
	return loads
}

// Load resolves definitions through cat and builds the initial robot state.
func Load(ctx context.Context, doc Document, cat *catalog.Catalog) (Protocol, error) {
	steps, err := StepsFromDocument(doc)
	if err != nil {
		return Protocol{}, err
	}
	inv, err := cat.Build(ctx, doc.Loads())
	if err != nil {
		return Protocol{}, err
	}
	opts, err := initialStateOptions(doc, inv)
	if err != nil {
		return Protocol{}, err
	}
	return Protocol{
		Name:      doc.Metadata.Name,
		Steps:     steps,
		Invariant: inv,
		Initial:   domain.MakeInitialRobotState(inv, opts),
	}, nil
}

// LoadFile parses and loads the protocol at path.
func LoadFile(ctx context.Context, path string, cat *catalog.Catalog) (Protocol, error) {
	doc, err := ParseFile(path)
	if err != nil {
		return Protocol{}, err
	}
	return Load(ctx, doc, cat)
}

func initialStateOptions(doc Document, inv *domain.InvariantContext) (domain.InitialRobotStateOptions, error) {
	opts := domain.InitialRobotStateOptions{
		PipetteMounts: make(map[string]string, len(doc.Pipettes)),
		LabwareSlots:  make(map[string]string, len(doc.Labware)),
		ModuleSlots:   make(map[string]string, len(doc.Modules)),
		WellContents:  make(map[string]map[string]domain.Volumes),
	}
	mounts := make(map[string]string)
	for _, p := range doc.Pipettes {
		if prev, taken := mounts[p.Mount]; taken && p.Mount != "" {
			return opts, fmt.Errorf("pipettes %s and %s share mount %s", prev, p.ID, p.Mount)
		}
		mounts[p.Mount] = p.ID
		opts.PipetteMounts[p.ID] = p.Mount
	}
	for _, m := range doc.Modules {
		opts.ModuleSlots[m.ID] = m.Location
	}
	for _, l := range doc.Labware {
		if l.Location == "" {
			return opts, fmt.Errorf("labware %s has no location", l.ID)
		}
		opts.LabwareSlots[l.ID] = l.Location
	}
	for i, liq := range doc.Liquids {
		lw, ok := inv.Labware(liq.Labware)
		if !ok {
			return opts, fmt.Errorf("liquids[%d]: unknown labware %q", i, liq.Labware)
		}
		if liq.Volume <= 0 {
			return opts, fmt.Errorf("liquids[%d]: volume must be positive", i)
		}
		wells := opts.WellContents[liq.Labware]
		if wells == nil {
			wells = make(map[string]domain.Volumes)
			opts.WellContents[liq.Labware] = wells
		}
		for _, w := range liq.Wells {
			if !lw.Definition.HasWell(w) {
				return opts, fmt.Errorf("liquids[%d]: labware %s has no well %s", i, liq.Labware, w)
			}
			vols := wells[w]
			if vols == nil {
				vols = make(domain.Volumes)
				wells[w] = vols
			}
			vols[liq.Liquid] += liq.Volume
		}
	}
	return opts, nil
}
