package stepgen

import (
	"deckcore/pkg/domain"
)

// UnknownLiquid accounts for volume drawn from wells with untracked contents.
const UnknownLiquid = "__unknown__"

const volumeEpsilon = 1e-6

// splitVolumes removes up to volume from src proportionally across its
// liquids. It returns the removed part and the remainder; neither aliases src.
func splitVolumes(src domain.Volumes, volume float64) (taken, rest domain.Volumes) {
	taken = domain.Volumes{}
	rest = domain.Volumes{}
	total := src.Total()
	if total <= volumeEpsilon || volume <= 0 {
		for k, v := range src {
			rest[k] = v
		}
		return taken, rest
	}
	ratio := volume / total
	if ratio > 1 {
		ratio = 1
	}
	for liquid, v := range src {
		part := v * ratio
		if part > volumeEpsilon {
			taken[liquid] = part
		}
		if remaining := v - part; remaining > volumeEpsilon {
			rest[liquid] = remaining
		}
	}
	return taken, rest
}

// mergeVolumes returns a + b without aliasing either.
func mergeVolumes(a, b domain.Volumes) domain.Volumes {
	out := make(domain.Volumes, len(a)+len(b))
	for k, v := range a {
		out[k] += v
	}
	for k, v := range b {
		out[k] += v
	}
	return out
}

// wellsForChannels returns, per channel, the well addressed when the primary
// nozzle targets well. Reservoir-style labware (single-well columns) puts
// every channel in the same well. A nil result means the pipette cannot
// address that well.
func wellsForChannels(def domain.LabwareDefinition, well string, channels int) []string {
	if !def.HasWell(well) {
		return nil
	}
	switch {
	case channels <= 1:
		return []string{well}
	case channels == 8:
		column := def.ColumnOf(well)
		switch {
		case len(column) == 1:
			return repeatWell(well, 8)
		case len(column) == 8 && column[0] == well:
			return append([]string(nil), column...)
		default:
			return nil
		}
	case channels == 96:
		all := def.AllWells()
		switch {
		case len(all) == 1:
			return repeatWell(well, 96)
		case len(all) == 96 && all[0] == well:
			return all
		default:
			return nil
		}
	default:
		return nil
	}
}

func repeatWell(well string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = well
	}
	return out
}
