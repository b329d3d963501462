package lpc

import (
	"deckcore/pkg/domain"
)

// PipetteChannels returns the channel count of a pipette, taken from the
// static model table and falling back to the entity's own spec for models the
// table does not know.
func PipetteChannels(p domain.PipetteEntity) int {
	if spec, ok := domain.BuiltinPipetteSpec(p.Name); ok {
		return spec.Channels
	}
	return p.Spec.Channels
}

// SelectActivePipette picks the pipette with the most channels to drive a
// position check. On ties the earliest pipette wins. With no pipettes it
// returns ("", false) and logs a warning.
func SelectActivePipette(pipettes []domain.PipetteEntity, log Logger) (string, bool) {
	if len(pipettes) == 0 {
		orNoop(log).Warn("no pipettes loaded; cannot select an active pipette")
		return "", false
	}
	best := pipettes[0]
	bestChannels := PipetteChannels(best)
	for _, p := range pipettes[1:] {
		if ch := PipetteChannels(p); ch > bestChannels {
			best, bestChannels = p, ch
		}
	}
	return best.ID, true
}
