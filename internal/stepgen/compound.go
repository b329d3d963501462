package stepgen

import (
	"math"

	"deckcore/pkg/domain"
)

// ChangeTipPolicy controls when compound steps replace the tip.
type ChangeTipPolicy string

// Tip change policies.
const (
	ChangeTipAlways    ChangeTipPolicy = "always"
	ChangeTipOnce      ChangeTipPolicy = "once"
	ChangeTipNever     ChangeTipPolicy = "never"
	ChangeTipPerSource ChangeTipPolicy = "perSource"
	ChangeTipPerDest   ChangeTipPolicy = "perDest"
)

// MixOptions describes a mix performed inside another step.
type MixOptions struct {
	Volume float64
	Times  int
}

// TransferArgs describes a well-to-well liquid transfer.
type TransferArgs struct {
	PipetteID        string
	TiprackIDs       []string
	SourceLabwareID  string
	SourceWells      []string
	DestLabwareID    string
	DestWells        []string
	Volume           float64
	ChangeTip        ChangeTipPolicy
	AspirateFlowRate float64
	DispenseFlowRate float64
	MixBefore        *MixOptions
	MixAfter         *MixOptions
	TouchTip         bool
	Blowout          bool
	DropLabwareID    string
}

type wellPair struct {
	src, dst string
}

// pairWells zips sources and destinations. A single source or destination is
// broadcast against the other list; otherwise pairs stop at the shorter list.
func pairWells(src, dst []string) []wellPair {
	switch {
	case len(src) == 1 && len(dst) > 1:
		out := make([]wellPair, len(dst))
		for i, d := range dst {
			out[i] = wellPair{src: src[0], dst: d}
		}
		return out
	case len(dst) == 1 && len(src) > 1:
		out := make([]wellPair, len(src))
		for i, s := range src {
			out[i] = wellPair{src: s, dst: dst[0]}
		}
		return out
	}
	n := min(len(src), len(dst))
	out := make([]wellPair, n)
	for i := 0; i < n; i++ {
		out[i] = wellPair{src: src[i], dst: dst[i]}
	}
	return out
}

// splitVolume divides volume into equal chunks no larger than maxChunk.
func splitVolume(volume, maxChunk float64) (chunks int, perChunk float64) {
	if maxChunk <= 0 {
		return 1, volume
	}
	chunks = int(math.Ceil(volume/maxChunk - volumeEpsilon))
	if chunks < 1 {
		chunks = 1
	}
	return chunks, volume / float64(chunks)
}

// mixCreators returns Times aspirate/dispense pairs; Times <= 0 yields none.
func mixCreators(pipetteID, labwareID, well string, mix MixOptions, aspRate, dispRate float64) []CurriedCommandCreator {
	if mix.Times <= 0 {
		return nil
	}
	out := make([]CurriedCommandCreator, 0, 2*mix.Times)
	for i := 0; i < mix.Times; i++ {
		out = append(out,
			Curry(Aspirate, PipettingArgs{PipetteID: pipetteID, LabwareID: labwareID, WellName: well, Volume: mix.Volume, FlowRate: aspRate}),
			Curry(Dispense, PipettingArgs{PipetteID: pipetteID, LabwareID: labwareID, WellName: well, Volume: mix.Volume, FlowRate: dispRate}),
		)
	}
	return out
}

// Transfer moves Volume from each source well to its destination well,
// splitting volumes larger than the tip into equal chunks.
func Transfer(args TransferArgs, inv *domain.InvariantContext, state domain.RobotState) domain.CommandCreationResult {
	pipette, errs := requirePipette(inv, state, args.PipetteID)
	if errs != nil {
		return domain.Failure(errs...)
	}
	if args.Volume <= 0 {
		return domain.Success()
	}
	if args.ChangeTip == "" {
		args.ChangeTip = ChangeTipAlways
	}
	chunks, perChunk := splitVolume(args.Volume, math.Min(pipette.Spec.MaxVolume, tipCapacity(inv, pipette)))
	pairs := pairWells(args.SourceWells, args.DestWells)

	var creators []CurriedCommandCreator
	newTip := func() {
		creators = append(creators, replaceTip(args.PipetteID, args.TiprackIDs, args.DropLabwareID))
	}
	if args.ChangeTip == ChangeTipOnce && len(pairs) > 0 {
		newTip()
	}
	for i, pair := range pairs {
		for c := 0; c < chunks; c++ {
			switch args.ChangeTip {
			case ChangeTipAlways:
				newTip()
			case ChangeTipPerSource:
				if c == 0 && (i == 0 || pairs[i-1].src != pair.src) {
					newTip()
				}
			case ChangeTipPerDest:
				if c == 0 && (i == 0 || pairs[i-1].dst != pair.dst) {
					newTip()
				}
			}
			if args.MixBefore != nil {
				creators = append(creators, mixCreators(args.PipetteID, args.SourceLabwareID, pair.src, *args.MixBefore, args.AspirateFlowRate, args.DispenseFlowRate)...)
			}
			creators = append(creators,
				Curry(Aspirate, PipettingArgs{PipetteID: args.PipetteID, LabwareID: args.SourceLabwareID, WellName: pair.src, Volume: perChunk, FlowRate: args.AspirateFlowRate}),
				Curry(Dispense, PipettingArgs{PipetteID: args.PipetteID, LabwareID: args.DestLabwareID, WellName: pair.dst, Volume: perChunk, FlowRate: args.DispenseFlowRate}),
			)
			if args.MixAfter != nil {
				creators = append(creators, mixCreators(args.PipetteID, args.DestLabwareID, pair.dst, *args.MixAfter, args.AspirateFlowRate, args.DispenseFlowRate)...)
			}
			if args.TouchTip {
				creators = append(creators, Curry(TouchTip, TipArgs{PipetteID: args.PipetteID, LabwareID: args.DestLabwareID, WellName: pair.dst}))
			}
			if args.Blowout {
				creators = append(creators, Curry(Blowout, PipettingArgs{PipetteID: args.PipetteID, LabwareID: args.DestLabwareID, WellName: pair.dst}))
			}
		}
	}
	if args.ChangeTip != ChangeTipNever {
		creators = append(creators, dropTipIfAttached(args.PipetteID, args.DropLabwareID))
	}
	return ReduceCommandCreators(creators, inv, state)
}

// MixArgs describes repeated aspirate/dispense cycles in place.
type MixArgs struct {
	PipetteID        string
	TiprackIDs       []string
	LabwareID        string
	Wells            []string
	Volume           float64
	Times            int
	ChangeTip        ChangeTipPolicy
	AspirateFlowRate float64
	DispenseFlowRate float64
	TouchTip         bool
	Blowout          bool
	DropLabwareID    string
}

// Mix mixes each well Times times.
func Mix(args MixArgs, inv *domain.InvariantContext, state domain.RobotState) domain.CommandCreationResult {
	if _, errs := requirePipette(inv, state, args.PipetteID); errs != nil {
		return domain.Failure(errs...)
	}
	if args.ChangeTip == "" {
		args.ChangeTip = ChangeTipAlways
	}
	var creators []CurriedCommandCreator
	for i, well := range args.Wells {
		switch args.ChangeTip {
		case ChangeTipAlways, ChangeTipPerSource, ChangeTipPerDest:
			creators = append(creators, replaceTip(args.PipetteID, args.TiprackIDs, args.DropLabwareID))
		case ChangeTipOnce:
			if i == 0 {
				creators = append(creators, replaceTip(args.PipetteID, args.TiprackIDs, args.DropLabwareID))
			}
		}
		creators = append(creators, mixCreators(args.PipetteID, args.LabwareID, well, MixOptions{Volume: args.Volume, Times: args.Times}, args.AspirateFlowRate, args.DispenseFlowRate)...)
		if args.Blowout {
			creators = append(creators, Curry(Blowout, PipettingArgs{PipetteID: args.PipetteID, LabwareID: args.LabwareID, WellName: well}))
		}
		if args.TouchTip {
			creators = append(creators, Curry(TouchTip, TipArgs{PipetteID: args.PipetteID, LabwareID: args.LabwareID, WellName: well}))
		}
	}
	if args.ChangeTip != ChangeTipNever {
		creators = append(creators, dropTipIfAttached(args.PipetteID, args.DropLabwareID))
	}
	return ReduceCommandCreators(creators, inv, state)
}
