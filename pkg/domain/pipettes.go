package domain

// builtinPipettes lists the pipette models known without a catalog lookup.
var builtinPipettes = map[string]PipetteSpec{
	"p10_single":        {Name: "p10_single", Channels: 1, MinVolume: 1, MaxVolume: 10},
	"p10_multi":         {Name: "p10_multi", Channels: 8, MinVolume: 1, MaxVolume: 10},
	"p20_single_gen2":   {Name: "p20_single_gen2", Channels: 1, MinVolume: 1, MaxVolume: 20},
	"p20_multi_gen2":    {Name: "p20_multi_gen2", Channels: 8, MinVolume: 1, MaxVolume: 20},
	"p50_single":        {Name: "p50_single", Channels: 1, MinVolume: 5, MaxVolume: 50},
	"p50_multi":         {Name: "p50_multi", Channels: 8, MinVolume: 5, MaxVolume: 50},
	"p300_single":       {Name: "p300_single", Channels: 1, MinVolume: 30, MaxVolume: 300},
	"p300_multi":        {Name: "p300_multi", Channels: 8, MinVolume: 30, MaxVolume: 300},
	"p300_single_gen2":  {Name: "p300_single_gen2", Channels: 1, MinVolume: 20, MaxVolume: 300},
	"p300_multi_gen2":   {Name: "p300_multi_gen2", Channels: 8, MinVolume: 20, MaxVolume: 300},
	"p1000_single":      {Name: "p1000_single", Channels: 1, MinVolume: 100, MaxVolume: 1000},
	"p1000_single_gen2": {Name: "p1000_single_gen2", Channels: 1, MinVolume: 100, MaxVolume: 1000},
	"p50_single_flex":   {Name: "p50_single_flex", Channels: 1, MinVolume: 1, MaxVolume: 50},
	"p50_multi_flex":    {Name: "p50_multi_flex", Channels: 8, MinVolume: 1, MaxVolume: 50},
	"p1000_single_flex": {Name: "p1000_single_flex", Channels: 1, MinVolume: 5, MaxVolume: 1000},
	"p1000_multi_flex":  {Name: "p1000_multi_flex", Channels: 8, MinVolume: 5, MaxVolume: 1000},
	"p1000_96":          {Name: "p1000_96", Channels: 96, MinVolume: 5, MaxVolume: 1000},
	"p200_96":           {Name: "p200_96", Channels: 96, MinVolume: 1, MaxVolume: 200},
}

// BuiltinPipetteSpec returns the static spec for a pipette model name.
func BuiltinPipetteSpec(name string) (PipetteSpec, bool) {
	spec, ok := builtinPipettes[name]
	return spec, ok
}

// BuiltinPipetteNames returns the known model names, sorted.
func BuiltinPipetteNames() []string {
	return sortedKeys(builtinPipettes)
}
