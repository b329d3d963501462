// Package protocol reads YAML protocol files into the steps, invariant
// context and initial robot state consumed by the timeline fold.
package protocol

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"deckcore/internal/stepgen"
)

// Document is the on-disk shape of a protocol file.
type Document struct {
	Metadata Metadata     `yaml:"metadata"`
	Pipettes []PipetteDoc `yaml:"pipettes"`
	Labware  []LabwareDoc `yaml:"labware"`
	Modules  []ModuleDoc  `yaml:"modules"`
	Liquids  []LiquidDoc  `yaml:"liquids"`
	Steps    []StepDoc    `yaml:"steps"`
}

// Metadata carries descriptive fields only.
type Metadata struct {
	Name   string `yaml:"name"`
	Author string `yaml:"author"`
}

// PipetteDoc declares a pipette and its mount.
type PipetteDoc struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name"`
	Mount    string   `yaml:"mount"`
	Tipracks []string `yaml:"tipracks"`
}

// LabwareDoc declares a labware by definition URI. Location is a deck slot,
// a module id, another labware id or "offDeck".
type LabwareDoc struct {
	ID       string `yaml:"id"`
	URI      string `yaml:"uri"`
	Location string `yaml:"location"`
}

// ModuleDoc declares a hardware module in a deck slot.
type ModuleDoc struct {
	ID       string `yaml:"id"`
	Model    string `yaml:"model"`
	Location string `yaml:"location"`
}

// LiquidDoc seeds a well with an initial volume of one liquid.
type LiquidDoc struct {
	Labware string   `yaml:"labware"`
	Wells   []string `yaml:"wells"`
	Liquid  string   `yaml:"liquid"`
	Volume  float64  `yaml:"volume"`
}

// WellsDoc addresses wells of one labware.
type WellsDoc struct {
	Labware string   `yaml:"labware"`
	Wells   []string `yaml:"wells"`
}

// MixDoc configures mixing inside a transfer.
type MixDoc struct {
	Volume float64 `yaml:"volume"`
	Times  int     `yaml:"times"`
}

// StepDoc is the union of every step type's fields; Type selects which apply.
type StepDoc struct {
	Type string `yaml:"type"`

	// liquid handling
	Pipette          string   `yaml:"pipette"`
	Tipracks         []string `yaml:"tipracks"`
	Source           WellsDoc `yaml:"source"`
	Dest             WellsDoc `yaml:"dest"`
	Labware          string   `yaml:"labware"`
	Wells            []string `yaml:"wells"`
	Volume           float64  `yaml:"volume"`
	Times            int      `yaml:"times"`
	ChangeTip        string   `yaml:"changeTip"`
	AspirateFlowRate float64  `yaml:"aspirateFlowRate"`
	DispenseFlowRate float64  `yaml:"dispenseFlowRate"`
	MixBefore        *MixDoc  `yaml:"mixBefore"`
	MixAfter         *MixDoc  `yaml:"mixAfter"`
	TouchTip         bool     `yaml:"touchTip"`
	Blowout          bool     `yaml:"blowout"`
	DropTipLabware   string   `yaml:"dropTipLabware"`

	// pause
	Seconds float64 `yaml:"seconds"`
	Message string  `yaml:"message"`

	// labware movement
	NewLocation string `yaml:"newLocation"`
	UseGripper  bool   `yaml:"useGripper"`

	// modules
	Module    string   `yaml:"module"`
	Celsius   *float64 `yaml:"celsius"`
	Engage    bool     `yaml:"engage"`
	Height    float64  `yaml:"height"`
	LidTemp   *float64 `yaml:"lidTemp"`
	BlockTemp *float64 `yaml:"blockTemp"`
	LidOpen   *bool    `yaml:"lidOpen"`
	LatchOpen *bool    `yaml:"latchOpen"`
	RPM       *int     `yaml:"rpm"`
}

// Parse decodes a protocol document, rejecting unknown fields.
func Parse(r io.Reader) (Document, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return Document{}, fmt.Errorf("empty protocol document")
		}
		return Document{}, fmt.Errorf("decode protocol: %w", err)
	}
	return doc, nil
}

// ParseFile reads and decodes the protocol at path.
func ParseFile(path string) (Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return Document{}, err
	}
	defer func() { _ = f.Close() }()
	return Parse(f)
}

// StepsFromDocument converts step entries into steps, in order.
func StepsFromDocument(doc Document) ([]stepgen.Step, error) {
	steps := make([]stepgen.Step, 0, len(doc.Steps))
	for i, sd := range doc.Steps {
		s, err := sd.toStep()
		if err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
		steps = append(steps, s)
	}
	return steps, nil
}

func changeTipPolicy(raw string) (stepgen.ChangeTipPolicy, error) {
	p := stepgen.ChangeTipPolicy(raw)
	switch p {
	case "", stepgen.ChangeTipAlways, stepgen.ChangeTipOnce, stepgen.ChangeTipNever,
		stepgen.ChangeTipPerSource, stepgen.ChangeTipPerDest:
		return p, nil
	}
	return "", fmt.Errorf("unknown changeTip policy %q", raw)
}

func positiveVolume(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return fmt.Errorf("%s must be a positive volume, got %v", field, v)
	}
	return nil
}

func mixCount(field string, times int) error {
	if times < 0 {
		return fmt.Errorf("%s must not be negative, got %d", field, times)
	}
	return nil
}

func mixOptions(field string, m *MixDoc) (*stepgen.MixOptions, error) {
	if m == nil {
		return nil, nil
	}
	if err := positiveVolume(field+".volume", m.Volume); err != nil {
		return nil, err
	}
	if err := mixCount(field+".times", m.Times); err != nil {
		return nil, err
	}
	return &stepgen.MixOptions{Volume: m.Volume, Times: m.Times}, nil
}

func (sd StepDoc) toStep() (stepgen.Step, error) {
	switch sd.Type {
	case stepgen.StepTransfer:
		policy, err := changeTipPolicy(sd.ChangeTip)
		if err != nil {
			return nil, err
		}
		if err := positiveVolume("volume", sd.Volume); err != nil {
			return nil, err
		}
		mixBefore, err := mixOptions("mixBefore", sd.MixBefore)
		if err != nil {
			return nil, err
		}
		mixAfter, err := mixOptions("mixAfter", sd.MixAfter)
		if err != nil {
			return nil, err
		}
		return stepgen.TransferStep{Args: stepgen.TransferArgs{
			PipetteID:        sd.Pipette,
			TiprackIDs:       sd.Tipracks,
			SourceLabwareID:  sd.Source.Labware,
			SourceWells:      sd.Source.Wells,
			DestLabwareID:    sd.Dest.Labware,
			DestWells:        sd.Dest.Wells,
			Volume:           sd.Volume,
			ChangeTip:        policy,
			AspirateFlowRate: sd.AspirateFlowRate,
			DispenseFlowRate: sd.DispenseFlowRate,
			MixBefore:        mixBefore,
			MixAfter:         mixAfter,
			TouchTip:         sd.TouchTip,
			Blowout:          sd.Blowout,
			DropLabwareID:    sd.DropTipLabware,
		}}, nil
	case stepgen.StepMix:
		policy, err := changeTipPolicy(sd.ChangeTip)
		if err != nil {
			return nil, err
		}
		if err := positiveVolume("volume", sd.Volume); err != nil {
			return nil, err
		}
		if err := mixCount("times", sd.Times); err != nil {
			return nil, err
		}
		return stepgen.MixStep{Args: stepgen.MixArgs{
			PipetteID:        sd.Pipette,
			TiprackIDs:       sd.Tipracks,
			LabwareID:        sd.Labware,
			Wells:            sd.Wells,
			Volume:           sd.Volume,
			Times:            sd.Times,
			ChangeTip:        policy,
			AspirateFlowRate: sd.AspirateFlowRate,
			DispenseFlowRate: sd.DispenseFlowRate,
			TouchTip:         sd.TouchTip,
			Blowout:          sd.Blowout,
			DropLabwareID:    sd.DropTipLabware,
		}}, nil
	case stepgen.StepPause:
		if math.IsNaN(sd.Seconds) || math.IsInf(sd.Seconds, 0) || sd.Seconds < 0 {
			return nil, fmt.Errorf("seconds must be a non-negative duration, got %v", sd.Seconds)
		}
		return stepgen.PauseStep{Args: stepgen.DelayArgs{Seconds: sd.Seconds, Message: sd.Message}}, nil
	case stepgen.StepMoveLabware:
		return stepgen.MoveLabwareStep{Args: stepgen.MoveLabwareArgs{LabwareID: sd.Labware, NewLocation: sd.NewLocation, UseGripper: sd.UseGripper}}, nil
	case stepgen.StepTemperature:
		return stepgen.TemperatureStep{ModuleID: sd.Module, Celsius: sd.Celsius}, nil
	case stepgen.StepMagnet:
		return stepgen.MagnetStep{ModuleID: sd.Module, Engage: sd.Engage, Height: sd.Height}, nil
	case stepgen.StepThermocycler:
		return stepgen.ThermocyclerStep{ModuleID: sd.Module, LidTemp: sd.LidTemp, BlockTemp: sd.BlockTemp, LidOpen: sd.LidOpen}, nil
	case stepgen.StepHeaterShaker:
		return stepgen.HeaterShakerStep{ModuleID: sd.Module, Celsius: sd.Celsius, LatchOpen: sd.LatchOpen, RPM: sd.RPM}, nil
	case "":
		return nil, fmt.Errorf("missing step type")
	default:
		return nil, fmt.Errorf("unknown step type %q", sd.Type)
	}
}
