package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"deckcore/internal/core"
	"deckcore/internal/protocol"
	"deckcore/internal/stepgen"
	"deckcore/pkg/domain"
)

var errStepFailed = errors.New("protocol simulation failed")

type frameOutput struct {
	StepType string                          `json:"stepType"`
	Commands []json.RawMessage               `json:"commands"`
	Warnings []domain.CommandCreationWarning `json:"warnings,omitempty"`
}

type stepErrorOutput struct {
	StepNumber int                             `json:"stepNumber"`
	StepType   string                          `json:"stepType"`
	Errors     []domain.CommandCreationError   `json:"errors"`
	Warnings   []domain.CommandCreationWarning `json:"warnings,omitempty"`
}

type simulationOutput struct {
	Protocol string           `json:"protocol"`
	Steps    []frameOutput    `json:"steps"`
	Error    *stepErrorOutput `json:"error,omitempty"`
}

func timelineOutput(name string, tl stepgen.Timeline) (simulationOutput, error) {
	out := simulationOutput{Protocol: name, Steps: make([]frameOutput, 0, len(tl.Frames))}
	for _, f := range tl.Frames {
		frame := frameOutput{StepType: f.StepType, Commands: make([]json.RawMessage, 0, len(f.Commands)), Warnings: f.Warnings}
		for _, cmd := range f.Commands {
			raw, err := domain.MarshalCommand(cmd)
			if err != nil {
				return simulationOutput{}, err
			}
			frame.Commands = append(frame.Commands, raw)
		}
		out.Steps = append(out.Steps, frame)
	}
	if e := tl.Error; e != nil {
		out.Error = &stepErrorOutput{StepNumber: e.StepIndex + 1, StepType: e.StepType, Errors: e.Errors, Warnings: e.Warnings}
	}
	return out, nil
}

func newSimulateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "simulate <protocol.yaml>",
		Short: "Fold a protocol file into its command timeline",
		Long: `Loads the protocol, resolves labware and pipette definitions through the
configured definition store and prints every step's commands as JSON.
When a step cannot be planned the output ends at that step and the command
exits non-zero.`,
		Args: cobra.ExactArgs(1),
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cat, err := a.catalog(ctx)
			if err != nil {
				return err
			}
			p, err := protocol.LoadFile(ctx, args[0], cat)
			if err != nil {
				return fmt.Errorf("load %s: %w", args[0], err)
			}
			opts, err := a.serviceOptions()
			if err != nil {
				return err
			}
			svc := core.NewInMemoryService(core.NewRulesEngine(), opts...)
			tl, err := svc.Simulate(ctx, p)
			if err != nil {
				return err
			}
			out, err := timelineOutput(p.Name, tl)
			if err != nil {
				return err
			}
			if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			if tl.Error != nil {
				return fmt.Errorf("%w: %s", errStepFailed, tl.Error.Error())
			}
			return nil
		}),
	}
}
