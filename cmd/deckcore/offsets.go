package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"deckcore/internal/core"
	"deckcore/internal/lpc"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newOffsetsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "offsets",
		Short: "Manage stored labware offsets",
	}

	var uri string
	list := &cobra.Command{
		Use:   "list",
		Short: "Print every stored offset, oldest first",
		Args:  cobra.NoArgs,
		RunE: a.runE(func(cmd *cobra.Command, _ []string) error {
			svc, err := a.offsetService(cmd.Context())
			if err != nil {
				return err
			}
			all, err := svc.ListOffsets(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), nonNil(lpc.FilterByDefinition(all, uri)))
		}),
	}
	list.Flags().StringVar(&uri, "uri", "", "only offsets for this labware definition uri")

	var currentURI string
	current := &cobra.Command{
		Use:   "current",
		Short: "Print the newest offset per labware definition and location",
		Args:  cobra.NoArgs,
		RunE: a.runE(func(cmd *cobra.Command, _ []string) error {
			svc, err := a.offsetService(cmd.Context())
			if err != nil {
				return err
			}
			offsets, err := svc.CurrentOffsets(cmd.Context(), currentURI)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), nonNil(offsets))
		}),
	}
	current.Flags().StringVar(&currentURI, "uri", "", "only offsets for this labware definition uri")

	importCmd := &cobra.Command{
		Use:   "import <file.json>",
		Short: "Store the offsets in a JSON array",
		Args:  cobra.ExactArgs(1),
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var offsets []core.LabwareOffset
			if err := json.Unmarshal(data, &offsets); err != nil {
				return fmt.Errorf("decode %s: %w", args[0], err)
			}
			svc, err := a.offsetService(cmd.Context())
			if err != nil {
				return err
			}
			created, res, err := svc.CreateOffsets(cmd.Context(), offsets)
			var rv core.RuleViolationError
			if errors.As(err, &rv) {
				for _, v := range rv.Result.Violations {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s %s: %s\n", v.Severity, v.Rule, v.Message)
				}
			}
			if err != nil {
				return err
			}
			for _, v := range res.Violations {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s %s: %s\n", v.Severity, v.Rule, v.Message)
			}
			return writeJSON(cmd.OutOrStdout(), nonNil(created))
		}),
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove a stored offset",
		Args:  cobra.ExactArgs(1),
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			svc, err := a.offsetService(cmd.Context())
			if err != nil {
				return err
			}
			_, err = svc.DeleteOffset(cmd.Context(), args[0])
			return err
		}),
	}

	cmd.AddCommand(list, current, importCmd, deleteCmd)
	return cmd
}

func nonNil(offsets []core.LabwareOffset) []core.LabwareOffset {
	if offsets == nil {
		return []core.LabwareOffset{}
	}
	return offsets
}
