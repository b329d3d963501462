package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"deckcore/pkg/domain"
)

func newLabwareCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "labware",
		Short: "Manage labware definitions in the definition store",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "Print stored labware definition uris",
		Args:  cobra.NoArgs,
		RunE: a.runE(func(cmd *cobra.Command, _ []string) error {
			cat, err := a.catalog(cmd.Context())
			if err != nil {
				return err
			}
			uris, err := cat.ListLabware(cmd.Context())
			if err != nil {
				return err
			}
			for _, u := range uris {
				fmt.Fprintln(cmd.OutOrStdout(), u)
			}
			return nil
		}),
	}

	var overwrite bool
	put := &cobra.Command{
		Use:   "put <definition.json>",
		Short: "Store a labware definition under its uri",
		Args:  cobra.ExactArgs(1),
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var def domain.LabwareDefinition
			if err := json.Unmarshal(data, &def); err != nil {
				return fmt.Errorf("decode %s: %w", args[0], err)
			}
			cat, err := a.catalog(cmd.Context())
			if err != nil {
				return err
			}
			if err := cat.PutLabware(cmd.Context(), def, overwrite); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), def.URI)
			return nil
		}),
	}
	put.Flags().BoolVar(&overwrite, "overwrite", false, "replace an existing definition")

	cmd.AddCommand(list, put)
	return cmd
}
