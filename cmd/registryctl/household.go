package main

import (
	"github.com/spf13/cobra"

	"github.com/goliatone/go-barangay-registry/registry"
)

func newHouseholdCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "household",
		Short: "Read and write households",
	}

	var file string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a household from JSON; an empty code is generated",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var h registry.Household
			if err := readJSONInput(cmd, file, &h); err != nil {
				return err
			}
			return writeResult(cmd.OutOrStdout(), a.container.Households().CreateHousehold(cmd.Context(), &h))
		},
	}
	create.Flags().StringVarP(&file, "file", "f", "-", "JSON file, - for stdin")

	get := &cobra.Command{
		Use:   "get <code>",
		Short: "Print a household by code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeResult(cmd.OutOrStdout(), a.container.Households().GetByCode(cmd.Context(), args[0]))
		},
	}

	members := &cobra.Command{
		Use:   "members <code>",
		Short: "List residents of a household",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeResult(cmd.OutOrStdout(), a.container.Residents().ListByHousehold(cmd.Context(), args[0]))
		},
	}

	cmd.AddCommand(create, get, members)
	return cmd
}
