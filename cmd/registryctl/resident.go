package main

import (
	"github.com/spf13/cobra"

	"github.com/goliatone/go-barangay-registry/registry"
)

func newResidentCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resident",
		Short: "Read and write residents",
	}

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Print one resident",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeResult(cmd.OutOrStdout(), a.container.Residents().GetResident(cmd.Context(), args[0]))
		},
	}

	var s registry.ResidentSearch
	search := &cobra.Command{
		Use:   "search",
		Short: "Search residents by name, age, demographics and jurisdiction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeResult(cmd.OutOrStdout(), a.container.Residents().SearchResidents(cmd.Context(), s))
		},
	}
	f := search.Flags()
	f.StringVar(&s.Name, "name", "", "matches first, middle or last name")
	f.IntVar(&s.MinAge, "min-age", 0, "minimum age in years")
	f.IntVar(&s.MaxAge, "max-age", 0, "maximum age in years")
	f.StringVar(&s.Sex, "sex", "", "male or female")
	f.StringVar(&s.CivilStatus, "civil-status", "", "civil status")
	f.StringVar(&s.HouseholdCode, "household", "", "household code")
	f.StringVar(&s.Jurisdiction, "jurisdiction", "", "any PSGC code; residents under that area match")
	f.StringVar(&s.OrderBy, "order-by", "last_name", "sort column")
	f.BoolVar(&s.Desc, "desc", false, "sort descending")
	f.IntVar(&s.Limit, "limit", registry.DefaultPageSize, "page size")
	f.IntVar(&s.Offset, "offset", 0, "rows to skip")

	var file string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a resident from JSON (file or stdin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var res registry.Resident
			if err := readJSONInput(cmd, file, &res); err != nil {
				return err
			}
			return writeResult(cmd.OutOrStdout(), a.container.Residents().CreateResident(cmd.Context(), &res))
		},
	}
	create.Flags().StringVarP(&file, "file", "f", "-", "JSON file, - for stdin")

	cmd.AddCommand(get, search, create)
	return cmd
}
