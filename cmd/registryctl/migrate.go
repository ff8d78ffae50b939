package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-barangay-registry/internal/store"
)

func newMigrateCmd(a *app) *cobra.Command {
	var seedFile string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create missing tables and indexes, optionally seeding PSGC areas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.container.Migrate(ctx); err != nil {
				return err
			}
			if seedFile == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
				return nil
			}

			f, err := os.Open(seedFile)
			if err != nil {
				return err
			}
			defer f.Close()
			n, err := store.SeedAreas(ctx, a.container.DB(), f)
			if err != nil {
				return err
			}
			a.container.Areas().Reset()
			fmt.Fprintf(cmd.OutOrStdout(), "schema up to date, %d areas seeded\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&seedFile, "seed-psgc", "", "JSON file of PSGC areas to upsert")
	return cmd
}
