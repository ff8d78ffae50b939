package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-barangay-registry/syncqueue"
)

func newSyncCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Inspect and drain the offline sync queue",
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show queue depth, stuck items and connectivity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.container.Sync().Status(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), st)
		},
	}

	drain := &cobra.Command{
		Use:   "drain",
		Short: "Check the backend once, replay pending items and print the remaining status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			url := a.container.HealthURL()
			if url == "" {
				return fmt.Errorf("no backend configured, set REGISTRY_BACKEND_URL")
			}
			client := &http.Client{Timeout: 10 * time.Second}
			online := syncqueue.Check(ctx, client, url)
			if !online {
				return fmt.Errorf("backend %s is unreachable", url)
			}
			// going online starts the drain; Wait blocks until it ends
			a.container.Monitor().Set(true)
			a.container.Sync().Wait()

			st, err := a.container.Sync().Status(ctx)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), st)
		},
	}

	stuck := &cobra.Command{
		Use:   "stuck",
		Short: "List items that reached the retry ceiling",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := a.container.Sync().Stuck(cmd.Context())
			if err != nil {
				return err
			}
			if items == nil {
				items = []syncqueue.Item{}
			}
			return writeJSON(cmd.OutOrStdout(), items)
		},
	}

	retry := &cobra.Command{
		Use:   "retry <id>",
		Short: "Reset a stuck item so the next drain dispatches it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			item, err := a.container.Sync().Retry(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), item)
		},
	}

	discard := &cobra.Command{
		Use:   "discard <id>",
		Short: "Remove an item without dispatching it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.container.Sync().Discard(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "discarded", args[0])
			return nil
		},
	}

	cmd.AddCommand(status, drain, stuck, retry, discard)
	return cmd
}
