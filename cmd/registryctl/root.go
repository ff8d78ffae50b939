package main

import (
	"errors"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/goliatone/go-barangay-registry/internal/config"
	"github.com/goliatone/go-barangay-registry/pkg/di"
	"github.com/goliatone/go-barangay-registry/repository"
)

type app struct {
	configPath string
	envFile    string
	logLevel   string

	container *di.Container
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "registryctl",
		Short:         "Barangay registry maintenance and sync tool",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML config file (env vars still apply)")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before the environment")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override log level")

	root.AddCommand(
		newMigrateCmd(a),
		newResidentCmd(a),
		newHouseholdCmd(a),
		newSyncCmd(a),
	)
	return root
}

func (a *app) open(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath, a.envFile)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if cfg.Log.Output == nil {
		cfg.Log.Output = cmd.ErrOrStderr()
	}

	a.container, err = di.NewContainer(cmd.Context(), cfg)
	return err
}

func (a *app) close() error {
	if a.container == nil {
		return nil
	}
	err := a.container.Close()
	a.container = nil
	return err
}

func writeJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}

// writeResult prints Data on success and returns the repository error
// otherwise, so the process exits non-zero.
func writeResult[T any](w io.Writer, res repository.Result[T]) error {
	if !res.Success {
		if res.Error == nil {
			return errors.New("operation failed")
		}
		return res.Error
	}
	return writeJSON(w, res.Data)
}

func readJSONInput(cmd *cobra.Command, path string, dest any) error {
	var r io.Reader = cmd.InOrStdin()
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	return json.NewDecoder(r).Decode(dest)
}
