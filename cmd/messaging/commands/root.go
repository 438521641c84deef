package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/oksasatya/messaging-system/config"
)

var version = "dev"

// app carries state shared by the subcommands of one invocation.
type app struct {
	envFile string
	cfg     *config.Config
}

// NewRootCmd builds the command tree. serve and worker run from the same
// binary and read the same environment.
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "messaging",
		Short:         "Fire-and-forget email service",
		Long:          "messaging serves the HTTP front end (serve) or processes queued email jobs (worker).",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig()
		},
	}
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file to load before reading the environment")

	root.AddCommand(newServeCmd(a), newWorkerCmd(a))
	return root
}

// loadConfig reads the dotenv file (a missing default file is fine) and
// validates the resulting configuration.
func (a *app) loadConfig() error {
	if a.envFile != "" {
		if err := godotenv.Load(a.envFile); err != nil && !(errors.Is(err, fs.ErrNotExist) && a.envFile == ".env") {
			return fmt.Errorf("load %s: %w", a.envFile, err)
		}
	}
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
