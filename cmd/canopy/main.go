// Package main provides the canopy CLI, a thin shell over store.Repository
// for inspecting and editing entities by hand.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jacentio/canopy/store"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newApp().rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app holds the state shared by all commands of one invocation.
type app struct {
	configFile string
	verbose    bool

	config *viper.Viper
	logger *slog.Logger
	exec   store.Executor
	store  *store.Store
}

func newApp() *app {
	return &app{}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "canopy",
		Short: "Canopy reads and writes entities in a document store",
		Long: `Canopy reads and writes typed entities in a remote document store.

The backend is chosen in canopy.yaml or with CANOPY_* environment
variables: dynamodb (default), http or memory.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.init,
	}

	root.PersistentFlags().StringVar(&a.configFile, "config", "", "config file (default: ./canopy.yaml or ~/.canopy/canopy.yaml)")
	root.PersistentFlags().String("backend", "", "backend to use: dynamodb, http or memory")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log debug output to stderr")

	root.AddCommand(
		a.findCmd(),
		a.allCmd(),
		a.whereCmd(),
		a.putCmd(),
		a.deleteCmd(),
		versionCmd(),
	)
	return root
}

// init loads config and connects the store.
func (a *app) init(cmd *cobra.Command, args []string) error {
	// Skip init for version command
	if cmd.Name() == "version" {
		return nil
	}

	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	if a.store != nil {
		return nil
	}

	cfg, err := loadConfig(a.configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.BindPFlag(cfgKeyBackend, cmd.Root().PersistentFlags().Lookup("backend")); err != nil {
		return fmt.Errorf("bind backend flag: %w", err)
	}
	a.config = cfg

	if a.exec == nil {
		exec, err := newExecutor(cmd.Context(), cfg, a.logger)
		if err != nil {
			return fmt.Errorf("connect backend: %w", err)
		}
		a.exec = exec
	}

	a.store = store.New(a.exec, store.WithLogger(a.logger))
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "canopy %s\n", version)
		},
	}
}
