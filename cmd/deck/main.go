package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskdeck/deck/internal/config"
	"github.com/taskdeck/deck/internal/debug"
	"github.com/taskdeck/deck/internal/telemetry"
)

var (
	configFile   string
	apiURL       string
	locationFile string
	jsonOutput   bool
	verboseFlag  bool
	quietFlag    bool

	// Signal-aware context for graceful cancellation
	rootCtx    context.Context
	rootCancel context.CancelFunc

	// stdout receives command output; tests swap it.
	stdout io.Writer = os.Stdout
)

// flagKeys binds persistent flags to config keys so flags override
// config.yaml and DECK_* environment variables.
var flagKeys = map[string]string{
	"api":      config.KeyAPIURL,
	"location": config.KeyLocationFile,
	"json":     config.KeyJSON,
	"verbose":  config.KeyVerbose,
	"quiet":    config.KeyQuiet,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default: ./.deck/config.yaml, then the user config dir)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", "", "Backend API base URL (default: $DECK_API_URL or http://localhost:8000/api)")
	rootCmd.PersistentFlags().StringVar(&locationFile, "location", "", "Board navigation state file shared between board sessions")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose/debug output")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-essential output (errors only)")

	rootCmd.Flags().BoolP("version", "V", false, "Print version information")

	rootCmd.AddGroup(&cobra.Group{ID: "issues", Title: "Working With Issues:"})
	rootCmd.AddGroup(&cobra.Group{ID: "repos", Title: "Repositories & Jobs:"})
	rootCmd.AddGroup(&cobra.Group{ID: "setup", Title: "Setup & Session:"})
}

var rootCmd = &cobra.Command{
	Use:           "deck",
	Short:         "deck - Kanban board for agent-assisted issues",
	Long:          `A terminal client for the task board: drag issues between lanes, hand them to the agent, and watch repository analysis jobs.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Fprintf(stdout, "deck version %s (%s)\n", Version, Build)
			return
		}
		_ = cmd.Help()
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.InitializeWithFile(configFile); err != nil {
			return err
		}
		v := config.Viper()
		for name, key := range flagKeys {
			if f := cmd.Root().PersistentFlags().Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return fmt.Errorf("binding --%s: %w", name, err)
				}
			}
		}
		jsonOutput = config.GetBool(config.KeyJSON)
		debug.SetVerbose(config.GetBool(config.KeyVerbose))
		debug.SetQuiet(config.GetBool(config.KeyQuiet))
		debug.SetEventLog(config.StatePath("", "events.log"))

		rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		if err := telemetry.Init(rootCtx, "deck", Version, os.Stderr); err != nil {
			WarnError("telemetry disabled: %v", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(ctx); err != nil {
			debug.Logf("telemetry shutdown: %v\n", err)
		}
		if rootCancel != nil {
			rootCancel()
		}
	},
}

// getRootContext returns the signal-aware context, or Background before
// PersistentPreRun ran.
func getRootContext() context.Context {
	if rootCtx == nil {
		return context.Background()
	}
	return rootCtx
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		reportError(err)
		os.Exit(1)
	}
}
