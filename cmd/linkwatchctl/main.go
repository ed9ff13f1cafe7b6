// Command linkwatchctl runs one-off maintenance tasks against the monitor's
// database, credential pool and browser sessions.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/timmy/linkwatch/internal/app"
	"github.com/timmy/linkwatch/internal/config"
	"github.com/timmy/linkwatch/internal/logger"
)

var (
	cfgFile string
	debug   bool
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "linkwatchctl",
		Short:         "Operate the link monitor",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", os.Getenv("CONFIG_PATH"), "config file (default ./configs/config.yaml)")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newCheckCommand(),
		newCredentialsCommand(),
		newReapCommand(),
		newSchedulerCommand(),
	)
	return root
}

// ctlSessionDir is the sub-directory of the server's session root used by
// this command. The server's reaper and watchdog only match sessions directly
// under its root, so the two never tear down each other's browsers.
const ctlSessionDir = "ctl"

// ctlApp is the application as seen by one command.
type ctlApp struct {
	*app.App
	// serverSessionRoot is the session root the server uses.
	serverSessionRoot string
}

// loadApp builds the application for a single command. The caller must Close it.
func loadApp(cmd *cobra.Command) (*ctlApp, error) {
	level := "warn"
	if debug {
		level = "debug"
	}
	log := logger.New(&logger.Config{
		Level:       level,
		Format:      "text",
		Output:      os.Stderr,
		ServiceName: "linkwatchctl",
	})
	logger.SetDefaultLogger(log)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	serverRoot := cfg.Browser.SessionRoot
	cfg.Browser.SessionRoot = ctlSessionRoot(serverRoot)

	ctx := logger.SetComponent(cmd.Context(), "ctl")
	cmd.SetContext(ctx)
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return &ctlApp{App: a, serverSessionRoot: serverRoot}, nil
}

func ctlSessionRoot(serverRoot string) string {
	return filepath.Join(serverRoot, ctlSessionDir)
}
