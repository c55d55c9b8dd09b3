package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dshills/codeintel/internal/app"
	"github.com/dshills/codeintel/internal/config"
	"github.com/dshills/codeintel/internal/logging"
	"github.com/dshills/codeintel/internal/provider"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// globals are the persistent flags shared by every command.
type globals struct {
	configFile string
	cwd        string
	stateDir   string
	debug      bool
	waitFor    int
	settle     time.Duration
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:   "codeintel",
		Short: "Code intelligence aggregated from language servers, engines and local providers",
		Long: `codeintel fans completion, hover, definition and related requests out to every
provider that supports a file's language, collects the answers within a time budget
and prints the merged result.`,
		Example: `
  # Completions at line 12, column 8 of main.go
  codeintel complete main.go 12 8

  # Hover with debug logging
  codeintel -d hover internal/app/app.go 40 15

  # Provider status
  codeintel providers

  # Serve the MCP tools on stdio
  codeintel serve
  `,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if g.cwd != "" {
				if err := os.Chdir(g.cwd); err != nil {
					return fmt.Errorf("failed to change directory: %w", err)
				}
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&g.configFile, "config", "", "settings file (default: codeintel.toml in the config search path)")
	flags.StringVarP(&g.cwd, "cwd", "c", "", "working directory and default workspace root")
	flags.StringVar(&g.stateDir, "state-dir", "", "directory holding providers.toml")
	flags.BoolVarP(&g.debug, "debug", "d", false, "debug logging")
	flags.IntVar(&g.waitFor, "wait", -1, "per-request budget in milliseconds (default from settings)")
	flags.DurationVar(&g.settle, "settle", 3*time.Second, "how long to wait for providers to become ready")

	root.AddCommand(
		newQueryCmd(g, provider.KindCompletion, "complete", "Print completion candidates"),
		newQueryCmd(g, provider.KindHover, "hover", "Print hover documentation"),
		newQueryCmd(g, provider.KindDefinition, "definition", "Print definition locations"),
		newQueryCmd(g, provider.KindSignatureHelp, "signature", "Print signature help"),
		newQueryCmd(g, provider.KindReferences, "references", "Print reference locations"),
		newProvidersCmd(g),
		newServeCmd(g),
		newConfigCmd(g),
	)
	return root
}

// loadSettings reads settings and applies flag overrides.
func (g *globals) loadSettings() (*viper.Viper, config.Settings, error) {
	v := config.NewViper(g.configFile)
	if g.stateDir != "" {
		v.Set(config.KeyStateDir, g.stateDir)
	}
	if g.waitFor >= 0 {
		v.Set(config.KeyWaitForMS, g.waitFor)
	}
	if g.debug {
		v.Set(config.KeyLogLevel, "debug")
	}
	s, err := config.LoadSettings(v)
	if err != nil {
		return nil, config.Settings{}, err
	}
	return v, s, nil
}

// startCore loads settings, builds and starts a core. The returned stop
// function shuts it down and closes the log.
func (g *globals) startCore(ctx context.Context, watch bool) (*app.Core, *logging.Logger, func(), error) {
	_, s, err := g.loadSettings()
	if err != nil {
		return nil, nil, nil, err
	}
	logger, logCloser, err := app.NewLogger(s.Log, os.Stderr)
	if err != nil {
		return nil, nil, nil, err
	}
	if !g.debug && s.Log.File == "" && s.Log.Level == config.DefaultLogLevel {
		// One-shot commands keep stderr for warnings only.
		logger.SetLevel(logging.LevelWarn)
	}

	root, err := os.Getwd()
	if err != nil {
		logCloser.Close()
		return nil, nil, nil, err
	}
	core, err := app.New(app.Options{
		Settings:       s,
		Logger:         logger,
		Root:           root,
		WatchStore:     watch,
		WatchWorkspace: watch,
	})
	if err != nil {
		logCloser.Close()
		return nil, nil, nil, err
	}
	if err := core.Start(ctx); err != nil {
		logCloser.Close()
		return nil, nil, nil, err
	}

	stop := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := core.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown: %v", err)
		}
		logCloser.Close()
	}
	return core, logger, stop, nil
}

// awaitSettled polls until no provider is starting or restarting, or the
// settle time runs out.
func awaitSettled(ctx context.Context, core *app.Core, settle time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, settle)
	defer cancel()
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		infos, err := core.Providers(ctx)
		if err != nil {
			return
		}
		busy := false
		for _, info := range infos {
			if info.Status == provider.StatusStarting || info.Status == provider.StatusRestarting {
				busy = true
				break
			}
		}
		if !busy {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
	}
}

func writeLine(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format+"\n", args...)
}
