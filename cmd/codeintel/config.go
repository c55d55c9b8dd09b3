package main

import (
	"fmt"

	"github.com/dshills/codeintel/internal/app"
	"github.com/dshills/codeintel/internal/config"
	"github.com/dshills/codeintel/internal/logging"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

func newConfigCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect settings and provider configuration",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print effective settings and merged provider configuration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				v, s, err := g.loadSettings()
				if err != nil {
					return err
				}
				declared := make(map[string]config.Declared)
				for _, spec := range app.Builtin(logging.Nop()) {
					declared[spec.Name] = spec.Defaults
				}
				providers, _, err := config.NewStore(s.StorePath()).Reconcile(declared)
				if err != nil {
					return err
				}

				out := map[string]any{
					"settings":  v.AllSettings(),
					"providers": providers,
				}
				data, err := toml.Marshal(out)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				if s.File != "" {
					writeLine(w, "# settings file: %s", s.File)
				}
				writeLine(w, "# provider store: %s", s.StorePath())
				_, err = fmt.Fprint(w, string(data))
				return err
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the settings file and provider store locations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				_, s, err := g.loadSettings()
				if err != nil {
					return err
				}
				file := s.File
				if file == "" {
					file = "(none)"
				}
				writeLine(cmd.OutOrStdout(), "settings\t%s", file)
				writeLine(cmd.OutOrStdout(), "store\t%s", s.StorePath())
				return nil
			},
		},
	)
	return cmd
}
