package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newProvidersCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "Start every enabled provider and print its status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			core, _, stop, err := g.startCore(ctx, false)
			if err != nil {
				return err
			}
			defer stop()
			awaitSettled(ctx, core, g.settle)

			infos, err := core.Providers(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSTATUS\tLANGUAGES\tRESTARTS\tSINCE")
			for _, info := range infos {
				langs := strings.Join(info.Languages, ",")
				if langs == "" {
					langs = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
					info.Name, info.Status, langs, info.Restarts, info.Since.Format(time.TimeOnly))
			}
			return w.Flush()
		},
	}
}
