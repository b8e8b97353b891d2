package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"sttmforge/internal/store"
)

func newStatsCmd(opts *rootOptions) *cobra.Command {
	var recent int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize runs recorded in the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if _, err := os.Stat(cfg.Store.Path); err != nil {
				return fmt.Errorf("no run ledger at %s (enable store or set STTMFORGE_DB)", cfg.Store.Path)
			}

			ledger, err := store.Open(cfg.Store.Path)
			if err != nil {
				return err
			}
			defer ledger.Close()

			summary, err := ledger.Summary(cmd.Context())
			if err != nil {
				return err
			}
			renderSummary(cmd.OutOrStdout(), summary)

			if recent > 0 {
				runs, err := ledger.Recent(cmd.Context(), recent)
				if err != nil {
					return err
				}
				renderRuns(cmd.OutOrStdout(), runs)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&recent, "recent", 0, "Also list the N most recent runs")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sttmforge %s\n", version)
		},
	}
}
