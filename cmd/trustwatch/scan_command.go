package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"trustwatch/internal/logging"
	"trustwatch/internal/scan"
	"trustwatch/internal/snapshot"
	"trustwatch/internal/trust"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one classification scan and overwrite the snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			store, err := snapshot.Open(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("open snapshot store: %w", err)
			}
			defer store.Close()

			pipeline, err := scan.NewPipelineFromConfig(cfg, store, logger, nil)
			if err != nil {
				return err
			}
			result, err := pipeline.Run(cmd.Context())
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd, result)
			}
			rows := make([][]string, 0, len(trust.Groups))
			for _, group := range trust.Groups {
				rows = append(rows, []string{groupTitle(group), strconv.Itoa(result.Totals[group])})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Scan %s finished in %s (saved to %s)\n", result.RunID, result.Duration().Round(time.Millisecond), store.Describe())
			fmt.Fprintln(out, renderTable([]string{"Group", "Members"}, rows, []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the scan result as JSON")
	return cmd
}
