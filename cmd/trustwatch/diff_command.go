package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"trustwatch/internal/notifications"
	"trustwatch/internal/trust"
)

func newDiffCommand() *cobra.Command {
	var (
		jsonOutput bool
		messages   bool
	)

	cmd := &cobra.Command{
		Use:         "diff <previous.json> <next.json>",
		Short:       "Compare two snapshot files and list membership changes",
		Args:        cobra.ExactArgs(2),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			prev, err := readSnapshotFile(args[0])
			if err != nil {
				return err
			}
			next, err := readSnapshotFile(args[1])
			if err != nil {
				return err
			}

			diff := trust.Compare(prev, next)
			if jsonOutput {
				return writeJSON(cmd, diff)
			}

			out := cmd.OutOrStdout()
			events := diff.Events()
			if len(events) == 0 {
				fmt.Fprintln(out, "No membership changes")
				return nil
			}
			if messages {
				for _, event := range events {
					fmt.Fprintln(out, notifications.Message(event))
				}
				return nil
			}
			rows := make([][]string, 0, len(events))
			for _, event := range events {
				rows = append(rows, []string{
					groupTitle(event.Group),
					string(event.Direction),
					strconv.Itoa(int(event.ID)),
					event.Label,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Group", "Change", "ID", "Label"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
			))
			fmt.Fprintf(out, "%d change(s)\n", len(events))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the diff as JSON")
	cmd.Flags().BoolVar(&messages, "messages", false, "Print the notification text for each change instead of a table")
	return cmd
}

// readSnapshotFile reads a snapshot document. A missing file is an empty
// snapshot, matching how the watcher treats an absent baseline.
func readSnapshotFile(path string) (trust.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return trust.NewSnapshot(), nil
		}
		return trust.Snapshot{}, fmt.Errorf("read snapshot %s: %w", path, err)
	}
	snap, err := trust.Decode(data)
	if err != nil {
		return trust.Snapshot{}, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	return snap, nil
}
