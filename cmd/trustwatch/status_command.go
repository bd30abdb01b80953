package main

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"trustwatch/internal/daemon"
	"trustwatch/internal/trust"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var (
		urlFlag    string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the running daemon's watcher state and group totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			baseURL := strings.TrimSpace(urlFlag)
			if baseURL == "" {
				cfg, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				baseURL = cfg.StatusURL()
			}

			var status daemon.Status
			if _, err := newDaemonClient(baseURL).do(cmd.Context(), http.MethodGet, "/api/status", &status); err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, status)
			}
			out := cmd.OutOrStdout()
			fmt.Fprint(out, renderStatus(status, shouldColorize(out)))
			return nil
		},
	}
	cmd.Flags().StringVar(&urlFlag, "url", "", "Daemon base URL (defaults to the configured bind address)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the raw status as JSON")
	return cmd
}

func newTriggerCommand(ctx *commandContext) *cobra.Command {
	var urlFlag string

	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Ask the running daemon to start a scan now",
		RunE: func(cmd *cobra.Command, args []string) error {
			baseURL := strings.TrimSpace(urlFlag)
			if baseURL == "" {
				cfg, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				baseURL = cfg.StatusURL()
			}

			var resp struct {
				Started bool   `json:"started"`
				Message string `json:"message"`
			}
			code, err := newDaemonClient(baseURL).do(cmd.Context(), http.MethodPost, "/api/scan", &resp)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if code == http.StatusConflict {
				fmt.Fprintln(out, "Scan already running; request ignored")
				return nil
			}
			fmt.Fprintln(out, "Scan started")
			return nil
		},
	}
	cmd.Flags().StringVar(&urlFlag, "url", "", "Daemon base URL (defaults to the configured bind address)")
	return cmd
}

func renderStatus(status daemon.Status, colorize bool) string {
	var b strings.Builder
	w := status.Watcher

	for _, line := range renderSectionHeader("Daemon", colorize) {
		b.WriteString(line + "\n")
	}
	if status.Running {
		b.WriteString(renderStatusLine("Daemon", statusOK, fmt.Sprintf("running (pid %d)", status.PID), colorize) + "\n")
	} else {
		b.WriteString(renderStatusLine("Daemon", statusError, "stopped", colorize) + "\n")
	}
	if status.Snapshot != "" {
		b.WriteString(renderStatusLine("Snapshot", statusInfo, status.Snapshot, colorize) + "\n")
	}

	scanKind, scanMsg := statusInfo, string(w.State)
	switch {
	case w.ScanRunning:
		scanKind, scanMsg = statusWarn, "scan in progress"
	case w.LastScanError != "":
		scanKind, scanMsg = statusError, w.LastScanError
	case w.ScanCompleted:
		scanKind, scanMsg = statusOK, fmt.Sprintf("%d completed, last %s", w.ScansCompleted, formatTime(w.LastScanFinished))
	}
	b.WriteString(renderStatusLine("Scans", scanKind, scanMsg, colorize) + "\n")
	if w.LastRunID != "" {
		b.WriteString(renderStatusLine("Last run", statusInfo, w.LastRunID, colorize) + "\n")
	}
	if !w.LastChange.IsZero() {
		b.WriteString(renderStatusLine("Last change", statusInfo, formatTime(w.LastChange), colorize) + "\n")
	}

	if len(status.Preflight) > 0 {
		b.WriteString("\n")
		for _, line := range renderSectionHeader("Preflight", colorize) {
			b.WriteString(line + "\n")
		}
		for _, check := range status.Preflight {
			kind := statusOK
			if !check.Passed {
				kind = statusError
			}
			b.WriteString(renderStatusLine(check.Name, kind, check.Detail, colorize) + "\n")
		}
	}

	b.WriteString("\n")
	rows := make([][]string, 0, len(trust.Groups))
	for _, group := range trust.Groups {
		rows = append(rows, []string{
			groupTitle(group),
			strconv.Itoa(w.Totals[group]),
			strconv.Itoa(len(w.LastDiff.Added[group])),
			strconv.Itoa(len(w.LastDiff.Removed[group])),
		})
	}
	b.WriteString(renderTable(
		[]string{"Group", "Members", "Last added", "Last removed"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight},
	))
	b.WriteString("\n")
	return b.String()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
