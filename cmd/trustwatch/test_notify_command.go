package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"trustwatch/internal/notifications"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification to the configured Slack channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !cfg.NotificationsEnabled() {
				fmt.Fprintln(out, "Notifications not configured (set SLACK_BOT_TOKEN and SLACK_CHANNEL_ID)")
				return nil
			}
			notifier := notifications.NewService(cfg, cliLogger(cmd, cfg))
			if err := notifier.TestNotification(cmd.Context()); err != nil {
				fmt.Fprintln(out, "Notification not sent")
				return err
			}
			fmt.Fprintln(out, "Test notification sent")
			return nil
		},
	}
}
