// Package notifications posts membership change messages to Slack.
//
// NewService returns a chat.postMessage client when a bot token and channel
// are configured and a silent no-op otherwise. Delivery is best effort:
// callers log failures and move on.
package notifications
