// Package notify posts operator notifications about finished sessions to a
// chat platform.
package notify

import (
	"context"
	"fmt"

	slacklib "github.com/slack-go/slack"
)

// Messenger posts a text message to a channel of a chat platform.
type Messenger interface {
	SendMessage(ctx context.Context, channelID, text string) error
	Platform() string
}

// SlackAPI abstracts the subset of the Slack client used by SlackMessenger.
// This allows testing without real HTTP calls.
type SlackAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slacklib.MsgOption) (string, string, error)
}

// SlackMessenger implements Messenger for Slack.
type SlackMessenger struct {
	api SlackAPI
}

// Compile-time interface check.
var _ Messenger = (*SlackMessenger)(nil) //nolint:gochecknoglobals // compile-time check

// NewSlackMessenger creates a SlackMessenger with the given API client.
func NewSlackMessenger(api SlackAPI) *SlackMessenger {
	return &SlackMessenger{api: api}
}

// SendMessage posts a plain text message to a Slack channel.
func (m *SlackMessenger) SendMessage(ctx context.Context, channelID, text string) error {
	_, _, err := m.api.PostMessageContext(ctx, channelID, slacklib.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("notify.SlackMessenger.SendMessage: %w", err)
	}
	return nil
}

func (m *SlackMessenger) Platform() string { return "slack" }
