package notify

import (
	"fmt"

	slackapi "github.com/slack-go/slack"
)

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// SlackNotifier posts notifications to one Slack channel.
type SlackNotifier struct {
	client  slackClient
	channel string
}

// SlackOpts holds parameters for creating a SlackNotifier.
type SlackOpts struct {
	BotToken string // xoxb-... Slack bot token
	Channel  string // channel id or name to post to
	// For testing: inject a mock client instead of the real Slack API.
	Client slackClient
}

// NewSlack creates a SlackNotifier.
func NewSlack(opts SlackOpts) (*SlackNotifier, error) {
	if opts.Client == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("notify: slack bot token is required")
	}
	if opts.Channel == "" {
		return nil, fmt.Errorf("notify: slack channel is required")
	}
	n := &SlackNotifier{client: opts.Client, channel: opts.Channel}
	if n.client == nil {
		n.client = slackapi.New(opts.BotToken)
	}
	return n, nil
}

// Notify posts the notification as a single message with a bold title line.
func (n *SlackNotifier) Notify(title, body string) error {
	text := fmt.Sprintf("*%s*\n%s", title, body)
	_, _, err := n.client.PostMessage(n.channel,
		slackapi.MsgOptionText(text, false),
		slackapi.MsgOptionDisableLinkUnfurl(),
	)
	if err != nil {
		return fmt.Errorf("notify: slack post: %w", err)
	}
	return nil
}
