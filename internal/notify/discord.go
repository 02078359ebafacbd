package notify

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// discordSession abstracts the discordgo.Session methods we use, enabling
// test mocks.
type discordSession interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordNotifier posts notifications to one Discord channel as embeds.
type DiscordNotifier struct {
	sess      discordSession
	channelID string
}

// DiscordOpts holds parameters for creating a DiscordNotifier.
type DiscordOpts struct {
	BotToken  string
	ChannelID string
	// For testing: inject a mock session instead of the real Discord API.
	Session discordSession
}

// NewDiscord creates a DiscordNotifier. Delivery uses the REST API only;
// no gateway connection is opened.
func NewDiscord(opts DiscordOpts) (*DiscordNotifier, error) {
	if opts.Session == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("notify: discord bot token is required")
	}
	if opts.ChannelID == "" {
		return nil, fmt.Errorf("notify: discord channel id is required")
	}
	n := &DiscordNotifier{sess: opts.Session, channelID: opts.ChannelID}
	if n.sess == nil {
		sess, err := discordgo.New("Bot " + opts.BotToken)
		if err != nil {
			return nil, fmt.Errorf("notify: discord session: %w", err)
		}
		n.sess = sess
	}
	return n, nil
}

// Notify posts the notification as an embed.
func (n *DiscordNotifier) Notify(title, body string) error {
	embed := &discordgo.MessageEmbed{
		Title:       title,
		Description: body,
	}
	if _, err := n.sess.ChannelMessageSendEmbed(n.channelID, embed); err != nil {
		return fmt.Errorf("notify: discord post: %w", err)
	}
	return nil
}
