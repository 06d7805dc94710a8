package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"guard-go/internal/guard"
)

// Embed colors per alert level.
const (
	colorInfo    = 0x3498DB
	colorSuccess = 0x2ECC71
	colorWarning = 0xE67E22
	colorError   = 0xE74C3C
)

// ChannelNotifier delivers alerts as embeds to a guild text channel.
type ChannelNotifier struct {
	session   *discordgo.Session
	channelID string
}

// NewChannelNotifier creates a notifier posting to the given channel.
func NewChannelNotifier(session *discordgo.Session, channelID string) *ChannelNotifier {
	return &ChannelNotifier{session: session, channelID: channelID}
}

// Notify posts one alert embed.
func (n *ChannelNotifier) Notify(ctx context.Context, a guard.Alert) error {
	embed := &discordgo.MessageEmbed{
		Title:       a.Title,
		Description: a.Message,
		Color:       levelColor(a.Level),
		Timestamp:   a.Time.Format("2006-01-02T15:04:05Z07:00"),
		Footer:      &discordgo.MessageEmbedFooter{Text: a.ID},
	}

	_, err := n.session.ChannelMessageSendEmbed(n.channelID, embed,
		discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("sending alert embed: %w", err)
	}
	return nil
}

func levelColor(level guard.AlertLevel) int {
	switch level {
	case guard.AlertSuccess:
		return colorSuccess
	case guard.AlertWarning:
		return colorWarning
	case guard.AlertError:
		return colorError
	default:
		return colorInfo
	}
}

var _ guard.Notifier = (*ChannelNotifier)(nil)
