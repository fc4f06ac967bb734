package discord

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

// Notifier posts announcements to the configured Discord channel. All sends
// are best-effort: failures are logged and never propagated to the caller.
type Notifier struct {
	session   *discordgo.Session
	channelID string
	logger    *slog.Logger
}

// NewNotifier creates a channel notifier. An empty bot token or channel id
// yields a disabled notifier that drops every message.
func NewNotifier(log *slog.Logger, botToken, channelID string) (*Notifier, error) {
	if log == nil {
		log = slog.Default()
	}
	n := &Notifier{
		channelID: channelID,
		logger:    log.With(slog.String("component", "discord-notify")),
	}
	if botToken == "" || channelID == "" {
		return n, nil
	}
	s, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	n.session = s
	return n, nil
}

// UserJoined announces a completed onboarding. Fire-and-forget.
func (n *Notifier) UserJoined(_ context.Context, name string) {
	n.send(fmt.Sprintf("**%s** just joined the team!", name))
}

func (n *Notifier) send(content string) {
	if n.session == nil {
		return
	}
	go func() {
		if _, err := n.session.ChannelMessageSend(n.channelID, content); err != nil {
			n.logger.Warn("notification send failed", slog.Any("error", err))
		}
	}()
}
