package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lordievader/matrix-zabbix-bot/internal/logger"
	"github.com/lordievader/matrix-zabbix-bot/pkg/constants"
	"github.com/sirupsen/logrus"
)

// DiscordSessionInterface defines the interface we need from discordgo.Session
// This allows us to mock it in tests without depending on concrete types
type DiscordSessionInterface interface {
	AddHandler(handler interface{}) func()
	Open() error
	Close() error
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordBot implements BotAdapter for Discord
type DiscordBot struct {
	mu         sync.RWMutex
	token      string
	channelID  string
	session    DiscordSessionInterface
	newSession func(token string) (DiscordSessionInterface, error)
}

// NewDiscordBot creates a new Discord bot instance
func NewDiscordBot(token, channelID string) *DiscordBot {
	return &DiscordBot{
		token:     token,
		channelID: channelID,
		newSession: func(token string) (DiscordSessionInterface, error) {
			return discordgo.New("Bot " + token)
		},
	}
}

// Name returns the platform name
func (d *DiscordBot) Name() string {
	return "discord"
}

// Run opens the gateway connection and keeps it until ctx is cancelled
func (d *DiscordBot) Run(ctx context.Context, handler func(BotMessage)) error {
	logger.WithFields(logrus.Fields{
		"token":   maskSecret(d.token),
		"channel": d.channelID,
	}).Info("starting-discord-bot")

	session, err := d.newSession(d.token)
	if err != nil {
		return fmt.Errorf("failed to create discord session: %w", err)
	}

	session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		d.handleMessage(m, handler)
	})

	if err := session.Open(); err != nil {
		return fmt.Errorf("failed to open discord connection: %w", err)
	}

	d.mu.Lock()
	d.session = session
	d.mu.Unlock()

	<-ctx.Done()

	d.mu.Lock()
	d.session = nil
	d.mu.Unlock()

	if err := session.Close(); err != nil {
		return fmt.Errorf("failed to close discord session: %w", err)
	}
	logger.Info("discord-bot-stopped")
	return nil
}

func (d *DiscordBot) handleMessage(m *discordgo.MessageCreate, handler func(BotMessage)) {
	if m == nil || m.Message == nil || m.Author == nil || handler == nil {
		return
	}
	// Ignore messages from bots, ourselves included
	if m.Author.Bot {
		return
	}
	if d.channelID != "" && m.ChannelID != d.channelID {
		return
	}

	logger.WithFields(logrus.Fields{
		"platform":    "discord",
		"user_id":     m.Author.ID,
		"channel":     m.ChannelID,
		"content_len": len(m.Content),
	}).Debug("received-discord-message")

	handler(BotMessage{
		Platform:  "discord",
		UserID:    m.Author.ID,
		Channel:   m.ChannelID,
		Content:   m.Content,
		Timestamp: time.Now(),
	})
}

// SendMessage sends the plain text rendition of msg to a Discord channel
func (d *DiscordBot) SendMessage(_ context.Context, channel string, msg OutgoingMessage) error {
	d.mu.RLock()
	session := d.session
	channelID := d.channelID
	d.mu.RUnlock()

	if session == nil {
		return ErrNotConnected
	}

	// Use configured channel if not specified
	target := channel
	if target == "" {
		target = channelID
	}
	if target == "" {
		return fmt.Errorf("channel ID is required for Discord")
	}

	text := truncate(msg.Plain, constants.MaxDiscordMessageLength, "discord")
	if _, err := session.ChannelMessageSend(target, text); err != nil {
		logger.WithFields(logrus.Fields{
			"channel": target,
			"error":   err,
		}).Error("failed-to-send-message-to-discord")
		return fmt.Errorf("failed to send message to channel %s: %w", target, err)
	}

	logger.WithField("channel", target).Info("message-sent-to-discord")
	return nil
}
