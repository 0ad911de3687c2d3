package bot

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/lordievader/matrix-zabbix-bot/internal/logger"
	"github.com/lordievader/matrix-zabbix-bot/pkg/constants"
	"github.com/sirupsen/logrus"
)

// telegramSender is the part of *tgbotapi.BotAPI used to post messages
type telegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramBot implements BotAdapter for Telegram using long polling
type TelegramBot struct {
	mu     sync.RWMutex
	token  string
	sender telegramSender
}

// NewTelegramBot creates a new Telegram bot instance
func NewTelegramBot(token string) *TelegramBot {
	return &TelegramBot{
		token: token,
	}
}

// Name returns the platform name
func (t *TelegramBot) Name() string {
	return "telegram"
}

// Run long polls Telegram for updates until ctx is cancelled
func (t *TelegramBot) Run(ctx context.Context, handler func(BotMessage)) error {
	logger.WithFields(logrus.Fields{
		"token": maskSecret(t.token),
	}).Info("starting-telegram-bot-with-long-polling")

	api, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("failed to initialize Telegram bot: %w", err)
	}

	t.mu.Lock()
	t.sender = api
	t.mu.Unlock()

	defer func() {
		api.StopReceivingUpdates()
		t.mu.Lock()
		t.sender = nil
		t.mu.Unlock()
	}()

	logger.WithFields(logrus.Fields{
		"bot_username": api.Self.UserName,
		"bot_id":       api.Self.ID,
	}).Info("telegram-bot-initialized-successfully")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = int(constants.DefaultPollTimeout.Seconds())
	updates := api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			logger.Info("telegram-long-polling-stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				return fmt.Errorf("telegram updates channel closed")
			}
			t.handleMessage(update.Message, handler)
		}
	}
}

// handleMessage forwards text messages to handler
func (t *TelegramBot) handleMessage(message *tgbotapi.Message, handler func(BotMessage)) {
	if message == nil || message.Text == "" || handler == nil {
		return
	}

	var userID, chatID string
	if message.From != nil {
		userID = strconv.FormatInt(message.From.ID, 10)
	}
	if message.Chat != nil {
		chatID = strconv.FormatInt(message.Chat.ID, 10)
	}

	logger.WithFields(logrus.Fields{
		"platform":    "telegram",
		"user_id":     userID,
		"chat_id":     chatID,
		"message_id":  message.MessageID,
		"content_len": len(message.Text),
	}).Debug("received-telegram-message")

	handler(BotMessage{
		Platform:  "telegram",
		UserID:    userID,
		Channel:   chatID,
		Content:   message.Text,
		Timestamp: time.Now(),
	})
}

// SendMessage sends the plain text rendition of msg to a Telegram chat
func (t *TelegramBot) SendMessage(_ context.Context, chatID string, msg OutgoingMessage) error {
	t.mu.RLock()
	sender := t.sender
	t.mu.RUnlock()

	if sender == nil {
		return ErrNotConnected
	}
	if chatID == "" {
		return fmt.Errorf("chat ID is required for Telegram")
	}

	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID format: %w", err)
	}

	text := truncate(msg.Plain, constants.MaxTelegramMessageLength, "telegram")
	if _, err := sender.Send(tgbotapi.NewMessage(id, text)); err != nil {
		logger.WithFields(logrus.Fields{
			"chat_id": chatID,
			"error":   err,
		}).Error("failed-to-send-message-to-telegram")
		return fmt.Errorf("failed to send message to chat %s: %w", chatID, err)
	}

	logger.WithField("chat_id", chatID).Info("message-sent-to-telegram")
	return nil
}
