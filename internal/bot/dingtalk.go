package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lordievader/matrix-zabbix-bot/internal/logger"
	"github.com/lordievader/matrix-zabbix-bot/pkg/constants"
	"github.com/open-dingtalk/dingtalk-stream-sdk-go/chatbot"
	"github.com/open-dingtalk/dingtalk-stream-sdk-go/client"
	"github.com/sirupsen/logrus"
)

// dingtalkReplier posts text to a conversation's session webhook
type dingtalkReplier interface {
	SimpleReplyText(ctx context.Context, sessionWebhook string, content []byte) error
}

type sessionWebhook struct {
	url     string
	expires time.Time // zero means no expiry was announced
}

// DingTalkBot implements BotAdapter for DingTalk using the stream (WebSocket)
// connection. DingTalk bots can only answer through the session webhook of
// a conversation that messaged them, so webhooks are remembered per
// conversation.
type DingTalkBot struct {
	mu           sync.RWMutex
	clientID     string
	clientSecret string
	replier      dingtalkReplier
	webhooks     map[string]sessionWebhook
	now          func() time.Time
}

// NewDingTalkBot creates a new DingTalk bot instance
func NewDingTalkBot(clientID, clientSecret string) *DingTalkBot {
	return &DingTalkBot{
		clientID:     clientID,
		clientSecret: clientSecret,
		replier:      chatbot.NewChatbotReplier(),
		webhooks:     make(map[string]sessionWebhook),
		now:          time.Now,
	}
}

// Name returns the platform name
func (d *DingTalkBot) Name() string {
	return "dingtalk"
}

// Run opens the stream connection and listens until ctx is cancelled
func (d *DingTalkBot) Run(ctx context.Context, handler func(BotMessage)) error {
	logger.WithFields(logrus.Fields{
		"client_id": maskSecret(d.clientID),
	}).Info("starting-dingtalk-bot-with-websocket-long-connection")

	credential := client.NewAppCredentialConfig(d.clientID, d.clientSecret)
	streamClient := client.NewStreamClient(client.WithAppCredential(credential))
	streamClient.RegisterChatBotCallbackRouter(func(_ context.Context, data *chatbot.BotCallbackDataModel) ([]byte, error) {
		if msg, ok := d.handleMessage(data); ok && handler != nil {
			handler(msg)
		}
		return []byte(""), nil
	})

	if err := streamClient.Start(ctx); err != nil {
		return fmt.Errorf("dingtalk stream connection failed: %w", err)
	}
	logger.Info("dingtalk-websocket-long-connection-started")

	<-ctx.Done()
	streamClient.Close()
	logger.Info("dingtalk-bot-stopped")
	return nil
}

// handleMessage records the conversation webhook and converts text callbacks
func (d *DingTalkBot) handleMessage(data *chatbot.BotCallbackDataModel) (BotMessage, bool) {
	if data == nil || data.ConversationId == "" {
		return BotMessage{}, false
	}

	if data.SessionWebhook != "" {
		hook := sessionWebhook{url: data.SessionWebhook}
		if data.SessionWebhookExpiredTime > 0 {
			hook.expires = time.UnixMilli(data.SessionWebhookExpiredTime)
		}
		d.mu.Lock()
		d.webhooks[data.ConversationId] = hook
		d.mu.Unlock()
	}

	if data.Msgtype != "text" {
		return BotMessage{}, false
	}

	logger.WithFields(logrus.Fields{
		"platform":          "dingtalk",
		"conversation_id":   data.ConversationId,
		"conversation_type": data.ConversationType,
		"sender_staff_id":   data.SenderStaffId,
		"msg_id":            data.MsgId,
		"content_len":       len(data.Text.Content),
	}).Debug("received-dingtalk-message")

	return BotMessage{
		Platform:  "dingtalk",
		UserID:    data.SenderStaffId,
		Channel:   data.ConversationId,
		Content:   data.Text.Content,
		Timestamp: time.Now(),
	}, true
}

// SendMessage answers a conversation through its session webhook
func (d *DingTalkBot) SendMessage(ctx context.Context, conversationID string, msg OutgoingMessage) error {
	if conversationID == "" {
		return fmt.Errorf("conversation ID is required for DingTalk")
	}

	d.mu.RLock()
	hook, ok := d.webhooks[conversationID]
	d.mu.RUnlock()

	if !ok {
		return fmt.Errorf("no session webhook known for conversation %s", conversationID)
	}
	if !hook.expires.IsZero() && d.now().After(hook.expires) {
		d.mu.Lock()
		delete(d.webhooks, conversationID)
		d.mu.Unlock()
		return fmt.Errorf("session webhook for conversation %s expired", conversationID)
	}

	text := truncate(msg.Plain, constants.MaxDingTalkMessageLength, "dingtalk")
	if err := d.replier.SimpleReplyText(ctx, hook.url, []byte(text)); err != nil {
		logger.WithFields(logrus.Fields{
			"conversation_id": conversationID,
			"error":           err,
		}).Error("failed-to-send-message-to-dingtalk")
		return fmt.Errorf("failed to send message to conversation %s: %w", conversationID, err)
	}

	logger.WithField("conversation_id", conversationID).Info("message-sent-to-dingtalk")
	return nil
}
