package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"github.com/larksuite/oapi-sdk-go/v3/ws"
	"github.com/lordievader/matrix-zabbix-bot/internal/logger"
	"github.com/lordievader/matrix-zabbix-bot/pkg/constants"
	"github.com/sirupsen/logrus"
)

// FeishuOptions configures the Feishu (Lark) transport
type FeishuOptions struct {
	AppID             string
	AppSecret         string
	EncryptKey        string // Optional, for encrypted events
	VerificationToken string // Optional, for event verification
}

// FeishuBot implements BotAdapter for Feishu (Lark) using a WebSocket long connection
type FeishuBot struct {
	opts       FeishuOptions
	larkClient *lark.Client
}

// NewFeishuBot creates a new Feishu bot instance
func NewFeishuBot(opts FeishuOptions) *FeishuBot {
	return &FeishuBot{
		opts:       opts,
		larkClient: lark.NewClient(opts.AppID, opts.AppSecret),
	}
}

// Name returns the platform name
func (f *FeishuBot) Name() string {
	return "feishu"
}

// Run opens the long connection and listens until ctx is cancelled
func (f *FeishuBot) Run(ctx context.Context, handler func(BotMessage)) error {
	logger.WithFields(logrus.Fields{
		"app_id": maskSecret(f.opts.AppID),
	}).Info("starting-feishu-bot-with-websocket-long-connection")

	d := dispatcher.NewEventDispatcher(f.opts.VerificationToken, f.opts.EncryptKey)
	d.OnP2MessageReceiveV1(func(_ context.Context, ev *larkim.P2MessageReceiveV1) error {
		if msg, ok := feishuMessage(ev); ok && handler != nil {
			handler(msg)
		}
		return nil
	})

	wsClient := ws.NewClient(f.opts.AppID, f.opts.AppSecret,
		ws.WithEventHandler(d),
		ws.WithLogLevel(larkcore.LogLevelInfo),
		ws.WithAutoReconnect(true),
	)

	// Start only returns on a failed connect
	errCh := make(chan error, 1)
	go func() {
		errCh <- wsClient.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info("feishu-bot-stopped")
		return nil
	case err := <-errCh:
		if err == nil {
			return fmt.Errorf("feishu long connection closed")
		}
		return fmt.Errorf("feishu websocket connection failed: %w", err)
	}
}

// feishuMessage converts a receive event into a BotMessage. Only text
// messages are forwarded.
func feishuMessage(ev *larkim.P2MessageReceiveV1) (BotMessage, bool) {
	if ev == nil || ev.Event == nil || ev.Event.Message == nil {
		return BotMessage{}, false
	}
	m := ev.Event.Message
	if m.MessageType == nil || *m.MessageType != larkim.MsgTypeText || m.Content == nil || m.ChatId == nil {
		return BotMessage{}, false
	}

	var senderID string
	if ev.Event.Sender != nil && ev.Event.Sender.SenderId != nil && ev.Event.Sender.SenderId.UserId != nil {
		senderID = *ev.Event.Sender.SenderId.UserId
	}
	content := extractTextContent(*m.Content)

	logger.WithFields(logrus.Fields{
		"platform":    "feishu",
		"user_id":     senderID,
		"chat_id":     *m.ChatId,
		"content_len": len(content),
	}).Debug("received-feishu-message")

	return BotMessage{
		Platform:  "feishu",
		UserID:    senderID,
		Channel:   *m.ChatId,
		Content:   content,
		Timestamp: time.Now(),
	}, true
}

type feishuText struct {
	Text string `json:"text"`
}

// extractTextContent extracts the text from a Feishu text payload like
// {"text":"actual message"}. Anything else is returned unchanged.
func extractTextContent(content string) string {
	var payload feishuText
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return content
	}
	return payload.Text
}

// SendMessage sends the plain text rendition of msg to a Feishu chat
func (f *FeishuBot) SendMessage(ctx context.Context, chatID string, msg OutgoingMessage) error {
	if f.larkClient == nil {
		return ErrNotConnected
	}
	if chatID == "" {
		return fmt.Errorf("chat ID is required for Feishu")
	}

	text := truncate(msg.Plain, constants.MaxFeishuMessageLength, "feishu")
	content, err := json.Marshal(feishuText{Text: text})
	if err != nil {
		return fmt.Errorf("failed to encode feishu message: %w", err)
	}

	body := larkim.NewCreateMessageReqBodyBuilder().
		ReceiveId(chatID).
		MsgType(larkim.MsgTypeText).
		Content(string(content)).
		Build()

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(larkim.ReceiveIdTypeChatId).
		Body(body).
		Build()

	resp, err := f.larkClient.Im.Message.Create(ctx, req)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"chat_id": chatID,
			"error":   err,
		}).Error("failed-to-send-message-to-feishu")
		return fmt.Errorf("failed to send message to chat %s: %w", chatID, err)
	}

	if !resp.Success() {
		logger.WithFields(logrus.Fields{
			"chat_id":    chatID,
			"code":       resp.Code,
			"msg":        resp.Msg,
			"request_id": resp.RequestId(),
		}).Error("failed-to-send-message-to-feishu-api-error")
		return fmt.Errorf("API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}

	logger.WithField("chat_id", chatID).Info("message-sent-to-feishu")
	return nil
}
