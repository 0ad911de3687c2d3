// Package bot provides chat transports for the monitoring relay.
//
// Matrix is the primary transport. Telegram, Discord, Feishu (Lark) and
// DingTalk are available as additional platforms. Each adapter handles the
// platform specific connection, message conversion and sending.
//
// # Usage
//
//	matrixBot := bot.NewMatrixBot(bot.MatrixOptions{...})
//	err := matrixBot.Run(ctx, func(msg bot.BotMessage) {
//	    fmt.Printf("Received: %s\n", msg.Content)
//	})
//
// Run blocks until the context is cancelled or the connection is lost. The
// caller decides whether to reconnect.
//
// # Thread Safety
//
// SendMessage may be called from any goroutine while Run is active. The
// message handler is called from the adapter's receiving goroutine.
package bot

import (
	"context"
	"errors"
	"time"

	"github.com/lordievader/matrix-zabbix-bot/internal/format"
)

// ErrNotConnected is returned by SendMessage before Run established a session
var ErrNotConnected = errors.New("bot is not connected")

// BotAdapter defines the interface for chat transports
type BotAdapter interface {
	// Name returns the platform name used in config and logs
	Name() string

	// Run connects, delivers inbound messages to handler and blocks until
	// ctx is cancelled (nil error) or the connection fails
	Run(ctx context.Context, handler func(BotMessage)) error

	// SendMessage posts msg to channel. Adapter is responsible for:
	//   - Truncating to platform limits
	//   - Picking the HTML or the plain rendering
	SendMessage(ctx context.Context, channel string, msg OutgoingMessage) error
}

// BotMessage represents an inbound chat message
type BotMessage struct {
	Platform  string // matrix/telegram/discord/feishu/dingtalk
	UserID    string // sender
	Channel   string // room or chat id replies go to
	Content   string // plain text body
	Timestamp time.Time
}

// OutgoingMessage carries both renderings of a reply
type OutgoingMessage struct {
	HTML    string // formatted body
	Plain   string // fallback body for clients and platforms without HTML
	MsgType string // Matrix msgtype, empty means m.text
}

// NewOutgoingMessage derives the plain rendering from an HTML body
func NewOutgoingMessage(body, msgType string) OutgoingMessage {
	return OutgoingMessage{
		HTML:    body,
		Plain:   format.ToPlainText(body),
		MsgType: msgType,
	}
}
