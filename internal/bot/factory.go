package bot

import (
	"fmt"

	"github.com/lordievader/matrix-zabbix-bot/internal/config"
)

// MatrixFromConfig builds the Matrix adapter for the [Matrix] settings
func MatrixFromConfig(c config.MatrixConfig) *MatrixBot {
	return NewMatrixBot(MatrixOptions{
		Homeserver: c.Homeserver,
		Port:       c.Port,
		Username:   c.Username,
		Password:   c.Password,
		Token:      c.Token,
		DeviceID:   c.DeviceID,
		Domain:     c.Domain,
		Room:       c.Room,
	})
}

// NewPlatformBot builds the adapter for an additional chat platform
func NewPlatformBot(name string, c config.PlatformConfig) (BotAdapter, error) {
	switch name {
	case "telegram":
		if c.Token == "" {
			return nil, fmt.Errorf("telegram bot requires a token")
		}
		return NewTelegramBot(c.Token), nil
	case "discord":
		if c.Token == "" {
			return nil, fmt.Errorf("discord bot requires a token")
		}
		return NewDiscordBot(c.Token, c.ChannelID), nil
	case "feishu":
		if c.AppID == "" || c.AppSecret == "" {
			return nil, fmt.Errorf("feishu bot requires app_id and app_secret")
		}
		return NewFeishuBot(FeishuOptions{
			AppID:             c.AppID,
			AppSecret:         c.AppSecret,
			EncryptKey:        c.EncryptKey,
			VerificationToken: c.VerificationToken,
		}), nil
	case "dingtalk":
		if c.AppID == "" || c.AppSecret == "" {
			return nil, fmt.Errorf("dingtalk bot requires app_id and app_secret")
		}
		return NewDingTalkBot(c.AppID, c.AppSecret), nil
	default:
		return nil, fmt.Errorf("unsupported bot type: %s", name)
	}
}
