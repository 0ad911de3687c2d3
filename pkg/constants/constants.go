package constants

import "time"

// Command prefixes
const (
	// DefaultCommandPrefix is the chat prefix handled by the trigger dispatcher
	DefaultCommandPrefix = "!zabbix"
	// DefaultProgressCommand is the chat prefix handled by the progress dispatcher
	DefaultProgressCommand = "!dnsjedi"
)

// Message bodies
const (
	// LineSeparator joins report lines into one HTML body
	LineSeparator = "<br />"
	// NoResultsMessage is sent instead of an empty report
	NoResultsMessage = "Nothing to notify"
	// ErrorLogHint is appended to error replies
	ErrorLogHint = "<br /><br />Please see my log."
	// AckMessage is stored on the Zabbix event when acknowledging
	AckMessage = "Acknowledged by the Matrix-Zabbix bot"
	// FallbackColorRule is the mandatory color rule label
	FallbackColorRule = "not classified"
	// DefaultFallbackStyle is used when the config has no fallback rule
	DefaultFallbackStyle = "#000000,•"
)

// Message length limits for different platforms
const (
	// MaxMatrixMessageLength keeps events well under the 64KiB event limit
	MaxMatrixMessageLength = 60000
	// MaxDiscordMessageLength is Discord's message character limit
	MaxDiscordMessageLength = 2000
	// MaxTelegramMessageLength is Telegram's message character limit
	MaxTelegramMessageLength = 4096
	// MaxFeishuMessageLength is Feishu's message character limit
	MaxFeishuMessageLength = 20000
	// MaxDingTalkMessageLength is DingTalk's message character limit
	MaxDingTalkMessageLength = 20000
)

// Timeouts and delays
const (
	// DefaultReconnectDelay is the flat wait before a chat transport reconnects
	DefaultReconnectDelay = 5 * time.Second
	// DefaultQueryTimeout bounds every monitoring command
	DefaultQueryTimeout = 30 * time.Second
	// DefaultPollTimeout is the timeout for long polling operations
	DefaultPollTimeout = 60 * time.Second
	// DefaultHTTPTimeout is the timeout for hook HTTP requests
	DefaultHTTPTimeout = 5 * time.Second
	// ShutdownTimeout bounds the hook server graceful shutdown
	ShutdownTimeout = 5 * time.Second
)

// Message buffer sizes
const (
	// MessageChannelBufferSize is the buffer size for the inbound message channel
	MessageChannelBufferSize = 100
)

// Progress forecast
const (
	// ForecastNever is the sentinel forecast value meaning "not in sight"
	ForecastNever = 999999999999
	// ForecastLateHour marks completions after this UTC hour with a warning
	ForecastLateHour = 20
)

// Secret masking
const (
	// MinSecretLengthForMasking is the minimum secret length to keep a prefix and suffix
	MinSecretLengthForMasking = 8
	// SecretMaskPrefixLength is the length of prefix to show before masking
	SecretMaskPrefixLength = 4
	// SecretMaskSuffixLength is the length of suffix to show after masking
	SecretMaskSuffixLength = 4
)

// Logging defaults
const (
	// DefaultLogMaxSize is the default maximum log file size in MB
	DefaultLogMaxSize = 100
	// DefaultLogMaxAge is the default maximum number of days to retain old logs
	DefaultLogMaxAge = 30
	// HTTPSuccessStatusCode is the standard HTTP success status code
	HTTPSuccessStatusCode = 200
)

// Matrix defaults
const (
	// DefaultMatrixPort is the homeserver port when none is configured
	DefaultMatrixPort = 443
	// DefaultMessageType is the msgtype of outgoing events
	DefaultMessageType = "m.text"
	// DefaultDeviceID names the device created by password logins
	DefaultDeviceID = "zabbixbot"
)
