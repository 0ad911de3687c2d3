package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lordievader/matrix-zabbix-bot/internal/logger"
	"github.com/lordievader/matrix-zabbix-bot/pkg/constants"
	"github.com/sirupsen/logrus"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// MatrixOptions configures the Matrix transport
type MatrixOptions struct {
	Homeserver string // host name or URL
	Port       int
	Username   string // localpart or full user id
	Password   string
	Token      string // access token, preferred over Password
	DeviceID   string
	Domain     string // server name used to qualify bare room and user ids
	Room       string // joined when connecting
}

// matrixSender is the part of *mautrix.Client used to post messages
type matrixSender interface {
	JoinRoom(ctx context.Context, roomIDorAlias, serverName string, content interface{}) (*mautrix.RespJoinRoom, error)
	SendMessageEvent(ctx context.Context, roomID id.RoomID, eventType event.Type, contentJSON interface{}, extra ...mautrix.ReqSendEvent) (*mautrix.RespSendEvent, error)
}

// MatrixBot implements BotAdapter for Matrix using the client-server sync API
type MatrixBot struct {
	mu       sync.RWMutex
	opts     MatrixOptions
	client   matrixSender
	userID   id.UserID
	joined   map[id.RoomID]bool
	aliases  map[id.RoomAlias]id.RoomID
	session  *mautrix.Client
	loggedIn bool // token obtained by our own password login
}

// NewMatrixBot creates a new Matrix bot instance
func NewMatrixBot(opts MatrixOptions) *MatrixBot {
	if opts.DeviceID == "" {
		opts.DeviceID = constants.DefaultDeviceID
	}
	return &MatrixBot{
		opts:    opts,
		joined:  make(map[id.RoomID]bool),
		aliases: make(map[id.RoomAlias]id.RoomID),
	}
}

// Name returns the platform name
func (m *MatrixBot) Name() string {
	return "matrix"
}

// HomeserverURL builds the client-server API base URL. Bare host names get an
// https scheme and the configured port.
func HomeserverURL(server string, port int) string {
	server = strings.TrimRight(strings.TrimSpace(server), "/")
	if strings.HasPrefix(server, "http://") || strings.HasPrefix(server, "https://") {
		return server
	}
	if port == 0 {
		port = constants.DefaultMatrixPort
	}
	return "https://" + server + ":" + strconv.Itoa(port)
}

// UserID qualifies a username with domain unless it already is a user id
func UserID(username, domain string) id.UserID {
	if strings.HasPrefix(username, "@") {
		return id.UserID(username)
	}
	return id.NewUserID(username, domain)
}

// RoomID qualifies a bare room id or alias with domain
func RoomID(room, domain string) id.RoomID {
	if room == "" || strings.Contains(room, ":") || domain == "" {
		return id.RoomID(room)
	}
	return id.RoomID(room + ":" + domain)
}

// Connect logs in with the stored token or the password. It is called by
// Run and may be used directly for one-shot sends.
func (m *MatrixBot) Connect(ctx context.Context) error {
	client, err := mautrix.NewClient(HomeserverURL(m.opts.Homeserver, m.opts.Port), "", "")
	if err != nil {
		return fmt.Errorf("failed to create matrix client: %w", err)
	}

	m.mu.RLock()
	opts, loggedIn, self := m.opts, m.loggedIn, m.userID
	m.mu.RUnlock()

	if opts.Token != "" {
		client.UserID = self
		if client.UserID == "" {
			client.UserID = UserID(opts.Username, opts.Domain)
		}
		client.AccessToken = opts.Token
		client.DeviceID = id.DeviceID(opts.DeviceID)
	} else {
		if err := passwordLogin(ctx, client, opts); err != nil {
			return err
		}
		loggedIn = true
	}

	logger.WithFields(logrus.Fields{
		"homeserver": client.HomeserverURL.String(),
		"user_id":    client.UserID.String(),
		"token":      maskSecret(client.AccessToken),
	}).Info("matrix-session-established")

	// reconnects reuse the token instead of creating a device per login
	m.mu.Lock()
	m.session = client
	m.client = client
	m.userID = client.UserID
	m.opts.Token = client.AccessToken
	m.loggedIn = loggedIn
	m.joined = make(map[id.RoomID]bool)
	m.aliases = make(map[id.RoomAlias]id.RoomID)
	m.mu.Unlock()
	return nil
}

func passwordLogin(ctx context.Context, client *mautrix.Client, opts MatrixOptions) error {
	if opts.Password == "" {
		return fmt.Errorf("matrix login needs a password or an access token")
	}
	_, err := client.Login(ctx, &mautrix.ReqLogin{
		Type: mautrix.AuthTypePassword,
		Identifier: mautrix.UserIdentifier{
			Type: mautrix.IdentifierTypeUser,
			User: opts.Username,
		},
		Password:         opts.Password,
		DeviceID:         id.DeviceID(opts.DeviceID),
		StoreCredentials: true,
	})
	if err != nil {
		return fmt.Errorf("matrix login failed for %s: %w", opts.Username, err)
	}
	return nil
}

// Token logs in with the password and returns the new access token
func Token(ctx context.Context, opts MatrixOptions) (string, error) {
	if opts.DeviceID == "" {
		opts.DeviceID = constants.DefaultDeviceID
	}
	client, err := mautrix.NewClient(HomeserverURL(opts.Homeserver, opts.Port), "", "")
	if err != nil {
		return "", fmt.Errorf("failed to create matrix client: %w", err)
	}
	if err := passwordLogin(ctx, client, opts); err != nil {
		return "", err
	}
	return client.AccessToken, nil
}

// Close ends a session that was created by a password login. Token based
// sessions are left alone.
func (m *MatrixBot) Close(ctx context.Context) error {
	m.mu.Lock()
	session, loggedIn := m.session, m.loggedIn
	m.session, m.client, m.loggedIn = nil, nil, false
	if loggedIn {
		m.opts.Token = ""
	}
	m.mu.Unlock()

	if session == nil || !loggedIn {
		return nil
	}
	if _, err := session.Logout(ctx); err != nil {
		return fmt.Errorf("matrix logout failed: %w", err)
	}
	logger.Info("matrix-session-logged-out")
	return nil
}

// JoinRoom joins room once per session. Aliases (#name) are resolved by the
// homeserver and remembered for SendMessage.
func (m *MatrixBot) JoinRoom(ctx context.Context, room string) error {
	_, err := m.joinRoom(ctx, room)
	return err
}

func (m *MatrixBot) joinRoom(ctx context.Context, room string) (id.RoomID, error) {
	target := string(RoomID(room, m.opts.Domain))

	m.mu.RLock()
	client := m.client
	roomID, known := m.lookupRoom(target)
	m.mu.RUnlock()

	if client == nil {
		return "", ErrNotConnected
	}
	if known {
		return roomID, nil
	}

	resp, err := client.JoinRoom(ctx, target, "", nil)
	if err != nil {
		return "", fmt.Errorf("failed to join room %s: %w", target, err)
	}
	roomID = resp.RoomID
	if roomID == "" {
		roomID = id.RoomID(target)
	}

	m.mu.Lock()
	m.joined[roomID] = true
	if strings.HasPrefix(target, "#") {
		m.aliases[id.RoomAlias(target)] = roomID
	}
	m.mu.Unlock()

	logger.WithFields(logrus.Fields{
		"room":    target,
		"room_id": roomID.String(),
	}).Info("matrix-room-joined")
	return roomID, nil
}

// lookupRoom returns the joined room id for target. Caller holds m.mu.
func (m *MatrixBot) lookupRoom(target string) (id.RoomID, bool) {
	if strings.HasPrefix(target, "#") {
		roomID, ok := m.aliases[id.RoomAlias(target)]
		return roomID, ok
	}
	roomID := id.RoomID(target)
	return roomID, m.joined[roomID]
}

// Run connects, joins the configured room and syncs until ctx is cancelled
func (m *MatrixBot) Run(ctx context.Context, handler func(BotMessage)) error {
	logger.WithFields(logrus.Fields{
		"homeserver": m.opts.Homeserver,
		"user":       m.opts.Username,
	}).Info("starting-matrix-bot")

	if err := m.Connect(ctx); err != nil {
		return err
	}
	if m.opts.Room != "" {
		if err := m.JoinRoom(ctx, m.opts.Room); err != nil {
			return err
		}
	}

	m.mu.RLock()
	session := m.session
	m.mu.RUnlock()

	syncer, ok := session.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return fmt.Errorf("unexpected matrix syncer %T", session.Syncer)
	}

	started := time.Now()
	syncer.OnEventType(event.EventMessage, func(_ context.Context, evt *event.Event) {
		m.handleEvent(evt, started, handler)
	})
	syncer.OnEventType(event.StateMember, func(ctx context.Context, evt *event.Event) {
		m.handleMembership(ctx, evt)
	})

	logger.Info("matrix-sync-started")
	err := session.SyncWithContext(ctx)
	if ctx.Err() != nil {
		logger.Info("matrix-sync-stopped")
		return nil
	}
	if err == nil {
		return fmt.Errorf("matrix sync ended unexpectedly")
	}
	return fmt.Errorf("matrix sync failed: %w", err)
}

// handleEvent converts a room message into a BotMessage. Messages sent by
// the bot itself, events from before the session started (the initial sync
// backlog) and non-text messages are dropped.
func (m *MatrixBot) handleEvent(evt *event.Event, since time.Time, handler func(BotMessage)) {
	if evt == nil || handler == nil {
		return
	}

	m.mu.RLock()
	self := m.userID
	m.mu.RUnlock()

	if evt.Sender == self {
		return
	}
	sent := time.UnixMilli(evt.Timestamp)
	if sent.Before(since) {
		return
	}
	msg := evt.Content.AsMessage()
	if msg == nil || msg.MsgType != event.MsgText {
		return
	}

	logger.WithFields(logrus.Fields{
		"platform":    "matrix",
		"user_id":     evt.Sender.String(),
		"room":        evt.RoomID.String(),
		"event_id":    evt.ID.String(),
		"content_len": len(msg.Body),
	}).Debug("received-matrix-message")

	handler(BotMessage{
		Platform:  "matrix",
		UserID:    evt.Sender.String(),
		Channel:   evt.RoomID.String(),
		Content:   msg.Body,
		Timestamp: sent,
	})
}

// handleMembership accepts invites addressed to the bot
func (m *MatrixBot) handleMembership(ctx context.Context, evt *event.Event) {
	if evt == nil || evt.StateKey == nil {
		return
	}
	m.mu.RLock()
	self := m.userID
	m.mu.RUnlock()

	member := evt.Content.AsMember()
	if member == nil || member.Membership != event.MembershipInvite || id.UserID(*evt.StateKey) != self {
		return
	}
	if err := m.JoinRoom(ctx, evt.RoomID.String()); err != nil {
		logger.WithFields(logrus.Fields{
			"room":  evt.RoomID.String(),
			"error": err,
		}).Warn("failed-to-accept-matrix-invite")
	}
}

// SendMessage posts msg as an HTML formatted m.room.message event
func (m *MatrixBot) SendMessage(ctx context.Context, room string, msg OutgoingMessage) error {
	m.mu.RLock()
	client := m.client
	m.mu.RUnlock()

	if client == nil {
		return ErrNotConnected
	}
	if room == "" {
		room = m.opts.Room
	}
	if room == "" {
		return fmt.Errorf("room ID is required for Matrix")
	}
	roomID := RoomID(room, m.opts.Domain)
	if strings.HasPrefix(room, "#") {
		resolved, err := m.joinRoom(ctx, room)
		if err != nil {
			return err
		}
		roomID = resolved
	}

	msgType := event.MessageType(msg.MsgType)
	if msgType == "" {
		msgType = event.MsgText
	}

	content := &event.MessageEventContent{
		MsgType:       msgType,
		Body:          truncateLines(msg.Plain, "\n", constants.MaxMatrixMessageLength/2, "matrix"),
		Format:        event.FormatHTML,
		FormattedBody: truncateLines(msg.HTML, constants.LineSeparator, constants.MaxMatrixMessageLength/2, "matrix"),
	}

	resp, err := client.SendMessageEvent(ctx, roomID, event.EventMessage, content)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"room":  roomID.String(),
			"error": err,
		}).Error("failed-to-send-message-to-matrix")
		return fmt.Errorf("failed to send message to room %s: %w", roomID, err)
	}

	logger.WithFields(logrus.Fields{
		"room":     roomID.String(),
		"event_id": resp.EventID.String(),
	}).Info("message-sent-to-matrix")
	return nil
}
