package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

type sentEvent struct {
	Room    id.RoomID
	Type    event.Type
	Content *event.MessageEventContent
}

// fakeMatrix records joins and sends instead of talking to a homeserver
type fakeMatrix struct {
	mu      sync.Mutex
	joins   []string
	aliases map[string]id.RoomID
	events  []sentEvent
	sendErr error
	joinErr error
}

func (f *fakeMatrix) JoinRoom(_ context.Context, roomIDorAlias, _ string, _ interface{}) (*mautrix.RespJoinRoom, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.joinErr != nil {
		return nil, f.joinErr
	}
	f.joins = append(f.joins, roomIDorAlias)
	if resolved, ok := f.aliases[roomIDorAlias]; ok {
		return &mautrix.RespJoinRoom{RoomID: resolved}, nil
	}
	return &mautrix.RespJoinRoom{RoomID: id.RoomID(roomIDorAlias)}, nil
}

func (f *fakeMatrix) SendMessageEvent(_ context.Context, roomID id.RoomID, eventType event.Type, contentJSON interface{}, _ ...mautrix.ReqSendEvent) (*mautrix.RespSendEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	content, _ := contentJSON.(*event.MessageEventContent)
	f.events = append(f.events, sentEvent{Room: roomID, Type: eventType, Content: content})
	return &mautrix.RespSendEvent{EventID: "$evt"}, nil
}

func connectedMatrix(t *testing.T) (*MatrixBot, *fakeMatrix) {
	t.Helper()
	m := NewMatrixBot(MatrixOptions{
		Homeserver: "matrix.example.com",
		Username:   "zabbix",
		Domain:     "example.com",
		Room:       "!ops",
	})
	fake := &fakeMatrix{}
	m.client = fake
	m.userID = "@zabbix:example.com"
	return m, fake
}

func TestHomeserverURL(t *testing.T) {
	tests := []struct {
		server string
		port   int
		want   string
	}{
		{"matrix.example.com", 0, "https://matrix.example.com:443"},
		{"matrix.example.com", 8448, "https://matrix.example.com:8448"},
		{"https://matrix.example.com/", 8448, "https://matrix.example.com"},
		{"http://localhost:8008", 0, "http://localhost:8008"},
	}
	for _, tt := range tests {
		t.Run(tt.server, func(t *testing.T) {
			assert.Equal(t, tt.want, HomeserverURL(tt.server, tt.port))
		})
	}
}

func TestUserAndRoomID(t *testing.T) {
	assert.Equal(t, id.UserID("@zabbix:example.com"), UserID("zabbix", "example.com"))
	assert.Equal(t, id.UserID("@bot:other.org"), UserID("@bot:other.org", "example.com"))

	assert.Equal(t, id.RoomID("!ops:example.com"), RoomID("!ops", "example.com"))
	assert.Equal(t, id.RoomID("!ops:other.org"), RoomID("!ops:other.org", "example.com"))
	assert.Equal(t, id.RoomID("!ops"), RoomID("!ops", ""))
}

func TestMatrixBot_Name(t *testing.T) {
	assert.Equal(t, "matrix", NewMatrixBot(MatrixOptions{}).Name())
	assert.Equal(t, "zabbixbot", NewMatrixBot(MatrixOptions{}).opts.DeviceID)
}

func TestMatrixBot_SendMessage(t *testing.T) {
	m, fake := connectedMatrix(t)

	err := m.SendMessage(context.Background(), "", OutgoingMessage{
		HTML:    `<font color="red">x</font>`,
		Plain:   "x",
		MsgType: "m.notice",
	})
	require.NoError(t, err)

	require.Len(t, fake.events, 1)
	got := fake.events[0]
	assert.Equal(t, id.RoomID("!ops:example.com"), got.Room)
	assert.Equal(t, event.EventMessage, got.Type)
	assert.Equal(t, event.MsgNotice, got.Content.MsgType)
	assert.Equal(t, "x", got.Content.Body)
	assert.Equal(t, event.FormatHTML, got.Content.Format)
	assert.Equal(t, `<font color="red">x</font>`, got.Content.FormattedBody)
}

func TestMatrixBot_SendMessageDefaultsToText(t *testing.T) {
	m, fake := connectedMatrix(t)

	require.NoError(t, m.SendMessage(context.Background(), "!other:example.org", OutgoingMessage{HTML: "a", Plain: "a"}))
	require.Len(t, fake.events, 1)
	assert.Equal(t, id.RoomID("!other:example.org"), fake.events[0].Room)
	assert.Equal(t, event.MsgText, fake.events[0].Content.MsgType)
}

func TestMatrixBot_SendMessageTruncates(t *testing.T) {
	m, fake := connectedMatrix(t)
	long := strings.Repeat("é", 40000)

	require.NoError(t, m.SendMessage(context.Background(), "", OutgoingMessage{HTML: long, Plain: long}))
	body := fake.events[0].Content.FormattedBody
	assert.LessOrEqual(t, len(body), 30000)
	assert.True(t, strings.HasPrefix(long, body))
}

func TestMatrixBot_SendMessageErrors(t *testing.T) {
	m := NewMatrixBot(MatrixOptions{})
	assert.ErrorIs(t, m.SendMessage(context.Background(), "!ops", OutgoingMessage{}), ErrNotConnected)

	m, fake := connectedMatrix(t)
	m.opts.Room = ""
	assert.Error(t, m.SendMessage(context.Background(), "", OutgoingMessage{}))

	fake.sendErr = errors.New("M_FORBIDDEN")
	err := m.SendMessage(context.Background(), "!ops", OutgoingMessage{})
	assert.ErrorContains(t, err, "M_FORBIDDEN")
}

func TestMatrixBot_JoinRoomOnce(t *testing.T) {
	m, fake := connectedMatrix(t)
	ctx := context.Background()

	require.NoError(t, m.JoinRoom(ctx, "!ops"))
	require.NoError(t, m.JoinRoom(ctx, "!ops:example.com"))
	assert.Equal(t, []string{"!ops:example.com"}, fake.joins)

	fake.joinErr = errors.New("M_FORBIDDEN")
	assert.Error(t, m.JoinRoom(ctx, "!secret"))

	assert.ErrorIs(t, NewMatrixBot(MatrixOptions{}).JoinRoom(ctx, "!ops"), ErrNotConnected)
}

func TestMatrixBot_AliasRoomIsResolved(t *testing.T) {
	m, fake := connectedMatrix(t)
	fake.aliases = map[string]id.RoomID{"#ops:example.com": "!resolved:example.com"}
	ctx := context.Background()

	require.NoError(t, m.JoinRoom(ctx, "#ops"))
	require.NoError(t, m.SendMessage(ctx, "#ops", OutgoingMessage{HTML: "a", Plain: "a"}))
	require.NoError(t, m.SendMessage(ctx, "#ops:example.com", OutgoingMessage{HTML: "b", Plain: "b"}))

	assert.Equal(t, []string{"#ops:example.com"}, fake.joins)
	require.Len(t, fake.events, 2)
	for _, ev := range fake.events {
		assert.Equal(t, id.RoomID("!resolved:example.com"), ev.Room)
	}
}

func TestMatrixBot_SendToUnjoinedAliasJoinsFirst(t *testing.T) {
	m, fake := connectedMatrix(t)
	fake.aliases = map[string]id.RoomID{"#alerts:example.org": "!abc:example.org"}

	require.NoError(t, m.SendMessage(context.Background(), "#alerts:example.org", OutgoingMessage{Plain: "x"}))
	assert.Equal(t, []string{"#alerts:example.org"}, fake.joins)
	assert.Equal(t, id.RoomID("!abc:example.org"), fake.events[0].Room)

	fake.joinErr = errors.New("M_NOT_FOUND")
	assert.ErrorContains(t, m.SendMessage(context.Background(), "#missing", OutgoingMessage{}), "M_NOT_FOUND")
}

func TestMatrixBot_SendMessageKeepsWholeLines(t *testing.T) {
	m, fake := connectedMatrix(t)
	line := `<font color="#ff0000">🔥 Disaster web01 disk full: 1 (123)</font>`
	lines := make([]string, 1000)
	for i := range lines {
		lines[i] = line
	}
	body := strings.Join(lines, "<br />")

	require.NoError(t, m.SendMessage(context.Background(), "", OutgoingMessage{HTML: body, Plain: body}))
	got := fake.events[0].Content.FormattedBody
	assert.LessOrEqual(t, len(got), 30000)
	assert.True(t, strings.HasSuffix(got, "</font>"))
	assert.Equal(t, strings.Count(got, "<font"), strings.Count(got, "</font>"))
}

func textEvent(sender id.UserID, ts time.Time, msgType event.MessageType, body string) *event.Event {
	return &event.Event{
		Sender:    sender,
		RoomID:    "!ops:example.com",
		ID:        "$1",
		Timestamp: ts.UnixMilli(),
		Type:      event.EventMessage,
		Content: event.Content{Parsed: &event.MessageEventContent{
			MsgType: msgType,
			Body:    body,
		}},
	}
}

func TestMatrixBot_HandleEvent(t *testing.T) {
	m, _ := connectedMatrix(t)
	started := time.Now()
	after := started.Add(time.Second)

	var got []BotMessage
	handler := func(msg BotMessage) { got = append(got, msg) }

	m.handleEvent(textEvent("@alice:example.com", after, event.MsgText, "!zabbix all"), started, handler)
	m.handleEvent(textEvent("@zabbix:example.com", after, event.MsgText, "own reply"), started, handler)
	m.handleEvent(textEvent("@alice:example.com", started.Add(-time.Minute), event.MsgText, "backlog"), started, handler)
	m.handleEvent(textEvent("@alice:example.com", after, event.MsgNotice, "a notice"), started, handler)
	m.handleEvent(nil, started, handler)

	require.Len(t, got, 1)
	assert.Equal(t, "matrix", got[0].Platform)
	assert.Equal(t, "@alice:example.com", got[0].UserID)
	assert.Equal(t, "!ops:example.com", got[0].Channel)
	assert.Equal(t, "!zabbix all", got[0].Content)
}

func TestMatrixBot_HandleMembershipAcceptsInvites(t *testing.T) {
	m, fake := connectedMatrix(t)
	self := "@zabbix:example.com"
	other := "@alice:example.com"

	invite := func(target string, membership event.Membership) *event.Event {
		return &event.Event{
			RoomID:   "!new:example.com",
			StateKey: &target,
			Type:     event.StateMember,
			Content:  event.Content{Parsed: &event.MemberEventContent{Membership: membership}},
		}
	}

	m.handleMembership(context.Background(), invite(other, event.MembershipInvite))
	m.handleMembership(context.Background(), invite(self, event.MembershipJoin))
	assert.Empty(t, fake.joins)

	m.handleMembership(context.Background(), invite(self, event.MembershipInvite))
	assert.Equal(t, []string{"!new:example.com"}, fake.joins)
}

func TestMatrixBot_CloseWithoutSession(t *testing.T) {
	m, _ := connectedMatrix(t)
	require.NoError(t, m.Close(context.Background()))
	assert.ErrorIs(t, m.SendMessage(context.Background(), "!ops", OutgoingMessage{}), ErrNotConnected)
}

func TestPasswordLoginNeedsSecret(t *testing.T) {
	_, err := Token(context.Background(), MatrixOptions{Homeserver: "matrix.example.com", Username: "zabbix"})
	assert.ErrorContains(t, err, "password or an access token")
}
