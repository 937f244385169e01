package main

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/Seednode/sizewise/poker"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wsMessage holds any message the server sends over a room socket.
type wsMessage struct {
	Type    string        `json:"type"`
	View    poker.View    `json:"view"`
	Error   string        `json:"error"`
	Message string        `json:"message"`
	Waiting []string      `json:"waiting"`
	Summary poker.Summary `json:"summary"`
	Text    string        `json:"text"`
}

func (p *participant) connect(roomID string) *websocket.Conn {
	p.t.Helper()

	dialer := websocket.Dialer{Jar: p.jar, HandshakeTimeout: 2 * time.Second}

	conn, res, err := dialer.Dial("ws"+strings.TrimPrefix(p.srv.URL, "http")+"/room/"+roomID+"/ws", nil)
	require.NoError(p.t, err)
	p.t.Cleanup(func() {
		conn.Close()
		res.Body.Close()
	})

	return conn
}

// await reads messages until one satisfies match, failing after a few
// seconds.
func await(t *testing.T, conn *websocket.Conn, match func(wsMessage) bool) wsMessage {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	require.NoError(t, conn.SetReadDeadline(deadline))

	for {
		var msg wsMessage
		require.NoError(t, conn.ReadJSON(&msg), "no matching message before deadline")

		if match(msg) {
			return msg
		}
	}
}

func ofType(typ string) func(wsMessage) bool {
	return func(m wsMessage) bool { return m.Type == typ }
}

func inPhase(phase poker.Phase) func(wsMessage) bool {
	return func(m wsMessage) bool { return m.Type == "room_state" && m.View.Phase == phase }
}

func send(t *testing.T, conn *websocket.Conn, msg ClientMessage) {
	t.Helper()

	require.NoError(t, conn.WriteJSON(msg))
}

func TestWebSocketSession(t *testing.T) {
	srv := newTestServer(t)
	host := srv.participant(t)
	guest := srv.participant(t)

	id := host.createRoom("Hannah")
	guest.join(id, "Gus")

	hc := host.connect(id)
	gc := guest.connect(id)

	msg := await(t, hc, func(m wsMessage) bool {
		return m.Type == "room_state" && m.View.Players[0].Online && m.View.Players[1].Online
	})
	assert.True(t, msg.View.IsHost)

	send(t, hc, ClientMessage{Type: "start_voting", Title: "Login page"})
	msg = await(t, gc, inPhase(poker.StoryActive))
	assert.Equal(t, "Login page", msg.View.Story.Title)
	assert.False(t, msg.View.IsHost)

	send(t, gc, ClientMessage{Type: "vote", Vote: "5", Comment: "some unknowns"})

	// The host sees that the guest voted, but not what.
	msg = await(t, hc, func(m wsMessage) bool { return m.Type == "room_state" && m.View.Voted == 1 })
	assert.Equal(t, "Gus", msg.View.Players[1].Name)
	assert.True(t, msg.View.Players[1].Voted)
	assert.Empty(t, msg.View.Players[1].Vote)

	// Only the offender hears about a rejected command.
	send(t, gc, ClientMessage{Type: "reveal", Confirm: true})
	msg = await(t, gc, ofType("error"))
	assert.Equal(t, "not_host", msg.Error)

	send(t, hc, ClientMessage{Type: "reveal"})
	msg = await(t, hc, ofType("confirm_reveal"))
	assert.Equal(t, []string{"Hannah"}, msg.Waiting)

	send(t, hc, ClientMessage{Type: "vote", Vote: "8"})
	send(t, hc, ClientMessage{Type: "reveal"})

	msg = await(t, gc, inPhase(poker.StoryRevealed))
	require.NotNil(t, msg.View.Results)
	assert.True(t, msg.View.Results.HasAverage)
	assert.InDelta(t, 6.5, msg.View.Results.Average, 0.001)
	assert.Equal(t, "8", msg.View.Players[0].Vote)

	send(t, hc, ClientMessage{Type: "next_story", FinalSize: "8"})
	msg = await(t, gc, inPhase(poker.NoStory))
	require.Len(t, msg.View.History, 1)
	assert.Equal(t, "Login page", msg.View.History[0].Title)
	assert.Equal(t, "8", msg.View.History[0].FinalSize)

	send(t, hc, ClientMessage{Type: "announce", Message: "Break in 5"})
	msg = await(t, gc, func(m wsMessage) bool { return m.Type == "room_state" && m.View.LastMessage != "" })
	assert.Equal(t, "Break in 5", msg.View.LastMessage)

	send(t, gc, ClientMessage{Type: "close_room"})
	assert.Equal(t, "not_host", await(t, gc, ofType("error")).Error)

	send(t, hc, ClientMessage{Type: "close_room"})

	for _, conn := range []*websocket.Conn{hc, gc} {
		msg = await(t, conn, ofType("session_ended"))
		assert.Equal(t, []string{"Hannah", "Gus"}, msg.Summary.Participants)
		require.Len(t, msg.Summary.Stories, 1)
		assert.Equal(t, "8", msg.Summary.Stories[0].FinalSize)
		assert.Contains(t, msg.Text, "Login page\nFinal Size: 8")
	}

	res := host.do(http.MethodGet, "/api/rooms/"+id, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestWebSocketInvitePrompt(t *testing.T) {
	srv := newTestServer(t)
	host := srv.participant(t)
	id := host.createRoom("Hannah")

	msg := await(t, host.connect(id), ofType("invite_prompt"))
	assert.NotEmpty(t, msg.Message)
}

func TestWebSocketProfileAndInvites(t *testing.T) {
	srv := newTestServer(t)
	host := srv.participant(t)
	guest := srv.participant(t)

	id := host.createRoom("Hannah")
	guest.join(id, "Gus")

	hc := host.connect(id)
	gc := guest.connect(id)

	send(t, gc, ClientMessage{Type: "profile", Name: "Gus G"})
	msg := await(t, hc, func(m wsMessage) bool {
		return m.Type == "room_state" && len(m.View.Players) == 2 && m.View.Players[1].Name == "Gus G"
	})
	assert.Equal(t, "GG", msg.View.Players[1].Initials)

	allow := false
	send(t, hc, ClientMessage{Type: "allow_invites", Allow: &allow})
	msg = await(t, gc, func(m wsMessage) bool { return m.Type == "room_state" && !m.View.AllowPlayerInvites })
	assert.False(t, msg.View.CanInvite)
}

func TestWebSocketUnknownRoom(t *testing.T) {
	srv := newTestServer(t)
	p := srv.participant(t)

	dialer := websocket.Dialer{Jar: p.jar, HandshakeTimeout: 2 * time.Second}

	_, res, err := dialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/room/ZZZ-999/ws", nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, res)
	defer res.Body.Close()

	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}
