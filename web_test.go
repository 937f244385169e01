package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/Seednode/sizewise/poker"
	"github.com/Seednode/sizewise/room"
	"github.com/Seednode/sizewise/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testServer struct {
	*httptest.Server
	svc *room.Service
	mem *store.Memory
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := &Config{
		logger: zap.NewNop(),
		store:  storeMemory,
	}

	mem := store.NewMemory()
	svc := room.NewService(room.Env{Store: mem, Logger: cfg.logger})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	errs := make(chan error, 64)
	go drainErrors(ctx, cfg, errs)

	srv := httptest.NewServer(newRouter(cfg, svc, newHubManager(ctx, cfg, svc), errs))
	t.Cleanup(srv.Close)

	return &testServer{Server: srv, svc: svc, mem: mem}
}

// participant is one browser, with its own identity cookie.
type participant struct {
	t      *testing.T
	srv    *testServer
	client *http.Client
	jar    *cookiejar.Jar
}

func (s *testServer) participant(t *testing.T) *participant {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &participant{t: t, srv: s, client: &http.Client{Jar: jar}, jar: jar}
}

func (p *participant) id() string {
	u, err := url.Parse(p.srv.URL)
	require.NoError(p.t, err)

	for _, c := range p.jar.Cookies(u) {
		if c.Name == playerCookieName {
			return c.Value
		}
	}

	return ""
}

func (p *participant) do(method, path string, body any) *http.Response {
	p.t.Helper()

	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(p.t, err)
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, p.srv.URL+path, r)
	require.NoError(p.t, err)

	res, err := p.client.Do(req)
	require.NoError(p.t, err)
	p.t.Cleanup(func() { res.Body.Close() })

	return res
}

func decode[T any](t *testing.T, res *http.Response) T {
	t.Helper()

	var v T
	require.NoError(t, json.NewDecoder(res.Body).Decode(&v))

	return v
}

func (p *participant) createRoom(name string) string {
	p.t.Helper()

	res := p.do(http.MethodPost, "/api/rooms", room.CreateRequest{Name: name, SizingMethod: poker.SizingFibonacci})
	require.Equal(p.t, http.StatusCreated, res.StatusCode)

	created := decode[RoomCreated](p.t, res)
	require.True(p.t, poker.ValidRoomID(created.RoomID))
	assert.Equal(p.t, "/room/"+created.RoomID, created.URL)

	return created.RoomID
}

func (p *participant) join(roomID, name string) {
	p.t.Helper()

	res := p.do(http.MethodPost, "/api/rooms/"+roomID+"/players", JoinRequest{Name: name})
	require.Equal(p.t, http.StatusOK, res.StatusCode)
}

func TestCreateJoinAndView(t *testing.T) {
	srv := newTestServer(t)
	host := srv.participant(t)
	guest := srv.participant(t)

	id := host.createRoom("Hannah")
	require.NotEmpty(t, host.id())

	// Room codes are accepted in any case.
	guest.join(strings.ToLower(id), "Gus")

	view := decode[poker.View](t, host.do(http.MethodGet, "/api/rooms/"+id, nil))
	assert.Equal(t, "Hannah's Room", view.RoomName)
	assert.Equal(t, poker.NoStory, view.Phase)
	require.NotNil(t, view.Me)
	assert.True(t, view.IsHost)
	assert.Len(t, view.Players, 2)
	assert.Equal(t, "Hannah", view.Players[0].Name)

	view = decode[poker.View](t, guest.do(http.MethodGet, "/api/rooms/"+id, nil))
	require.NotNil(t, view.Me)
	assert.Equal(t, "Gus", view.Me.Name)
	assert.False(t, view.IsHost)
	assert.True(t, view.CanInvite)

	stranger := srv.participant(t)
	view = decode[poker.View](t, stranger.do(http.MethodGet, "/api/rooms/"+id, nil))
	assert.Nil(t, view.Me)
}

func TestAPIErrors(t *testing.T) {
	srv := newTestServer(t)
	p := srv.participant(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"unknown room", http.MethodPost, "/api/rooms/ZZZ-999/players", JoinRequest{Name: "Gus"}, http.StatusNotFound, "not_found"},
		{"bad room code", http.MethodGet, "/api/rooms/nope", nil, http.StatusBadRequest, "invalid"},
		{"missing name", http.MethodPost, "/api/rooms", room.CreateRequest{Name: " "}, http.StatusBadRequest, "invalid"},
		{"bad sizing", http.MethodPost, "/api/rooms", room.CreateRequest{Name: "Hannah", SizingMethod: "dice"}, http.StatusBadRequest, "invalid"},
		{"malformed body", http.MethodPost, "/api/rooms", "{", http.StatusBadRequest, "invalid"},
		{"bad rating", http.MethodPost, "/api/feedback", FeedbackRequest{Rating: 9}, http.StatusBadRequest, "invalid"},
		{"summary of unknown room", http.MethodGet, "/api/rooms/ZZZ-999/summary", nil, http.StatusNotFound, "not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := p.do(tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, res.StatusCode)
			assert.Equal(t, "application/json; charset=utf-8", res.Header.Get("Content-Type"))

			body := decode[ErrorMessage](t, res)
			assert.Equal(t, tt.code, body.Error)
			assert.NotEmpty(t, body.Message)
		})
	}
}

func TestFeedback(t *testing.T) {
	srv := newTestServer(t)
	p := srv.participant(t)

	res := p.do(http.MethodPost, "/api/feedback", FeedbackRequest{Rating: 4, Text: "Quick and easy"})
	assert.Equal(t, http.StatusNoContent, res.StatusCode)

	got := srv.mem.Feedback()
	require.Len(t, got, 1)
	assert.Equal(t, 4, got[0].Rating)
	assert.Equal(t, "Quick and easy", got[0].Text)
	assert.Equal(t, p.id(), got[0].UserID)
}

func TestSummaryText(t *testing.T) {
	srv := newTestServer(t)
	host := srv.participant(t)
	id := host.createRoom("Hannah")

	ctx := context.Background()
	require.NoError(t, srv.svc.StartVoting(ctx, host.id(), id, "As a user I want X"))

	res := host.do(http.MethodGet, "/api/rooms/"+id+"/summary", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "text/plain; charset=utf-8", res.Header.Get("Content-Type"))

	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Participants (1)")
	assert.Contains(t, string(body), "As a user I want X\nFinal Size: N/A")

	sum := decode[poker.Summary](t, host.do(http.MethodGet, "/api/rooms/"+id+"/summary?format=json", nil))
	assert.Equal(t, []string{"Hannah"}, sum.Participants)
}

func TestSummaryKeepsVotesHidden(t *testing.T) {
	srv := newTestServer(t)
	host := srv.participant(t)
	guest := srv.participant(t)
	stranger := srv.participant(t)

	id := host.createRoom("Hannah")
	guest.join(id, "Gus")

	ctx := context.Background()
	require.NoError(t, srv.svc.StartVoting(ctx, host.id(), id, "Login page"))
	require.NoError(t, srv.svc.CastVote(ctx, guest.id(), id, "13", "big"))

	res := stranger.do(http.MethodGet, "/api/rooms/"+id+"/summary", nil)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	assert.Equal(t, "not_in_room", decode[ErrorMessage](t, res).Error)

	res = host.do(http.MethodGet, "/api/rooms/"+id+"/summary", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Login page\nFinal Size: N/A\n  - Hannah: \n  - Gus: \n")
	assert.NotContains(t, string(body), "13")
	assert.NotContains(t, string(body), "big")

	require.NoError(t, srv.svc.Reveal(ctx, host.id(), id, true))

	sum := decode[poker.Summary](t, host.do(http.MethodGet, "/api/rooms/"+id+"/summary?format=json", nil))
	require.Len(t, sum.Stories, 1)
	assert.Contains(t, sum.Stories[0].Votes, poker.VoteRecord{Player: "Gus", Vote: "13", Comment: "big"})
}

func TestQRPermissions(t *testing.T) {
	srv := newTestServer(t)
	host := srv.participant(t)
	guest := srv.participant(t)
	stranger := srv.participant(t)

	id := host.createRoom("Hannah")
	guest.join(id, "Gus")
	stranger.do(http.MethodGet, "/", nil)

	res := host.do(http.MethodGet, "/room/"+id+"/qr", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "image/png", res.Header.Get("Content-Type"))

	assert.Equal(t, http.StatusOK, guest.do(http.MethodGet, "/room/"+id+"/qr", nil).StatusCode)
	assert.Equal(t, http.StatusForbidden, stranger.do(http.MethodGet, "/room/"+id+"/qr", nil).StatusCode)

	require.NoError(t, srv.svc.SetInvites(context.Background(), host.id(), id, false))

	assert.Equal(t, http.StatusForbidden, guest.do(http.MethodGet, "/room/"+id+"/qr", nil).StatusCode)
	assert.Equal(t, http.StatusOK, host.do(http.MethodGet, "/room/"+id+"/qr", nil).StatusCode)
}

func TestStaticRoutes(t *testing.T) {
	srv := newTestServer(t)
	p := srv.participant(t)

	tests := []struct {
		path        string
		status      int
		contentType string
		contains    string
	}{
		{"/", http.StatusOK, "text/html; charset=utf-8", "Create a room"},
		{"/room/abk-204", http.StatusOK, "text/html; charset=utf-8", `data-room="ABK-204"`},
		{"/assets/app.js", http.StatusOK, "text/javascript; charset=utf-8", "room_state"},
		{"/assets/app.css", http.StatusOK, "text/css; charset=utf-8", "--accent"},
		{"/assets/index.html", http.StatusNotFound, "", ""},
		{"/favicon.svg", http.StatusOK, "image/svg+xml", "<svg"},
		{"/healthz", http.StatusOK, "text/plain; charset=utf-8", "Ok"},
		{"/version", http.StatusOK, "text/plain; charset=utf-8", "sizewise v" + releaseVersion},
		{"/robots.txt", http.StatusOK, "text/plain; charset=utf-8", "Disallow: /api/"},
		{"/nowhere", http.StatusNotFound, "text/html; charset=utf-8", "Not Found"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			res := p.do(http.MethodGet, tt.path, nil)
			assert.Equal(t, tt.status, res.StatusCode)

			if tt.contentType != "" {
				assert.Equal(t, tt.contentType, res.Header.Get("Content-Type"))
			}

			body, err := io.ReadAll(res.Body)
			require.NoError(t, err)
			assert.Contains(t, string(body), tt.contains)
		})
	}

	assert.NotEmpty(t, p.id(), "pages issue an identity")
}

func TestClientStorageKeys(t *testing.T) {
	srv := newTestServer(t)
	res := srv.participant(t).do(http.MethodGet, "/assets/app.js", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	script := string(body)

	// Display identity persists across visits.
	assert.Contains(t, script, `"pokerUserName"`)
	assert.Contains(t, script, `"pokerUserAvatar"`)
	assert.Contains(t, script, "localStorage")

	// The invite prompt is suppressed per room for the browser session.
	assert.Contains(t, script, `"invite-dialog-" + roomId`)
	assert.Contains(t, script, "sessionStorage")
}

func TestSecurityHeaders(t *testing.T) {
	srv := newTestServer(t)
	res := srv.participant(t).do(http.MethodGet, "/healthz", nil)

	assert.Equal(t, "nosniff", res.Header.Get("X-Content-Type-Options"))
	assert.Contains(t, res.Header.Get("Content-Security-Policy"), "default-src 'self'")
	assert.Empty(t, res.Header.Get("Strict-Transport-Security"))
}

func TestRealIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	assert.Equal(t, "10.0.0.1:1234", realIP(r))

	r.Header.Set("X-Real-IP", "192.0.2.7")
	assert.Equal(t, "192.0.2.7:1234", realIP(r))

	r.Header.Set("CF-Connecting-IP", "2001:db8::1")
	assert.Equal(t, "[2001:db8::1]:1234", realIP(r))

	r.Header.Set("CF-Connecting-IP", "not an ip")
	assert.Equal(t, "10.0.0.1:1234", realIP(r))
}
