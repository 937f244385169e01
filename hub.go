/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/Seednode/sizewise/poker"
	"github.com/Seednode/sizewise/room"
	"github.com/Seednode/sizewise/store"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 << 10
	sendBuffer     = 16
)

// ClientMessage is a command sent by a participant over the websocket.
type ClientMessage struct {
	Type      string `json:"type"`
	Title     string `json:"title,omitempty"`      // start_voting
	Vote      string `json:"vote,omitempty"`       // vote
	Comment   string `json:"comment,omitempty"`    // vote
	Confirm   bool   `json:"confirm,omitempty"`    // reveal
	FinalSize string `json:"final_size,omitempty"` // next_story
	Name      string `json:"name,omitempty"`       // profile
	AvatarURL string `json:"avatar_url,omitempty"` // profile
	Allow     *bool  `json:"allow,omitempty"`      // allow_invites
	Message   string `json:"message,omitempty"`    // announce
}

// RoomStateMessage carries the receiving participant's view of the room.
type RoomStateMessage struct {
	Type string     `json:"type"`
	View poker.View `json:"view"`
}

// ConfirmRevealMessage asks the host to confirm revealing while players are
// still waiting to vote.
type ConfirmRevealMessage struct {
	Type    string   `json:"type"`
	Waiting []string `json:"waiting"`
}

// SessionEndedMessage is the last message of a closed room.
type SessionEndedMessage struct {
	Type    string        `json:"type"`
	Summary poker.Summary `json:"summary"`
	Text    string        `json:"text"`
}

type SimpleMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type Client struct {
	conn     *websocket.Conn
	send     chan any
	playerID string

	// last is the most recent snapshot this client was shown. Only the hub
	// goroutine touches it.
	last poker.Snapshot
}

type command struct {
	client *Client
	msg    ClientMessage
}

// Hub fans one room's changes out to its connected clients and runs their
// commands, one at a time.
type Hub struct {
	id  string
	cfg *Config
	svc *room.Service

	clients  map[*Client]bool
	snapshot poker.Snapshot
	prompted bool

	register chan *Client
	unreg    chan *Client
	commands chan command
	events   <-chan store.Event

	cancel context.CancelFunc
	done   chan struct{}

	mu         sync.RWMutex
	lastActive time.Time
	connected  int
}

func newHub(cfg *Config, svc *room.Service, roomID string, events <-chan store.Event, cancel context.CancelFunc) *Hub {
	return &Hub{
		id:         roomID,
		cfg:        cfg,
		svc:        svc,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unreg:      make(chan *Client),
		commands:   make(chan command),
		events:     events,
		cancel:     cancel,
		done:       make(chan struct{}),
		lastActive: time.Now(),
	}
}

func (h *Hub) touch() {
	h.mu.Lock()
	h.lastActive = time.Now()
	h.connected = len(h.clients)
	h.mu.Unlock()
}

func (h *Hub) idle() (time.Time, int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.lastActive, h.connected
}

func (h *Hub) run(ctx context.Context) {
	defer close(h.done)
	defer h.cancel()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()

			return

		case c := <-h.register:
			h.clients[c] = true
			h.touch()

			logf(h.cfg, "ROOMS: %s connected to %s", c.playerID, h.id)

			h.broadcast()

		case c := <-h.unreg:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.touch()

			logf(h.cfg, "ROOMS: %s disconnected from %s", c.playerID, h.id)

			h.broadcast()

		case cmd := <-h.commands:
			h.touch()
			h.handle(ctx, cmd)

		case e, ok := <-h.events:
			if !ok {
				h.closeAll()

				return
			}

			if e.Deleted {
				h.endSession()

				return
			}

			h.snapshot = e.Snapshot
			h.touch()
			h.broadcast()
		}
	}
}

func (h *Hub) online() func(string) bool {
	ids := make(map[string]bool, len(h.clients))
	for c := range h.clients {
		ids[c.playerID] = true
	}

	return func(id string) bool { return ids[id] }
}

func (h *Hub) trySend(c *Client, msg any) {
	select {
	case c.send <- msg:
	default:
		delete(h.clients, c)
		close(c.send)
	}
}

// broadcast sends every client its own view of the current snapshot.
func (h *Hub) broadcast() {
	online := h.online()

	for c := range h.clients {
		c.last = h.snapshot

		h.trySend(c, RoomStateMessage{
			Type: "room_state",
			View: poker.NewView(h.snapshot, c.playerID, online),
		})
	}

	h.promptInvite()
}

// promptInvite nudges a host who is alone in the room to share it, once.
func (h *Hub) promptInvite() {
	if h.prompted || len(h.snapshot.Players) != 1 {
		return
	}

	host := h.snapshot.Room.HostID
	if h.snapshot.Players[0].ID != host {
		return
	}

	for c := range h.clients {
		if c.playerID != host {
			continue
		}

		h.prompted = true

		h.trySend(c, SimpleMessage{
			Type:    "invite_prompt",
			Message: "You're the only one here. Share the room code or QR code to invite your team.",
		})
	}
}

func (h *Hub) handle(ctx context.Context, cmd command) {
	c, msg := cmd.client, cmd.msg
	actor := c.playerID

	var err error

	switch msg.Type {
	case "start_voting":
		err = h.svc.StartVoting(ctx, actor, h.id, msg.Title)
	case "vote":
		err = h.svc.CastVote(ctx, actor, h.id, msg.Vote, msg.Comment)
	case "reveal":
		err = h.svc.Reveal(ctx, actor, h.id, msg.Confirm)
	case "next_story":
		_, err = h.svc.AdvanceStory(ctx, actor, h.id, msg.FinalSize)
	case "close_room":
		_, err = h.svc.Close(ctx, actor, h.id)
	case "profile":
		err = h.svc.UpdateProfile(ctx, actor, h.id, msg.Name, msg.AvatarURL)
	case "allow_invites":
		err = h.svc.SetInvites(ctx, actor, h.id, msg.Allow != nil && *msg.Allow)
	case "announce":
		err = h.svc.Announce(ctx, actor, h.id, msg.Message)
	case "clear_message":
		err = h.svc.ClearMessage(ctx, actor, h.id)
	default:
		return
	}

	if err == nil {
		return
	}

	if _, ok := h.clients[c]; !ok {
		return
	}

	var unvoted *poker.UnvotedError
	if errors.As(err, &unvoted) {
		h.trySend(c, ConfirmRevealMessage{
			Type:    "confirm_reveal",
			Waiting: unvoted.Waiting,
		})

		return
	}

	_, body := newErrorMessage(h.cfg, err)
	body.Type = "error"

	h.trySend(c, body)
}

// endSession tells each client the room is gone, with a summary of the room
// as that client last saw it, and disconnects them.
func (h *Hub) endSession() {
	logf(h.cfg, "ROOMS: %s ended with %d client(s) connected", h.id, len(h.clients))

	for c := range h.clients {
		sum := poker.NewSummary(c.last)

		select {
		case c.send <- SessionEndedMessage{
			Type:    "session_ended",
			Summary: sum,
			Text:    sum.Text(),
		}:
		default:
		}

		close(c.send)
		delete(h.clients, c)
	}

	h.touch()
}

// closeAll disconnects every client of this hub.
func (h *Hub) closeAll() {
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}

	h.touch()
}

// HubManager holds one hub per room with connected clients.
type HubManager struct {
	ctx context.Context
	cfg *Config
	svc *room.Service

	mu          sync.Mutex
	hubs        map[string]*Hub
	idleTimeout time.Duration
}

func newHubManager(ctx context.Context, cfg *Config, svc *room.Service) *HubManager {
	hm := &HubManager{
		ctx:         ctx,
		cfg:         cfg,
		svc:         svc,
		hubs:        make(map[string]*Hub),
		idleTimeout: cfg.sessionTimeout,
	}
	if hm.idleTimeout > 0 {
		go hm.reaperLoop()
	}
	return hm
}

// getHub returns the running hub for roomID, subscribing to the room if
// there is none yet.
func (hm *HubManager) getHub(roomID string) (*Hub, error) {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	if hub, ok := hm.hubs[roomID]; ok {
		select {
		case <-hub.done:
		default:
			return hub, nil
		}
	}

	ctx, cancel := context.WithCancel(hm.ctx)

	events, err := hm.svc.Subscribe(ctx, roomID)
	if err != nil {
		cancel()

		return nil, err
	}

	// Subscriptions start with the current state of the room.
	first, ok := <-events
	if !ok || first.Deleted {
		cancel()

		return nil, room.ErrRoomNotFound
	}

	hub := newHub(hm.cfg, hm.svc, roomID, events, cancel)
	hub.snapshot = first.Snapshot
	hm.hubs[roomID] = hub

	go func() {
		hub.run(ctx)

		hm.mu.Lock()
		if hm.hubs[roomID] == hub {
			delete(hm.hubs, roomID)
		}
		hm.mu.Unlock()
	}()

	return hub, nil
}

// reaperLoop periodically stops hubs that have had no clients for longer
// than idleTimeout.
func (hm *HubManager) reaperLoop() {
	ticker := time.NewTicker(hm.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-hm.ctx.Done():
			return
		case <-ticker.C:
		}

		cutoff := time.Now().Add(-hm.idleTimeout)

		hm.mu.Lock()
		for id, hub := range hm.hubs {
			last, connected := hub.idle()

			if connected == 0 && last.Before(cutoff) {
				logf(hm.cfg, "ROOMS: Reaping idle hub %s", id)

				delete(hm.hubs, id)
				hub.cancel()
			}
		}
		hm.mu.Unlock()
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func serveWebSocket(cfg *Config, hm *HubManager, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		roomID, err := poker.NormalizeRoomID(ps.ByName("roomid"))
		if err != nil {
			serveError(cfg, w, r, err, errs)

			return
		}

		id := getOrSetPlayerID(cfg, w, r)

		hub, err := hm.getHub(roomID)
		if err != nil {
			serveError(cfg, w, r, err, errs)

			return
		}

		header := http.Header{}
		if cookies := w.Header().Values("Set-Cookie"); len(cookies) > 0 {
			header["Set-Cookie"] = cookies
		}

		conn, err := upgrader.Upgrade(w, r, header)
		if err != nil {
			logf(cfg, "ERROR: websocket upgrade from %s: %v", realIP(r), err)

			return
		}

		client := &Client{
			conn:     conn,
			send:     make(chan any, sendBuffer),
			playerID: id,
		}

		select {
		case hub.register <- client:
		case <-hub.done:
			_ = conn.Close()

			return
		}

		go client.writePump(cfg)
		client.readPump(cfg, hub)
	}
}

func (c *Client) readPump(cfg *Config, h *Hub) {
	defer func() {
		select {
		case h.unreg <- c:
		case <-h.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				cfg.logger.Debug("websocket read failed", zap.String("room", h.id), zap.Error(err))
			}

			return
		}

		select {
		case h.commands <- command{client: c, msg: msg}:
		case <-h.done:
			return
		}
	}
}

func (c *Client) writePump(cfg *Config) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

				return
			}

			if err := c.conn.WriteJSON(msg); err != nil {
				cfg.logger.Debug("websocket write failed", zap.String("player", c.playerID), zap.Error(err))

				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
