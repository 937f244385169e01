/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package store

import (
	"context"
	"sync"

	"github.com/Seednode/sizewise/poker"
)

const subscriberBuffer = 16

// Memory keeps everything in process. It is the default store and the one
// used by tests.
type Memory struct {
	mu          sync.Mutex
	rooms       map[string]*poker.Snapshot
	archives    map[string][]poker.Story
	feedback    []poker.Feedback
	subscribers map[string]map[chan Event]struct{}
}

func NewMemory() *Memory {
	return &Memory{
		rooms:       make(map[string]*poker.Snapshot),
		archives:    make(map[string][]poker.Story),
		subscribers: make(map[string]map[chan Event]struct{}),
	}
}

func (m *Memory) Create(_ context.Context, room poker.Room, host poker.Player) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rooms[room.ID]; ok {
		return ErrExists
	}
	if _, ok := m.archives[room.ID]; ok {
		return ErrExists
	}

	s := poker.Snapshot{Room: room, Players: []poker.Player{host}}.Clone()
	m.rooms[room.ID] = &s
	m.archives[room.ID] = nil

	m.publish(Event{RoomID: room.ID, Snapshot: s.Clone()})

	return nil
}

func (m *Memory) Load(_ context.Context, roomID string) (poker.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.load(roomID)
}

func (m *Memory) load(roomID string) (poker.Snapshot, error) {
	s, ok := m.rooms[roomID]
	if !ok {
		return poker.Snapshot{}, ErrNotFound
	}

	out := s.Clone()
	out.Stories = append([]poker.Story(nil), m.archives[roomID]...)

	return out, nil
}

func (m *Memory) Update(_ context.Context, roomID string, fn func(*poker.Snapshot) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.load(roomID)
	if err != nil {
		return err
	}

	before := len(s.Stories)

	if err := fn(&s); err != nil {
		return err
	}

	m.archives[roomID] = append(m.archives[roomID], appended(before, s.Stories)...)

	stored := poker.Snapshot{Room: s.Room, Players: s.Players}.Clone()
	m.rooms[roomID] = &stored

	current, _ := m.load(roomID)
	m.publish(Event{RoomID: roomID, Snapshot: current})

	return nil
}

func (m *Memory) Delete(_ context.Context, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rooms[roomID]; !ok {
		return ErrNotFound
	}

	delete(m.rooms, roomID)

	m.publish(Event{RoomID: roomID, Deleted: true})

	return nil
}

func (m *Memory) Subscribe(ctx context.Context, roomID string) (<-chan Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.load(roomID)
	if err != nil {
		return nil, err
	}

	ch := make(chan Event, subscriberBuffer)
	ch <- Event{RoomID: roomID, Snapshot: s}

	if m.subscribers[roomID] == nil {
		m.subscribers[roomID] = make(map[chan Event]struct{})
	}
	m.subscribers[roomID][ch] = struct{}{}

	go func() {
		<-ctx.Done()

		m.mu.Lock()
		defer m.mu.Unlock()

		if subs, ok := m.subscribers[roomID]; ok {
			if _, ok := subs[ch]; ok {
				delete(subs, ch)
				close(ch)
			}
			if len(subs) == 0 {
				delete(m.subscribers, roomID)
			}
		}
	}()

	return ch, nil
}

// publish must be called with mu held. A subscriber that falls behind loses
// its oldest buffered event instead of the newest, so the last event it reads
// always carries the current snapshot. A deletion ends the subscription.
func (m *Memory) publish(e Event) {
	subs := m.subscribers[e.RoomID]

	for ch := range subs {
		deliver(ch, e)

		if e.Deleted {
			delete(subs, ch)
			close(ch)
		}
	}

	if e.Deleted {
		delete(m.subscribers, e.RoomID)
	}
}

// deliver sends e without blocking, evicting the oldest buffered event when
// ch is full. Only publish sends on ch, so the retry always has room.
func deliver(ch chan Event, e Event) {
	select {
	case ch <- e:
		return
	default:
	}

	select {
	case <-ch:
	default:
	}

	ch <- e
}

func (m *Memory) AddFeedback(_ context.Context, f poker.Feedback) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.feedback = append(m.feedback, f)

	return nil
}

// Feedback returns every submission received so far.
func (m *Memory) Feedback() []poker.Feedback {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]poker.Feedback(nil), m.feedback...)
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, subs := range m.subscribers {
		for ch := range subs {
			close(ch)
		}
		delete(m.subscribers, id)
	}

	return nil
}
