/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package store

import (
	"cmp"
	"context"
	"encoding/json"
	"slices"

	"github.com/Seednode/sizewise/poker"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	// MaxTxRetries bounds optimistic transaction retries on concurrent writes.
	MaxTxRetries = 10

	deletedMessage = "deleted"
	updatedMessage = "updated"
)

// Redis stores each room as a JSON document, its players in a hash keyed by
// player ID and its archived stories in a list. Changes are announced on a
// per-room pub/sub channel.
type Redis struct {
	client *redis.Client
	prefix string
}

// reader is the subset of commands shared by clients and transactions.
type reader interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
}

// NewRedis connects to the server at url (redis://[:password@]host:port/db).
func NewRedis(ctx context.Context, url, prefix string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()

		return nil, errors.Wrap(err, "ping redis")
	}

	return &Redis{client: client, prefix: prefix}, nil
}

func (r *Redis) roomKey(id string) string { return r.prefix + "room:" + id }
func (r *Redis) playersKey(id string) string { return r.roomKey(id) + ":players" }
func (r *Redis) storiesKey(id string) string { return r.roomKey(id) + ":stories" }
func (r *Redis) eventsKey(id string) string { return r.roomKey(id) + ":events" }
func (r *Redis) feedbackKey() string { return r.prefix + "feedback" }
func (r *Redis) keys(id string) []string { return []string{r.roomKey(id), r.playersKey(id), r.storiesKey(id)} }

func (r *Redis) Create(ctx context.Context, room poker.Room, host poker.Player) error {
	roomJSON, err := json.Marshal(room)
	if err != nil {
		return errors.Wrap(err, "encode room")
	}

	hostJSON, err := json.Marshal(host)
	if err != nil {
		return errors.Wrap(err, "encode player")
	}

	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		// An ID with archived stories is still taken.
		n, err := tx.Exists(ctx, r.roomKey(room.ID), r.storiesKey(room.ID)).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrExists
		}

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, r.roomKey(room.ID), roomJSON, 0)
			p.HSet(ctx, r.playersKey(room.ID), host.ID, hostJSON)
			p.Publish(ctx, r.eventsKey(room.ID), updatedMessage)

			return nil
		})

		return err
	}, r.keys(room.ID)...)

	switch {
	case errors.Is(err, ErrExists):
		return ErrExists
	case errors.Is(err, redis.TxFailedErr):
		// Someone else wrote the same keys first.
		return ErrExists
	case err != nil:
		return errors.Wrapf(err, "create room %s", room.ID)
	}

	return nil
}

func (r *Redis) Load(ctx context.Context, roomID string) (poker.Snapshot, error) {
	return r.load(ctx, r.client, roomID)
}

func (r *Redis) load(ctx context.Context, c reader, roomID string) (poker.Snapshot, error) {
	var s poker.Snapshot

	raw, err := c.Get(ctx, r.roomKey(roomID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return s, ErrNotFound
	}
	if err != nil {
		return s, errors.Wrapf(err, "load room %s", roomID)
	}

	if err := json.Unmarshal(raw, &s.Room); err != nil {
		return s, errors.Wrapf(err, "decode room %s", roomID)
	}

	players, err := c.HGetAll(ctx, r.playersKey(roomID)).Result()
	if err != nil {
		return s, errors.Wrapf(err, "load players of %s", roomID)
	}

	for id, v := range players {
		var p poker.Player
		if err := json.Unmarshal([]byte(v), &p); err != nil {
			return s, errors.Wrapf(err, "decode player %s", id)
		}
		s.Players = append(s.Players, p)
	}

	// Hash fields are unordered.
	slices.SortFunc(s.Players, func(a, b poker.Player) int {
		switch {
		case a.IsHost && !b.IsHost:
			return -1
		case b.IsHost && !a.IsHost:
			return 1
		}
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})

	stories, err := c.LRange(ctx, r.storiesKey(roomID), 0, -1).Result()
	if err != nil {
		return s, errors.Wrapf(err, "load stories of %s", roomID)
	}

	for _, v := range stories {
		var st poker.Story
		if err := json.Unmarshal([]byte(v), &st); err != nil {
			return s, errors.Wrapf(err, "decode story of %s", roomID)
		}
		s.Stories = append(s.Stories, st)
	}

	return s, nil
}

func (r *Redis) Update(ctx context.Context, roomID string, fn func(*poker.Snapshot) error) error {
	txf := func(tx *redis.Tx) error {
		s, err := r.load(ctx, tx, roomID)
		if err != nil {
			return err
		}

		before := len(s.Stories)

		if err := fn(&s); err != nil {
			return err
		}

		roomJSON, err := json.Marshal(s.Room)
		if err != nil {
			return errors.Wrap(err, "encode room")
		}

		players := make(map[string]any, len(s.Players))
		for _, p := range s.Players {
			b, err := json.Marshal(p)
			if err != nil {
				return errors.Wrap(err, "encode player")
			}
			players[p.ID] = b
		}

		stories := make([]any, 0)
		for _, st := range appended(before, s.Stories) {
			b, err := json.Marshal(st)
			if err != nil {
				return errors.Wrap(err, "encode story")
			}
			stories = append(stories, b)
		}

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, r.roomKey(roomID), roomJSON, 0)
			p.Del(ctx, r.playersKey(roomID))
			if len(players) > 0 {
				p.HSet(ctx, r.playersKey(roomID), players)
			}
			if len(stories) > 0 {
				p.RPush(ctx, r.storiesKey(roomID), stories...)
			}
			p.Publish(ctx, r.eventsKey(roomID), updatedMessage)

			return nil
		})

		return err
	}

	for range MaxTxRetries {
		err := r.client.Watch(ctx, txf, r.keys(roomID)...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}

		return err
	}

	return errors.Errorf("update room %s: too much contention", roomID)
}

func (r *Redis) Delete(ctx context.Context, roomID string) error {
	n, err := r.client.Del(ctx, r.roomKey(roomID), r.playersKey(roomID)).Result()
	if err != nil {
		return errors.Wrapf(err, "delete room %s", roomID)
	}
	if n == 0 {
		return ErrNotFound
	}

	if err := r.client.Publish(ctx, r.eventsKey(roomID), deletedMessage).Err(); err != nil {
		return errors.Wrapf(err, "announce deletion of %s", roomID)
	}

	return nil
}

func (r *Redis) Subscribe(ctx context.Context, roomID string) (<-chan Event, error) {
	ps := r.client.Subscribe(ctx, r.eventsKey(roomID))

	// Wait for the subscription to be live so no change is missed between
	// the initial load and the first notification.
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()

		return nil, errors.Wrapf(err, "subscribe to %s", roomID)
	}

	s, err := r.Load(ctx, roomID)
	if err != nil {
		ps.Close()

		return nil, err
	}

	ch := make(chan Event, subscriberBuffer)
	ch <- Event{RoomID: roomID, Snapshot: s}

	go func() {
		defer close(ch)
		defer ps.Close()

		msgs := ps.Channel()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}

				e := Event{RoomID: roomID}

				if msg.Payload == deletedMessage {
					e.Deleted = true
				} else {
					snap, err := r.Load(ctx, roomID)
					switch {
					case errors.Is(err, ErrNotFound):
						e.Deleted = true
					case err != nil:
						continue
					}
					e.Snapshot = snap
				}

				select {
				case ch <- e:
				case <-ctx.Done():
					return
				}

				if e.Deleted {
					return
				}
			}
		}
	}()

	return ch, nil
}

func (r *Redis) AddFeedback(ctx context.Context, f poker.Feedback) error {
	b, err := json.Marshal(f)
	if err != nil {
		return errors.Wrap(err, "encode feedback")
	}

	return errors.Wrap(r.client.RPush(ctx, r.feedbackKey(), b).Err(), "store feedback")
}

func (r *Redis) Close() error {
	return r.client.Close()
}
