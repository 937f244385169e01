/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package room runs the planning poker lifecycle against a store. Every
// collaborator is passed in through Env.
package room

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Seednode/sizewise/poker"
	"github.com/Seednode/sizewise/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MaxCreateAttempts is how many room IDs Create tries before giving up.
const MaxCreateAttempts = 5

var (
	ErrRoomNotFound    = store.ErrNotFound
	ErrRoomIDExhausted = errors.New("could not find a free room id")
)

// Env holds everything a Service depends on. Zero-valued fields other than
// Store get sensible defaults.
type Env struct {
	Store  store.Store
	Logger *zap.Logger

	Now       func() time.Time
	NewRoomID func() (string, error)
	NewID     func() string

	// BeforeArchive, when set, runs once an advance has been validated and
	// before the story is archived. An error cancels the advance.
	BeforeArchive func(ctx context.Context, story poker.Story) error
}

type Service struct {
	env Env
	log *zap.Logger
}

func NewService(env Env) *Service {
	if env.Logger == nil {
		env.Logger = zap.NewNop()
	}
	if env.Now == nil {
		env.Now = time.Now
	}
	if env.NewRoomID == nil {
		env.NewRoomID = func() (string, error) { return poker.NewRoomID(nil) }
	}
	if env.NewID == nil {
		env.NewID = uuid.NewString
	}

	return &Service{env: env, log: env.Logger.Named("room")}
}

type CreateRequest struct {
	Name         string `json:"name"`
	AvatarURL    string `json:"avatarUrl"`
	SizingMethod string `json:"sizingMethod"`
	CustomSizing string `json:"customSizing"`
}

// Create opens a new room hosted by actor.
func (s *Service) Create(ctx context.Context, actor string, req CreateRequest) (poker.Room, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return poker.Room{}, poker.ErrEmptyName
	}

	opts, err := poker.SizingOptions(req.SizingMethod, req.CustomSizing)
	if err != nil {
		return poker.Room{}, err
	}

	host := poker.Player{
		ID:        actor,
		Name:      name,
		AvatarURL: req.AvatarURL,
		IsHost:    true,
	}

	for attempt := 1; attempt <= MaxCreateAttempts; attempt++ {
		id, err := s.env.NewRoomID()
		if err != nil {
			return poker.Room{}, fmt.Errorf("generate room id: %w", err)
		}

		room := poker.Room{
			ID:                 id,
			Name:               name + "'s Room",
			HostID:             actor,
			SizingOptions:      opts,
			AllowPlayerInvites: true,
			CreatedAt:          s.env.Now(),
		}

		err = s.env.Store.Create(ctx, room, host)
		switch {
		case err == nil:
			s.log.Info("room created",
				zap.String("room", id),
				zap.String("host", actor),
				zap.Int("options", len(opts)))

			return room, nil
		case errors.Is(err, store.ErrExists):
			s.log.Debug("room id taken", zap.String("room", id), zap.Int("attempt", attempt))
		default:
			s.log.Error("creating room failed", zap.String("room", id), zap.Error(err))

			return poker.Room{}, err
		}
	}

	return poker.Room{}, ErrRoomIDExhausted
}

// update runs fn as one atomic transition on the room and logs failures.
func (s *Service) update(ctx context.Context, op, actor, roomID string, fn func(*poker.Snapshot) error) error {
	err := s.env.Store.Update(ctx, roomID, fn)
	if err != nil {
		s.log.Warn(op+" failed",
			zap.String("room", roomID),
			zap.String("actor", actor),
			zap.Error(err))

		return err
	}

	s.log.Debug(op, zap.String("room", roomID), zap.String("actor", actor))

	return nil
}

// Join adds actor to the room, or refreshes their profile if they are
// already in it. roomID may be in any case and carry surrounding spaces.
func (s *Service) Join(ctx context.Context, actor, roomID, name, avatarURL string) (string, error) {
	id, err := poker.NormalizeRoomID(roomID)
	if err != nil {
		return "", err
	}

	err = s.update(ctx, "join", actor, id, func(snap *poker.Snapshot) error {
		return snap.Join(actor, name, avatarURL)
	})
	if err != nil {
		return "", err
	}

	return id, nil
}

func (s *Service) StartVoting(ctx context.Context, actor, roomID, title string) error {
	return s.update(ctx, "start voting", actor, roomID, func(snap *poker.Snapshot) error {
		return snap.StartVoting(actor, title)
	})
}

func (s *Service) CastVote(ctx context.Context, actor, roomID, label, comment string) error {
	return s.update(ctx, "vote", actor, roomID, func(snap *poker.Snapshot) error {
		return snap.CastVote(actor, label, comment)
	})
}

// Reveal exposes the votes. An unconfirmed reveal with players still waiting
// fails with a *poker.UnvotedError.
func (s *Service) Reveal(ctx context.Context, actor, roomID string, confirm bool) error {
	return s.update(ctx, "reveal", actor, roomID, func(snap *poker.Snapshot) error {
		_, err := snap.Reveal(actor, confirm)
		return err
	})
}

// AdvanceStory archives the current story with finalSize and resets the room
// for the next one in a single write.
func (s *Service) AdvanceStory(ctx context.Context, actor, roomID, finalSize string) (poker.Story, error) {
	storyID := s.env.NewID()
	now := s.env.Now()

	if s.env.BeforeArchive != nil {
		snap, err := s.env.Store.Load(ctx, roomID)
		if err != nil {
			return poker.Story{}, err
		}

		preview, err := snap.AdvanceStory(actor, finalSize, storyID, now)
		if err != nil {
			return poker.Story{}, err
		}

		if err := s.env.BeforeArchive(ctx, preview); err != nil {
			s.log.Info("advance cancelled", zap.String("room", roomID), zap.Error(err))

			return poker.Story{}, err
		}
	}

	var story poker.Story

	err := s.update(ctx, "advance story", actor, roomID, func(snap *poker.Snapshot) error {
		var err error
		story, err = snap.AdvanceStory(actor, finalSize, storyID, now)
		return err
	})
	if err != nil {
		return poker.Story{}, err
	}

	s.log.Info("story archived",
		zap.String("room", roomID),
		zap.String("story", story.ID),
		zap.String("size", story.FinalSize),
		zap.Int("votes", len(story.Votes)))

	return story, nil
}

// Close ends the session. The room and its players are removed; archived
// stories are kept. The returned summary reflects the room as it was.
func (s *Service) Close(ctx context.Context, actor, roomID string) (poker.Summary, error) {
	snap, err := s.env.Store.Load(ctx, roomID)
	if err != nil {
		return poker.Summary{}, err
	}

	if err := snap.CanClose(actor); err != nil {
		return poker.Summary{}, err
	}

	if err := s.env.Store.Delete(ctx, roomID); err != nil {
		s.log.Error("closing room failed", zap.String("room", roomID), zap.Error(err))

		return poker.Summary{}, err
	}

	s.log.Info("room closed", zap.String("room", roomID), zap.Int("stories", len(snap.Stories)))

	return poker.NewSummary(snap), nil
}

func (s *Service) UpdateProfile(ctx context.Context, actor, roomID, name, avatarURL string) error {
	return s.update(ctx, "update profile", actor, roomID, func(snap *poker.Snapshot) error {
		return snap.UpdateProfile(actor, name, avatarURL)
	})
}

func (s *Service) SetInvites(ctx context.Context, actor, roomID string, allow bool) error {
	return s.update(ctx, "set invites", actor, roomID, func(snap *poker.Snapshot) error {
		return snap.SetInvites(actor, allow)
	})
}

func (s *Service) Announce(ctx context.Context, actor, roomID, msg string) error {
	return s.update(ctx, "announce", actor, roomID, func(snap *poker.Snapshot) error {
		return snap.Announce(actor, msg)
	})
}

func (s *Service) ClearMessage(ctx context.Context, actor, roomID string) error {
	return s.update(ctx, "clear message", actor, roomID, func(snap *poker.Snapshot) error {
		if snap.Room.LastMessage == "" {
			return nil
		}
		return snap.ClearMessage(actor)
	})
}

func (s *Service) Snapshot(ctx context.Context, roomID string) (poker.Snapshot, error) {
	return s.env.Store.Load(ctx, roomID)
}

// Summary returns the session summary. Only participants may read it.
func (s *Service) Summary(ctx context.Context, actor, roomID string) (poker.Summary, error) {
	snap, err := s.env.Store.Load(ctx, roomID)
	if err != nil {
		return poker.Summary{}, err
	}

	if poker.FindPlayer(snap.Players, actor) < 0 {
		return poker.Summary{}, poker.ErrNotInRoom
	}

	return poker.NewSummary(snap), nil
}

// Subscribe streams changes to the room until ctx is done.
func (s *Service) Subscribe(ctx context.Context, roomID string) (<-chan store.Event, error) {
	return s.env.Store.Subscribe(ctx, roomID)
}

func (s *Service) SubmitFeedback(ctx context.Context, actor string, rating int, text string) error {
	if rating < 1 || rating > 5 {
		return poker.ErrInvalidRating
	}

	f := poker.Feedback{
		ID:        s.env.NewID(),
		UserID:    actor,
		Rating:    rating,
		Text:      strings.TrimSpace(text),
		CreatedAt: s.env.Now(),
	}

	if err := s.env.Store.AddFeedback(ctx, f); err != nil {
		s.log.Error("storing feedback failed", zap.Error(err))

		return err
	}

	s.log.Info("feedback received", zap.Int("rating", rating))

	return nil
}
