/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package poker

import (
	"slices"
	"strings"
	"time"
	"unicode/utf8"
)

// Snapshot is the set of documents making up one room: the room record, its
// players and its archived stories.
type Snapshot struct {
	Room    Room     `json:"room"`
	Players []Player `json:"players"`
	Stories []Story  `json:"stories"`
}

// Clone returns a deep copy. Transitions on the copy never touch s.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{Room: s.Room}
	out.Room.SizingOptions = slices.Clone(s.Room.SizingOptions)

	out.Players = slices.Clone(s.Players)
	for i := range out.Players {
		if v := out.Players[i].Vote; v != nil {
			vote := *v
			out.Players[i].Vote = &vote
		}
	}

	out.Stories = slices.Clone(s.Stories)
	for i := range out.Stories {
		out.Stories[i].Votes = slices.Clone(out.Stories[i].Votes)
	}

	return out
}

func (s *Snapshot) player(actor string) (*Player, error) {
	i := FindPlayer(s.Players, actor)
	if i < 0 {
		return nil, ErrNotInRoom
	}
	return &s.Players[i], nil
}

func (s *Snapshot) requireHost(actor string) error {
	if _, err := s.player(actor); err != nil {
		return err
	}
	if s.Room.HostID != actor {
		return ErrNotHost
	}
	return nil
}

// Waiting lists the names of players who have not voted on the current story.
func (s *Snapshot) Waiting() []string {
	var names []string
	for _, p := range s.Players {
		if !p.Voted {
			names = append(names, p.Name)
		}
	}
	return names
}

// StartVoting makes title the active story.
func (s *Snapshot) StartVoting(actor, title string) error {
	if err := s.requireHost(actor); err != nil {
		return err
	}

	title = strings.TrimSpace(title)
	if utf8.RuneCountInString(title) < MinTitleLength {
		return ErrTitleTooShort
	}

	switch PhaseOf(s.Room) {
	case StoryActive:
		return ErrStoryInProgress
	case StoryRevealed:
		return ErrStoryRevealed
	}

	s.Room.CurrentStory = CurrentStory{Title: title}
	s.Room.IsRevealed = false

	return nil
}

// CastVote records actor's vote on the active story. Votes can't be changed
// once cast.
func (s *Snapshot) CastVote(actor, label, comment string) error {
	p, err := s.player(actor)
	if err != nil {
		return err
	}

	switch PhaseOf(s.Room) {
	case NoStory:
		return ErrNoActiveStory
	case StoryRevealed:
		return ErrStoryRevealed
	}

	if p.Voted {
		return ErrAlreadyVoted
	}

	if !slices.Contains(s.Room.SizingOptions, label) {
		return ErrUnknownLabel
	}

	p.Voted = true
	p.Vote = &label
	p.Comment = strings.TrimSpace(comment)

	return nil
}

// Reveal exposes all votes. It reports whether anything changed; revealing a
// revealed story is a no-op. Unless confirm is set, it refuses while players
// are still waiting.
func (s *Snapshot) Reveal(actor string, confirm bool) (bool, error) {
	if err := s.requireHost(actor); err != nil {
		return false, err
	}

	if PhaseOf(s.Room) == NoStory {
		return false, ErrNoActiveStory
	}

	if s.Room.IsRevealed {
		return false, nil
	}

	if waiting := s.Waiting(); len(waiting) > 0 && !confirm {
		return false, &UnvotedError{Waiting: waiting}
	}

	s.Room.IsRevealed = true

	return true, nil
}

// ResolveFinalSize validates an advance request and returns the final size
// that will be archived.
func (s *Snapshot) ResolveFinalSize(actor, finalSize string) (string, error) {
	if err := s.requireHost(actor); err != nil {
		return "", err
	}

	if PhaseOf(s.Room) == NoStory {
		return "", ErrNoActiveStory
	}

	finalSize = strings.TrimSpace(finalSize)
	if finalSize == "" {
		finalSize = s.Room.CurrentStory.FinalSize
	}
	if finalSize != "" {
		return finalSize, nil
	}

	if s.Room.IsRevealed {
		return "", ErrFinalSizeRequired
	}

	return NotSized, nil
}

// AdvanceStory archives the active story under storyID and resets the room
// and every player for the next one, as a single transition.
func (s *Snapshot) AdvanceStory(actor, finalSize, storyID string, now time.Time) (Story, error) {
	size, err := s.ResolveFinalSize(actor, finalSize)
	if err != nil {
		return Story{}, err
	}

	story := Story{
		ID:        storyID,
		Title:     s.Room.CurrentStory.Title,
		FinalSize: size,
		Votes:     VoteRecords(s.Players),
		CreatedAt: now,
	}
	s.Stories = append(s.Stories, story)

	s.Room.CurrentStory = CurrentStory{}
	s.Room.IsRevealed = false

	for i := range s.Players {
		s.Players[i].Voted = false
		s.Players[i].Vote = nil
		s.Players[i].Comment = ""
	}

	return story, nil
}

// CanClose checks that actor may end the session.
func (s *Snapshot) CanClose(actor string) error {
	return s.requireHost(actor)
}

func (s *Snapshot) SetInvites(actor string, allow bool) error {
	if err := s.requireHost(actor); err != nil {
		return err
	}
	s.Room.AllowPlayerInvites = allow
	return nil
}

// Announce sets the transient message shown to everyone in the room.
func (s *Snapshot) Announce(actor, msg string) error {
	if err := s.requireHost(actor); err != nil {
		return err
	}
	s.Room.LastMessage = strings.TrimSpace(msg)
	return nil
}

// ClearMessage may be called by any participant once the message is shown.
func (s *Snapshot) ClearMessage(actor string) error {
	if _, err := s.player(actor); err != nil {
		return err
	}
	s.Room.LastMessage = ""
	return nil
}

// UpdateProfile changes actor's display name and avatar. A blank name keeps
// the current one.
func (s *Snapshot) UpdateProfile(actor, name, avatarURL string) error {
	p, err := s.player(actor)
	if err != nil {
		return err
	}
	if name = strings.TrimSpace(name); name != "" {
		p.Name = name
	}
	p.AvatarURL = avatarURL
	return nil
}

// Join adds actor to the room, or refreshes their profile when they rejoin.
// Host status always follows the room's host ID.
func (s *Snapshot) Join(actor, name, avatarURL string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}

	if i := FindPlayer(s.Players, actor); i >= 0 {
		s.Players[i].Name = name
		s.Players[i].AvatarURL = avatarURL
		s.Players[i].IsHost = s.Room.HostID == actor
		return nil
	}

	s.Players = append(s.Players, Player{
		ID:        actor,
		Name:      name,
		AvatarURL: avatarURL,
		IsHost:    s.Room.HostID == actor,
	})

	return nil
}

// CanInvite reports whether the player may share the room.
func CanInvite(r Room, p Player) bool {
	return p.IsHost || r.AllowPlayerInvites
}
