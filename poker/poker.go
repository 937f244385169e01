/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package poker holds the planning poker domain: rooms, players, archived
// stories, the room lifecycle transitions and the views rendered to clients.
package poker

import (
	"strings"
	"time"
)

// NotSized is the final size recorded when the host skips sizing a story.
const NotSized = "Not Sized"

// MinTitleLength is the shortest story title the host may start voting on.
const MinTitleLength = 5

type Phase string

const (
	NoStory       Phase = "no_story"
	StoryActive   Phase = "story_active"
	StoryRevealed Phase = "story_revealed"
	Closed        Phase = "closed"
)

type CurrentStory struct {
	Title     string `json:"title"`
	FinalSize string `json:"finalSize,omitempty"`
}

type Room struct {
	ID                 string       `json:"id"`
	Name               string       `json:"name"`
	HostID             string       `json:"hostId"`
	SizingOptions      []string     `json:"sizingOptions"`
	CurrentStory       CurrentStory `json:"currentStory"`
	IsRevealed         bool         `json:"isRevealed"`
	AllowPlayerInvites bool         `json:"allowPlayerInvites"`
	LastMessage        string       `json:"lastMessage,omitempty"`
	CreatedAt          time.Time    `json:"createdAt"`
}

type Player struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	AvatarURL string  `json:"avatarUrl"`
	IsHost    bool    `json:"isHost"`
	Voted     bool    `json:"voted"`
	Vote      *string `json:"vote"`
	Comment   string  `json:"comment,omitempty"`
}

// VoteValue returns the player's vote, or "" when there is none.
func (p Player) VoteValue() string {
	if p.Vote == nil {
		return ""
	}
	return *p.Vote
}

type VoteRecord struct {
	Player    string `json:"player"`
	Vote      string `json:"vote"`
	Comment   string `json:"comment,omitempty"`
	AvatarURL string `json:"avatarUrl"`
}

// Story is an archived story. It is never mutated after creation.
type Story struct {
	ID        string       `json:"id"`
	Title     string       `json:"title"`
	FinalSize string       `json:"finalSize"`
	Votes     []VoteRecord `json:"votes"`
	CreatedAt time.Time    `json:"createdAt"`
}

type Feedback struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Rating    int       `json:"rating"`
	Text      string    `json:"feedbackText"`
	CreatedAt time.Time `json:"createdAt"`
}

// PhaseOf derives the lifecycle phase from the room record. An empty story
// title means no story is active.
func PhaseOf(r Room) Phase {
	switch {
	case r.CurrentStory.Title == "":
		return NoStory
	case r.IsRevealed:
		return StoryRevealed
	default:
		return StoryActive
	}
}

// VoteRecords lists every player's vote, including players who have not voted.
func VoteRecords(players []Player) []VoteRecord {
	votes := make([]VoteRecord, 0, len(players))
	for _, p := range players {
		votes = append(votes, VoteRecord{
			Player:    p.Name,
			Vote:      p.VoteValue(),
			Comment:   p.Comment,
			AvatarURL: p.AvatarURL,
		})
	}
	return votes
}

// FindPlayer returns the index of the player with the given ID, or -1.
func FindPlayer(players []Player, id string) int {
	for i := range players {
		if players[i].ID == id {
			return i
		}
	}
	return -1
}

// Initials returns up to two upper-case initials for a display name.
func Initials(name string) string {
	names := strings.Fields(name)
	switch len(names) {
	case 0:
		return ""
	case 1:
		return strings.ToUpper(firstRune(names[0]))
	}
	return strings.ToUpper(firstRune(names[0]) + firstRune(names[len(names)-1]))
}

func firstRune(s string) string {
	for _, r := range s {
		return string(r)
	}
	return ""
}
