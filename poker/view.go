/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package poker

import (
	"cmp"
	"slices"
)

type PlayerView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Initials  string `json:"initials"`
	AvatarURL string `json:"avatarUrl"`
	IsHost    bool   `json:"isHost"`
	Voted     bool   `json:"voted"`
	Vote      string `json:"vote,omitempty"`
	Comment   string `json:"comment,omitempty"`
	Online    bool   `json:"online"`
}

// View is what one participant is allowed to see of a room.
type View struct {
	RoomID             string       `json:"roomId"`
	RoomName           string       `json:"roomName"`
	Phase              Phase        `json:"phase"`
	SizingOptions      []string     `json:"sizingOptions"`
	Story              CurrentStory `json:"story"`
	IsRevealed         bool         `json:"isRevealed"`
	AllowPlayerInvites bool         `json:"allowPlayerInvites"`
	LastMessage        string       `json:"lastMessage,omitempty"`

	Me        *PlayerView  `json:"me,omitempty"`
	IsHost    bool         `json:"isHost"`
	CanInvite bool         `json:"canInvite"`
	Players   []PlayerView `json:"players"`
	Voted     int          `json:"voted"`
	Waiting   int          `json:"waiting"`
	Progress  float64      `json:"progress"`
	Results   *Results     `json:"results,omitempty"`
	History   []Story      `json:"history"`
}

// NewView renders s for viewer. Votes of other players stay hidden until the
// story is revealed. online reports which players currently hold a
// connection and may be nil.
func NewView(s Snapshot, viewer string, online func(id string) bool) View {
	v := View{
		RoomID:             s.Room.ID,
		RoomName:           s.Room.Name,
		Phase:              PhaseOf(s.Room),
		SizingOptions:      s.Room.SizingOptions,
		Story:              s.Room.CurrentStory,
		IsRevealed:         s.Room.IsRevealed,
		AllowPlayerInvites: s.Room.AllowPlayerInvites,
		LastMessage:        s.Room.LastMessage,
		Players:            make([]PlayerView, 0, len(s.Players)),
		History:            s.Stories,
	}

	if v.History == nil {
		v.History = []Story{}
	}

	for _, p := range s.Players {
		pv := PlayerView{
			ID:        p.ID,
			Name:      p.Name,
			Initials:  Initials(p.Name),
			AvatarURL: p.AvatarURL,
			IsHost:    p.IsHost,
			Voted:     p.Voted,
			Online:    online != nil && online(p.ID),
		}

		if s.Room.IsRevealed || p.ID == viewer {
			pv.Vote = p.VoteValue()
			pv.Comment = p.Comment
		}

		if p.Voted {
			v.Voted++
		} else {
			v.Waiting++
		}

		if p.ID == viewer {
			me := pv
			v.Me = &me
			v.IsHost = p.IsHost
			v.CanInvite = CanInvite(s.Room, p)
		}

		v.Players = append(v.Players, pv)
	}

	slices.SortStableFunc(v.Players, func(a, b PlayerView) int {
		switch {
		case a.IsHost && !b.IsHost:
			return -1
		case b.IsHost && !a.IsHost:
			return 1
		}
		return cmp.Compare(a.Name, b.Name)
	})

	if n := len(s.Players); n > 0 {
		v.Progress = float64(v.Voted) / float64(n) * 100
	}

	if s.Room.IsRevealed {
		res := Tally(VoteRecords(s.Players))
		v.Results = &res
	}

	return v
}
