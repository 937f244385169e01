/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package poker

import (
	"fmt"
	"strings"
)

type SummaryStory struct {
	Title     string       `json:"title"`
	FinalSize string       `json:"finalSize"`
	Votes     []VoteRecord `json:"votes"`
}

// Summary is the end-of-session overview of a room.
type Summary struct {
	Participants []string       `json:"participants"`
	Stories      []SummaryStory `json:"stories"`
}

// NewSummary builds a summary from a snapshot. A story still in progress is
// listed last with a final size of "N/A", and its votes stay blank until they
// are revealed.
func NewSummary(s Snapshot) Summary {
	sum := Summary{
		Participants: make([]string, 0, len(s.Players)),
		Stories:      make([]SummaryStory, 0, len(s.Stories)+1),
	}

	for _, p := range s.Players {
		sum.Participants = append(sum.Participants, p.Name)
	}

	for _, st := range s.Stories {
		sum.Stories = append(sum.Stories, SummaryStory{
			Title:     st.Title,
			FinalSize: st.FinalSize,
			Votes:     st.Votes,
		})
	}

	if s.Room.CurrentStory.Title != "" {
		votes := VoteRecords(s.Players)
		if !s.Room.IsRevealed {
			for i := range votes {
				votes[i].Vote = ""
				votes[i].Comment = ""
			}
		}

		sum.Stories = append(sum.Stories, SummaryStory{
			Title:     s.Room.CurrentStory.Title,
			FinalSize: "N/A",
			Votes:     votes,
		})
	}

	return sum
}

// Text renders the summary as plain text suitable for pasting into a chat.
func (s Summary) Text() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Participants (%d)\n", len(s.Participants))
	b.WriteString(strings.Join(s.Participants, ", "))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "Stories (%d)\n", len(s.Stories))
	if len(s.Stories) == 0 {
		b.WriteString("No stories were sized in this session.\n")
	}

	for _, st := range s.Stories {
		fmt.Fprintf(&b, "\n%s\nFinal Size: %s\n", st.Title, st.FinalSize)
		for _, v := range st.Votes {
			fmt.Fprintf(&b, "  - %s: %s\n", v.Player, v.Vote)
		}
	}

	return b.String()
}
