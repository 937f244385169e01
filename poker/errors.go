/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package poker

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotHost           = errors.New("only the host can do that")
	ErrNotInRoom         = errors.New("you have not joined this room")
	ErrEmptyName         = errors.New("a name is required")
	ErrTitleTooShort     = fmt.Errorf("story title must be at least %d characters", MinTitleLength)
	ErrNoActiveStory     = errors.New("there is no active story")
	ErrStoryRevealed     = errors.New("votes for this story have already been revealed")
	ErrStoryInProgress   = errors.New("a story is already being sized")
	ErrAlreadyVoted      = errors.New("you have already cast your vote for this story")
	ErrUnknownLabel      = errors.New("that size is not one of the room's sizing options")
	ErrFinalSizeRequired = errors.New("a final size is required for a revealed story")
	ErrInvalidSizing     = errors.New("invalid sizing options")
	ErrInvalidRating     = errors.New("rating must be between 1 and 5")
	ErrInvalidRoomID     = errors.New("invalid room id")
)

// UnvotedError is returned by Reveal when players are still waiting to vote
// and the host has not confirmed.
type UnvotedError struct {
	Waiting []string
}

func (e *UnvotedError) Error() string {
	return fmt.Sprintf("%d player(s) have not voted yet: %s", len(e.Waiting), strings.Join(e.Waiting, ", "))
}
