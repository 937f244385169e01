/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package poker

import (
	"crypto/rand"
	"fmt"
	"io"
	"regexp"
	"strings"
)

const (
	roomIDLetters = "ABCDEFGHIJKLMNPQRSTUVWXYZ"
	roomIDDigits  = "0123456789"
)

var roomIDPattern = regexp.MustCompile(`^[A-NP-Z]{3}-[0-9]{3}$`)

// NewRoomID draws a room code like "ABK-204" from r. The letter 'O' is
// excluded so codes can't be confused with zero.
func NewRoomID(r io.Reader) (string, error) {
	if r == nil {
		r = rand.Reader
	}

	buf := make([]byte, 6)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("generating room id: %w", err)
	}

	out := make([]byte, 0, 7)
	for i := 0; i < 3; i++ {
		out = append(out, roomIDLetters[int(buf[i])%len(roomIDLetters)])
	}
	out = append(out, '-')
	for i := 3; i < 6; i++ {
		out = append(out, roomIDDigits[int(buf[i])%len(roomIDDigits)])
	}

	return string(out), nil
}

// ValidRoomID reports whether s is a well-formed room code.
func ValidRoomID(s string) bool {
	return roomIDPattern.MatchString(s)
}

// NormalizeRoomID trims and upper-cases user input, so "abk-204 " joins ABK-204.
func NormalizeRoomID(s string) (string, error) {
	id := strings.ToUpper(strings.TrimSpace(s))
	if !ValidRoomID(id) {
		return "", ErrInvalidRoomID
	}
	return id, nil
}
