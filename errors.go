/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Seednode/sizewise/poker"
	"github.com/Seednode/sizewise/room"
	"go.uber.org/zap"
)

var errMalformedRequest = errors.New("malformed request body")

// ErrorMessage is the body of every failed API call, and is also sent over
// the websocket to the client whose command failed.
type ErrorMessage struct {
	Type    string `json:"type,omitempty"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func logf(cfg *Config, format string, args ...any) {
	if !cfg.verbose {
		return
	}

	cfg.logger.Sugar().Debugf(format, args...)
}

func logErr(cfg *Config, msg string, err error, fields ...zap.Field) {
	cfg.logger.Error(msg, append(fields, zap.Error(err))...)
}

// errorStatus maps an error to the HTTP status and short code reported to
// clients.
func errorStatus(err error) (int, string) {
	var unvoted *poker.UnvotedError

	switch {
	case errors.Is(err, room.ErrRoomNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, poker.ErrNotHost):
		return http.StatusForbidden, "not_host"
	case errors.Is(err, poker.ErrNotInRoom):
		return http.StatusForbidden, "not_in_room"
	case errors.Is(err, poker.ErrEmptyName),
		errors.Is(err, poker.ErrTitleTooShort),
		errors.Is(err, poker.ErrUnknownLabel),
		errors.Is(err, poker.ErrFinalSizeRequired),
		errors.Is(err, poker.ErrInvalidSizing),
		errors.Is(err, poker.ErrInvalidRating),
		errors.Is(err, poker.ErrInvalidRoomID),
		errors.Is(err, errMalformedRequest):
		return http.StatusBadRequest, "invalid"
	case errors.Is(err, poker.ErrAlreadyVoted):
		return http.StatusConflict, "already_voted"
	case errors.Is(err, poker.ErrStoryRevealed),
		errors.Is(err, poker.ErrStoryInProgress),
		errors.Is(err, poker.ErrNoActiveStory):
		return http.StatusConflict, "wrong_phase"
	case errors.As(err, &unvoted):
		return http.StatusConflict, "players_waiting"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func newErrorMessage(cfg *Config, err error) (int, ErrorMessage) {
	status, code := errorStatus(err)

	msg := err.Error()
	if status == http.StatusInternalServerError {
		logErr(cfg, "request failed", err)

		msg = "An error has occurred. Please try again."
	}

	return status, ErrorMessage{Error: code, Message: msg}
}

func serveError(cfg *Config, w http.ResponseWriter, r *http.Request, err error, errs chan<- error) {
	status, body := newErrorMessage(cfg, err)

	logf(cfg, "ERROR: %s %s from %s: %v", r.Method, r.URL.Path, realIP(r), err)

	serveJSON(cfg, w, r, status, body, errs)
}

func newPage(cfg *Config, title, body string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(getFavicon(cfg))
	htmlBody.WriteString(`<style>`)
	htmlBody.WriteString(`html,body,a{display:block;height:100%;width:100%;text-decoration:none;color:inherit;cursor:auto;}</style>`)
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", title))
	htmlBody.WriteString(fmt.Sprintf("<body><a href=\"%s/\">%s</a></body></html>", cfg.prefix, body))

	return htmlBody.String()
}
