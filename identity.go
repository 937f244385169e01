/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

const playerCookieName = "sizewise_id"

// playerID returns the anonymous identity carried by the request, if any.
func playerID(r *http.Request) string {
	c, err := r.Cookie(playerCookieName)
	if err != nil {
		return ""
	}

	if _, err := uuid.Parse(c.Value); err != nil {
		return ""
	}

	return c.Value
}

// getOrSetPlayerID returns the caller's identity, issuing a new one if the
// request carries none. The identity lives for a year and is refreshed on
// every issue.
func getOrSetPlayerID(cfg *Config, w http.ResponseWriter, r *http.Request) string {
	if id := playerID(r); id != "" {
		return id
	}

	id := uuid.NewString()

	http.SetCookie(w, &http.Cookie{
		Name:     playerCookieName,
		Value:    id,
		Path:     cfg.prefix + "/",
		Expires:  time.Now().AddDate(1, 0, 0),
		HttpOnly: true,
		Secure:   cfg.scheme() == "https",
		SameSite: http.SameSiteLaxMode,
	})

	return id
}
