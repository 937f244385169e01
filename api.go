/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Seednode/sizewise/poker"
	"github.com/Seednode/sizewise/room"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

const qrSize = 320

type RoomCreated struct {
	RoomID string `json:"roomId"`
	URL    string `json:"url"`
}

type JoinRequest struct {
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl"`
}

type FeedbackRequest struct {
	Rating int    `json:"rating"`
	Text   string `json:"feedbackText"`
}

func roomPath(cfg *Config, roomID string) string {
	return cfg.prefix + "/room/" + roomID
}

func roomParam(ps httprouter.Params) (string, error) {
	return poker.NormalizeRoomID(ps.ByName("roomid"))
}

func serveCreateRoom(cfg *Config, svc *room.Service, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		actor := getOrSetPlayerID(cfg, w, r)

		var req room.CreateRequest
		if err := decodeJSON(r, w, &req); err != nil {
			serveError(cfg, w, r, err, errs)

			return
		}

		created, err := svc.Create(r.Context(), actor, req)
		if err != nil {
			serveError(cfg, w, r, err, errs)

			return
		}

		logf(cfg, "ROOMS: Created room %s for %s", created.ID, realIP(r))

		serveJSON(cfg, w, r, http.StatusCreated, RoomCreated{
			RoomID: created.ID,
			URL:    roomPath(cfg, created.ID),
		}, errs)
	}
}

func serveJoinRoom(cfg *Config, svc *room.Service, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		actor := getOrSetPlayerID(cfg, w, r)

		var req JoinRequest
		if err := decodeJSON(r, w, &req); err != nil {
			serveError(cfg, w, r, err, errs)

			return
		}

		roomID, err := svc.Join(r.Context(), actor, ps.ByName("roomid"), req.Name, req.AvatarURL)
		if err != nil {
			serveError(cfg, w, r, err, errs)

			return
		}

		serveJSON(cfg, w, r, http.StatusOK, RoomCreated{
			RoomID: roomID,
			URL:    roomPath(cfg, roomID),
		}, errs)
	}
}

func serveRoomView(cfg *Config, svc *room.Service, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		roomID, err := roomParam(ps)
		if err != nil {
			serveError(cfg, w, r, err, errs)

			return
		}

		snap, err := svc.Snapshot(r.Context(), roomID)
		if err != nil {
			serveError(cfg, w, r, err, errs)

			return
		}

		serveJSON(cfg, w, r, http.StatusOK, poker.NewView(snap, playerID(r), nil), errs)
	}
}

func serveSummary(cfg *Config, svc *room.Service, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		startTime := time.Now()

		roomID, err := roomParam(ps)
		if err != nil {
			serveError(cfg, w, r, err, errs)

			return
		}

		sum, err := svc.Summary(r.Context(), playerID(r), roomID)
		if err != nil {
			serveError(cfg, w, r, err, errs)

			return
		}

		if r.URL.Query().Get("format") == "json" {
			serveJSON(cfg, w, r, http.StatusOK, sum, errs)

			return
		}

		data := []byte(sum.Text())

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		securityHeaders(cfg, w)

		written, err := w.Write(data)
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "SERVE: Summary of %s (%s) to %s in %s",
			roomID,
			humanReadableSize(written),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func serveFeedback(cfg *Config, svc *room.Service, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		actor := getOrSetPlayerID(cfg, w, r)

		var req FeedbackRequest
		if err := decodeJSON(r, w, &req); err != nil {
			serveError(cfg, w, r, err, errs)

			return
		}

		if err := svc.SubmitFeedback(r.Context(), actor, req.Rating, req.Text); err != nil {
			serveError(cfg, w, r, err, errs)

			return
		}

		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusNoContent)
	}
}

// serveQR renders a PNG QR code linking to the room. Only participants who
// may invite others get one.
func serveQR(cfg *Config, svc *room.Service, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		roomID, err := roomParam(ps)
		if err != nil {
			serveError(cfg, w, r, err, errs)

			return
		}

		snap, err := svc.Snapshot(r.Context(), roomID)
		if err != nil {
			serveError(cfg, w, r, err, errs)

			return
		}

		i := poker.FindPlayer(snap.Players, playerID(r))
		if i < 0 {
			serveError(cfg, w, r, poker.ErrNotInRoom, errs)

			return
		}

		if !poker.CanInvite(snap.Room, snap.Players[i]) {
			serveError(cfg, w, r, poker.ErrNotHost, errs)

			return
		}

		// Derive scheme, respecting TLS and X-Forwarded-Proto if present.
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		png, err := qrcode.Encode(scheme+"://"+r.Host+roomPath(cfg, roomID), qrcode.Medium, qrSize)
		if err != nil {
			serveError(cfg, w, r, err, errs)

			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Length", strconv.Itoa(len(png)))
		securityHeaders(cfg, w)

		if _, err := w.Write(png); err != nil {
			errs <- err
		}
	}
}
