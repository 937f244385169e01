/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
)

const maxBodySize = 64 << 10

func humanReadableSize(bytes int) string {
	return humanize.Bytes(uint64(bytes))
}

// decodeJSON reads a size-limited JSON request body into v.
func decodeJSON(r *http.Request, w http.ResponseWriter, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))

	if err := dec.Decode(v); err != nil && err != io.EOF {
		return errMalformedRequest
	}

	return nil
}

func serveJSON(cfg *Config, w http.ResponseWriter, r *http.Request, status int, v any, errs chan<- error) {
	startTime := time.Now()

	data, err := json.Marshal(v)
	if err != nil {
		errs <- err

		w.WriteHeader(http.StatusInternalServerError)

		return
	}
	data = append(data, '\n')

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	securityHeaders(cfg, w)
	w.WriteHeader(status)

	written, err := w.Write(data)
	if err != nil {
		errs <- err

		return
	}

	logf(cfg, "SERVE: %s %s (%s) to %s in %s",
		r.Method,
		r.URL.Path,
		humanReadableSize(written),
		realIP(r),
		time.Since(startTime).Round(time.Microsecond),
	)
}
