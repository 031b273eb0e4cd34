package delivery

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"audio-delivery/internal/cache"
	"audio-delivery/internal/limiter"
	"audio-delivery/internal/platform/metrics"
	"audio-delivery/internal/platform/ratelimit"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

// retryAfterSeconds is sent with admission rejections.
const retryAfterSeconds = "1"

// Handler exposes the streaming, download and now-playing endpoints using go-chi.
type Handler struct {
	svc        *Service
	nowPlaying *cache.NowPlayingCache
	log        *slog.Logger
	metrics    *metrics.Metrics
}

// NewHandler returns a Handler over svc and the now-playing cache.
// Metrics may be nil to disable metric recording (e.g. in tests).
func NewHandler(svc *Service, np *cache.NowPlayingCache, log *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{svc: svc, nowPlaying: np, log: log, metrics: m}
}

// Register mounts the handler's routes on r. The scrobble route is rate
// limited by scrobble.
func (h *Handler) Register(r chi.Router, scrobble ratelimit.Config) {
	r.Route("/rest", func(r chi.Router) {
		for _, p := range []string{"/stream", "/stream.view"} {
			r.Get(p, h.Stream)
			r.Head(p, h.Stream)
		}
		for _, p := range []string{"/download", "/download.view"} {
			r.Get(p, h.Download)
			r.Head(p, h.Download)
		}
		r.Group(func(r chi.Router) {
			r.Use(ratelimit.Middleware(scrobble))
			r.Get("/scrobble", h.Scrobble)
			r.Post("/scrobble", h.Scrobble)
		})
		r.Get("/getNowPlaying", h.GetNowPlaying)
		r.Delete("/nowPlaying", h.ClearNowPlaying)
	})
}

// Stream handles GET|HEAD /rest/stream?id=... and answers inline.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, false)
}

// Download handles GET|HEAD /rest/download?id=... and answers as an attachment.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, true)
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, download bool) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing id")
		return
	}

	p, err := h.svc.Prepare(r.Context(), Request{
		TrackID:     id,
		RangeHeader: r.Header.Get("Range"),
		Download:    download,
		Head:        r.Method == http.MethodHead,
	})
	switch {
	case errors.Is(err, ErrTrackNotFound):
		writeError(w, http.StatusNotFound, "track not found")
		return
	case err != nil:
		h.log.Error("prepare stream failed", slog.String("id", id), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "source unavailable")
		return
	}

	if p.Status != http.StatusRequestedRangeNotSatisfiable && etagMatches(r.Header.Get("If-None-Match"), p.ETag) {
		w.Header().Set("ETag", p.ETag)
		w.WriteHeader(http.StatusNotModified)
		h.metrics.IncResponseStatus(http.StatusNotModified)
		return
	}

	_, err = h.svc.Deliver(r.Context(), p, UserKey(r), w)
	if errors.Is(err, ErrAdmissionRejected) {
		w.Header().Set("Retry-After", retryAfterSeconds)
		if errors.Is(err, limiter.ErrUserLimit) {
			writeError(w, http.StatusTooManyRequests, "too many concurrent streams for user")
			return
		}
		writeError(w, http.StatusServiceUnavailable, "server at stream capacity")
	}
	// Any other error happened after the status line went out; Deliver logged it.
}

// Scrobble handles GET|POST /rest/scrobble. submission=false records the
// track as now playing for the (user, client) session; submission=true (the
// default) means playback finished and drops the session.
func (h *Handler) Scrobble(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form")
		return
	}
	id := r.Form.Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing id")
		return
	}
	submission := true
	if v := r.Form.Get("submission"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid submission")
			return
		}
		submission = b
	}
	position := 0
	if v := r.Form.Get("position"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid position")
			return
		}
		position = n
	}

	user := UserKey(r)
	client := r.Form.Get("c")
	key := cache.SessionKey(user, client)
	if submission {
		h.nowPlaying.Remove(key)
		h.log.Debug("scrobble submitted", slog.String("user", user), slog.String("id", id))
	} else {
		h.nowPlaying.AddOrUpdate(key, cache.NowPlaying{
			User:            user,
			Client:          client,
			TrackID:         id,
			PositionSeconds: position,
		})
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetNowPlaying handles GET /rest/getNowPlaying.
func (h *Handler) GetNowPlaying(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"nowPlaying": h.nowPlaying.Current()})
}

// ClearNowPlaying handles DELETE /rest/nowPlaying.
func (h *Handler) ClearNowPlaying(w http.ResponseWriter, r *http.Request) {
	h.nowPlaying.Clear()
	h.log.Info("now playing cleared")
	w.WriteHeader(http.StatusNoContent)
}

// UserKey is the u parameter from the query or a form body, or the client
// IP when it is absent. It parses the form, so it is safe to call from
// middleware that runs before the handler.
func UserKey(r *http.Request) string {
	if u := strings.TrimSpace(r.FormValue("u")); u != "" {
		return u
	}
	ip, err := httprate.KeyByIP(r)
	if err != nil || ip == "" {
		return r.RemoteAddr
	}
	return ip
}

func etagMatches(header, etag string) bool {
	if header == "" || etag == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
