// Package api serves the cached snapshot over a rate-limited JSON API.
// Requests only ever read the cache's current value; nothing here can start
// a scrape except the explicit refresh trigger, which goes through the
// scheduler's single-flight gate like any tick.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/courtside/linefeed/internal/cache"
	"github.com/courtside/linefeed/internal/feed"
	"github.com/courtside/linefeed/internal/scrape"
)

// Server holds the HTTP handlers' dependencies.
type Server struct {
	cache  *cache.Cache
	sched  *scrape.Scheduler
	logger *slog.Logger
}

// NewServer creates the handler set.
func NewServer(c *cache.Cache, sched *scrape.Scheduler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{cache: c, sched: sched, logger: logger}
}

// Router builds the chi router with the standard middleware stack.
// The health check bypasses rate limiting via the limiter's exclude list.
func (s *Server) Router(limiter *Limiter) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(limiter.Middleware)

	r.Get("/healthz", s.handleHealth)
	r.Get("/odds", s.handleLive)
	r.Get("/odds/upcoming", s.handleUpcoming)
	r.Get("/match/{id}", s.handleMatch)
	r.Get("/leagues", s.handleLeagues)
	r.Get("/sports", s.handleSports)
	r.Get("/status", s.handleStatus)
	r.Post("/refresh", s.handleRefresh)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	snap, st, ok := s.cache.Get()
	if !ok {
		writeNoData(w)
		return
	}
	records := filterFromQuery(r).Apply(snap.Live)
	writeJSON(w, http.StatusOK, map[string]any{
		"count":       len(records),
		"records":     records,
		"captured_at": snap.CapturedAt.UTC().Format(time.RFC3339),
		"staleness":   st,
	})
}

func (s *Server) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	snap, st, ok := s.cache.Get()
	if !ok {
		writeNoData(w)
		return
	}
	f := filterFromQuery(r)
	f.Date = r.URL.Query().Get("date")
	records := f.Apply(snap.Upcoming)
	writeJSON(w, http.StatusOK, map[string]any{
		"count":       len(records),
		"records":     records,
		"captured_at": snap.CapturedAt.UTC().Format(time.RFC3339),
		"staleness":   st,
	})
}

// handleMatch looks up one event by its synthesized match id, searching live
// records first, then upcoming.
func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	snap, st, ok := s.cache.Get()
	if !ok {
		writeNoData(w)
		return
	}
	// chi hands back the raw segment when the request path was escaped.
	id := chi.URLParam(r, "id")
	if dec, err := url.PathUnescape(id); err == nil {
		id = dec
	}
	for _, records := range [][]feed.Record{snap.Live, snap.Upcoming} {
		for _, rec := range records {
			if mid, _ := rec["match_id"].(string); mid == id {
				writeJSON(w, http.StatusOK, map[string]any{
					"record":      rec,
					"captured_at": snap.CapturedAt.UTC().Format(time.RFC3339),
					"staleness":   st,
				})
				return
			}
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "match not found"})
}

func (s *Server) handleLeagues(w http.ResponseWriter, r *http.Request) {
	snap, st, ok := s.cache.Get()
	if !ok {
		writeNoData(w)
		return
	}
	leagues := snap.Leagues
	if sport := r.URL.Query().Get("sport"); sport != "" {
		filtered := make([]feed.League, 0, len(leagues))
		for _, l := range leagues {
			if strings.EqualFold(l.Sport, sport) {
				filtered = append(filtered, l)
			}
		}
		leagues = filtered
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":       len(leagues),
		"leagues":     leagues,
		"captured_at": snap.CapturedAt.UTC().Format(time.RFC3339),
		"staleness":   st,
	})
}

func (s *Server) handleSports(w http.ResponseWriter, r *http.Request) {
	snap, _, ok := s.cache.Get()
	if !ok {
		writeNoData(w)
		return
	}
	sports := snap.Sports()
	writeJSON(w, http.StatusOK, map[string]any{
		"count":  len(sports),
		"sports": sports,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.sched.Status()
	body := map[string]any{
		"state":    st.State,
		"cycles":   st.Cycles,
		"failures": st.Failures,
	}
	if st.LastError != "" {
		body["last_error"] = st.LastError
	}
	if snap, staleness, ok := s.cache.Get(); ok {
		body["last_capture"] = snap.CapturedAt.UTC().Format(time.RFC3339)
		body["staleness"] = staleness
		body["engine"] = snap.Engine
		body["live_count"] = len(snap.Live)
		body["upcoming_count"] = len(snap.Upcoming)
		body["leagues_count"] = len(snap.Leagues)
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.sched.Trigger() {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh_triggered"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "already_running"})
}

func filterFromQuery(r *http.Request) feed.Filter {
	q := r.URL.Query()
	return feed.Filter{
		Sport:  q.Get("sport"),
		League: q.Get("league"),
		Team:   q.Get("team"),
	}
}

func writeNoData(w http.ResponseWriter) {
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no data yet"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
