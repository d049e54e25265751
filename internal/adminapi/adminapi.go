// Package adminapi is the operator-facing control plane: a read-only
// snapshot of the invite catalogue for dashboards, a health check, and the
// restart-gate control the "Restart coordinator" collaborator needs in
// production. It is deliberately separate from internal/transport's
// player-facing websocket surface — this is chi+cors HTTP, grounded on the
// teacher's cmd/cambia/cambia.go router setup.
package adminapi

import (
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/corvidchess/invitelobby/internal/invite"
	"github.com/corvidchess/invitelobby/internal/restart"
)

// InviteSnapshotter exposes the public invite catalogue. internal/lobby's
// Coordinator is not used directly here to keep adminapi from depending on
// the command-queue internals; a thin adapter in cmd/invitelobbyd supplies
// this.
type InviteSnapshotter interface {
	PublicSnapshot() []invite.SafeInvite
}

// GameCounter reports the number of games currently in progress.
type GameCounter interface {
	ActiveGameCount() int
}

// New builds the admin router. allowedOrigins empty means "allow any
// origin" (development mode, mirroring the teacher's CAMBIA_ENV check).
func New(invites InviteSnapshotter, games GameCounter, gate *restart.Gate, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	origins := allowedOrigins
	if len(origins) == 0 {
		origins = []string{"https://*", "http://*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":       "ok",
			"active_games": games.ActiveGameCount(),
		})
	})

	r.Get("/invites", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"invites": invites.PublicSnapshot(),
		})
	})

	r.Route("/restart", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			restarting := gate.IsServerRestarting()
			minutes, known := gate.MinutesUntilRestart()
			writeJSON(w, http.StatusOK, map[string]any{
				"restarting":      restarting,
				"minutes_known":   known,
				"minutes_until":   minutes,
				"server_time_utc": nowLabel(),
			})
		})

		r.Post("/announce", func(w http.ResponseWriter, r *http.Request) {
			minutesStr := r.URL.Query().Get("minutes")
			minutes, err := strconv.Atoi(minutesStr)
			if err != nil || minutes < 0 {
				http.Error(w, "minutes must be a non-negative integer", http.StatusBadRequest)
				return
			}
			gate.Announce(time.Now().Add(time.Duration(minutes) * time.Minute))
			writeJSON(w, http.StatusOK, map[string]any{"restarting": true, "minutes_until": minutes})
		})

		r.Post("/cancel", func(w http.ResponseWriter, r *http.Request) {
			gate.Cancel()
			writeJSON(w, http.StatusOK, map[string]any{"restarting": false})
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func nowLabel() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// AllowedOriginsFromEnv splits a comma-separated ALLOWED_ORIGINS value, the
// same convention the teacher's cambia.go reads for production CORS.
func AllowedOriginsFromEnv() []string {
	raw := os.Getenv("ALLOWED_ORIGINS")
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}
