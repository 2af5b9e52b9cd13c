package routers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/LiiXo/nomercy-sub000/internal/handlers"
	"github.com/LiiXo/nomercy-sub000/internal/realtime"
)

// RankedRoutes mounts the ranked API. Public reads stay open; everything
// that acts on behalf of a player sits behind Auth, and staff verbs behind
// RequireStaff on top of that.
func RankedRoutes(r *chi.Mux, jwtSecret string, logger *zap.Logger,
	qh *handlers.QueueHandler, mh *handlers.MatchHandler,
	hub *realtime.Hub, onPing func(userID string),
	canJoin func(matchID, userID string, staff bool) bool) {

	r.Route("/api/v1/ranked", func(r chi.Router) {
		r.Get("/queues", qh.Statuses)
		r.Get("/leaderboard", mh.Leaderboard)
		r.Get("/history/{userId}", mh.History)
		r.HandleFunc("/ws", realtime.ServeWS(hub, jwtSecret, logger, onPing, canJoin))

		r.Group(func(r chi.Router) {
			r.Use(handlers.Auth(jwtSecret))

			r.Get("/queue/status", qh.MyStatus)
			r.Post("/queue/join", qh.Join)
			r.Post("/queue/leave", qh.Leave)
			r.Post("/queue/heartbeat", qh.Heartbeat)

			r.Get("/active/me", mh.Active)
			r.Get("/matches/{id}", mh.Get)
			r.Post("/matches/{id}/code", mh.SubmitCode)
			r.Post("/matches/{id}/chat", mh.Chat)
			r.Post("/matches/{id}/result", mh.ReportResult)
			r.Post("/matches/{id}/dispute", mh.Dispute)

			r.Group(func(r chi.Router) {
				r.Use(handlers.RequireStaff)
				r.Get("/disputes", mh.Disputes)
				r.Post("/matches/{id}/dispute/resolve", mh.ResolveDispute)
				r.Post("/matches/{id}/dispute/cancel", mh.CancelDispute)
				r.Post("/matches/{id}/cancel", mh.Cancel)
			})
		})
	})
}

// Health mounts the liveness and readiness probes.
func Health(r *chi.Mux, ready func() bool) {
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if ready != nil && !ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})
}
