package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"attendify-backend/internal/handlers"
	"attendify-backend/internal/middleware"
)

type Deps struct {
	JWTAuth       *middleware.JWTAuth
	SubmitLimiter *middleware.RateLimiter
	Sessions      *handlers.AttendanceSessionHandler
	Summary       *handlers.AttendanceSummaryHandler
	WebSocket     http.HandlerFunc
	FrontendURL   string
}

func New(d Deps) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{d.FrontendURL},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {

		// ──── AI Attendance Session Routes ────
		r.Route("/attendance/ai/session", func(r chi.Router) {
			r.Use(d.JWTAuth.Middleware)

			r.Get("/active/{courseId}", d.Sessions.Active)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(middleware.RoleTeacher))
				r.Post("/start", d.Sessions.Start)
				r.Post("/stop", d.Sessions.Stop)
				r.Get("/{sessionId}/stats", d.Sessions.Stats)
				r.Get("/{sessionId}/submissions", d.Sessions.Submissions)
				r.Post("/submissions/{submissionId}/review", d.Sessions.Review)
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(middleware.RoleStudent))
				r.With(d.SubmitLimiter.Middleware).Post("/submit", d.Sessions.Submit)
				r.Get("/{sessionId}/submission", d.Sessions.MySubmission)
			})
		})

		// ──── Attendance Summary ────
		r.Route("/attendance/summary", func(r chi.Router) {
			r.Use(d.JWTAuth.Middleware)
			r.Use(middleware.RequireRole(middleware.RoleStudent))
			r.Get("/", d.Summary.Mine)
		})

		// ──── WebSocket ────
		if d.WebSocket != nil {
			r.Get("/ws", d.WebSocket)
		}
	})

	return r
}
