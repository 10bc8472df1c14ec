package router

import (
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	mw "github.com/mindwell-dev/mindwell/internal/middleware"
	"github.com/mindwell-dev/mindwell/internal/middleware/metrics"
	rl "github.com/mindwell-dev/mindwell/internal/middleware/ratelimiter"
	"github.com/mindwell-dev/mindwell/internal/setup"
)

// New creates and configures a new mux router with all the routes.
// IMPORTANT! ratelimiters set with .Use limit requests for all endpoints combined in that subrouter
func New(deps *setup.Dependencies) *mux.Router {
	r := mux.NewRouter()
	cfg := deps.Config

	r.Use(handlers.CompressHandler)

	r.Use(handlers.CORS(
		handlers.AllowedOrigins(cfg.Public.AllowedOrigins),
		handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		handlers.AllowCredentials(),
	))

	// JSON API only, no scripts/styles needed
	apiCSP := "default-src 'none'; frame-ancestors 'none'"
	r.Use(mw.SecurityHeadersWithCSP(cfg.Public.SecureCookies, apiCSP))

	r.Use(metrics.Middleware)

	// Add a wildcard OPTIONS handler to avoid 404s for preflight requests
	r.Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	h := deps.Handler
	authMw := deps.AuthMiddleware

	// Probes and metrics, unauthenticated
	r.HandleFunc("/health", h.Health).Methods("GET")
	r.HandleFunc("/ready", h.Ready).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	v1 := r.PathPrefix("/v1").Subrouter()

	// Anonymous session issuance (unauthenticated by definition)
	session := v1.NewRoute().Subrouter()
	session.Use(mw.RateLimit(rl.New(1.0/10, 3, 1*time.Hour), mw.GetIP)) // one every 10s by IP, small burst
	session.Use(mw.GlobalRateLimit(rl.Rps100()))
	session.HandleFunc("/session/anonymous", h.AnonymousSession).Methods("POST")

	// Authenticated routes
	loggedIn := v1.NewRoute().Subrouter()
	loggedIn.Use(authMw.NeedAuth())
	loggedIn.Use(mw.RateLimit(rl.Rps100(), mw.GetCallerRefFromContext))

	// Ensure is student-only; every other operation checks authorization
	// against the thread inside the service layer.
	loggedIn.Handle("/threads/ensure", authMw.StudentOnly()(http.HandlerFunc(h.EnsureThread))).Methods("POST")
	loggedIn.HandleFunc("/threads", h.ListThreads).Methods("GET")
	loggedIn.HandleFunc("/threads/{thread}", h.GetThread).Methods("GET")
	loggedIn.HandleFunc("/threads/{thread}/read", h.MarkRead).Methods("POST")
	loggedIn.HandleFunc("/threads/{thread}/close", h.CloseThread).Methods("POST")

	// SendMessage: per-caller token bucket from config
	sendLimiter := rl.New(cfg.Public.SendRatePerSec, cfg.Public.SendBurst, 1*time.Hour)
	loggedIn.Handle("/threads/{thread}/messages",
		mw.RateLimit(sendLimiter, mw.GetCallerRefFromContext)(http.HandlerFunc(h.SendMessage))).Methods("POST")

	// Event streams (websocket)
	loggedIn.HandleFunc("/threads/{thread}/subscribe", h.SubscribeThread).Methods("GET")
	loggedIn.HandleFunc("/events", h.SubscribeEvents).Methods("GET")

	return r
}
