package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/wolfbot/internal/api/handler"
	"github.com/mcoot/wolfbot/internal/api/middleware"
	"github.com/mcoot/wolfbot/internal/api/response"
	"github.com/mcoot/wolfbot/internal/services/auth"
	"github.com/mcoot/wolfbot/internal/services/game"
	"github.com/mcoot/wolfbot/internal/services/journal"
)

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger         *slog.Logger
	AuthService    *auth.Service
	GameController *game.Controller
	Journals       *journal.Partitioner
}

// NewRouter creates a new API router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	// Create handlers
	sessionHandler := handler.NewSessionHandler(cfg.AuthService)
	gameHandler := handler.NewGameHandler(cfg.GameController)
	voteHandler := handler.NewVoteHandler(cfg.GameController)
	journalHandler := handler.NewJournalHandler(cfg.Journals)

	// Create middleware
	authMiddleware := middleware.Auth(cfg.AuthService)
	loggingMiddleware := middleware.Logging(cfg.Logger)
	recoveryMiddleware := middleware.Recovery(cfg.Logger)

	// API subrouter with common middleware
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(recoveryMiddleware)
	api.Use(loggingMiddleware)

	// Unauthenticated routes
	api.HandleFunc("/health", healthHandler).Methods(http.MethodGet)
	api.HandleFunc("/sessions", sessionHandler.Create).Methods(http.MethodPost)

	// Routes open to any token holder. Handlers check that players only
	// act for themselves.
	player := api.NewRoute().Subrouter()
	player.Use(authMiddleware)
	player.HandleFunc("/communities/{community}/game", gameHandler.Current).Methods(http.MethodGet)
	player.HandleFunc("/communities/{community}/journals", journalHandler.Create).Methods(http.MethodPost)
	player.HandleFunc("/games/{game}", gameHandler.Get).Methods(http.MethodGet)
	player.HandleFunc("/games/{game}/signups", gameHandler.SignUp).Methods(http.MethodPost)
	player.HandleFunc("/games/{game}/signups/{member}", gameHandler.SignOut).Methods(http.MethodDelete)
	player.HandleFunc("/games/{game}/votes", voteHandler.Tally).Methods(http.MethodGet)
	player.HandleFunc("/games/{game}/votes/{voter}", voteHandler.Cast).Methods(http.MethodPut)
	player.HandleFunc("/games/{game}/votes/{voter}", voteHandler.Retract).Methods(http.MethodDelete)

	// Moderator routes
	mod := api.NewRoute().Subrouter()
	mod.Use(authMiddleware)
	mod.Use(middleware.RequireModerator)
	mod.HandleFunc("/communities/{community}/games", gameHandler.Create).Methods(http.MethodPost)
	mod.HandleFunc("/communities/{community}/journals/rebalance", journalHandler.Rebalance).Methods(http.MethodPost)
	mod.HandleFunc("/communities/{community}/journals/{channel}/owner", journalHandler.Assign).Methods(http.MethodPut)
	mod.HandleFunc("/games/{game}/start", gameHandler.Start).Methods(http.MethodPost)
	mod.HandleFunc("/games/{game}/advance", gameHandler.Advance).Methods(http.MethodPost)
	mod.HandleFunc("/games/{game}/end", gameHandler.End).Methods(http.MethodPost)
	mod.HandleFunc("/games/{game}/resync", gameHandler.Resync).Methods(http.MethodPost)
	mod.HandleFunc("/games/{game}/lockdown", gameHandler.Lockdown).Methods(http.MethodPost)
	mod.HandleFunc("/games/{game}/settings", gameHandler.UpdateSettings).Methods(http.MethodPatch)
	mod.HandleFunc("/games/{game}/players/{member}/kill", gameHandler.Kill).Methods(http.MethodPost)
	mod.HandleFunc("/games/{game}/channels", gameHandler.AddChannel).Methods(http.MethodPost)

	return r
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	response.JSON(w, http.StatusOK, response.Health{Status: "ok"})
}
