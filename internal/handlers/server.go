// internal/handlers/server.go
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jason-s-yu/imposter/internal/apperr"
	"github.com/jason-s-yu/imposter/internal/cache"
	"github.com/jason-s-yu/imposter/internal/game"
	"github.com/jason-s-yu/imposter/internal/middleware"
	"github.com/jason-s-yu/imposter/internal/models"
	"github.com/jason-s-yu/imposter/internal/realtime"
	"github.com/sirupsen/logrus"
)

// Options tune the HTTP surface.
type Options struct {
	// BaseURL is the public origin used in join links. When empty it is
	// derived from the request.
	BaseURL     string
	CORSOrigins []string
}

// Server exposes the coordinator over REST and websockets and fans results
// out to connected clients.
type Server struct {
	coord    *game.Coordinator
	hub      *realtime.Registry
	notify   *Notifier
	validate *validator.Validate
	logger   *logrus.Logger
	opts     Options
}

func NewServer(coord *game.Coordinator, hub *realtime.Registry, journal cache.Journal, logger *logrus.Logger, opts Options) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	return &Server{
		coord:    coord,
		hub:      hub,
		notify:   NewNotifier(hub, journal, logger),
		validate: newValidator(),
		logger:   logger,
		opts:     opts,
	}
}

// Notifier is used by background jobs that change lobbies outside a request.
func (s *Server) Notifier() *Notifier { return s.notify }

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.LogMiddleware(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Heartbeat("/ping"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.healthHandler)
	r.Get("/ws", s.lobbyWSHandler)

	r.Route("/lobby", func(r chi.Router) {
		r.Post("/create", s.createLobbyHandler)
		r.Delete("/delete/{id}", s.deleteLobbyHandler)
		r.Get("/{code}", s.getLobbyHandler)
		r.Get("/{code}/qr", s.qrHandler)
		r.Post("/{code}/join", s.joinLobbyHandler)
		r.Post("/{code}/leave", s.leaveLobbyHandler)
	})
	r.Route("/game", func(r chi.Router) {
		r.Post("/start", s.startGameHandler)
		r.Post("/vote", s.voteHandler)
		r.Post("/end", s.endGameHandler)
	})
	return r
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"lobbies": s.hub.LobbyCount(),
	})
}

// The flows below are shared by REST and websocket callers. Each runs one
// coordinator operation and then notifies the lobby.

func (s *Server) leaveLobby(ctx context.Context, code string, playerID uuid.UUID) (game.LeaveResult, error) {
	res, err := s.coord.LeaveLobby(ctx, code, playerID)
	if err != nil {
		return game.LeaveResult{}, err
	}
	s.notify.PlayerLeft(ctx, res)
	if !res.LobbyDeleted && res.Lobby.Status == models.StatusInProgress {
		s.resolveIfComplete(ctx, res.Lobby.ID, res.Lobby.VotingRound)
	}
	return res, nil
}

func (s *Server) startGame(ctx context.Context, lobbyID, requestedBy uuid.UUID, opts *models.GameOptions) (game.StartResult, error) {
	res, err := s.coord.StartGame(ctx, lobbyID, requestedBy, opts)
	if err != nil {
		return game.StartResult{}, err
	}
	s.notify.GameStarted(ctx, res)
	return res, nil
}

// castVote records a vote and, when it was the last one of the round,
// resolves the round.
func (s *Server) castVote(ctx context.Context, lobbyID, voterID, targetID uuid.UUID) (models.Player, error) {
	vote, target, err := s.coord.CastVote(ctx, lobbyID, voterID, targetID)
	if err != nil {
		return models.Player{}, err
	}
	allVoted, err := s.coord.AllVoted(ctx, lobbyID)
	if err != nil {
		s.logger.WithError(err).WithField("lobby", lobbyID).Error("vote recorded but progress check failed")
		allVoted = false
	}
	s.notify.PlayerVoted(ctx, vote, allVoted)
	if allVoted {
		s.resolveRound(ctx, lobbyID, vote.VotingRound)
	}
	return target, nil
}

// resolveIfComplete resolves the round when a leave removed the last
// player still owing a vote.
func (s *Server) resolveIfComplete(ctx context.Context, lobbyID uuid.UUID, round int) {
	allVoted, err := s.coord.AllVoted(ctx, lobbyID)
	if err != nil {
		s.logger.WithError(err).WithField("lobby", lobbyID).Error("progress check after leave failed")
		return
	}
	if allVoted {
		s.resolveRound(ctx, lobbyID, round)
	}
}

func (s *Server) resolveRound(ctx context.Context, lobbyID uuid.UUID, round int) {
	out, err := s.coord.ResolveRound(ctx, lobbyID, round)
	switch {
	case errors.Is(err, apperr.ErrConflict):
		// another request resolved it first
		s.logger.WithFields(logrus.Fields{"lobby": lobbyID, "round": round}).Debug("round already resolved")
		return
	case err != nil:
		s.logger.WithError(err).WithFields(logrus.Fields{"lobby": lobbyID, "round": round}).Error("resolve round failed")
		return
	}
	s.notify.RoundResolved(ctx, out)
}

func (s *Server) endLobby(ctx context.Context, lobbyID uuid.UUID) (models.Lobby, error) {
	lobby, err := s.coord.EndGame(ctx, lobbyID)
	if err != nil {
		return models.Lobby{}, err
	}
	s.notify.LobbyEnded(ctx, lobby)
	return lobby, nil
}

// originPatterns turns CORS origins into websocket host patterns.
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimPrefix(o, "https://")
		o = strings.TrimPrefix(o, "http://")
		out = append(out, strings.TrimRight(o, "/"))
	}
	return out
}
