// internal/game/store.go
package game

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/imposter/internal/models"
	"github.com/jason-s-yu/imposter/internal/randutil"
)

// Store is the authoritative session state. Every method is atomic: it either
// applies all of its effects or none, and mutations on one lobby are
// linearized by the implementation.
type Store interface {
	CreateLobby(ctx context.Context, lobby models.Lobby, hostName string) (models.Lobby, models.Player, error)
	GetLobbyByCode(ctx context.Context, code string) (models.Lobby, error)
	GetLobbyByID(ctx context.Context, id uuid.UUID) (models.Lobby, error)
	ListPlayers(ctx context.Context, lobbyID uuid.UUID) ([]models.Player, error)
	CountPlayers(ctx context.Context, lobbyID uuid.UUID) (int, error)

	AddPlayer(ctx context.Context, lobbyID uuid.UUID, name string) (models.Player, error)
	RemovePlayer(ctx context.Context, lobbyID, playerID uuid.UUID) (LeaveResult, error)

	StartRound(ctx context.Context, lobbyID uuid.UUID, params StartParams) (StartResult, error)
	RecordVote(ctx context.Context, vote models.Vote) (models.Vote, models.Player, error)
	TallyVotes(ctx context.Context, lobbyID uuid.UUID, round int) ([]models.TallyEntry, error)
	AllVoted(ctx context.Context, lobbyID uuid.UUID, round int) (bool, error)
	ResolveRound(ctx context.Context, lobbyID uuid.UUID, round int, eval RoundEvaluator) (RoundOutcome, error)

	ResetLobby(ctx context.Context, lobbyID, requestedBy uuid.UUID) (models.Lobby, []models.Player, error)
	DeleteLobby(ctx context.Context, lobbyID uuid.UUID) (models.Lobby, error)
	DeleteStaleLobbies(ctx context.Context, before time.Time) ([]models.Lobby, error)
}

// StartParams configures one game start. A nil Options means "use the
// lobby's stored options". RequestedBy, when set, must be the host.
type StartParams struct {
	Options     *models.GameOptions
	RequestedBy uuid.UUID
	Rand        randutil.Source
}

// StartResult is the state right after a successful start. Players carry
// their role and word; callers must deliver those privately.
type StartResult struct {
	Lobby    models.Lobby
	Players  []models.Player
	WordPair models.WordPair
}

// LeaveResult describes what a leave did to the lobby.
type LeaveResult struct {
	Lobby        models.Lobby
	Player       models.Player
	NewHost      *models.Player
	Players      []models.Player
	LobbyDeleted bool
}

// RoundEvaluator decides the outcome of a round from a consistent snapshot.
// Stores call it inside the same transaction that applies the result.
type RoundEvaluator func(lobby models.Lobby, players []models.Player, tally []models.TallyEntry, allVoted bool) (RoundOutcome, error)

// Winner names the side that won a finished game.
type Winner string

const (
	WinnerCrew      Winner = "crew"
	WinnerImposters Winner = "imposters"
)

// RoundOutcome is the result of resolving one voting round.
type RoundOutcome struct {
	Round     int                 `json:"round"`
	Tally     []models.TallyEntry `json:"tally"`
	VotedOut  *models.TallyEntry  `json:"votedOut,omitempty"`
	Tie       bool                `json:"tie"`
	GameOver  bool                `json:"gameOver"`
	Winner    Winner              `json:"winner,omitempty"`
	NextRound int                 `json:"nextRound,omitempty"`
	Imposters []models.Player     `json:"imposters,omitempty"`
	Lobby     models.Lobby        `json:"lobby"`
}
