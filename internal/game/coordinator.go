// internal/game/coordinator.go
package game

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/imposter/internal/apperr"
	"github.com/jason-s-yu/imposter/internal/models"
	"github.com/jason-s-yu/imposter/internal/randutil"
	"github.com/sirupsen/logrus"
)

// Coordinator orchestrates lobby lifecycle, game start, voting and teardown
// on top of a Store. It holds no session state of its own.
type Coordinator struct {
	store  Store
	rng    randutil.Source
	logger *logrus.Logger
	now    func() time.Time
}

// NewCoordinator wires a coordinator. A nil rng uses a runtime-seeded source.
func NewCoordinator(store Store, rng randutil.Source, logger *logrus.Logger) *Coordinator {
	if rng == nil {
		rng = randutil.NewRandom()
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Coordinator{store: store, rng: rng, logger: logger, now: time.Now}
}

// CreateLobbyWithHost creates a lobby under a fresh code and seats name as host.
func (c *Coordinator) CreateLobbyWithHost(ctx context.Context, name string, opts models.GameOptions) (models.Lobby, models.Player, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return models.Lobby{}, models.Player{}, err
	}
	opts = opts.Normalized()

	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		candidate := models.Lobby{
			ID:            uuid.New(),
			Code:          GenerateCode(c.rng),
			HostName:      name,
			ImposterKnows: opts.ImposterKnows,
			ImposterCount: opts.ImposterCount,
			MaxRounds:     opts.MaxRounds,
			Status:        models.StatusWaiting,
		}
		lobby, host, err := c.store.CreateLobby(ctx, candidate, name)
		if err == nil {
			c.logger.WithFields(logrus.Fields{"lobby": lobby.ID, "code": lobby.Code, "attempt": attempt}).Info("lobby created")
			return lobby, host, nil
		}
		if !errors.Is(err, apperr.ErrConflict) {
			return models.Lobby{}, models.Player{}, apperr.Internal(err, "create lobby")
		}
		c.logger.WithField("code", candidate.Code).Debug("lobby code collision, retrying")
	}
	return models.Lobby{}, models.Player{}, apperr.Exhausted("could not allocate a unique code")
}

// JoinLobby adds name to the lobby identified by code.
func (c *Coordinator) JoinLobby(ctx context.Context, code, name string) (models.Player, models.Lobby, []models.Player, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return models.Player{}, models.Lobby{}, nil, err
	}
	lobby, err := c.lobbyByCode(ctx, code)
	if err != nil {
		return models.Player{}, models.Lobby{}, nil, err
	}
	player, err := c.store.AddPlayer(ctx, lobby.ID, name)
	if err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return models.Player{}, models.Lobby{}, nil, apperr.Conflict("name already in use")
		}
		return models.Player{}, models.Lobby{}, nil, apperr.Internal(err, "add player")
	}
	players, err := c.store.ListPlayers(ctx, lobby.ID)
	if err != nil {
		return models.Player{}, models.Lobby{}, nil, apperr.Internal(err, "list players")
	}
	c.logger.WithFields(logrus.Fields{"lobby": lobby.ID, "player": player.ID}).Info("player joined")
	return player, lobby, players, nil
}

// LeaveLobby removes a player, handing the host role on or deleting the
// lobby in the same atomic step.
func (c *Coordinator) LeaveLobby(ctx context.Context, code string, playerID uuid.UUID) (LeaveResult, error) {
	lobby, err := c.lobbyByCode(ctx, code)
	if err != nil {
		return LeaveResult{}, err
	}
	res, err := c.store.RemovePlayer(ctx, lobby.ID, playerID)
	if err != nil {
		return LeaveResult{}, apperr.Internal(err, "remove player")
	}
	fields := logrus.Fields{"lobby": lobby.ID, "player": playerID}
	switch {
	case res.LobbyDeleted:
		c.logger.WithFields(fields).Info("last player left, lobby deleted")
	case res.NewHost != nil:
		fields["newHost"] = res.NewHost.ID
		c.logger.WithFields(fields).Info("host left, role transferred")
	default:
		c.logger.WithFields(fields).Info("player left")
	}
	return res, nil
}

// GetLobby returns a lobby and its players by code.
func (c *Coordinator) GetLobby(ctx context.Context, code string) (models.Lobby, []models.Player, error) {
	lobby, err := c.lobbyByCode(ctx, code)
	if err != nil {
		return models.Lobby{}, nil, err
	}
	players, err := c.store.ListPlayers(ctx, lobby.ID)
	if err != nil {
		return models.Lobby{}, nil, apperr.Internal(err, "list players")
	}
	return lobby, players, nil
}

// StartGame advances the round, picks an unused word pair and assigns words
// and imposters as one unit. A nil opts reuses the lobby's stored options.
// requestedBy may be uuid.Nil when the caller is not a player.
func (c *Coordinator) StartGame(ctx context.Context, lobbyID, requestedBy uuid.UUID, opts *models.GameOptions) (StartResult, error) {
	if opts != nil {
		n := opts.Normalized()
		opts = &n
	}
	res, err := c.store.StartRound(ctx, lobbyID, StartParams{Options: opts, RequestedBy: requestedBy, Rand: c.rng})
	if err != nil {
		return StartResult{}, apperr.Internal(err, "start game")
	}
	c.logger.WithFields(logrus.Fields{
		"lobby":     lobbyID,
		"round":     res.Lobby.VotingRound,
		"players":   len(res.Players),
		"imposters": res.Lobby.ImposterCount,
	}).Info("game started")
	return res, nil
}

// CastVote records voterID's vote for targetID in the current round and
// returns the vote and the target.
func (c *Coordinator) CastVote(ctx context.Context, lobbyID, voterID, targetID uuid.UUID) (models.Vote, models.Player, error) {
	if voterID == targetID {
		return models.Vote{}, models.Player{}, apperr.Validation("players cannot vote for themselves")
	}
	lobby, err := c.store.GetLobbyByID(ctx, lobbyID)
	if err != nil {
		return models.Vote{}, models.Player{}, apperr.Internal(err, "get lobby")
	}
	if lobby.Status != models.StatusInProgress {
		return models.Vote{}, models.Player{}, apperr.Validation("no round in progress")
	}
	vote, target, err := c.store.RecordVote(ctx, models.Vote{
		VoterID:     voterID,
		TargetID:    targetID,
		LobbyID:     lobbyID,
		VotingRound: lobby.VotingRound,
	})
	if err != nil {
		return models.Vote{}, models.Player{}, apperr.Internal(err, "record vote")
	}
	return vote, target, nil
}

// TallyCurrentRound aggregates votes for the lobby's current round. It does
// not decide anything; see ResolveRound.
func (c *Coordinator) TallyCurrentRound(ctx context.Context, lobbyID uuid.UUID) (int, []models.TallyEntry, error) {
	lobby, err := c.store.GetLobbyByID(ctx, lobbyID)
	if err != nil {
		return 0, nil, apperr.Internal(err, "get lobby")
	}
	tally, err := c.store.TallyVotes(ctx, lobbyID, lobby.VotingRound)
	if err != nil {
		return 0, nil, apperr.Internal(err, "tally votes")
	}
	return lobby.VotingRound, tally, nil
}

// AllVoted reports whether every active player has voted this round.
func (c *Coordinator) AllVoted(ctx context.Context, lobbyID uuid.UUID) (bool, error) {
	lobby, err := c.store.GetLobbyByID(ctx, lobbyID)
	if err != nil {
		return false, apperr.Internal(err, "get lobby")
	}
	ok, err := c.store.AllVoted(ctx, lobbyID, lobby.VotingRound)
	if err != nil {
		return false, apperr.Internal(err, "count votes")
	}
	return ok, nil
}

// ResolveRound closes the given round once everyone has voted. A second
// resolve of the same round fails with a conflict.
func (c *Coordinator) ResolveRound(ctx context.Context, lobbyID uuid.UUID, round int) (RoundOutcome, error) {
	out, err := c.store.ResolveRound(ctx, lobbyID, round, EvaluateRound)
	if err != nil {
		return RoundOutcome{}, apperr.Internal(err, "resolve round")
	}
	fields := logrus.Fields{"lobby": lobbyID, "round": round, "tie": out.Tie}
	if out.VotedOut != nil {
		fields["votedOut"] = out.VotedOut.PlayerID
	}
	if out.GameOver {
		fields["winner"] = out.Winner
	}
	c.logger.WithFields(fields).Info("round resolved")
	return out, nil
}

// ResetGame returns the lobby to a fresh WAITING state. Used word pairs are
// kept so a new game never repeats them.
func (c *Coordinator) ResetGame(ctx context.Context, lobbyID, requestedBy uuid.UUID) (models.Lobby, []models.Player, error) {
	lobby, players, err := c.store.ResetLobby(ctx, lobbyID, requestedBy)
	if err != nil {
		return models.Lobby{}, nil, apperr.Internal(err, "reset lobby")
	}
	c.logger.WithField("lobby", lobbyID).Info("game reset")
	return lobby, players, nil
}

// DeleteLobby tears a lobby down. Deleting an absent lobby is a NotFound.
func (c *Coordinator) DeleteLobby(ctx context.Context, lobbyID uuid.UUID) (models.Lobby, error) {
	lobby, err := c.store.DeleteLobby(ctx, lobbyID)
	if err != nil {
		return models.Lobby{}, apperr.Internal(err, "delete lobby")
	}
	lobby.Status = models.StatusEnded
	c.logger.WithField("lobby", lobbyID).Info("lobby deleted")
	return lobby, nil
}

// EndGame ends the game and the lobby with it.
func (c *Coordinator) EndGame(ctx context.Context, lobbyID uuid.UUID) (models.Lobby, error) {
	return c.DeleteLobby(ctx, lobbyID)
}

// SweepStaleLobbies deletes lobbies untouched for longer than maxAge.
func (c *Coordinator) SweepStaleLobbies(ctx context.Context, maxAge time.Duration) ([]models.Lobby, error) {
	removed, err := c.store.DeleteStaleLobbies(ctx, c.now().Add(-maxAge))
	if err != nil {
		return nil, apperr.Internal(err, "delete stale lobbies")
	}
	for i := range removed {
		removed[i].Status = models.StatusEnded
	}
	return removed, nil
}

func (c *Coordinator) lobbyByCode(ctx context.Context, code string) (models.Lobby, error) {
	code = NormalizeCode(code)
	if !ValidCode(code) {
		return models.Lobby{}, apperr.NotFound("lobby %q not found", code)
	}
	lobby, err := c.store.GetLobbyByCode(ctx, code)
	if err != nil {
		return models.Lobby{}, apperr.Internal(err, "get lobby")
	}
	return lobby, nil
}
