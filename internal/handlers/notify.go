package handlers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/imposter/internal/apperr"
	"github.com/jason-s-yu/imposter/internal/cache"
	"github.com/jason-s-yu/imposter/internal/game"
	"github.com/jason-s-yu/imposter/internal/models"
	"github.com/jason-s-yu/imposter/internal/realtime"
	"github.com/sirupsen/logrus"
)

const journalTimeout = 2 * time.Second

// Notifier turns coordinator results into realtime messages. Lobby-wide
// messages are also appended to the event journal; private ones never are.
type Notifier struct {
	hub     *realtime.Registry
	journal cache.Journal
	logger  *logrus.Logger
}

func NewNotifier(hub *realtime.Registry, journal cache.Journal, logger *logrus.Logger) *Notifier {
	if journal == nil {
		journal = cache.Nop{}
	}
	return &Notifier{hub: hub, journal: journal, logger: logger}
}

func (n *Notifier) broadcast(ctx context.Context, lobbyID uuid.UUID, typ string, msg any) {
	sent, err := n.hub.Broadcast(lobbyID, realtime.Envelope{Type: typ, Msg: msg})
	if err != nil {
		n.logger.WithError(err).WithField("lobby", lobbyID).Error("broadcast failed")
		return
	}
	n.logger.WithFields(logrus.Fields{"lobby": lobbyID, "type": typ, "recipients": sent}).Debug("broadcast")

	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), journalTimeout)
	defer cancel()
	if err := n.journal.Publish(jctx, cache.LobbyEvent{LobbyID: lobbyID, Type: typ, Payload: msg}); err != nil {
		n.logger.WithError(err).WithField("lobby", lobbyID).Warn("journal publish failed")
	}
}

func (n *Notifier) toPlayer(lobbyID, playerID uuid.UUID, typ string, msg any) {
	sent, err := n.hub.SendToPlayer(lobbyID, playerID, realtime.Envelope{Type: typ, Msg: msg})
	if err != nil {
		n.logger.WithError(err).WithField("lobby", lobbyID).Error("send failed")
		return
	}
	if sent == 0 {
		n.logger.WithFields(logrus.Fields{"lobby": lobbyID, "player": playerID, "type": typ}).Debug("player has no live connection")
	}
}

func (n *Notifier) LobbyCreated(ctx context.Context, lobby models.Lobby, host models.Player) {
	n.broadcast(ctx, lobby.ID, msgLobbyCreated, lobbyPayload{Lobby: lobby, Player: &host, Players: []models.Player{host}})
}

func (n *Notifier) PlayerJoined(ctx context.Context, player models.Player, lobby models.Lobby, players []models.Player) {
	n.broadcast(ctx, lobby.ID, msgPlayerJoined, lobbyPayload{Lobby: lobby, Players: players, Player: &player})
}

// PlayerLeft announces a leave and any host transfer. A deleted lobby is
// dropped from the registry.
func (n *Notifier) PlayerLeft(ctx context.Context, res game.LeaveResult) {
	lobbyID := res.Lobby.ID
	n.hub.DetachPlayer(lobbyID, res.Player.ID)
	if res.LobbyDeleted {
		n.hub.RemoveLobby(lobbyID)
		return
	}
	n.broadcast(ctx, lobbyID, msgPlayerLeft, playerLeftPayload{
		PlayerID: res.Player.ID,
		Name:     res.Player.Name,
		Players:  res.Players,
	})
	if res.NewHost != nil {
		n.broadcast(ctx, lobbyID, msgHostChanged, struct {
			Player models.Player `json:"player"`
		}{*res.NewHost})
	}
}

// GameStarted broadcasts the public start and hands each player their word.
func (n *Notifier) GameStarted(ctx context.Context, res game.StartResult) {
	lobby := res.Lobby
	n.broadcast(ctx, lobby.ID, msgGameStarted, gameStartedPayload{
		Lobby:   lobby,
		Players: res.Players,
		Round:   lobby.VotingRound,
	})
	for _, p := range res.Players {
		info := startGameInfo{Word: p.Word(), Round: lobby.VotingRound}
		if lobby.ImposterKnows {
			isImposter := p.IsImposter
			info.IsImposter = &isImposter
		}
		n.toPlayer(lobby.ID, p.ID, msgStartGameInfo, info)
	}
}

func (n *Notifier) PlayerVoted(ctx context.Context, vote models.Vote, allVoted bool) {
	n.broadcast(ctx, vote.LobbyID, msgPlayerVoted, playerVotedPayload{
		VoterID:  vote.VoterID,
		Round:    vote.VotingRound,
		AllVoted: allVoted,
	})
}

func (n *Notifier) VotesCounted(ctx context.Context, lobbyID uuid.UUID, round int, tally []models.TallyEntry) {
	n.broadcast(ctx, lobbyID, msgVotesCounted, votesCountedPayload{Round: round, Tally: publicTally(tally)})
}

// RoundResolved sends the final tally, the eliminated player if any, and the
// round result.
func (n *Notifier) RoundResolved(ctx context.Context, out game.RoundOutcome) {
	lobbyID := out.Lobby.ID
	n.VotesCounted(ctx, lobbyID, out.Round, out.Tally)

	ended := roundEndedPayload{
		Round:     out.Round,
		Tie:       out.Tie,
		GameOver:  out.GameOver,
		Winner:    out.Winner,
		NextRound: out.NextRound,
		Imposters: out.Imposters,
		Lobby:     out.Lobby,
	}
	if v := out.VotedOut; v != nil {
		ended.VotedOut = &v.PlayerID
		n.broadcast(ctx, lobbyID, msgPlayerVotedOut, votedOutPayload{
			Round:      out.Round,
			PlayerID:   v.PlayerID,
			Name:       v.Name,
			IsImposter: v.IsImposter,
			VoteCount:  v.VoteCount,
		})
	}
	n.broadcast(ctx, lobbyID, msgRoundEnded, ended)
}

func (n *Notifier) GameReset(ctx context.Context, lobby models.Lobby, players []models.Player) {
	n.broadcast(ctx, lobby.ID, msgGameReset, lobbyPayload{Lobby: lobby, Players: players})
}

// LobbyEnded tells every connection the lobby is gone and forgets it.
func (n *Notifier) LobbyEnded(ctx context.Context, lobby models.Lobby) {
	n.broadcast(ctx, lobby.ID, msgEndLobby, lobbyPayload{Lobby: lobby})
	n.hub.RemoveLobby(lobby.ID)
}

// Error reports err on a single connection.
func (n *Notifier) Error(c *realtime.Client, err error) {
	if sendErr := n.hub.Send(c, realtime.Envelope{
		Type: msgError,
		Msg:  errorPayload{Message: apperr.PublicMessage(err), Code: apperr.KindOf(err).String()},
	}); sendErr != nil {
		n.logger.WithError(sendErr).WithField("client", c.ID).Debug("error message not delivered")
	}
}
