package handlers

import (
	"github.com/google/uuid"
	"github.com/jason-s-yu/imposter/internal/game"
	"github.com/jason-s-yu/imposter/internal/models"
)

// Inbound realtime message types.
const (
	msgCreateLobby = "createLobby"
	msgJoinLobby   = "joinLobby"
	msgLeaveLobby  = "leaveLobby"
	msgVotePlayer  = "votePlayer"
	msgStartGame   = "startGame"
	msgVoteCount   = "voteCount"
	msgResetGame   = "resetGame"
)

// Outbound realtime message types.
const (
	msgLobbyCreated   = "lobbyCreated"
	msgPlayerJoined   = "playerJoined"
	msgPlayerLeft     = "playerLeft"
	msgHostChanged    = "hostChanged"
	msgPlayerVoted    = "playerVoted"
	msgPlayerVotedOut = "playerVotedOut"
	msgStartGameInfo  = "startGameInfo"
	msgVotesCounted   = "votesCounted"
	msgRoundEnded     = "roundEnded"
	msgGameStarted    = "gameStarted"
	msgGameReset      = "gameReset"
	msgEndLobby       = "endLobby"
	msgError          = "error"
)

// REST request bodies and realtime payloads.

type createLobbyRequest struct {
	Name    string             `json:"name" validate:"required,playername"`
	Options models.GameOptions `json:"options"`
}

type joinLobbyRequest struct {
	Name string `json:"name" validate:"required,playername"`
}

type leaveLobbyRequest struct {
	PlayerID uuid.UUID `json:"playerId" validate:"required"`
}

type startGameRequest struct {
	LobbyID  uuid.UUID           `json:"lobbyId" validate:"required"`
	PlayerID uuid.UUID           `json:"playerId"`
	Options  *models.GameOptions `json:"options"`
}

type voteRequest struct {
	LobbyID  uuid.UUID `json:"lobbyId" validate:"required"`
	VoterID  uuid.UUID `json:"voterId" validate:"required"`
	TargetID uuid.UUID `json:"targetId" validate:"required"`
}

type endGameRequest struct {
	LobbyID uuid.UUID `json:"lobbyId" validate:"required"`
}

// A joinLobby message either joins by name or attaches the connection to an
// existing player, e.g. one that joined over REST.
type wsJoinLobby struct {
	Code     string    `json:"code" validate:"required,lobbycode"`
	Name     string    `json:"name" validate:"required_without=PlayerID"`
	PlayerID uuid.UUID `json:"playerId"`
}

type wsVotePlayer struct {
	TargetID uuid.UUID `json:"targetId" validate:"required"`
}

type wsStartGame struct {
	Options *models.GameOptions `json:"options"`
}

// Outbound payloads.

type lobbyPayload struct {
	Lobby   models.Lobby    `json:"lobby"`
	Players []models.Player `json:"players,omitempty"`
	Player  *models.Player  `json:"player,omitempty"`
}

type playerLeftPayload struct {
	PlayerID uuid.UUID       `json:"playerId"`
	Name     string          `json:"name"`
	Players  []models.Player `json:"players"`
}

type gameStartedPayload struct {
	Lobby   models.Lobby    `json:"lobby"`
	Players []models.Player `json:"players"`
	Round   int             `json:"round"`
}

// startGameInfo goes to a single player. IsImposter is only present when
// the lobby lets imposters know their role.
type startGameInfo struct {
	Word       string `json:"word"`
	Round      int    `json:"round"`
	IsImposter *bool  `json:"isImposter,omitempty"`
}

type playerVotedPayload struct {
	VoterID  uuid.UUID `json:"voterId"`
	Round    int       `json:"round"`
	AllVoted bool      `json:"allVoted"`
}

// tallyRow is a tally entry without the role.
type tallyRow struct {
	PlayerID  uuid.UUID `json:"playerId"`
	Name      string    `json:"name"`
	VoteCount int       `json:"voteCount"`
}

type votesCountedPayload struct {
	Round int        `json:"round"`
	Tally []tallyRow `json:"tally"`
}

type votedOutPayload struct {
	Round      int       `json:"round"`
	PlayerID   uuid.UUID `json:"playerId"`
	Name       string    `json:"name"`
	IsImposter bool      `json:"isImposter"`
	VoteCount  int       `json:"voteCount"`
}

type roundEndedPayload struct {
	Round     int             `json:"round"`
	Tie       bool            `json:"tie"`
	VotedOut  *uuid.UUID      `json:"votedOut,omitempty"`
	GameOver  bool            `json:"gameOver"`
	Winner    game.Winner     `json:"winner,omitempty"`
	NextRound int             `json:"nextRound,omitempty"`
	Imposters []models.Player `json:"imposters,omitempty"`
	Lobby     models.Lobby    `json:"lobby"`
}

type errorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

func publicTally(tally []models.TallyEntry) []tallyRow {
	rows := make([]tallyRow, 0, len(tally))
	for _, t := range tally {
		rows = append(rows, tallyRow{PlayerID: t.PlayerID, Name: t.Name, VoteCount: t.VoteCount})
	}
	return rows
}
