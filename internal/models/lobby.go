// internal/models/lobby.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a lobby.
type Status string

const (
	StatusWaiting    Status = "WAITING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusEnded      Status = "ENDED"
)

// Lobby represents a row in the lobbies table. FirstRound is the voting round
// at which the current game began.
type Lobby struct {
	ID            uuid.UUID `json:"id"`
	Code          string    `json:"code"`
	HostName      string    `json:"hostName"`
	ImposterKnows bool      `json:"imposterKnows"`
	ImposterCount int       `json:"imposterCount"`
	MaxRounds     int       `json:"maxRounds"`
	VotingRound   int       `json:"votingRound"`
	FirstRound    int       `json:"firstRound"`
	WordPairID    *int64    `json:"-"`
	Status        Status    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// GameOptions are the host-chosen settings for a lobby and its games.
type GameOptions struct {
	ImposterKnows bool `json:"imposterKnows"`
	ImposterCount int  `json:"num_of_imposters"`
	MaxRounds     int  `json:"maxRounds" validate:"omitempty,min=1,max=20"`
}

const (
	MinImposters     = 1
	MaxImposters     = 3
	DefaultMaxRounds = 3
)

// Normalized clamps the imposter count into [MinImposters, MaxImposters] and
// fills in a default round cap.
func (o GameOptions) Normalized() GameOptions {
	if o.ImposterCount < MinImposters {
		o.ImposterCount = MinImposters
	}
	if o.ImposterCount > MaxImposters {
		o.ImposterCount = MaxImposters
	}
	if o.MaxRounds <= 0 {
		o.MaxRounds = DefaultMaxRounds
	}
	return o
}
