package models

import (
	"time"

	"github.com/google/uuid"
)

// Vote is an insert-only record. A voter has at most one per lobby round.
type Vote struct {
	VoterID     uuid.UUID `json:"voterId"`
	TargetID    uuid.UUID `json:"targetId"`
	LobbyID     uuid.UUID `json:"lobbyId"`
	VotingRound int       `json:"votingRound"`
	CreatedAt   time.Time `json:"createdAt"`
}

// TallyEntry is one row of an aggregated round tally.
type TallyEntry struct {
	PlayerID   uuid.UUID `json:"playerId"`
	Name       string    `json:"name"`
	IsImposter bool      `json:"isImposter"`
	VoteCount  int       `json:"voteCount"`
}

// WordPair is an immutable catalog entry.
type WordPair struct {
	ID           int64  `json:"id"`
	Category     string `json:"category"`
	RealWord     string `json:"realWord"`
	ImposterWord string `json:"imposterWord"`
}
