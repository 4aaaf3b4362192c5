package models

import (
	"time"

	"github.com/google/uuid"
)

// Player is a member of exactly one lobby. Role and word are never serialized
// in shared payloads; they are delivered privately at game start.
type Player struct {
	ID           uuid.UUID `json:"id"`
	LobbyID      uuid.UUID `json:"lobbyId"`
	Name         string    `json:"name"`
	IsHost       bool      `json:"isHost"`
	IsEliminated bool      `json:"isEliminated"`
	IsImposter   bool      `json:"-"`
	AssignedWord *string   `json:"-"`
	JoinedAt     time.Time `json:"joinedAt"`

	// Seq orders players by join time; it breaks ties deterministically.
	Seq int64 `json:"-"`
}

// Word returns the assigned word, or "" before the game starts.
func (p Player) Word() string {
	if p.AssignedWord == nil {
		return ""
	}
	return *p.AssignedWord
}

// Active reports whether the player still takes part in the current game.
func (p Player) Active() bool { return !p.IsEliminated }
