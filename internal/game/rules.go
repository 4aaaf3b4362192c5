// internal/game/rules.go
package game

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jason-s-yu/imposter/internal/apperr"
	"github.com/jason-s-yu/imposter/internal/models"
)

const (
	MinPlayers    = 3
	MinNameLength = 2
	MaxNameLength = 20
)

// NormalizeName trims a display name and checks its length and characters.
func NormalizeName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	n := utf8.RuneCountInString(trimmed)
	if n < MinNameLength || n > MaxNameLength {
		return "", apperr.Validation("name must be between %d and %d characters", MinNameLength, MaxNameLength)
	}
	for _, r := range trimmed {
		if unicode.IsControl(r) {
			return "", apperr.Validation("name contains unsupported characters")
		}
	}
	return trimmed, nil
}

// CheckStart validates a game start against a locked snapshot of the lobby.
// opts must already be normalized.
func CheckStart(lobby models.Lobby, players []models.Player, opts models.GameOptions, requestedBy uuid.UUID) error {
	if lobby.Status == models.StatusInProgress {
		return apperr.Validation("game already in progress")
	}
	if requestedBy != uuid.Nil {
		p, ok := findPlayer(players, requestedBy)
		if !ok {
			return apperr.NotFound("player not in lobby")
		}
		if !p.IsHost {
			return apperr.Validation("only the host can start the game")
		}
	}
	if len(players) < MinPlayers {
		return apperr.Validation("at least %d players are required to start", MinPlayers)
	}
	if opts.ImposterCount >= len(players) {
		return apperr.Validation("imposter count must be less than the number of players")
	}
	return nil
}

// CheckReset validates a full reset request.
func CheckReset(players []models.Player, requestedBy uuid.UUID) error {
	if requestedBy == uuid.Nil {
		return nil
	}
	p, ok := findPlayer(players, requestedBy)
	if !ok {
		return apperr.NotFound("player not in lobby")
	}
	if !p.IsHost {
		return apperr.Validation("only the host can reset the game")
	}
	return nil
}

// CheckVote validates a vote against the lobby's current players.
func CheckVote(lobby models.Lobby, players []models.Player, vote models.Vote) (models.Player, error) {
	if vote.VoterID == vote.TargetID {
		return models.Player{}, apperr.Validation("players cannot vote for themselves")
	}
	if lobby.Status != models.StatusInProgress {
		return models.Player{}, apperr.Validation("no round in progress")
	}
	if vote.VotingRound != lobby.VotingRound {
		return models.Player{}, apperr.Conflict("voting round %d is over", vote.VotingRound)
	}
	voter, ok := findPlayer(players, vote.VoterID)
	if !ok {
		return models.Player{}, apperr.NotFound("voter not in lobby")
	}
	target, ok := findPlayer(players, vote.TargetID)
	if !ok {
		return models.Player{}, apperr.NotFound("vote target not in lobby")
	}
	if !voter.Active() {
		return models.Player{}, apperr.Validation("eliminated players cannot vote")
	}
	if !target.Active() {
		return models.Player{}, apperr.Validation("cannot vote for an eliminated player")
	}
	return target, nil
}

// RankTally aggregates votes for one round over the active players. Entries
// are ordered by vote count descending, then by join order.
func RankTally(players []models.Player, votes []models.Vote) []models.TallyEntry {
	counts := make(map[uuid.UUID]int, len(players))
	for _, v := range votes {
		counts[v.TargetID]++
	}
	ordered := append([]models.Player(nil), players...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Seq < ordered[j].Seq })

	tally := make([]models.TallyEntry, 0, len(ordered))
	for _, p := range ordered {
		if !p.Active() {
			continue
		}
		tally = append(tally, models.TallyEntry{
			PlayerID:   p.ID,
			Name:       p.Name,
			IsImposter: p.IsImposter,
			VoteCount:  counts[p.ID],
		})
	}
	sort.SliceStable(tally, func(i, j int) bool { return tally[i].VoteCount > tally[j].VoteCount })
	return tally
}

// EvaluateRound is the end-of-round policy. A unique top-voted player is
// voted out; a tie at the top removes nobody. The crew wins once every
// imposter is out. Imposters win when they are no longer outnumbered or the
// lobby's round cap is reached.
func EvaluateRound(lobby models.Lobby, players []models.Player, tally []models.TallyEntry, allVoted bool) (RoundOutcome, error) {
	if lobby.Status != models.StatusInProgress {
		return RoundOutcome{}, apperr.Validation("no round in progress")
	}
	if !allVoted {
		return RoundOutcome{}, apperr.Validation("not every player has voted yet")
	}

	out := RoundOutcome{Round: lobby.VotingRound, Tally: tally}
	switch {
	case len(tally) == 0 || tally[0].VoteCount == 0:
		out.Tie = true
	case len(tally) > 1 && tally[1].VoteCount == tally[0].VoteCount:
		out.Tie = true
	default:
		top := tally[0]
		out.VotedOut = &top
	}

	var imposters, crew int
	for _, p := range players {
		if !p.Active() || (out.VotedOut != nil && p.ID == out.VotedOut.PlayerID) {
			continue
		}
		if p.IsImposter {
			imposters++
		} else {
			crew++
		}
	}

	played := lobby.VotingRound - lobby.FirstRound + 1
	switch {
	case imposters == 0:
		out.GameOver, out.Winner = true, WinnerCrew
	case imposters >= crew:
		out.GameOver, out.Winner = true, WinnerImposters
	case lobby.MaxRounds > 0 && played >= lobby.MaxRounds:
		out.GameOver, out.Winner = true, WinnerImposters
	default:
		out.NextRound = lobby.VotingRound + 1
	}

	if out.GameOver {
		for _, p := range players {
			if p.IsImposter {
				out.Imposters = append(out.Imposters, p)
			}
		}
	}
	return out, nil
}

func findPlayer(players []models.Player, id uuid.UUID) (models.Player, bool) {
	for _, p := range players {
		if p.ID == id {
			return p, true
		}
	}
	return models.Player{}, false
}
