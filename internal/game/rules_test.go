package game

import (
	"testing"

	"github.com/google/uuid"
	"github.com/jason-s-yu/imposter/internal/apperr"
	"github.com/jason-s-yu/imposter/internal/models"
	"github.com/jason-s-yu/imposter/internal/randutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makePlayers(n int, imposters ...int) []models.Player {
	players := make([]models.Player, n)
	for i := range players {
		players[i] = models.Player{ID: uuid.New(), Name: string(rune('A' + i)), Seq: int64(i + 1)}
	}
	for _, i := range imposters {
		players[i].IsImposter = true
	}
	return players
}

func inProgress(round, first, maxRounds int) models.Lobby {
	return models.Lobby{Status: models.StatusInProgress, VotingRound: round, FirstRound: first, MaxRounds: maxRounds}
}

func votesFor(lobbyID uuid.UUID, round int, pairs ...[2]models.Player) []models.Vote {
	var out []models.Vote
	for _, p := range pairs {
		out = append(out, models.Vote{VoterID: p[0].ID, TargetID: p[1].ID, LobbyID: lobbyID, VotingRound: round})
	}
	return out
}

func TestGenerateCode(t *testing.T) {
	src := randutil.New(99)
	for i := 0; i < 100; i++ {
		assert.True(t, ValidCode(GenerateCode(src)))
	}
	assert.False(t, ValidCode("ABCDE"))
	assert.False(t, ValidCode("ABCDE1"), "1 is excluded")
	assert.False(t, ValidCode("abcdef"))
	assert.Equal(t, "ABC234", NormalizeCode(" abc234 "))
}

func TestRankTallyOrdersByCountThenJoin(t *testing.T) {
	players := makePlayers(4)
	lobbyID := uuid.New()
	votes := votesFor(lobbyID, 1,
		[2]models.Player{players[0], players[3]},
		[2]models.Player{players[1], players[3]},
		[2]models.Player{players[3], players[2]},
		[2]models.Player{players[2], players[1]},
	)
	tally := RankTally(players, votes)
	require.Len(t, tally, 4)
	assert.Equal(t, players[3].ID, tally[0].PlayerID)
	assert.Equal(t, 2, tally[0].VoteCount)
	// B and C tie on one vote; B joined first.
	assert.Equal(t, players[1].ID, tally[1].PlayerID)
	assert.Equal(t, players[2].ID, tally[2].PlayerID)
	assert.Equal(t, players[0].ID, tally[3].PlayerID)
	assert.Zero(t, tally[3].VoteCount)
}

func TestRankTallySkipsEliminated(t *testing.T) {
	players := makePlayers(3)
	players[2].IsEliminated = true
	tally := RankTally(players, nil)
	assert.Len(t, tally, 2)
}

func TestEvaluateRoundRequiresAllVotes(t *testing.T) {
	players := makePlayers(3, 0)
	_, err := EvaluateRound(inProgress(1, 1, 3), players, RankTally(players, nil), false)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = EvaluateRound(models.Lobby{Status: models.StatusWaiting}, players, nil, true)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestEvaluateRoundOutcomes(t *testing.T) {
	lobbyID := uuid.New()

	t.Run("crew wins", func(t *testing.T) {
		p := makePlayers(3, 0)
		tally := RankTally(p, votesFor(lobbyID, 1, [2]models.Player{p[1], p[0]}, [2]models.Player{p[2], p[0]}, [2]models.Player{p[0], p[1]}))
		out, err := EvaluateRound(inProgress(1, 1, 3), p, tally, true)
		require.NoError(t, err)
		require.NotNil(t, out.VotedOut)
		assert.Equal(t, p[0].ID, out.VotedOut.PlayerID)
		assert.True(t, out.GameOver)
		assert.Equal(t, WinnerCrew, out.Winner)
		require.Len(t, out.Imposters, 1)
	})

	t.Run("imposters reach parity", func(t *testing.T) {
		p := makePlayers(3, 0)
		tally := RankTally(p, votesFor(lobbyID, 1, [2]models.Player{p[0], p[1]}, [2]models.Player{p[2], p[1]}, [2]models.Player{p[1], p[2]}))
		out, err := EvaluateRound(inProgress(1, 1, 3), p, tally, true)
		require.NoError(t, err)
		assert.Equal(t, p[1].ID, out.VotedOut.PlayerID)
		assert.True(t, out.GameOver)
		assert.Equal(t, WinnerImposters, out.Winner)
	})

	t.Run("tie continues", func(t *testing.T) {
		p := makePlayers(4, 0)
		tally := RankTally(p, votesFor(lobbyID, 1,
			[2]models.Player{p[0], p[1]}, [2]models.Player{p[1], p[2]},
			[2]models.Player{p[2], p[3]}, [2]models.Player{p[3], p[0]}))
		out, err := EvaluateRound(inProgress(1, 1, 3), p, tally, true)
		require.NoError(t, err)
		assert.True(t, out.Tie)
		assert.Nil(t, out.VotedOut)
		assert.False(t, out.GameOver)
		assert.Equal(t, 2, out.NextRound)
		assert.Empty(t, out.Imposters)
	})

	t.Run("round cap", func(t *testing.T) {
		p := makePlayers(5, 0)
		tally := RankTally(p, votesFor(lobbyID, 6,
			[2]models.Player{p[0], p[1]}, [2]models.Player{p[1], p[2]},
			[2]models.Player{p[2], p[1]}, [2]models.Player{p[3], p[1]}, [2]models.Player{p[4], p[1]}))
		out, err := EvaluateRound(inProgress(6, 4, 3), p, tally, true)
		require.NoError(t, err)
		assert.Equal(t, p[1].ID, out.VotedOut.PlayerID)
		assert.True(t, out.GameOver)
		assert.Equal(t, WinnerImposters, out.Winner)
	})
}

func TestCheckVote(t *testing.T) {
	p := makePlayers(3)
	lobby := inProgress(2, 1, 3)
	v := models.Vote{VoterID: p[0].ID, TargetID: p[1].ID, VotingRound: 2}

	target, err := CheckVote(lobby, p, v)
	require.NoError(t, err)
	assert.Equal(t, p[1].ID, target.ID)

	stale := v
	stale.VotingRound = 1
	_, err = CheckVote(lobby, p, stale)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	p[1].IsEliminated = true
	_, err = CheckVote(lobby, p, v)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
