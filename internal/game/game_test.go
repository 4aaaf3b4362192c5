// internal/game/game_test.go
package game_test

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jason-s-yu/imposter/internal/apperr"
	"github.com/jason-s-yu/imposter/internal/game"
	"github.com/jason-s-yu/imposter/internal/memstore"
	"github.com/jason-s-yu/imposter/internal/models"
	"github.com/jason-s-yu/imposter/internal/randutil"
	"github.com/jason-s-yu/imposter/internal/words"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// setupCoordinator returns a coordinator over a fresh in-memory store.
func setupCoordinator(t *testing.T, seed uint64) (*game.Coordinator, *memstore.Store) {
	t.Helper()
	store := memstore.New(words.Default)
	return game.NewCoordinator(store, randutil.New(seed), quietLogger()), store
}

// setupLobby creates a lobby hosted by the first name and joins the rest.
func setupLobby(t *testing.T, c *game.Coordinator, names ...string) (models.Lobby, []models.Player) {
	t.Helper()
	ctx := context.Background()
	lobby, host, err := c.CreateLobbyWithHost(ctx, names[0], models.GameOptions{ImposterCount: 1})
	require.NoError(t, err)
	players := []models.Player{host}
	for _, n := range names[1:] {
		p, _, _, err := c.JoinLobby(ctx, lobby.Code, n)
		require.NoError(t, err)
		players = append(players, p)
	}
	return lobby, players
}

// stuckSource always yields zero, so every generated code is AAAAAA.
type stuckSource struct{}

func (stuckSource) IntN(int) int                { return 0 }
func (stuckSource) Shuffle(int, func(i, j int)) {}

func TestCreateLobbyCodeShape(t *testing.T) {
	c, _ := setupCoordinator(t, 1)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		lobby, host, err := c.CreateLobbyWithHost(context.Background(), "Alice", models.GameOptions{})
		require.NoError(t, err)
		assert.Len(t, lobby.Code, game.CodeLength)
		for _, r := range lobby.Code {
			assert.True(t, strings.ContainsRune(game.CodeAlphabet, r), "unexpected symbol %q", r)
		}
		assert.False(t, seen[lobby.Code], "duplicate active code %s", lobby.Code)
		seen[lobby.Code] = true
		assert.True(t, host.IsHost)
		assert.Equal(t, 0, lobby.VotingRound)
		assert.Equal(t, 1, lobby.ImposterCount, "imposter count is clamped up to 1")
	}
}

func TestCreateLobbyExhaustsCodeAttempts(t *testing.T) {
	store := memstore.New(words.Default)
	c := game.NewCoordinator(store, stuckSource{}, quietLogger())
	ctx := context.Background()

	first, _, err := c.CreateLobbyWithHost(ctx, "Alice", models.GameOptions{})
	require.NoError(t, err)
	assert.Equal(t, "AAAAAA", first.Code)

	_, _, err = c.CreateLobbyWithHost(ctx, "Bob", models.GameOptions{})
	assert.ErrorIs(t, err, apperr.ErrExhausted)
}

func TestCreateLobbyRejectsBadNames(t *testing.T) {
	c, _ := setupCoordinator(t, 1)
	for _, name := range []string{"", " A ", strings.Repeat("x", 21), "bad\x00name"} {
		_, _, err := c.CreateLobbyWithHost(context.Background(), name, models.GameOptions{})
		assert.ErrorIs(t, err, apperr.ErrValidation, "name %q", name)
	}
}

func TestJoinLobby(t *testing.T) {
	c, _ := setupCoordinator(t, 2)
	ctx := context.Background()
	lobby, _ := setupLobby(t, c, "Alice")

	_, _, _, err := c.JoinLobby(ctx, lobby.Code, "Alice")
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, "name already in use", apperr.PublicMessage(err))

	_, _, _, err = c.JoinLobby(ctx, "ZZZZZZ", "Bob")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	p, got, players, err := c.JoinLobby(ctx, strings.ToLower(lobby.Code), "  Bob ")
	require.NoError(t, err)
	assert.Equal(t, "Bob", p.Name)
	assert.False(t, p.IsHost)
	assert.Equal(t, lobby.ID, got.ID)
	assert.Len(t, players, 2)
}

func TestLeaveLobbyTransfersHost(t *testing.T) {
	c, _ := setupCoordinator(t, 3)
	ctx := context.Background()
	lobby, players := setupLobby(t, c, "Alice", "Bob", "Carol")

	res, err := c.LeaveLobby(ctx, lobby.Code, players[0].ID)
	require.NoError(t, err)
	require.NotNil(t, res.NewHost)
	assert.Equal(t, players[1].ID, res.NewHost.ID)

	_, remaining, err := c.GetLobby(ctx, lobby.Code)
	require.NoError(t, err)
	hosts := 0
	for _, p := range remaining {
		if p.IsHost {
			hosts++
			assert.Equal(t, "Bob", p.Name)
		}
	}
	assert.Equal(t, 1, hosts)
}

func TestLeaveLastPlayerDeletesLobby(t *testing.T) {
	c, _ := setupCoordinator(t, 4)
	ctx := context.Background()
	lobby, players := setupLobby(t, c, "Alice")

	res, err := c.LeaveLobby(ctx, lobby.Code, players[0].ID)
	require.NoError(t, err)
	assert.True(t, res.LobbyDeleted)

	_, _, err = c.GetLobby(ctx, lobby.Code)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestStartGamePreconditions(t *testing.T) {
	c, _ := setupCoordinator(t, 5)
	ctx := context.Background()

	lobby, players := setupLobby(t, c, "Alice", "Bob")
	_, err := c.StartGame(ctx, lobby.ID, uuid.Nil, nil)
	assert.ErrorIs(t, err, apperr.ErrValidation, "two players are not enough")

	p, _, _, err := c.JoinLobby(ctx, lobby.Code, "Carol")
	require.NoError(t, err)

	_, err = c.StartGame(ctx, lobby.ID, p.ID, nil)
	assert.ErrorIs(t, err, apperr.ErrValidation, "only the host may start")

	_, err = c.StartGame(ctx, lobby.ID, players[0].ID, &models.GameOptions{ImposterCount: 3})
	assert.ErrorIs(t, err, apperr.ErrValidation, "imposters must be fewer than players")

	_, err = c.StartGame(ctx, uuid.New(), uuid.Nil, nil)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestStartGameAssignsWords(t *testing.T) {
	for _, k := range []int{1, 2, 3} {
		c, _ := setupCoordinator(t, uint64(10+k))
		lobby, _ := setupLobby(t, c, "Alice", "Bob", "Carol", "Dave", "Erin")

		res, err := c.StartGame(context.Background(), lobby.ID, uuid.Nil, &models.GameOptions{ImposterCount: k, ImposterKnows: true})
		require.NoError(t, err)
		assert.Equal(t, 1, res.Lobby.VotingRound)
		assert.Equal(t, models.StatusInProgress, res.Lobby.Status)
		assert.True(t, res.Lobby.ImposterKnows)

		imposters := 0
		for _, p := range res.Players {
			if p.IsImposter {
				imposters++
				assert.Equal(t, res.WordPair.ImposterWord, p.Word())
			} else {
				assert.Equal(t, res.WordPair.RealWord, p.Word())
			}
		}
		assert.Equal(t, k, imposters)
	}
}

func TestStartGameClampsImposterCount(t *testing.T) {
	c, _ := setupCoordinator(t, 6)
	lobby, _ := setupLobby(t, c, "Alice", "Bob", "Carol", "Dave", "Erin")

	res, err := c.StartGame(context.Background(), lobby.ID, uuid.Nil, &models.GameOptions{ImposterCount: 9})
	require.NoError(t, err)
	assert.Equal(t, models.MaxImposters, res.Lobby.ImposterCount)
}

func TestStartGameNeverRepeatsWordPair(t *testing.T) {
	ctx := context.Background()
	store := memstore.New(words.Default[:2])
	c := game.NewCoordinator(store, randutil.New(7), quietLogger())
	lobby, players := setupLobby(t, c, "Alice", "Bob", "Carol")

	first, err := c.StartGame(ctx, lobby.ID, uuid.Nil, nil)
	require.NoError(t, err)
	_, _, err = c.ResetGame(ctx, lobby.ID, players[0].ID)
	require.NoError(t, err)

	second, err := c.StartGame(ctx, lobby.ID, uuid.Nil, nil)
	require.NoError(t, err)
	assert.NotEqual(t, first.WordPair.ID, second.WordPair.ID)

	_, _, err = c.ResetGame(ctx, lobby.ID, players[0].ID)
	require.NoError(t, err)
	_, err = c.StartGame(ctx, lobby.ID, uuid.Nil, nil)
	assert.ErrorIs(t, err, apperr.ErrExhausted)

	got, err := store.GetLobbyByID(ctx, lobby.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaiting, got.Status, "failed start leaves the lobby untouched")
}

func TestCastVoteRules(t *testing.T) {
	c, _ := setupCoordinator(t, 8)
	ctx := context.Background()
	lobby, players := setupLobby(t, c, "Alice", "Bob", "Carol")

	_, _, err := c.CastVote(ctx, lobby.ID, players[0].ID, players[1].ID)
	assert.ErrorIs(t, err, apperr.ErrValidation, "no round yet")

	_, err = c.StartGame(ctx, lobby.ID, uuid.Nil, nil)
	require.NoError(t, err)

	_, _, err = c.CastVote(ctx, lobby.ID, players[0].ID, players[0].ID)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	vote, target, err := c.CastVote(ctx, lobby.ID, players[0].ID, players[1].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, vote.VotingRound)
	assert.Equal(t, players[1].ID, target.ID)

	_, _, err = c.CastVote(ctx, lobby.ID, players[0].ID, players[2].ID)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, _, err = c.CastVote(ctx, lobby.ID, players[1].ID, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestAllVotedFollowsPlayerCount(t *testing.T) {
	c, _ := setupCoordinator(t, 9)
	ctx := context.Background()
	lobby, players := setupLobby(t, c, "Alice", "Bob", "Carol", "Dave")
	_, err := c.StartGame(ctx, lobby.ID, uuid.Nil, nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, _, err := c.CastVote(ctx, lobby.ID, players[i].ID, players[3].ID)
		require.NoError(t, err)
	}
	done, err := c.AllVoted(ctx, lobby.ID)
	require.NoError(t, err)
	assert.False(t, done)

	// Dave leaving removes both the missing voter and the votes against him.
	_, err = c.LeaveLobby(ctx, lobby.Code, players[3].ID)
	require.NoError(t, err)
	done, err = c.AllVoted(ctx, lobby.ID)
	require.NoError(t, err)
	assert.False(t, done)

	_, _, err = c.CastVote(ctx, lobby.ID, players[0].ID, players[1].ID)
	require.NoError(t, err)
	_, _, err = c.CastVote(ctx, lobby.ID, players[1].ID, players[2].ID)
	require.NoError(t, err)
	_, _, err = c.CastVote(ctx, lobby.ID, players[2].ID, players[0].ID)
	require.NoError(t, err)
	done, err = c.AllVoted(ctx, lobby.ID)
	require.NoError(t, err)
	assert.True(t, done)
}

func TestEndToEndImposterVotedOut(t *testing.T) {
	c, _ := setupCoordinator(t, 42)
	ctx := context.Background()
	lobby, _ := setupLobby(t, c, "Alice", "Bob", "Carol")

	res, err := c.StartGame(ctx, lobby.ID, uuid.Nil, &models.GameOptions{ImposterCount: 1})
	require.NoError(t, err)

	var imposter models.Player
	var crew []models.Player
	for _, p := range res.Players {
		if p.IsImposter {
			imposter = p
		} else {
			crew = append(crew, p)
		}
	}
	require.Len(t, crew, 2)

	for _, p := range crew {
		_, _, err := c.CastVote(ctx, lobby.ID, p.ID, imposter.ID)
		require.NoError(t, err)
	}

	_, err = c.ResolveRound(ctx, lobby.ID, res.Lobby.VotingRound)
	assert.ErrorIs(t, err, apperr.ErrValidation, "imposter has not voted")

	_, _, err = c.CastVote(ctx, lobby.ID, imposter.ID, crew[0].ID)
	require.NoError(t, err)

	round, tally, err := c.TallyCurrentRound(ctx, lobby.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, round)
	require.Len(t, tally, 3)
	assert.Equal(t, imposter.ID, tally[0].PlayerID)
	assert.Equal(t, 2, tally[0].VoteCount)
	assert.True(t, tally[0].IsImposter)

	out, err := c.ResolveRound(ctx, lobby.ID, round)
	require.NoError(t, err)
	require.NotNil(t, out.VotedOut)
	assert.Equal(t, imposter.ID, out.VotedOut.PlayerID)
	assert.True(t, out.GameOver)
	assert.Equal(t, game.WinnerCrew, out.Winner)
	assert.Equal(t, models.StatusWaiting, out.Lobby.Status)
	require.Len(t, out.Imposters, 1)
	assert.Equal(t, imposter.ID, out.Imposters[0].ID)
}

func TestTiedRoundAdvances(t *testing.T) {
	c, _ := setupCoordinator(t, 43)
	ctx := context.Background()
	lobby, players := setupLobby(t, c, "Alice", "Bob", "Carol", "Dave")
	res, err := c.StartGame(ctx, lobby.ID, uuid.Nil, nil)
	require.NoError(t, err)

	for i, p := range players {
		_, _, err := c.CastVote(ctx, lobby.ID, p.ID, players[(i+1)%len(players)].ID)
		require.NoError(t, err)
	}
	out, err := c.ResolveRound(ctx, lobby.ID, res.Lobby.VotingRound)
	require.NoError(t, err)
	assert.True(t, out.Tie)
	assert.Nil(t, out.VotedOut)
	assert.False(t, out.GameOver)
	assert.Equal(t, 2, out.Lobby.VotingRound)
	assert.Equal(t, models.StatusInProgress, out.Lobby.Status)

	_, err = c.ResolveRound(ctx, lobby.ID, res.Lobby.VotingRound)
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestResetGame(t *testing.T) {
	c, store := setupCoordinator(t, 44)
	ctx := context.Background()
	lobby, players := setupLobby(t, c, "Alice", "Bob", "Carol")
	_, err := c.StartGame(ctx, lobby.ID, uuid.Nil, nil)
	require.NoError(t, err)

	_, _, err = c.ResetGame(ctx, lobby.ID, players[1].ID)
	assert.ErrorIs(t, err, apperr.ErrValidation, "only the host resets")

	reset, after, err := c.ResetGame(ctx, lobby.ID, players[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 0, reset.VotingRound)
	assert.Equal(t, models.StatusWaiting, reset.Status)
	for _, p := range after {
		assert.False(t, p.IsImposter)
		assert.Empty(t, p.Word())
	}
	assert.Len(t, store.UsedWordPairs(lobby.ID), 1)
}

func TestDeleteAndEndGame(t *testing.T) {
	c, _ := setupCoordinator(t, 45)
	ctx := context.Background()
	lobby, _ := setupLobby(t, c, "Alice")

	ended, err := c.EndGame(ctx, lobby.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusEnded, ended.Status)

	_, err = c.DeleteLobby(ctx, lobby.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestConcurrentJoinsSameName(t *testing.T) {
	c, _ := setupCoordinator(t, 46)
	ctx := context.Background()
	lobby, _ := setupLobby(t, c, "Alice")

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, conflicts := 0, 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _, err := c.JoinLobby(ctx, lobby.Code, "Bob")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if assert.ErrorIs(t, err, apperr.ErrConflict) {
				conflicts++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, ok)
	assert.Equal(t, 9, conflicts)
}
