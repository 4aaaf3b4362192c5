// Package storetest holds the behaviour every game.Store implementation must
// share. Backends call Run from their own tests with a factory that returns
// an empty store seeded with the given word pairs.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/imposter/internal/apperr"
	"github.com/jason-s-yu/imposter/internal/game"
	"github.com/jason-s-yu/imposter/internal/models"
	"github.com/jason-s-yu/imposter/internal/randutil"
	"github.com/jason-s-yu/imposter/internal/words"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Store is game.Store plus the stepwise start operations and catalog
// seeding that both backends expose.
type Store interface {
	game.Store
	SeedWordPairs(ctx context.Context, pairs []models.WordPair) (int, error)
	AdvanceVotingRound(ctx context.Context, lobbyID uuid.UUID) (int, error)
	SetImposterKnows(ctx context.Context, lobbyID uuid.UUID, knows bool) error
	PickUnusedWordPair(ctx context.Context, lobbyID uuid.UUID, rng randutil.Source) (models.WordPair, error)
	AssignWordsAndImposters(ctx context.Context, lobbyID uuid.UUID, count int, rng randutil.Source) ([]models.Player, error)
}

// Factory returns an empty store whose catalog holds exactly pairs.
type Factory func(t *testing.T, pairs []models.WordPair) Store

// Run executes the shared suite against the stores open returns.
func Run(t *testing.T, open Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, open Factory)
	}{
		{"CreateLobbyDuplicateCode", testCreateLobbyDuplicateCode},
		{"AddPlayerConflictsAndNotFound", testAddPlayer},
		{"AddPlayerRejectedMidGame", testAddPlayerMidGame},
		{"ConcurrentJoinsSameName", testConcurrentJoins},
		{"RemoveHostPromotesEarliestJoined", testRemoveHost},
		{"RemoveLastPlayerDeletesLobby", testRemoveLastPlayer},
		{"StepwiseStartOperations", testStepwiseStart},
		{"PickUnusedWordPairExhausts", testPickExhausts},
		{"SeedWordPairsSkipsDuplicates", testSeedSkipsDuplicates},
		{"StartRoundSetsFirstRound", testStartRoundFirstRound},
		{"RecordVoteRules", testRecordVote},
		{"TallyOrderAndAllVoted", testTallyOrder},
		{"ResolveRoundTwiceConflicts", testResolveTwice},
		{"ResetKeepsUsedPairs", testResetKeepsUsedPairs},
		{"DeleteLobby", testDeleteLobby},
		{"DeleteStaleLobbies", testDeleteStale},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) { tt.fn(t, open) })
	}
}

func newLobby(t *testing.T, s Store, code string) (models.Lobby, models.Player) {
	t.Helper()
	l, host, err := s.CreateLobby(context.Background(), models.Lobby{
		ID:            uuid.New(),
		Code:          code,
		HostName:      "Alice",
		ImposterCount: 1,
		MaxRounds:     3,
	}, "Alice")
	require.NoError(t, err)
	return l, host
}

// seat creates a lobby hosted by Alice and joins the other names in order.
func seat(t *testing.T, s Store, code string, names ...string) (models.Lobby, []models.Player) {
	t.Helper()
	l, host := newLobby(t, s, code)
	players := []models.Player{host}
	for _, n := range names {
		p, err := s.AddPlayer(context.Background(), l.ID, n)
		require.NoError(t, err)
		players = append(players, p)
	}
	return l, players
}

func vote(t *testing.T, s Store, lobbyID uuid.UUID, round int, voter, target models.Player) {
	t.Helper()
	_, _, err := s.RecordVote(context.Background(), models.Vote{
		VoterID: voter.ID, TargetID: target.ID, LobbyID: lobbyID, VotingRound: round,
	})
	require.NoError(t, err, "%s -> %s", voter.Name, target.Name)
}

func testCreateLobbyDuplicateCode(t *testing.T, open Factory) {
	s := open(t, words.Default)
	l, host := newLobby(t, s, "ABCD23")
	assert.Equal(t, models.StatusWaiting, l.Status)
	assert.Zero(t, l.VotingRound)
	assert.True(t, host.IsHost)

	_, _, err := s.CreateLobby(context.Background(), models.Lobby{
		ID: uuid.New(), Code: "ABCD23", HostName: "Bob", ImposterCount: 1, MaxRounds: 3,
	}, "Bob")
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func testAddPlayer(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t, words.Default)
	l, _ := newLobby(t, s, "ABCD23")

	_, err := s.AddPlayer(ctx, l.ID, "Alice")
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = s.AddPlayer(ctx, uuid.New(), "Bob")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = s.AddPlayer(ctx, l.ID, "Bob")
	require.NoError(t, err)
	n, err := s.CountPlayers(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = s.CountPlayers(ctx, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func testAddPlayerMidGame(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t, words.Default)
	l, _ := seat(t, s, "ABCD23", "Bob", "Carol")
	_, err := s.StartRound(ctx, l.ID, game.StartParams{Rand: randutil.New(1)})
	require.NoError(t, err)

	_, err = s.AddPlayer(ctx, l.ID, "Dave")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func testConcurrentJoins(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t, words.Default)
	l, _ := newLobby(t, s, "ABCD23")

	const attempts = 8
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = s.AddPlayer(ctx, l.ID, "Bob")
		}()
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, apperr.ErrConflict)
	}
	assert.Equal(t, 1, ok)
	n, err := s.CountPlayers(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func testRemoveHost(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t, words.Default)
	l, players := seat(t, s, "ABCD23", "Bob", "Carol")

	res, err := s.RemovePlayer(ctx, l.ID, players[0].ID)
	require.NoError(t, err)
	require.NotNil(t, res.NewHost)
	assert.Equal(t, players[1].ID, res.NewHost.ID)
	assert.False(t, res.LobbyDeleted)
	assert.Equal(t, "Bob", res.Lobby.HostName)

	stored, err := s.ListPlayers(ctx, l.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "Bob", stored[0].Name, "join order")
	assert.True(t, stored[0].IsHost)
	assert.False(t, stored[1].IsHost)

	_, err = s.RemovePlayer(ctx, l.ID, players[0].ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func testRemoveLastPlayer(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t, words.Default)
	l, host := newLobby(t, s, "ABCD23")

	res, err := s.RemovePlayer(ctx, l.ID, host.ID)
	require.NoError(t, err)
	assert.True(t, res.LobbyDeleted)

	_, err = s.GetLobbyByCode(ctx, "ABCD23")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = s.RemovePlayer(ctx, l.ID, host.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func testStepwiseStart(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t, words.Default)
	rng := randutil.New(3)
	l, _ := seat(t, s, "ABCD23", "Bob", "Carol")

	round, err := s.AdvanceVotingRound(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, round)
	require.NoError(t, s.SetImposterKnows(ctx, l.ID, true))
	assert.ErrorIs(t, s.SetImposterKnows(ctx, uuid.New(), true), apperr.ErrNotFound)

	_, err = s.AssignWordsAndImposters(ctx, l.ID, 1, rng)
	assert.ErrorIs(t, err, apperr.ErrValidation, "no pair picked yet")

	pair, err := s.PickUnusedWordPair(ctx, l.ID, rng)
	require.NoError(t, err)
	players, err := s.AssignWordsAndImposters(ctx, l.ID, 1, rng)
	require.NoError(t, err)

	imposters := 0
	for _, p := range players {
		if p.IsImposter {
			imposters++
			assert.Equal(t, pair.ImposterWord, p.Word())
		} else {
			assert.Equal(t, pair.RealWord, p.Word())
		}
	}
	assert.Equal(t, 1, imposters)

	got, err := s.GetLobbyByID(ctx, l.ID)
	require.NoError(t, err)
	assert.True(t, got.ImposterKnows)
	assert.Equal(t, 1, got.VotingRound)
}

func testPickExhausts(t *testing.T, open Factory) {
	ctx := context.Background()
	pairs := words.Default[:3]
	s := open(t, pairs)
	rng := randutil.New(11)
	l, _ := newLobby(t, s, "ABCD23")
	other, _ := newLobby(t, s, "EFGH45")

	seen := map[string]bool{}
	for range pairs {
		p, err := s.PickUnusedWordPair(ctx, l.ID, rng)
		require.NoError(t, err)
		assert.False(t, seen[p.RealWord], "pair %s repeated", p.RealWord)
		seen[p.RealWord] = true
	}
	_, err := s.PickUnusedWordPair(ctx, l.ID, rng)
	assert.ErrorIs(t, err, apperr.ErrExhausted)

	_, err = s.PickUnusedWordPair(ctx, other.ID, rng)
	assert.NoError(t, err, "usage is tracked per lobby")
}

func testSeedSkipsDuplicates(t *testing.T, open Factory) {
	s := open(t, words.Default[:2])
	n, err := s.SeedWordPairs(context.Background(), words.Default[:4])
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func testStartRoundFirstRound(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t, words.Default)
	l, players := seat(t, s, "ABCD23", "Bob", "Carol", "Dave")

	_, err := s.StartRound(ctx, l.ID, game.StartParams{RequestedBy: players[1].ID, Rand: randutil.New(5)})
	assert.ErrorIs(t, err, apperr.ErrValidation, "only the host starts")

	res, err := s.StartRound(ctx, l.ID, game.StartParams{
		RequestedBy: players[0].ID,
		Rand:        randutil.New(5),
		Options:     &models.GameOptions{ImposterCount: 1, MaxRounds: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, res.Lobby.Status)
	assert.Equal(t, 1, res.Lobby.VotingRound)
	assert.Equal(t, 1, res.Lobby.FirstRound)
	assert.Len(t, res.Players, 4)

	_, err = s.StartRound(ctx, l.ID, game.StartParams{Rand: randutil.New(5)})
	assert.ErrorIs(t, err, apperr.ErrValidation, "already in progress")

	// a tied round moves on without touching the game's first round
	p := res.Players
	for i := range p {
		vote(t, s, l.ID, 1, p[i], p[(i+1)%len(p)])
	}
	out, err := s.ResolveRound(ctx, l.ID, 1, game.EvaluateRound)
	require.NoError(t, err)
	require.True(t, out.Tie)
	require.False(t, out.GameOver)
	assert.Equal(t, 2, out.Lobby.VotingRound)
	assert.Equal(t, 1, out.Lobby.FirstRound)
}

func testRecordVote(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t, words.Default)
	l, players := seat(t, s, "ABCD23", "Bob", "Carol")
	alice, bob := players[0], players[1]

	_, _, err := s.RecordVote(ctx, models.Vote{VoterID: alice.ID, TargetID: bob.ID, LobbyID: l.ID, VotingRound: 0})
	assert.ErrorIs(t, err, apperr.ErrValidation, "no round in progress")

	res, err := s.StartRound(ctx, l.ID, game.StartParams{Rand: randutil.New(2)})
	require.NoError(t, err)
	round := res.Lobby.VotingRound

	_, _, err = s.RecordVote(ctx, models.Vote{VoterID: alice.ID, TargetID: alice.ID, LobbyID: l.ID, VotingRound: round})
	assert.ErrorIs(t, err, apperr.ErrValidation, "self vote")
	_, _, err = s.RecordVote(ctx, models.Vote{VoterID: alice.ID, TargetID: uuid.New(), LobbyID: l.ID, VotingRound: round})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, _, err = s.RecordVote(ctx, models.Vote{VoterID: alice.ID, TargetID: bob.ID, LobbyID: l.ID, VotingRound: round + 1})
	assert.ErrorIs(t, err, apperr.ErrConflict, "wrong round")

	recorded, target, err := s.RecordVote(ctx, models.Vote{VoterID: alice.ID, TargetID: bob.ID, LobbyID: l.ID, VotingRound: round})
	require.NoError(t, err)
	assert.Equal(t, bob.ID, target.ID)
	assert.False(t, recorded.CreatedAt.IsZero())

	_, _, err = s.RecordVote(ctx, models.Vote{VoterID: alice.ID, TargetID: players[2].ID, LobbyID: l.ID, VotingRound: round})
	assert.ErrorIs(t, err, apperr.ErrConflict, "second vote in a round")
}

func testTallyOrder(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t, words.Default)
	l, _ := seat(t, s, "ABCD23", "Bob", "Carol", "Dave")
	res, err := s.StartRound(ctx, l.ID, game.StartParams{Rand: randutil.New(9)})
	require.NoError(t, err)
	a, b, c, d := res.Players[0], res.Players[1], res.Players[2], res.Players[3]

	tally, err := s.TallyVotes(ctx, l.ID, 1)
	require.NoError(t, err)
	require.Len(t, tally, 4, "players without votes are listed")
	for i, e := range tally {
		assert.Zero(t, e.VoteCount)
		assert.Equal(t, res.Players[i].ID, e.PlayerID, "zero-vote ties keep join order")
	}

	vote(t, s, l.ID, 1, a, c)
	vote(t, s, l.ID, 1, b, c)
	vote(t, s, l.ID, 1, c, d)
	done, err := s.AllVoted(ctx, l.ID, 1)
	require.NoError(t, err)
	assert.False(t, done)

	vote(t, s, l.ID, 1, d, b)
	done, err = s.AllVoted(ctx, l.ID, 1)
	require.NoError(t, err)
	assert.True(t, done)

	tally, err = s.TallyVotes(ctx, l.ID, 1)
	require.NoError(t, err)
	got := make([]string, 0, len(tally))
	for _, e := range tally {
		got = append(got, e.Name)
	}
	assert.Equal(t, []string{"Carol", "Bob", "Dave", "Alice"}, got)
	assert.Equal(t, 2, tally[0].VoteCount)

	out, err := s.ResolveRound(ctx, l.ID, 1, game.EvaluateRound)
	require.NoError(t, err)
	require.NotNil(t, out.VotedOut)
	assert.Equal(t, c.ID, out.VotedOut.PlayerID)

	after, err := s.ListPlayers(ctx, l.ID)
	require.NoError(t, err)
	if out.GameOver {
		assert.Equal(t, models.StatusWaiting, out.Lobby.Status)
		for _, p := range after {
			assert.False(t, p.IsEliminated, "a finished game clears eliminations")
			assert.Empty(t, p.Word())
		}
		return
	}
	assert.Equal(t, 2, out.Lobby.VotingRound)
	for _, p := range after {
		assert.Equal(t, p.ID == c.ID, p.IsEliminated, p.Name)
	}
	tally, err = s.TallyVotes(ctx, l.ID, 2)
	require.NoError(t, err)
	assert.Len(t, tally, 3, "eliminated players leave the tally")
}

func testResolveTwice(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t, words.Default)
	l, _ := seat(t, s, "ABCD23", "Bob", "Carol", "Dave")

	res, err := s.StartRound(ctx, l.ID, game.StartParams{Rand: randutil.New(5)})
	require.NoError(t, err)
	round := res.Lobby.VotingRound

	_, err = s.ResolveRound(ctx, l.ID, round, game.EvaluateRound)
	assert.ErrorIs(t, err, apperr.ErrValidation, "not everyone has voted")

	for i, voter := range res.Players {
		vote(t, s, l.ID, round, voter, res.Players[(i+1)%len(res.Players)])
	}
	_, err = s.ResolveRound(ctx, l.ID, round, game.EvaluateRound)
	require.NoError(t, err)
	_, err = s.ResolveRound(ctx, l.ID, round, game.EvaluateRound)
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func testResetKeepsUsedPairs(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t, words.Default[:2])
	l, players := seat(t, s, "ABCD23", "Bob", "Carol")
	host := players[0]

	first, err := s.StartRound(ctx, l.ID, game.StartParams{Rand: randutil.New(4)})
	require.NoError(t, err)

	_, _, err = s.ResetLobby(ctx, l.ID, players[1].ID)
	assert.ErrorIs(t, err, apperr.ErrValidation, "only the host resets")

	reset, after, err := s.ResetLobby(ctx, l.ID, host.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaiting, reset.Status)
	assert.Zero(t, reset.VotingRound)
	for _, p := range after {
		assert.False(t, p.IsImposter)
		assert.Empty(t, p.Word())
	}

	second, err := s.StartRound(ctx, l.ID, game.StartParams{Rand: randutil.New(4)})
	require.NoError(t, err)
	assert.Equal(t, 1, second.Lobby.VotingRound)
	assert.NotEqual(t, first.WordPair.RealWord, second.WordPair.RealWord)

	_, _, err = s.ResetLobby(ctx, l.ID, host.ID)
	require.NoError(t, err)
	_, err = s.StartRound(ctx, l.ID, game.StartParams{Rand: randutil.New(4)})
	assert.ErrorIs(t, err, apperr.ErrExhausted)

	got, err := s.GetLobbyByID(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaiting, got.Status, "a failed start changes nothing")
	assert.Zero(t, got.VotingRound)
}

func testDeleteLobby(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t, words.Default)
	l, _ := seat(t, s, "ABCD23", "Bob")

	deleted, err := s.DeleteLobby(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, "ABCD23", deleted.Code)

	_, err = s.ListPlayers(ctx, l.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = s.DeleteLobby(ctx, l.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func testDeleteStale(t *testing.T, open Factory) {
	ctx := context.Background()
	s := open(t, words.Default)
	l, _ := newLobby(t, s, "ABCD23")

	removed, err := s.DeleteStaleLobbies(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, removed)

	removed, err = s.DeleteStaleLobbies(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, l.ID, removed[0].ID)

	_, err = s.GetLobbyByID(ctx, l.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
