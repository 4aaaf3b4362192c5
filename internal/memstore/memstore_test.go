package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/imposter/internal/apperr"
	"github.com/jason-s-yu/imposter/internal/game/storetest"
	"github.com/jason-s-yu/imposter/internal/models"
	"github.com/jason-s-yu/imposter/internal/randutil"
	"github.com/jason-s-yu/imposter/internal/words"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T, pairs []models.WordPair) storetest.Store {
		return New(pairs)
	})
}

func newLobby(t *testing.T, s *Store, code string) models.Lobby {
	t.Helper()
	l, _, err := s.CreateLobby(context.Background(), models.Lobby{
		ID:            uuid.New(),
		Code:          code,
		HostName:      "Alice",
		ImposterCount: 1,
		MaxRounds:     3,
	}, "Alice")
	require.NoError(t, err)
	return l
}

func TestUsedWordPairsTracksPicks(t *testing.T) {
	ctx := context.Background()
	s := New(words.Default[:3])
	rng := randutil.New(11)
	l := newLobby(t, s, "ABCD23")

	for range 3 {
		_, err := s.PickUnusedWordPair(ctx, l.ID, rng)
		require.NoError(t, err)
	}
	assert.Equal(t, []int64{1, 2, 3}, s.UsedWordPairs(l.ID))
}

func TestDeleteStaleLobbiesUsesClock(t *testing.T) {
	ctx := context.Background()
	s := New(words.Default)
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return base })
	old := newLobby(t, s, "AAAAAA")

	s.SetClock(func() time.Time { return base.Add(2 * time.Hour) })
	fresh := newLobby(t, s, "BBBBBB")

	removed, err := s.DeleteStaleLobbies(ctx, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, old.ID, removed[0].ID)

	_, err = s.GetLobbyByID(ctx, fresh.ID)
	assert.NoError(t, err)
	_, err = s.GetLobbyByID(ctx, old.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
