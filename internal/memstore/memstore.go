// Package memstore is a single-process game.Store. One mutex serializes every
// operation, which linearizes all lobbies at once. It backs tests and the
// --store=memory development mode.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/imposter/internal/apperr"
	"github.com/jason-s-yu/imposter/internal/game"
	"github.com/jason-s-yu/imposter/internal/models"
	"github.com/jason-s-yu/imposter/internal/randutil"
)

type voteKey struct {
	voter uuid.UUID
	lobby uuid.UUID
	round int
}

// Store keeps lobbies, players, votes and word usage in maps.
type Store struct {
	mu      sync.Mutex
	lobbies map[uuid.UUID]*models.Lobby
	codes   map[string]uuid.UUID
	players map[uuid.UUID]*models.Player
	votes   map[voteKey]models.Vote
	pairs   []models.WordPair
	used    map[uuid.UUID]map[int64]bool
	seq     int64
	now     func() time.Time
}

var _ game.Store = (*Store)(nil)

// New returns an empty store seeded with pairs.
func New(pairs []models.WordPair) *Store {
	s := &Store{
		lobbies: make(map[uuid.UUID]*models.Lobby),
		codes:   make(map[string]uuid.UUID),
		players: make(map[uuid.UUID]*models.Player),
		votes:   make(map[voteKey]models.Vote),
		used:    make(map[uuid.UUID]map[int64]bool),
		now:     time.Now,
	}
	s.seedLocked(pairs)
	return s
}

// SetClock replaces the time source. Used by tests that age lobbies.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// SeedWordPairs appends pairs that are not already in the catalog.
func (s *Store) SeedWordPairs(_ context.Context, pairs []models.WordPair) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seedLocked(pairs), nil
}

func (s *Store) seedLocked(pairs []models.WordPair) int {
	added := 0
	for _, p := range pairs {
		dup := false
		for _, existing := range s.pairs {
			if existing.RealWord == p.RealWord && existing.ImposterWord == p.ImposterWord {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		p.ID = int64(len(s.pairs) + 1)
		s.pairs = append(s.pairs, p)
		added++
	}
	return added
}

func (s *Store) CreateLobby(_ context.Context, lobby models.Lobby, hostName string) (models.Lobby, models.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.codes[lobby.Code]; taken {
		return models.Lobby{}, models.Player{}, apperr.Conflict("lobby code %s already in use", lobby.Code)
	}
	now := s.now()
	lobby.CreatedAt, lobby.UpdatedAt = now, now
	if lobby.Status == "" {
		lobby.Status = models.StatusWaiting
	}
	l := lobby
	s.lobbies[l.ID] = &l
	s.codes[l.Code] = l.ID
	s.used[l.ID] = make(map[int64]bool)

	host := s.insertPlayerLocked(l.ID, hostName, true)
	return l, host, nil
}

func (s *Store) GetLobbyByCode(_ context.Context, code string) (models.Lobby, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.codes[code]
	if !ok {
		return models.Lobby{}, apperr.NotFound("lobby %q not found", code)
	}
	return *s.lobbies[id], nil
}

func (s *Store) GetLobbyByID(_ context.Context, id uuid.UUID) (models.Lobby, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.lobbyLocked(id)
	if err != nil {
		return models.Lobby{}, err
	}
	return *l, nil
}

func (s *Store) ListPlayers(_ context.Context, lobbyID uuid.UUID) ([]models.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.lobbyLocked(lobbyID); err != nil {
		return nil, err
	}
	return s.playersLocked(lobbyID), nil
}

func (s *Store) CountPlayers(_ context.Context, lobbyID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.lobbyLocked(lobbyID); err != nil {
		return 0, err
	}
	return len(s.playersLocked(lobbyID)), nil
}

func (s *Store) AddPlayer(_ context.Context, lobbyID uuid.UUID, name string) (models.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, err := s.lobbyLocked(lobbyID)
	if err != nil {
		return models.Player{}, err
	}
	if l.Status == models.StatusInProgress {
		return models.Player{}, apperr.Validation("cannot join while a game is in progress")
	}
	for _, p := range s.playersLocked(lobbyID) {
		if p.Name == name {
			return models.Player{}, apperr.Conflict("name already in use")
		}
	}
	p := s.insertPlayerLocked(lobbyID, name, false)
	s.touchLocked(l)
	return p, nil
}

func (s *Store) RemovePlayer(_ context.Context, lobbyID, playerID uuid.UUID) (game.LeaveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, err := s.lobbyLocked(lobbyID)
	if err != nil {
		return game.LeaveResult{}, err
	}
	p, ok := s.players[playerID]
	if !ok || p.LobbyID != lobbyID {
		return game.LeaveResult{}, apperr.NotFound("player not in lobby")
	}
	removed := *p
	delete(s.players, playerID)
	for k, v := range s.votes {
		if v.LobbyID == lobbyID && (v.VoterID == playerID || v.TargetID == playerID) {
			delete(s.votes, k)
		}
	}

	res := game.LeaveResult{Player: removed}
	remaining := s.playersLocked(lobbyID)
	if len(remaining) == 0 {
		res.Lobby = *l
		res.Lobby.Status = models.StatusEnded
		res.LobbyDeleted = true
		s.deleteLobbyLocked(lobbyID)
		return res, nil
	}
	if removed.IsHost {
		next := s.players[remaining[0].ID]
		next.IsHost = true
		l.HostName = next.Name
		nh := *next
		res.NewHost = &nh
	}
	s.touchLocked(l)
	res.Lobby = *l
	res.Players = s.playersLocked(lobbyID)
	return res, nil
}

// AdvanceVotingRound increments the lobby's round counter.
func (s *Store) AdvanceVotingRound(_ context.Context, lobbyID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.lobbyLocked(lobbyID)
	if err != nil {
		return 0, err
	}
	l.VotingRound++
	s.touchLocked(l)
	return l.VotingRound, nil
}

// SetImposterKnows sets whether imposters are told their role.
func (s *Store) SetImposterKnows(_ context.Context, lobbyID uuid.UUID, knows bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.lobbyLocked(lobbyID)
	if err != nil {
		return err
	}
	l.ImposterKnows = knows
	s.touchLocked(l)
	return nil
}

// PickUnusedWordPair selects uniformly among pairs not yet used by the lobby
// and records the selection.
func (s *Store) PickUnusedWordPair(_ context.Context, lobbyID uuid.UUID, rng randutil.Source) (models.WordPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.lobbyLocked(lobbyID); err != nil {
		return models.WordPair{}, err
	}
	return s.pickPairLocked(lobbyID, rng)
}

// AssignWordsAndImposters marks count random players as imposters and hands
// out words from the lobby's current pair.
func (s *Store) AssignWordsAndImposters(_ context.Context, lobbyID uuid.UUID, count int, rng randutil.Source) ([]models.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.lobbyLocked(lobbyID)
	if err != nil {
		return nil, err
	}
	if l.WordPairID == nil {
		return nil, apperr.Validation("no word pair selected")
	}
	pair := s.pairs[*l.WordPairID-1]
	players := s.playersLocked(lobbyID)
	if count < 1 || count >= len(players) {
		return nil, apperr.Validation("imposter count must be less than the number of players")
	}
	return s.assignLocked(players, pair, count, rng), nil
}

func (s *Store) StartRound(_ context.Context, lobbyID uuid.UUID, params game.StartParams) (game.StartResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, err := s.lobbyLocked(lobbyID)
	if err != nil {
		return game.StartResult{}, err
	}
	opts := models.GameOptions{ImposterKnows: l.ImposterKnows, ImposterCount: l.ImposterCount, MaxRounds: l.MaxRounds}
	if params.Options != nil {
		opts = *params.Options
	}
	opts = opts.Normalized()

	players := s.playersLocked(lobbyID)
	if err := game.CheckStart(*l, players, opts, params.RequestedBy); err != nil {
		return game.StartResult{}, err
	}
	pair, err := s.pickPairLocked(lobbyID, params.Rand)
	if err != nil {
		return game.StartResult{}, err
	}

	l.VotingRound++
	l.FirstRound = l.VotingRound
	l.ImposterKnows = opts.ImposterKnows
	l.ImposterCount = opts.ImposterCount
	l.MaxRounds = opts.MaxRounds
	l.Status = models.StatusInProgress
	s.touchLocked(l)

	assigned := s.assignLocked(players, pair, opts.ImposterCount, params.Rand)
	return game.StartResult{Lobby: *l, Players: assigned, WordPair: pair}, nil
}

func (s *Store) RecordVote(_ context.Context, vote models.Vote) (models.Vote, models.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, err := s.lobbyLocked(vote.LobbyID)
	if err != nil {
		return models.Vote{}, models.Player{}, err
	}
	target, err := game.CheckVote(*l, s.playersLocked(vote.LobbyID), vote)
	if err != nil {
		return models.Vote{}, models.Player{}, err
	}
	key := voteKey{voter: vote.VoterID, lobby: vote.LobbyID, round: vote.VotingRound}
	if _, dup := s.votes[key]; dup {
		return models.Vote{}, models.Player{}, apperr.Conflict("player has already voted this round")
	}
	vote.CreatedAt = s.now()
	s.votes[key] = vote
	s.touchLocked(l)
	return vote, target, nil
}

func (s *Store) TallyVotes(_ context.Context, lobbyID uuid.UUID, round int) ([]models.TallyEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.lobbyLocked(lobbyID); err != nil {
		return nil, err
	}
	return game.RankTally(s.playersLocked(lobbyID), s.roundVotesLocked(lobbyID, round)), nil
}

func (s *Store) AllVoted(_ context.Context, lobbyID uuid.UUID, round int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.lobbyLocked(lobbyID); err != nil {
		return false, err
	}
	return s.allVotedLocked(lobbyID, round), nil
}

func (s *Store) ResolveRound(_ context.Context, lobbyID uuid.UUID, round int, eval game.RoundEvaluator) (game.RoundOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, err := s.lobbyLocked(lobbyID)
	if err != nil {
		return game.RoundOutcome{}, err
	}
	if l.Status != models.StatusInProgress || l.VotingRound != round {
		return game.RoundOutcome{}, apperr.Conflict("voting round %d is already resolved", round)
	}
	players := s.playersLocked(lobbyID)
	tally := game.RankTally(players, s.roundVotesLocked(lobbyID, round))
	out, err := eval(*l, players, tally, s.allVotedLocked(lobbyID, round))
	if err != nil {
		return game.RoundOutcome{}, err
	}

	if out.VotedOut != nil {
		s.players[out.VotedOut.PlayerID].IsEliminated = true
	}
	if out.GameOver {
		l.Status = models.StatusWaiting
		l.WordPairID = nil
		s.clearAssignmentsLocked(lobbyID)
	} else {
		l.VotingRound = out.NextRound
	}
	s.touchLocked(l)
	out.Lobby = *l
	return out, nil
}

func (s *Store) ResetLobby(_ context.Context, lobbyID, requestedBy uuid.UUID) (models.Lobby, []models.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, err := s.lobbyLocked(lobbyID)
	if err != nil {
		return models.Lobby{}, nil, err
	}
	if err := game.CheckReset(s.playersLocked(lobbyID), requestedBy); err != nil {
		return models.Lobby{}, nil, err
	}
	l.VotingRound = 0
	l.FirstRound = 0
	l.WordPairID = nil
	l.Status = models.StatusWaiting
	s.clearAssignmentsLocked(lobbyID)
	for k := range s.votes {
		if k.lobby == lobbyID {
			delete(s.votes, k)
		}
	}
	s.touchLocked(l)
	return *l, s.playersLocked(lobbyID), nil
}

func (s *Store) DeleteLobby(_ context.Context, lobbyID uuid.UUID) (models.Lobby, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.lobbyLocked(lobbyID)
	if err != nil {
		return models.Lobby{}, err
	}
	out := *l
	s.deleteLobbyLocked(lobbyID)
	return out, nil
}

func (s *Store) DeleteStaleLobbies(_ context.Context, before time.Time) ([]models.Lobby, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []models.Lobby
	for id, l := range s.lobbies {
		if l.UpdatedAt.Before(before) {
			removed = append(removed, *l)
			s.deleteLobbyLocked(id)
		}
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i].CreatedAt.Before(removed[j].CreatedAt) })
	return removed, nil
}

// UsedWordPairs returns the ids of pairs already played in the lobby.
func (s *Store) UsedWordPairs(lobbyID uuid.UUID) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.used[lobbyID]))
	for id := range s.used[lobbyID] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *Store) lobbyLocked(id uuid.UUID) (*models.Lobby, error) {
	l, ok := s.lobbies[id]
	if !ok {
		return nil, apperr.NotFound("lobby not found")
	}
	return l, nil
}

func (s *Store) playersLocked(lobbyID uuid.UUID) []models.Player {
	var out []models.Player
	for _, p := range s.players {
		if p.LobbyID == lobbyID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

func (s *Store) roundVotesLocked(lobbyID uuid.UUID, round int) []models.Vote {
	var out []models.Vote
	for k, v := range s.votes {
		if k.lobby == lobbyID && k.round == round {
			out = append(out, v)
		}
	}
	return out
}

func (s *Store) allVotedLocked(lobbyID uuid.UUID, round int) bool {
	active := 0
	voted := 0
	for _, p := range s.playersLocked(lobbyID) {
		if !p.Active() {
			continue
		}
		active++
		if _, ok := s.votes[voteKey{voter: p.ID, lobby: lobbyID, round: round}]; ok {
			voted++
		}
	}
	return active > 0 && voted == active
}

func (s *Store) insertPlayerLocked(lobbyID uuid.UUID, name string, host bool) models.Player {
	s.seq++
	p := &models.Player{
		ID:       uuid.New(),
		LobbyID:  lobbyID,
		Name:     name,
		IsHost:   host,
		JoinedAt: s.now(),
		Seq:      s.seq,
	}
	s.players[p.ID] = p
	return *p
}

func (s *Store) pickPairLocked(lobbyID uuid.UUID, rng randutil.Source) (models.WordPair, error) {
	var unused []models.WordPair
	for _, p := range s.pairs {
		if !s.used[lobbyID][p.ID] {
			unused = append(unused, p)
		}
	}
	if len(unused) == 0 {
		return models.WordPair{}, apperr.Exhausted("every word pair has been used in this lobby")
	}
	pair := unused[rng.IntN(len(unused))]
	s.used[lobbyID][pair.ID] = true
	id := pair.ID
	s.lobbies[lobbyID].WordPairID = &id
	return pair, nil
}

func (s *Store) assignLocked(players []models.Player, pair models.WordPair, count int, rng randutil.Source) []models.Player {
	imposters := make(map[int]bool, count)
	for _, i := range randutil.Sample(rng, len(players), count) {
		imposters[i] = true
	}
	out := make([]models.Player, len(players))
	for i, p := range players {
		stored := s.players[p.ID]
		word := pair.RealWord
		if imposters[i] {
			word = pair.ImposterWord
		}
		stored.IsImposter = imposters[i]
		stored.IsEliminated = false
		stored.AssignedWord = &word
		out[i] = *stored
	}
	return out
}

func (s *Store) clearAssignmentsLocked(lobbyID uuid.UUID) {
	for _, p := range s.players {
		if p.LobbyID == lobbyID {
			p.IsImposter = false
			p.IsEliminated = false
			p.AssignedWord = nil
		}
	}
}

func (s *Store) touchLocked(l *models.Lobby) {
	l.UpdatedAt = s.now()
}

func (s *Store) deleteLobbyLocked(id uuid.UUID) {
	l, ok := s.lobbies[id]
	if !ok {
		return
	}
	delete(s.codes, l.Code)
	delete(s.lobbies, id)
	delete(s.used, id)
	for pid, p := range s.players {
		if p.LobbyID == id {
			delete(s.players, pid)
		}
	}
	for k := range s.votes {
		if k.lobby == id {
			delete(s.votes, k)
		}
	}
}
