package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/imposter/internal/apperr"
	"github.com/jason-s-yu/imposter/internal/game"
	"github.com/jason-s-yu/imposter/internal/models"
	"github.com/jason-s-yu/imposter/internal/randutil"
)

const unusedPairsWhere = `
	NOT EXISTS (
		SELECT 1 FROM used_words_per_lobby u
		 WHERE u.lobby_id = $1 AND u.word_pair_id = wp.id
	)`

// pickPair selects uniformly among the lobby's unused pairs and records the
// choice. The caller holds the lobby row lock.
func pickPair(ctx context.Context, q querier, lobbyID uuid.UUID, rng randutil.Source) (models.WordPair, error) {
	var unused int64
	if err := q.QueryRow(ctx, `SELECT count(*) FROM word_pairs wp WHERE`+unusedPairsWhere, lobbyID).Scan(&unused); err != nil {
		return models.WordPair{}, err
	}
	if unused == 0 {
		return models.WordPair{}, apperr.Exhausted("every word pair has been used in this lobby")
	}

	var p models.WordPair
	err := q.QueryRow(ctx, `
	SELECT id, category, real_word, imposter_word
	  FROM word_pairs wp
	 WHERE`+unusedPairsWhere+`
	 ORDER BY id
	OFFSET $2 LIMIT 1
	`, lobbyID, rng.IntN(int(unused))).Scan(&p.ID, &p.Category, &p.RealWord, &p.ImposterWord)
	if err != nil {
		return models.WordPair{}, err
	}

	if _, err := q.Exec(ctx,
		`INSERT INTO used_words_per_lobby (lobby_id, word_pair_id) VALUES ($1, $2)`,
		lobbyID, p.ID,
	); err != nil {
		return models.WordPair{}, classify(err, "word pair already used in this lobby")
	}
	if _, err := q.Exec(ctx, `UPDATE lobbies SET word_pair_id = $2 WHERE id = $1`, lobbyID, p.ID); err != nil {
		return models.WordPair{}, err
	}
	return p, nil
}

// assignWords marks count random players as imposters and writes every
// player's word in one statement.
func assignWords(ctx context.Context, q querier, lobbyID uuid.UUID, players []models.Player, pair models.WordPair, count int, rng randutil.Source) ([]models.Player, error) {
	imposterIDs := make([]string, 0, count)
	for _, i := range randutil.Sample(rng, len(players), count) {
		imposterIDs = append(imposterIDs, players[i].ID.String())
	}
	_, err := q.Exec(ctx, `
	UPDATE players
	   SET is_imposter   = (id::text = ANY($2::text[])),
	       assigned_word = CASE WHEN id::text = ANY($2::text[]) THEN $3::text ELSE $4::text END,
	       is_eliminated = FALSE
	 WHERE lobby_id = $1
	`, lobbyID, imposterIDs, pair.ImposterWord, pair.RealWord)
	if err != nil {
		return nil, err
	}
	return listPlayers(ctx, q, lobbyID)
}

func tallyVotes(ctx context.Context, q querier, lobbyID uuid.UUID, round int) ([]models.TallyEntry, error) {
	rows, err := q.Query(ctx, `
	SELECT p.id, p.name, p.is_imposter, COUNT(v.player_id) AS vote_count
	  FROM players p
	  LEFT JOIN votes v
	    ON v.voted_for_player_id = p.id
	   AND v.lobby_id = p.lobby_id
	   AND v.voting_round = $2
	 WHERE p.lobby_id = $1 AND NOT p.is_eliminated
	 GROUP BY p.id, p.name, p.is_imposter, p.seq
	 ORDER BY vote_count DESC, p.seq ASC
	`, lobbyID, round)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.TallyEntry, error) {
		var e models.TallyEntry
		var n int64
		err := row.Scan(&e.PlayerID, &e.Name, &e.IsImposter, &n)
		e.VoteCount = int(n)
		return e, err
	})
}

func allVoted(ctx context.Context, q querier, lobbyID uuid.UUID, round int) (bool, error) {
	var voters, active int64
	err := q.QueryRow(ctx, `
	SELECT
		(SELECT COUNT(DISTINCT v.player_id)
		   FROM votes v
		   JOIN players p ON p.id = v.player_id
		  WHERE v.lobby_id = $1 AND v.voting_round = $2 AND NOT p.is_eliminated),
		(SELECT COUNT(*) FROM players WHERE lobby_id = $1 AND NOT is_eliminated)
	`, lobbyID, round).Scan(&voters, &active)
	if err != nil {
		return false, err
	}
	return active > 0 && voters == active, nil
}

// AdvanceVotingRound increments the lobby's round counter.
func (s *Store) AdvanceVotingRound(ctx context.Context, lobbyID uuid.UUID) (int, error) {
	var round int
	err := s.pool.QueryRow(ctx,
		`UPDATE lobbies SET voting_round = voting_round + 1, updated_at = now() WHERE id = $1 RETURNING voting_round`,
		lobbyID,
	).Scan(&round)
	return round, lobbyNotFound(err)
}

// SetImposterKnows sets whether imposters are told their role.
func (s *Store) SetImposterKnows(ctx context.Context, lobbyID uuid.UUID, knows bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE lobbies SET imposter_knows = $2, updated_at = now() WHERE id = $1`,
		lobbyID, knows,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("lobby not found")
	}
	return nil
}

// PickUnusedWordPair selects and records an unused pair as one transaction.
func (s *Store) PickUnusedWordPair(ctx context.Context, lobbyID uuid.UUID, rng randutil.Source) (models.WordPair, error) {
	var p models.WordPair
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := lockLobby(ctx, tx, lobbyID); err != nil {
			return err
		}
		var err error
		p, err = pickPair(ctx, tx, lobbyID, rng)
		return err
	})
	return p, err
}

// AssignWordsAndImposters hands out words from the lobby's current pair.
func (s *Store) AssignWordsAndImposters(ctx context.Context, lobbyID uuid.UUID, count int, rng randutil.Source) ([]models.Player, error) {
	var out []models.Player
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		l, err := lockLobby(ctx, tx, lobbyID)
		if err != nil {
			return err
		}
		if l.WordPairID == nil {
			return apperr.Validation("no word pair selected")
		}
		pair, err := getWordPair(ctx, tx, *l.WordPairID)
		if err != nil {
			return err
		}
		players, err := listPlayers(ctx, tx, lobbyID)
		if err != nil {
			return err
		}
		if count < 1 || count >= len(players) {
			return apperr.Validation("imposter count must be less than the number of players")
		}
		out, err = assignWords(ctx, tx, lobbyID, players, pair, count, rng)
		return err
	})
	return out, err
}

// StartRound advances the round, sets the imposter-knows flag, picks an
// unused pair and assigns words and imposters under one lobby lock.
func (s *Store) StartRound(ctx context.Context, lobbyID uuid.UUID, params game.StartParams) (game.StartResult, error) {
	var res game.StartResult
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		l, err := lockLobby(ctx, tx, lobbyID)
		if err != nil {
			return err
		}
		opts := models.GameOptions{ImposterKnows: l.ImposterKnows, ImposterCount: l.ImposterCount, MaxRounds: l.MaxRounds}
		if params.Options != nil {
			opts = *params.Options
		}
		opts = opts.Normalized()

		players, err := listPlayers(ctx, tx, lobbyID)
		if err != nil {
			return err
		}
		if err := game.CheckStart(l, players, opts, params.RequestedBy); err != nil {
			return err
		}

		pair, err := pickPair(ctx, tx, lobbyID, params.Rand)
		if err != nil {
			return err
		}
		res.WordPair = pair

		res.Lobby, err = scanLobby(tx.QueryRow(ctx, `
		UPDATE lobbies
		   SET voting_round   = voting_round + 1,
		       first_round    = voting_round + 1,
		       imposter_knows = $2,
		       imposter_count = $3,
		       max_rounds     = $4,
		       status         = $5,
		       updated_at     = now()
		 WHERE id = $1
		RETURNING `+lobbyColumns,
			lobbyID, opts.ImposterKnows, opts.ImposterCount, opts.MaxRounds, string(models.StatusInProgress),
		))
		if err != nil {
			return err
		}

		res.Players, err = assignWords(ctx, tx, lobbyID, players, pair, opts.ImposterCount, params.Rand)
		return err
	})
	if err != nil {
		return game.StartResult{}, err
	}
	return res, nil
}

// RecordVote inserts a vote. The primary key on (player_id, lobby_id,
// voting_round) rejects a second vote in the same round.
func (s *Store) RecordVote(ctx context.Context, vote models.Vote) (models.Vote, models.Player, error) {
	var target models.Player
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		l, err := lockLobby(ctx, tx, vote.LobbyID)
		if err != nil {
			return err
		}
		players, err := listPlayers(ctx, tx, vote.LobbyID)
		if err != nil {
			return err
		}
		target, err = game.CheckVote(l, players, vote)
		if err != nil {
			return err
		}
		err = tx.QueryRow(ctx, `
		INSERT INTO votes (player_id, voted_for_player_id, lobby_id, voting_round)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
		`, vote.VoterID, vote.TargetID, vote.LobbyID, vote.VotingRound).Scan(&vote.CreatedAt)
		if err != nil {
			return classify(err, "player has already voted this round")
		}
		return touch(ctx, tx, vote.LobbyID)
	})
	if err != nil {
		return models.Vote{}, models.Player{}, err
	}
	return vote, target, nil
}

func (s *Store) TallyVotes(ctx context.Context, lobbyID uuid.UUID, round int) ([]models.TallyEntry, error) {
	if _, err := getLobby(ctx, s.pool, lobbyID); err != nil {
		return nil, err
	}
	return tallyVotes(ctx, s.pool, lobbyID, round)
}

func (s *Store) AllVoted(ctx context.Context, lobbyID uuid.UUID, round int) (bool, error) {
	if _, err := getLobby(ctx, s.pool, lobbyID); err != nil {
		return false, err
	}
	return allVoted(ctx, s.pool, lobbyID, round)
}

// ResolveRound evaluates and applies a round's outcome under the lobby lock,
// so the snapshot eval sees is the one that gets written.
func (s *Store) ResolveRound(ctx context.Context, lobbyID uuid.UUID, round int, eval game.RoundEvaluator) (game.RoundOutcome, error) {
	var out game.RoundOutcome
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		l, err := lockLobby(ctx, tx, lobbyID)
		if err != nil {
			return err
		}
		if l.Status != models.StatusInProgress || l.VotingRound != round {
			return apperr.Conflict("voting round %d is already resolved", round)
		}
		players, err := listPlayers(ctx, tx, lobbyID)
		if err != nil {
			return err
		}
		tally, err := tallyVotes(ctx, tx, lobbyID, round)
		if err != nil {
			return err
		}
		done, err := allVoted(ctx, tx, lobbyID, round)
		if err != nil {
			return err
		}
		out, err = eval(l, players, tally, done)
		if err != nil {
			return err
		}

		if out.VotedOut != nil {
			if _, err := tx.Exec(ctx,
				`UPDATE players SET is_eliminated = TRUE WHERE id = $1 AND lobby_id = $2`,
				out.VotedOut.PlayerID, lobbyID,
			); err != nil {
				return err
			}
		}
		if out.GameOver {
			if err := clearAssignments(ctx, tx, lobbyID); err != nil {
				return err
			}
			out.Lobby, err = scanLobby(tx.QueryRow(ctx, `
			UPDATE lobbies SET status = $2, word_pair_id = NULL, updated_at = now()
			 WHERE id = $1
			RETURNING `+lobbyColumns, lobbyID, string(models.StatusWaiting)))
			return err
		}
		out.Lobby, err = scanLobby(tx.QueryRow(ctx, `
		UPDATE lobbies SET voting_round = $2, updated_at = now()
		 WHERE id = $1
		RETURNING `+lobbyColumns, lobbyID, out.NextRound))
		return err
	})
	if err != nil {
		return game.RoundOutcome{}, err
	}
	return out, nil
}

// ResetLobby clears round state, votes and assignments. Word usage is kept.
func (s *Store) ResetLobby(ctx context.Context, lobbyID, requestedBy uuid.UUID) (models.Lobby, []models.Player, error) {
	var l models.Lobby
	var players []models.Player
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := lockLobby(ctx, tx, lobbyID); err != nil {
			return err
		}
		current, err := listPlayers(ctx, tx, lobbyID)
		if err != nil {
			return err
		}
		if err := game.CheckReset(current, requestedBy); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM votes WHERE lobby_id = $1`, lobbyID); err != nil {
			return err
		}
		if err := clearAssignments(ctx, tx, lobbyID); err != nil {
			return err
		}
		l, err = scanLobby(tx.QueryRow(ctx, `
		UPDATE lobbies
		   SET voting_round = 0, first_round = 0, word_pair_id = NULL, status = $2, updated_at = now()
		 WHERE id = $1
		RETURNING `+lobbyColumns, lobbyID, string(models.StatusWaiting)))
		if err != nil {
			return err
		}
		players, err = listPlayers(ctx, tx, lobbyID)
		return err
	})
	if err != nil {
		return models.Lobby{}, nil, err
	}
	return l, players, nil
}

func clearAssignments(ctx context.Context, q querier, lobbyID uuid.UUID) error {
	_, err := q.Exec(ctx, `
	UPDATE players SET is_imposter = FALSE, assigned_word = NULL, is_eliminated = FALSE
	 WHERE lobby_id = $1
	`, lobbyID)
	return err
}
