package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jason-s-yu/imposter/internal/apperr"
	"github.com/jason-s-yu/imposter/internal/models"
)

func getWordPair(ctx context.Context, q querier, id int64) (models.WordPair, error) {
	var p models.WordPair
	err := q.QueryRow(ctx,
		`SELECT id, category, real_word, imposter_word FROM word_pairs WHERE id = $1`, id,
	).Scan(&p.ID, &p.Category, &p.RealWord, &p.ImposterWord)
	if errors.Is(err, pgx.ErrNoRows) {
		return p, apperr.NotFound("word pair not found")
	}
	return p, err
}

// CountWordPairs returns the catalog size.
func (s *Store) CountWordPairs(ctx context.Context) (int, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM word_pairs`).Scan(&n)
	return int(n), err
}

// SeedWordPairs inserts pairs, skipping ones already in the catalog, and
// returns how many were added.
func (s *Store) SeedWordPairs(ctx context.Context, pairs []models.WordPair) (int, error) {
	added := 0
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, p := range pairs {
			tag, err := tx.Exec(ctx, `
			INSERT INTO word_pairs (category, real_word, imposter_word)
			VALUES ($1, $2, $3)
			ON CONFLICT (real_word, imposter_word) DO NOTHING
			`, p.Category, p.RealWord, p.ImposterWord)
			if err != nil {
				return classify(err, "duplicate word pair")
			}
			added += int(tag.RowsAffected())
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}
