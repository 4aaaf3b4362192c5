package database

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/imposter/internal/apperr"
	"github.com/jason-s-yu/imposter/internal/game"
	"github.com/jason-s-yu/imposter/internal/models"
)

// Store is the Postgres-backed game.Store. Every mutation runs in one
// transaction that first locks the lobby row, which linearizes writes per
// lobby across processes.
type Store struct {
	pool *pgxpool.Pool
}

var _ game.Store = (*Store)(nil)

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const lobbyColumns = `id, code, host_name, imposter_knows, imposter_count, max_rounds,
	voting_round, first_round, word_pair_id, status, created_at, updated_at`

const playerColumns = `id, lobby_id, name, is_imposter, is_host, is_eliminated,
	assigned_word, joined_at, seq`

func scanLobby(row pgx.Row) (models.Lobby, error) {
	var l models.Lobby
	var status string
	err := row.Scan(
		&l.ID,
		&l.Code,
		&l.HostName,
		&l.ImposterKnows,
		&l.ImposterCount,
		&l.MaxRounds,
		&l.VotingRound,
		&l.FirstRound,
		&l.WordPairID,
		&status,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	l.Status = models.Status(status)
	return l, err
}

func scanPlayer(row pgx.Row) (models.Player, error) {
	var p models.Player
	err := row.Scan(
		&p.ID,
		&p.LobbyID,
		&p.Name,
		&p.IsImposter,
		&p.IsHost,
		&p.IsEliminated,
		&p.AssignedWord,
		&p.JoinedAt,
		&p.Seq,
	)
	return p, err
}

func collectLobbies(rows pgx.Rows) ([]models.Lobby, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Lobby, error) {
		return scanLobby(row)
	})
}

func lobbyNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("lobby not found")
	}
	return err
}

// lockLobby reads the lobby row FOR UPDATE. Must run inside a transaction.
func lockLobby(ctx context.Context, q querier, id uuid.UUID) (models.Lobby, error) {
	l, err := scanLobby(q.QueryRow(ctx, `SELECT `+lobbyColumns+` FROM lobbies WHERE id = $1 FOR UPDATE`, id))
	return l, lobbyNotFound(err)
}

func getLobby(ctx context.Context, q querier, id uuid.UUID) (models.Lobby, error) {
	l, err := scanLobby(q.QueryRow(ctx, `SELECT `+lobbyColumns+` FROM lobbies WHERE id = $1`, id))
	return l, lobbyNotFound(err)
}

func listPlayers(ctx context.Context, q querier, lobbyID uuid.UUID) ([]models.Player, error) {
	rows, err := q.Query(ctx, `SELECT `+playerColumns+` FROM players WHERE lobby_id = $1 ORDER BY seq`, lobbyID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Player, error) {
		return scanPlayer(row)
	})
}

func insertPlayer(ctx context.Context, q querier, lobbyID uuid.UUID, name string, host bool) (models.Player, error) {
	p, err := scanPlayer(q.QueryRow(ctx, `
	INSERT INTO players (id, lobby_id, name, is_host)
	VALUES ($1, $2, $3, $4)
	RETURNING `+playerColumns,
		uuid.New(), lobbyID, name, host,
	))
	return p, classify(err, "name already in use")
}

func touch(ctx context.Context, q querier, lobbyID uuid.UUID) error {
	_, err := q.Exec(ctx, `UPDATE lobbies SET updated_at = now() WHERE id = $1`, lobbyID)
	return err
}

// CreateLobby inserts the lobby and its host in one transaction.
func (s *Store) CreateLobby(ctx context.Context, lobby models.Lobby, hostName string) (models.Lobby, models.Player, error) {
	var created models.Lobby
	var host models.Player
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var err error
		created, err = scanLobby(tx.QueryRow(ctx, `
		INSERT INTO lobbies (id, code, host_name, imposter_knows, imposter_count, max_rounds, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+lobbyColumns,
			lobby.ID,
			lobby.Code,
			hostName,
			lobby.ImposterKnows,
			lobby.ImposterCount,
			lobby.MaxRounds,
			string(models.StatusWaiting),
		))
		if err != nil {
			return classify(err, "lobby code already in use")
		}
		host, err = insertPlayer(ctx, tx, created.ID, hostName, true)
		return err
	})
	if err != nil {
		return models.Lobby{}, models.Player{}, err
	}
	return created, host, nil
}

// GetLobbyByCode fetches an active lobby by its join code.
func (s *Store) GetLobbyByCode(ctx context.Context, code string) (models.Lobby, error) {
	l, err := scanLobby(s.pool.QueryRow(ctx, `SELECT `+lobbyColumns+` FROM lobbies WHERE code = $1`, code))
	return l, lobbyNotFound(err)
}

// GetLobbyByID fetches a lobby by ID.
func (s *Store) GetLobbyByID(ctx context.Context, id uuid.UUID) (models.Lobby, error) {
	return getLobby(ctx, s.pool, id)
}

// ListPlayers returns the lobby's players in join order.
func (s *Store) ListPlayers(ctx context.Context, lobbyID uuid.UUID) ([]models.Player, error) {
	if _, err := getLobby(ctx, s.pool, lobbyID); err != nil {
		return nil, err
	}
	return listPlayers(ctx, s.pool, lobbyID)
}

func (s *Store) CountPlayers(ctx context.Context, lobbyID uuid.UUID) (int, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `
	SELECT (SELECT count(*) FROM players WHERE lobby_id = l.id)
	  FROM lobbies l
	 WHERE l.id = $1
	`, lobbyID).Scan(&n)
	return int(n), lobbyNotFound(err)
}

// AddPlayer seats a new player. The (lobby_id, name) unique constraint
// rejects the loser of a concurrent join with the same name.
func (s *Store) AddPlayer(ctx context.Context, lobbyID uuid.UUID, name string) (models.Player, error) {
	var p models.Player
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		l, err := lockLobby(ctx, tx, lobbyID)
		if err != nil {
			return err
		}
		if l.Status == models.StatusInProgress {
			return apperr.Validation("cannot join while a game is in progress")
		}
		p, err = insertPlayer(ctx, tx, lobbyID, name, false)
		if err != nil {
			return err
		}
		return touch(ctx, tx, lobbyID)
	})
	return p, err
}

// RemovePlayer deletes the player and, in the same transaction, either
// deletes the emptied lobby or promotes the earliest-joined player to host.
func (s *Store) RemovePlayer(ctx context.Context, lobbyID, playerID uuid.UUID) (game.LeaveResult, error) {
	var res game.LeaveResult
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		l, err := lockLobby(ctx, tx, lobbyID)
		if err != nil {
			return err
		}
		removed, err := scanPlayer(tx.QueryRow(ctx,
			`DELETE FROM players WHERE id = $1 AND lobby_id = $2 RETURNING `+playerColumns,
			playerID, lobbyID,
		))
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("player not in lobby")
		}
		if err != nil {
			return err
		}
		res.Player = removed

		remaining, err := listPlayers(ctx, tx, lobbyID)
		if err != nil {
			return err
		}
		if len(remaining) == 0 {
			if _, err := tx.Exec(ctx, `DELETE FROM lobbies WHERE id = $1`, lobbyID); err != nil {
				return err
			}
			l.Status = models.StatusEnded
			res.Lobby = l
			res.LobbyDeleted = true
			return nil
		}

		if removed.IsHost {
			next, err := scanPlayer(tx.QueryRow(ctx,
				`UPDATE players SET is_host = TRUE WHERE id = $1 RETURNING `+playerColumns,
				remaining[0].ID,
			))
			if err != nil {
				return err
			}
			res.NewHost = &next
			remaining[0] = next
		}
		hostName := l.HostName
		if res.NewHost != nil {
			hostName = res.NewHost.Name
		}
		res.Lobby, err = scanLobby(tx.QueryRow(ctx,
			`UPDATE lobbies SET host_name = $2, updated_at = now() WHERE id = $1 RETURNING `+lobbyColumns,
			lobbyID, hostName,
		))
		res.Players = remaining
		return err
	})
	if err != nil {
		return game.LeaveResult{}, err
	}
	return res, nil
}

// DeleteLobby removes a lobby; players, votes and word usage cascade.
func (s *Store) DeleteLobby(ctx context.Context, lobbyID uuid.UUID) (models.Lobby, error) {
	l, err := scanLobby(s.pool.QueryRow(ctx, `DELETE FROM lobbies WHERE id = $1 RETURNING `+lobbyColumns, lobbyID))
	return l, lobbyNotFound(err)
}

// DeleteStaleLobbies removes lobbies not updated since before.
func (s *Store) DeleteStaleLobbies(ctx context.Context, before time.Time) ([]models.Lobby, error) {
	rows, err := s.pool.Query(ctx, `DELETE FROM lobbies WHERE updated_at < $1 RETURNING `+lobbyColumns, before)
	if err != nil {
		return nil, err
	}
	return collectLobbies(rows)
}
