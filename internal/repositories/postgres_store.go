package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Update(ctx context.Context, fn func(Tx) error) (Changes, error) {
	return s.withTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable}, fn)
}

func (s *PostgresStore) View(ctx context.Context, fn func(Tx) error) (Changes, error) {
	return s.withTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}, fn)
}

func (s *PostgresStore) withTx(ctx context.Context, opts *sql.TxOptions, fn func(Tx) error) (Changes, error) {
	tx, err := s.db.BeginTxx(ctx, opts)
	if err != nil {
		return Changes{}, err
	}
	t := newTracker()
	if err := fn(&pgTx{tx: tx, t: t}); err != nil {
		tx.Rollback()
		return t.failed(), err
	}
	if err := tx.Commit(); err != nil {
		return Changes{}, err
	}
	return t.changes(), nil
}

type pgTx struct {
	tx *sqlx.Tx
	t  *tracker
}

func (p *pgTx) Users() UserRepository {
	return &pgUserRepository{tx: p.tx, t: p.t}
}

func (p *pgTx) Friends() FriendRepository {
	return &pgFriendRepository{tx: p.tx, t: p.t}
}

func (p *pgTx) Messages() MessageRepository {
	return &pgMessageRepository{tx: p.tx, t: p.t}
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return ErrDuplicate
	}
	return err
}
