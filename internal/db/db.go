package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

func Connect(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// Migrations is the schema, applied in order. Every statement is idempotent.
var Migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		name TEXT COLLATE "C" NOT NULL UNIQUE,
		credential TEXT NOT NULL,
		is_online BOOLEAN NOT NULL DEFAULT FALSE
		)`,
	`CREATE TABLE IF NOT EXISTS user_blocks (
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		blocked_id BIGINT NOT NULL,
		PRIMARY KEY (user_id, blocked_id)
		)`,
	`CREATE TABLE IF NOT EXISTS friendships (
		id BIGSERIAL PRIMARY KEY,
		user_id1 BIGINT NOT NULL REFERENCES users(id),
		user_id2 BIGINT NOT NULL REFERENCES users(id),
		status TEXT NOT NULL CHECK (status IN ('pending','accepted')),
		action_user_id BIGINT NOT NULL,
		CHECK (user_id1 <> user_id2),
		UNIQUE (user_id1, user_id2)
		)`,
	`CREATE INDEX IF NOT EXISTS friendships_user_id1_idx ON friendships (user_id1)`,
	`CREATE INDEX IF NOT EXISTS friendships_user_id2_idx ON friendships (user_id2)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id BIGSERIAL PRIMARY KEY,
		content TEXT NOT NULL,
		sender_id BIGINT NOT NULL REFERENCES users(id),
		receiver_id BIGINT NOT NULL REFERENCES users(id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	`CREATE INDEX IF NOT EXISTS messages_pair_idx ON messages (sender_id, receiver_id, created_at)`,
}

func RunMigrations(ctx context.Context, db *sqlx.DB) error {
	for _, q := range Migrations {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return nil
}
