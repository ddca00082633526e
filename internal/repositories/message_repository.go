package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"social-service/internal/models"
)

type pgMessageRepository struct {
	tx *sqlx.Tx
	t  *tracker
}

func (r *pgMessageRepository) Create(ctx context.Context, msg *models.Message) (int64, error) {
	var id int64
	err := r.tx.QueryRowxContext(ctx, `
INSERT INTO messages (content, sender_id, receiver_id, created_at)
VALUES ($1, $2, $3, $4)
RETURNING id
`, msg.Content, msg.SenderID, msg.ReceiverID, msg.CreatedAt).Scan(&id)
	if err != nil {
		return 0, mapError(err)
	}
	r.t.write(MessagesKey(msg.SenderID, msg.ReceiverID))
	return id, nil
}

func (r *pgMessageRepository) ListBetween(ctx context.Context, a, b int64) ([]models.Message, error) {
	r.t.read(MessagesKey(a, b))
	var msgs []models.Message
	err := r.tx.SelectContext(ctx, &msgs, `
SELECT id, content, sender_id, receiver_id, created_at
FROM messages
WHERE (sender_id=$1 AND receiver_id=$2) OR (sender_id=$2 AND receiver_id=$1)
ORDER BY created_at, id
`, a, b)
	return msgs, err
}

func (r *pgMessageRepository) DeleteByUser(ctx context.Context, userID int64) (int64, error) {
	var pairs []struct {
		SenderID   int64 `db:"sender_id"`
		ReceiverID int64 `db:"receiver_id"`
	}
	err := r.tx.SelectContext(ctx, &pairs, `
DELETE FROM messages
WHERE sender_id=$1 OR receiver_id=$1
RETURNING sender_id, receiver_id
`, userID)
	if err != nil {
		return 0, err
	}
	for _, p := range pairs {
		r.t.write(MessagesKey(p.SenderID, p.ReceiverID))
	}
	return int64(len(pairs)), nil
}
