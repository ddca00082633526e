package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"social-service/internal/models"
)

const friendshipColumns = "id, user_id1, user_id2, status, action_user_id"

type pgFriendRepository struct {
	tx *sqlx.Tx
	t  *tracker
}

func (r *pgFriendRepository) Create(ctx context.Context, fromUserID, toUserID int64) (*models.Friendship, error) {
	var f models.Friendship
	err := r.tx.QueryRowxContext(ctx, `
INSERT INTO friendships (user_id1, user_id2, status, action_user_id)
VALUES ($1, $2, 'pending', $1)
RETURNING `+friendshipColumns+`
`, fromUserID, toUserID).StructScan(&f)
	if err != nil {
		return nil, mapError(err)
	}
	r.t.write(friendshipKeys(f)...)
	return &f, nil
}

func (r *pgFriendRepository) GetByID(ctx context.Context, id int64) (*models.Friendship, error) {
	r.t.read(FriendshipKey(id))
	var f models.Friendship
	if err := r.tx.GetContext(ctx, &f, "SELECT "+friendshipColumns+" FROM friendships WHERE id=$1", id); err != nil {
		return nil, mapError(err)
	}
	return &f, nil
}

func (r *pgFriendRepository) GetByPair(ctx context.Context, userID1, userID2 int64) (*models.Friendship, error) {
	r.t.read(FriendshipPairKey(userID1, userID2))
	var f models.Friendship
	err := r.tx.GetContext(ctx, &f, `
SELECT `+friendshipColumns+`
FROM friendships
WHERE user_id1=$1 AND user_id2=$2
`, userID1, userID2)
	if err != nil {
		return nil, mapError(err)
	}
	return &f, nil
}

func (r *pgFriendRepository) SetStatus(ctx context.Context, id int64, status string) error {
	var f models.Friendship
	err := r.tx.QueryRowxContext(ctx, `
UPDATE friendships SET status=$2
WHERE id=$1
RETURNING `+friendshipColumns+`
`, id, status).StructScan(&f)
	if err != nil {
		return mapError(err)
	}
	r.t.write(friendshipKeys(f)...)
	return nil
}

func (r *pgFriendRepository) Delete(ctx context.Context, id int64) error {
	var f models.Friendship
	err := r.tx.QueryRowxContext(ctx, `
DELETE FROM friendships WHERE id=$1
RETURNING `+friendshipColumns+`
`, id).StructScan(&f)
	if err != nil {
		return mapError(err)
	}
	r.t.write(friendshipKeys(f)...)
	return nil
}

func (r *pgFriendRepository) ListIncoming(ctx context.Context, userID int64, status string) ([]models.Friendship, error) {
	r.t.read(FriendshipsToKey(userID))
	var rows []models.Friendship
	err := r.tx.SelectContext(ctx, &rows, `
SELECT `+friendshipColumns+`
FROM friendships
WHERE user_id2=$1 AND status=$2
ORDER BY id
`, userID, status)
	return rows, err
}

func (r *pgFriendRepository) ListByUser(ctx context.Context, userID int64, status string) ([]models.Friendship, error) {
	r.t.read(FriendshipsFromKey(userID), FriendshipsToKey(userID))
	var rows []models.Friendship
	err := r.tx.SelectContext(ctx, &rows, `
SELECT `+friendshipColumns+`
FROM friendships
WHERE status=$2 AND (user_id1=$1 OR user_id2=$1)
ORDER BY id
`, userID, status)
	return rows, err
}

func (r *pgFriendRepository) DeleteByUser(ctx context.Context, userID int64) (int64, error) {
	var rows []models.Friendship
	err := r.tx.SelectContext(ctx, &rows, `
DELETE FROM friendships
WHERE user_id1=$1 OR user_id2=$1
RETURNING `+friendshipColumns, userID)
	if err != nil {
		return 0, err
	}
	for _, f := range rows {
		r.t.write(friendshipKeys(f)...)
	}
	return int64(len(rows)), nil
}
