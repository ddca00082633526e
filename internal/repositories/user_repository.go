package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"social-service/internal/models"
)

const userColumns = "id, name, credential, is_online"

type pgUserRepository struct {
	tx *sqlx.Tx
	t  *tracker
}

func (r *pgUserRepository) Create(ctx context.Context, user *models.User) (int64, error) {
	var id int64
	err := r.tx.QueryRowxContext(ctx, `
INSERT INTO users (name, credential, is_online)
VALUES ($1, $2, $3)
RETURNING id
`, user.Name, user.Credential, user.IsOnline).Scan(&id)
	if err != nil {
		return 0, mapError(err)
	}
	r.t.write(KeyUserNames, UserKey(id))
	return id, nil
}

func (r *pgUserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	r.t.read(UserKey(id))
	var user models.User
	if err := r.tx.GetContext(ctx, &user, "SELECT "+userColumns+" FROM users WHERE id=$1", id); err != nil {
		return nil, mapError(err)
	}
	if err := r.loadBlocked(ctx, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *pgUserRepository) GetByName(ctx context.Context, name string) (*models.User, error) {
	r.t.read(KeyUserNames)
	var user models.User
	if err := r.tx.GetContext(ctx, &user, "SELECT "+userColumns+" FROM users WHERE name=$1", name); err != nil {
		return nil, mapError(err)
	}
	r.t.read(UserKey(user.ID))
	if err := r.loadBlocked(ctx, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *pgUserRepository) ListByNameRange(ctx context.Context, from, to string) ([]models.User, error) {
	r.t.read(KeyUserNames)
	var users []models.User
	err := r.tx.SelectContext(ctx, &users, `
SELECT `+userColumns+`
FROM users
WHERE name >= $1 AND name < $2
ORDER BY name
`, from, to)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return users, nil
	}

	ids := make([]int64, len(users))
	for i := range users {
		ids[i] = users[i].ID
		users[i].BlockedUsers = models.NewIDSet()
		r.t.read(UserKey(users[i].ID))
	}

	var rows []struct {
		UserID    int64 `db:"user_id"`
		BlockedID int64 `db:"blocked_id"`
	}
	if err := r.tx.SelectContext(ctx, &rows, `SELECT user_id, blocked_id FROM user_blocks WHERE user_id = ANY($1)`, pq.Array(ids)); err != nil {
		return nil, err
	}
	byID := make(map[int64]models.IDSet, len(users))
	for i := range users {
		byID[users[i].ID] = users[i].BlockedUsers
	}
	for _, row := range rows {
		byID[row.UserID].Add(row.BlockedID)
	}
	return users, nil
}

func (r *pgUserRepository) AddBlocked(ctx context.Context, userID, targetID int64) error {
	_, err := r.tx.ExecContext(ctx, `
INSERT INTO user_blocks (user_id, blocked_id) VALUES ($1, $2)
ON CONFLICT (user_id, blocked_id) DO NOTHING
`, userID, targetID)
	if err != nil {
		return err
	}
	r.t.write(UserKey(userID))
	return nil
}

func (r *pgUserRepository) RemoveBlocked(ctx context.Context, userID, targetID int64) error {
	_, err := r.tx.ExecContext(ctx, `DELETE FROM user_blocks WHERE user_id=$1 AND blocked_id=$2`, userID, targetID)
	if err != nil {
		return err
	}
	r.t.write(UserKey(userID))
	return nil
}

func (r *pgUserRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.tx.ExecContext(ctx, "DELETE FROM users WHERE id=$1", id)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	r.t.write(KeyUserNames, UserKey(id))
	return nil
}

func (r *pgUserRepository) loadBlocked(ctx context.Context, user *models.User) error {
	var ids []int64
	if err := r.tx.SelectContext(ctx, &ids, `SELECT blocked_id FROM user_blocks WHERE user_id=$1`, user.ID); err != nil {
		return err
	}
	user.BlockedUsers = models.NewIDSet(ids...)
	return nil
}
