package repositories

import (
	"context"
	"errors"
	"slices"

	"social-service/internal/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
	ErrReadOnly  = errors.New("write attempted in read-only transaction")
)

// Store runs every call as one isolated, all-or-nothing transaction.
type Store interface {
	// Update runs fn in a serializable read-write transaction.
	Update(ctx context.Context, fn func(Tx) error) (Changes, error)
	// View runs fn in a read-only transaction.
	View(ctx context.Context, fn func(Tx) error) (Changes, error)
}

// Tx hands out repositories bound to a single transaction.
type Tx interface {
	Users() UserRepository
	Friends() FriendRepository
	Messages() MessageRepository
}

type UserRepository interface {
	Create(ctx context.Context, user *models.User) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByName(ctx context.Context, name string) (*models.User, error)
	// ListByNameRange returns users with from <= name < to, ordered by name.
	ListByNameRange(ctx context.Context, from, to string) ([]models.User, error)
	AddBlocked(ctx context.Context, userID, targetID int64) error
	RemoveBlocked(ctx context.Context, userID, targetID int64) error
	Delete(ctx context.Context, id int64) error
}

type FriendRepository interface {
	Create(ctx context.Context, fromUserID, toUserID int64) (*models.Friendship, error)
	GetByID(ctx context.Context, id int64) (*models.Friendship, error)
	// GetByPair looks up the exact ordered pair (userID1, userID2).
	GetByPair(ctx context.Context, userID1, userID2 int64) (*models.Friendship, error)
	SetStatus(ctx context.Context, id int64, status string) error
	Delete(ctx context.Context, id int64) error
	// ListIncoming returns rows addressed to userID with the given status, in insertion order.
	ListIncoming(ctx context.Context, userID int64, status string) ([]models.Friendship, error)
	// ListByUser returns rows with the given status that have userID on either side, in insertion order.
	ListByUser(ctx context.Context, userID int64, status string) ([]models.Friendship, error)
	DeleteByUser(ctx context.Context, userID int64) (int64, error)
}

type MessageRepository interface {
	Create(ctx context.Context, msg *models.Message) (int64, error)
	// ListBetween returns messages exchanged by a and b in either direction, oldest first.
	ListBetween(ctx context.Context, a, b int64) ([]models.Message, error)
	DeleteByUser(ctx context.Context, userID int64) (int64, error)
}

// Changes lists the dependency keys a transaction read and wrote. A failed
// transaction still reports its reads but never its writes.
type Changes struct {
	Reads  []string
	Writes []string
}

type tracker struct {
	reads  map[string]struct{}
	writes map[string]struct{}
}

func newTracker() *tracker {
	return &tracker{reads: map[string]struct{}{}, writes: map[string]struct{}{}}
}

func (t *tracker) read(keys ...string) {
	for _, k := range keys {
		t.reads[k] = struct{}{}
	}
}

func (t *tracker) write(keys ...string) {
	for _, k := range keys {
		t.writes[k] = struct{}{}
	}
}

func (t *tracker) changes() Changes {
	return Changes{Reads: sortedKeys(t.reads), Writes: sortedKeys(t.writes)}
}

// failed reports only the reads of a rolled back transaction.
func (t *tracker) failed() Changes {
	return Changes{Reads: sortedKeys(t.reads)}
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
