package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"social-service/internal/live"
	"social-service/internal/models"
	"social-service/internal/rabbitmq"
	"social-service/internal/repositories"
)

var (
	ErrDuplicateName    = errors.New("name already taken")
	ErrDuplicateRequest = errors.New("friendship request already exists")
	ErrNotFound         = errors.New("not found")
	ErrBlocked          = errors.New("cannot send message due to blocking")
	ErrSelfRequest      = errors.New("cannot send friend request to yourself")
)

// Deps are the collaborators shared by every service.
type Deps struct {
	Store  repositories.Store
	Feed   live.Feed
	Events rabbitmq.Publisher
	Logger *zap.Logger
}

type core struct {
	store  repositories.Store
	feed   live.Feed
	events rabbitmq.Publisher
	log    *zap.Logger
}

func newCore(d Deps) *core {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	feed := d.Feed
	if feed == nil {
		feed = live.NewLocalFeed()
	}
	events := d.Events
	if events == nil {
		events = rabbitmq.NewNoopPublisher(log)
	}
	return &core{store: d.Store, feed: feed, events: events, log: log}
}

// update commits fn and announces its writes to live subscribers.
func (c *core) update(ctx context.Context, fn func(repositories.Tx) error) error {
	changes, err := c.store.Update(ctx, fn)
	if err != nil {
		return err
	}
	if err := c.feed.Publish(context.WithoutCancel(ctx), changes.Writes); err != nil {
		c.log.Warn("failed to publish change notification", zap.Error(err), zap.Strings("keys", changes.Writes))
	}
	return nil
}

func (c *core) publish(ctx context.Context, routingKey string, payload any) {
	if err := c.events.Publish(context.WithoutCancel(ctx), routingKey, payload); err != nil {
		c.log.Warn("failed to publish event", zap.String("routing_key", routingKey), zap.Error(err))
	}
}

// view evaluates q once in a read-only transaction.
func view[T any](ctx context.Context, c *core, q live.Query) (T, error) {
	var out T
	_, err := c.store.View(ctx, func(tx repositories.Tx) error {
		res, err := q(ctx, tx)
		if err != nil {
			return err
		}
		out = res.(T)
		return nil
	})
	return out, err
}

// getUser resolves a user inside tx, translating a missing row to ErrNotFound.
func getUser(ctx context.Context, tx repositories.Tx, id int64) (*models.User, error) {
	u, err := tx.Users().GetByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	return u, err
}

// monotonicClock hands out strictly increasing timestamps.
type monotonicClock struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

func newMonotonicClock(now func() time.Time) *monotonicClock {
	if now == nil {
		now = time.Now
	}
	return &monotonicClock{now: now}
}

func (c *monotonicClock) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now().UTC().Truncate(time.Microsecond)
	if !t.After(c.last) {
		t = c.last.Add(time.Microsecond)
	}
	c.last = t
	return t
}
