package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"social-service/internal/live"
	"social-service/internal/models"
	"social-service/internal/repositories"
	"social-service/internal/telemetry"
)

// UserService owns user records, credentials and each user's blocked set.
type UserService struct {
	*core
	hashCost int
}

func NewUserService(deps Deps, hashCost int) *UserService {
	if hashCost == 0 {
		hashCost = bcrypt.DefaultCost
	}
	return &UserService{core: newCore(deps), hashCost: hashCost}
}

func (s *UserService) CreateUser(ctx context.Context, name, password string) (int64, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return 0, fmt.Errorf("hash credential: %w", err)
	}

	var id int64
	err = s.update(ctx, func(tx repositories.Tx) error {
		if _, err := tx.Users().GetByName(ctx, name); err == nil {
			return ErrDuplicateName
		} else if !errors.Is(err, repositories.ErrNotFound) {
			return err
		}

		newID, err := tx.Users().Create(ctx, &models.User{
			Name:       name,
			Credential: string(hash),
			IsOnline:   true,
		})
		if errors.Is(err, repositories.ErrDuplicate) {
			return ErrDuplicateName
		}
		id = newID
		return err
	})
	if err != nil {
		return 0, err
	}

	s.log.Info("user created", zap.Int64("user_id", id))
	s.publish(ctx, telemetry.EventUserCreated, telemetry.UserCreatedPayload{
		UserID:     id,
		Name:       name,
		OccurredAt: time.Now().UTC(),
	})
	return id, nil
}

// Login returns nil, nil when the name is unknown or the password does not match.
func (s *UserService) Login(ctx context.Context, name, password string) (*models.User, error) {
	return view[*models.User](ctx, s.core, s.LoginQuery(name, password))
}

func (s *UserService) LoginQuery(name, password string) live.Query {
	return func(ctx context.Context, tx repositories.Tx) (any, error) {
		u, err := tx.Users().GetByName(ctx, name)
		if errors.Is(err, repositories.ErrNotFound) {
			return (*models.User)(nil), nil
		}
		if err != nil {
			return nil, err
		}
		if bcrypt.CompareHashAndPassword([]byte(u.Credential), []byte(password)) != nil {
			return (*models.User)(nil), nil
		}
		return u, nil
	}
}

func (s *UserService) GetUser(ctx context.Context, id int64) (*models.User, error) {
	return view[*models.User](ctx, s.core, s.UserQuery(id))
}

func (s *UserService) UserQuery(id int64) live.Query {
	return func(ctx context.Context, tx repositories.Tx) (any, error) {
		return getUser(ctx, tx, id)
	}
}

// BlockUser adds target to userID's blocked set. Repeating it is a no-op.
func (s *UserService) BlockUser(ctx context.Context, userID, targetID int64) error {
	err := s.update(ctx, func(tx repositories.Tx) error {
		if _, err := getUser(ctx, tx, userID); err != nil {
			return err
		}
		return tx.Users().AddBlocked(ctx, userID, targetID)
	})
	if err != nil {
		return err
	}
	s.publish(ctx, telemetry.EventUserBlocked, telemetry.BlockPayload{UserID: userID, TargetID: targetID, OccurredAt: time.Now().UTC()})
	return nil
}

func (s *UserService) UnblockUser(ctx context.Context, userID, targetID int64) error {
	err := s.update(ctx, func(tx repositories.Tx) error {
		if _, err := getUser(ctx, tx, userID); err != nil {
			return err
		}
		return tx.Users().RemoveBlocked(ctx, userID, targetID)
	})
	if err != nil {
		return err
	}
	s.publish(ctx, telemetry.EventUserUnblocked, telemetry.BlockPayload{UserID: userID, TargetID: targetID, OccurredAt: time.Now().UTC()})
	return nil
}

// DeleteAccount removes every friendship and message referencing userID and
// then the user, all in one transaction.
func (s *UserService) DeleteAccount(ctx context.Context, userID int64) error {
	var friendships, messages int64
	err := s.update(ctx, func(tx repositories.Tx) error {
		if _, err := getUser(ctx, tx, userID); err != nil {
			return err
		}
		var err error
		if friendships, err = tx.Friends().DeleteByUser(ctx, userID); err != nil {
			return fmt.Errorf("delete friendships: %w", err)
		}
		if messages, err = tx.Messages().DeleteByUser(ctx, userID); err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		if err := tx.Users().Delete(ctx, userID); err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info("account deleted",
		zap.Int64("user_id", userID),
		zap.Int64("friendships_removed", friendships),
		zap.Int64("messages_removed", messages),
	)
	s.publish(ctx, telemetry.EventUserDeleted, telemetry.AccountDeletedPayload{
		UserID:             userID,
		FriendshipsRemoved: friendships,
		MessagesRemoved:    messages,
		OccurredAt:         time.Now().UTC(),
	})
	return nil
}
