package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"social-service/internal/live"
	"social-service/internal/models"
	"social-service/internal/repositories"
	"social-service/internal/telemetry"
)

// FriendService runs the friend-request state machine. Rows are keyed by the
// exact ordered pair (requester, recipient); reads resolve them symmetrically.
type FriendService struct {
	*core
}

func NewFriendService(deps Deps) *FriendService {
	return &FriendService{core: newCore(deps)}
}

// SendFriendRequest creates a pending row (from, to). Only that exact order is
// checked for duplicates: a request in the opposite direction is independent.
func (s *FriendService) SendFriendRequest(ctx context.Context, fromUserID, toUserID int64) (int64, error) {
	if fromUserID == toUserID {
		return 0, ErrSelfRequest
	}

	var created *models.Friendship
	err := s.update(ctx, func(tx repositories.Tx) error {
		if _, err := getUser(ctx, tx, fromUserID); err != nil {
			return err
		}
		if _, err := getUser(ctx, tx, toUserID); err != nil {
			return err
		}

		if _, err := tx.Friends().GetByPair(ctx, fromUserID, toUserID); err == nil {
			return ErrDuplicateRequest
		} else if !errors.Is(err, repositories.ErrNotFound) {
			return err
		}

		f, err := tx.Friends().Create(ctx, fromUserID, toUserID)
		if errors.Is(err, repositories.ErrDuplicate) {
			return ErrDuplicateRequest
		}
		created = f
		return err
	})
	if err != nil {
		return 0, err
	}

	s.log.Debug("friend request created",
		zap.Int64("friendship_id", created.ID),
		zap.Int64("from_user_id", fromUserID),
		zap.Int64("to_user_id", toUserID),
	)
	s.publish(ctx, telemetry.EventFriendRequestCreated, friendshipPayload(*created))
	return created.ID, nil
}

// AcceptFriendRequest flips the row to accepted. The caller is not checked
// against the recipient.
func (s *FriendService) AcceptFriendRequest(ctx context.Context, friendshipID int64) error {
	var f *models.Friendship
	err := s.update(ctx, func(tx repositories.Tx) error {
		var err error
		if f, err = getFriendship(ctx, tx, friendshipID); err != nil {
			return err
		}
		f.Status = models.FriendshipAccepted
		return tx.Friends().SetStatus(ctx, friendshipID, models.FriendshipAccepted)
	})
	if err != nil {
		return err
	}
	s.publish(ctx, telemetry.EventFriendRequestAccepted, friendshipPayload(*f))
	return nil
}

// RefuseFriendRequest deletes the row whatever its status, so it also ends an
// accepted friendship.
func (s *FriendService) RefuseFriendRequest(ctx context.Context, friendshipID int64) error {
	var f *models.Friendship
	err := s.update(ctx, func(tx repositories.Tx) error {
		var err error
		if f, err = getFriendship(ctx, tx, friendshipID); err != nil {
			return err
		}
		return tx.Friends().Delete(ctx, friendshipID)
	})
	if err != nil {
		return err
	}
	s.publish(ctx, telemetry.EventFriendRequestRefused, friendshipPayload(*f))
	return nil
}

func (s *FriendService) GetFriendRequests(ctx context.Context, userID int64) ([]models.FriendRequest, error) {
	return view[[]models.FriendRequest](ctx, s.core, s.FriendRequestsQuery(userID))
}

// FriendRequestsQuery lists pending rows addressed to userID in insertion
// order, each joined with the requester (nil if the requester is gone).
func (s *FriendService) FriendRequestsQuery(userID int64) live.Query {
	return func(ctx context.Context, tx repositories.Tx) (any, error) {
		rows, err := tx.Friends().ListIncoming(ctx, userID, models.FriendshipPending)
		if err != nil {
			return nil, err
		}
		out := make([]models.FriendRequest, 0, len(rows))
		for _, row := range rows {
			requester, err := tx.Users().GetByID(ctx, row.UserID1)
			if err != nil && !errors.Is(err, repositories.ErrNotFound) {
				return nil, err
			}
			out = append(out, models.FriendRequest{Friendship: row, Requester: requester})
		}
		return out, nil
	}
}

func (s *FriendService) GetFriends(ctx context.Context, userID int64) ([]models.User, error) {
	return view[[]models.User](ctx, s.core, s.FriendsQuery(userID))
}

// FriendsQuery resolves every accepted row touching userID to the other party.
// Parties that no longer exist are skipped.
func (s *FriendService) FriendsQuery(userID int64) live.Query {
	return func(ctx context.Context, tx repositories.Tx) (any, error) {
		rows, err := tx.Friends().ListByUser(ctx, userID, models.FriendshipAccepted)
		if err != nil {
			return nil, err
		}
		out := make([]models.User, 0, len(rows))
		for _, row := range rows {
			friend, err := tx.Users().GetByID(ctx, row.Other(userID))
			if errors.Is(err, repositories.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			out = append(out, *friend)
		}
		return out, nil
	}
}

// AreFriends reports whether an accepted row exists in either order.
func (s *FriendService) AreFriends(ctx context.Context, userID, otherID int64) (bool, error) {
	var friends bool
	_, err := s.store.View(ctx, func(tx repositories.Tx) error {
		for _, pair := range [][2]int64{{userID, otherID}, {otherID, userID}} {
			f, err := tx.Friends().GetByPair(ctx, pair[0], pair[1])
			if errors.Is(err, repositories.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if f.Status == models.FriendshipAccepted {
				friends = true
				return nil
			}
		}
		return nil
	})
	return friends, err
}

func getFriendship(ctx context.Context, tx repositories.Tx, id int64) (*models.Friendship, error) {
	f, err := tx.Friends().GetByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, fmt.Errorf("friendship request %d: %w", id, ErrNotFound)
	}
	return f, err
}

func friendshipPayload(f models.Friendship) telemetry.FriendshipPayload {
	return telemetry.FriendshipPayload{
		FriendshipID: f.ID,
		UserID1:      f.UserID1,
		UserID2:      f.UserID2,
		Status:       f.Status,
		OccurredAt:   time.Now().UTC(),
	}
}
