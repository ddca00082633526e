package services

import (
	"context"
	"errors"

	"social-service/internal/live"
	"social-service/internal/models"
	"social-service/internal/repositories"
)

// prefixSentinel sorts after every valid UTF-8 continuation of a prefix.
const prefixSentinel = "\U0010FFFF"

type DirectoryService struct {
	*core
}

func NewDirectoryService(deps Deps) *DirectoryService {
	return &DirectoryService{core: newCore(deps)}
}

// SearchUsers returns users whose name starts with term, except the caller and
// anyone the caller already has a friendship row with (caller as requester).
func (s *DirectoryService) SearchUsers(ctx context.Context, term string, currentUserID int64) ([]models.User, error) {
	if term == "" {
		return []models.User{}, nil
	}
	return view[[]models.User](ctx, s.core, s.SearchQuery(term, currentUserID))
}

func (s *DirectoryService) SearchQuery(term string, currentUserID int64) live.Query {
	return func(ctx context.Context, tx repositories.Tx) (any, error) {
		out := []models.User{}
		if term == "" {
			return out, nil
		}

		candidates, err := tx.Users().ListByNameRange(ctx, term, term+prefixSentinel)
		if err != nil {
			return nil, err
		}
		for _, u := range candidates {
			if u.ID == currentUserID {
				continue
			}
			_, err := tx.Friends().GetByPair(ctx, currentUserID, u.ID)
			if err == nil {
				continue
			}
			if !errors.Is(err, repositories.ErrNotFound) {
				return nil, err
			}
			out = append(out, u)
		}
		return out, nil
	}
}
