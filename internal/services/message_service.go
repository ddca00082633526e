package services

import (
	"context"

	"social-service/internal/live"
	"social-service/internal/models"
	"social-service/internal/repositories"
	"social-service/internal/telemetry"
)

// MessageService keeps the append-only log of direct messages between two users.
type MessageService struct {
	*core
	clock *monotonicClock
}

func NewMessageService(deps Deps) *MessageService {
	return &MessageService{core: newCore(deps), clock: newMonotonicClock(nil)}
}

// SendMessage appends a message if both users exist and neither has blocked the other.
func (s *MessageService) SendMessage(ctx context.Context, content string, senderID, receiverID int64) (int64, error) {
	msg := models.Message{Content: content, SenderID: senderID, ReceiverID: receiverID}
	err := s.update(ctx, func(tx repositories.Tx) error {
		sender, err := getUser(ctx, tx, senderID)
		if err != nil {
			return err
		}
		receiver, err := getUser(ctx, tx, receiverID)
		if err != nil {
			return err
		}
		if !CanMessage(sender, receiver) {
			return ErrBlocked
		}

		msg.CreatedAt = s.clock.Next()
		msg.ID, err = tx.Messages().Create(ctx, &msg)
		return err
	})
	if err != nil {
		return 0, err
	}

	s.publish(ctx, telemetry.EventMessageSent, telemetry.MessageSentPayload{
		MessageID:  msg.ID,
		SenderID:   senderID,
		ReceiverID: receiverID,
		CreatedAt:  msg.CreatedAt,
	})
	return msg.ID, nil
}

// CanMessage evaluates the blocking gate for two existing users.
func (s *MessageService) CanMessage(ctx context.Context, a, b int64) (bool, error) {
	var ok bool
	_, err := s.store.View(ctx, func(tx repositories.Tx) error {
		ua, err := getUser(ctx, tx, a)
		if err != nil {
			return err
		}
		ub, err := getUser(ctx, tx, b)
		if err != nil {
			return err
		}
		ok = CanMessage(ua, ub)
		return nil
	})
	return ok, err
}

// GetMessages returns the full conversation between a and b, oldest first.
// The result is the same for (a, b) and (b, a).
func (s *MessageService) GetMessages(ctx context.Context, a, b int64) ([]models.Message, error) {
	return view[[]models.Message](ctx, s.core, s.MessagesQuery(a, b))
}

func (s *MessageService) MessagesQuery(a, b int64) live.Query {
	return func(ctx context.Context, tx repositories.Tx) (any, error) {
		msgs, err := tx.Messages().ListBetween(ctx, a, b)
		if err != nil {
			return nil, err
		}
		if msgs == nil {
			msgs = []models.Message{}
		}
		return msgs, nil
	}
}
