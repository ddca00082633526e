package telemetry

import "time"

// Routing keys for domain events on the events exchange.
const (
	EventUserCreated           = "user.created"
	EventUserDeleted           = "user.deleted"
	EventUserBlocked           = "user.blocked"
	EventUserUnblocked         = "user.unblocked"
	EventFriendRequestCreated  = "friend.request.created"
	EventFriendRequestAccepted = "friend.request.accepted"
	EventFriendRequestRefused  = "friend.request.refused"
	EventMessageSent           = "message.sent"
)

type UserCreatedPayload struct {
	UserID     int64     `json:"user_id"`
	Name       string    `json:"name"`
	OccurredAt time.Time `json:"occurred_at"`
}

type AccountDeletedPayload struct {
	UserID             int64     `json:"user_id"`
	FriendshipsRemoved int64     `json:"friendships_removed"`
	MessagesRemoved    int64     `json:"messages_removed"`
	OccurredAt         time.Time `json:"occurred_at"`
}

type BlockPayload struct {
	UserID     int64     `json:"user_id"`
	TargetID   int64     `json:"target_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

type FriendshipPayload struct {
	FriendshipID int64     `json:"friendship_id"`
	UserID1      int64     `json:"user_id1"`
	UserID2      int64     `json:"user_id2"`
	Status       string    `json:"status,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

type MessageSentPayload struct {
	MessageID  int64     `json:"message_id"`
	SenderID   int64     `json:"sender_id"`
	ReceiverID int64     `json:"receiver_id"`
	CreatedAt  time.Time `json:"created_at"`
}
