package models

import "time"

type Message struct {
	ID         int64     `db:"id" json:"id"`
	Content    string    `db:"content" json:"content"`
	SenderID   int64     `db:"sender_id" json:"sender_id"`
	ReceiverID int64     `db:"receiver_id" json:"receiver_id"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Between reports whether the message was exchanged by a and b, in either direction.
func (m Message) Between(a, b int64) bool {
	return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
}
