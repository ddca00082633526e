package models

const (
	FriendshipPending  = "pending"
	FriendshipAccepted = "accepted"
)

// Friendship is stored in creation order: UserID1 is the requester.
type Friendship struct {
	ID           int64  `db:"id" json:"id"`
	UserID1      int64  `db:"user_id1" json:"user_id1"`
	UserID2      int64  `db:"user_id2" json:"user_id2"`
	Status       string `db:"status" json:"status"`
	ActionUserID int64  `db:"action_user_id" json:"action_user_id"`
}

// Other returns the party of the friendship that is not userID.
func (f Friendship) Other(userID int64) int64 {
	if f.UserID1 == userID {
		return f.UserID2
	}
	return f.UserID1
}

func (f Friendship) Involves(userID int64) bool {
	return f.UserID1 == userID || f.UserID2 == userID
}

type FriendRequest struct {
	Friendship
	Requester *User `json:"requester"`
}
