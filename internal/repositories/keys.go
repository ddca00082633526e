package repositories

import (
	"fmt"
	"strconv"

	"social-service/internal/models"
)

// KeyUserNames covers the users-by-name index: creation, deletion and name lookups.
const KeyUserNames = "users"

func UserKey(id int64) string {
	return "user:" + strconv.FormatInt(id, 10)
}

func FriendshipKey(id int64) string {
	return "friendship:" + strconv.FormatInt(id, 10)
}

func FriendshipsFromKey(userID int64) string {
	return "friendships:from:" + strconv.FormatInt(userID, 10)
}

func FriendshipsToKey(userID int64) string {
	return "friendships:to:" + strconv.FormatInt(userID, 10)
}

func FriendshipPairKey(userID1, userID2 int64) string {
	return fmt.Sprintf("friendships:pair:%d:%d", userID1, userID2)
}

// MessagesKey is the same for (a, b) and (b, a).
func MessagesKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("messages:%d:%d", a, b)
}

func friendshipKeys(f models.Friendship) []string {
	return []string{
		FriendshipKey(f.ID),
		FriendshipsFromKey(f.UserID1),
		FriendshipsToKey(f.UserID2),
		FriendshipPairKey(f.UserID1, f.UserID2),
	}
}
