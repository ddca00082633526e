package services

import "social-service/internal/models"

// CanMessage is the blocking gate: neither user may have blocked the other.
// It is evaluated at send time only; existing messages are unaffected.
func CanMessage(a, b *models.User) bool {
	return !a.BlockedUsers.Has(b.ID) && !b.BlockedUsers.Has(a.ID)
}
