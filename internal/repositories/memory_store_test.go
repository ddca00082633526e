package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-service/internal/models"
)

func seedUsers(t *testing.T, s *MemoryStore, names ...string) []int64 {
	t.Helper()
	ids := make([]int64, 0, len(names))
	_, err := s.Update(context.Background(), func(tx Tx) error {
		for _, name := range names {
			id, err := tx.Users().Create(context.Background(), &models.User{Name: name, Credential: "x"})
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	require.NoError(t, err)
	return ids
}

func TestMemoryStore_UpdateReportsWrites(t *testing.T) {
	s := NewMemoryStore()
	var id int64
	changes, err := s.Update(context.Background(), func(tx Tx) error {
		var err error
		id, err = tx.Users().Create(context.Background(), &models.User{Name: "alice"})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	assert.Equal(t, []string{UserKey(1), KeyUserNames}, changes.Writes)
	assert.Empty(t, changes.Reads)
}

func TestMemoryStore_FailedUpdateIsDiscarded(t *testing.T) {
	s := NewMemoryStore()
	seedUsers(t, s, "alice")
	boom := errors.New("boom")

	changes, err := s.Update(context.Background(), func(tx Tx) error {
		if _, err := tx.Users().GetByName(context.Background(), "alice"); err != nil {
			return err
		}
		if _, err := tx.Users().Create(context.Background(), &models.User{Name: "bob"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Empty(t, changes.Writes)
	assert.Equal(t, []string{UserKey(1), KeyUserNames}, changes.Reads)

	_, err = s.View(context.Background(), func(tx Tx) error {
		_, err := tx.Users().GetByName(context.Background(), "bob")
		return err
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ViewIsReadOnly(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.View(context.Background(), func(tx Tx) error {
		_, err := tx.Users().Create(context.Background(), &models.User{Name: "alice"})
		return err
	})
	assert.ErrorIs(t, err, ErrReadOnly)
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, err := s.Update(ctx, func(Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestMemoryStore_DuplicateName(t *testing.T) {
	s := NewMemoryStore()
	seedUsers(t, s, "alice")
	_, err := s.Update(context.Background(), func(tx Tx) error {
		_, err := tx.Users().Create(context.Background(), &models.User{Name: "alice"})
		return err
	})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestMemoryStore_ReturnedUsersAreCopies(t *testing.T) {
	s := NewMemoryStore()
	ids := seedUsers(t, s, "alice")

	var first *models.User
	_, err := s.View(context.Background(), func(tx Tx) error {
		var err error
		first, err = tx.Users().GetByID(context.Background(), ids[0])
		return err
	})
	require.NoError(t, err)
	first.BlockedUsers.Add(42)
	first.Name = "mallory"

	_, err = s.View(context.Background(), func(tx Tx) error {
		again, err := tx.Users().GetByID(context.Background(), ids[0])
		require.NoError(t, err)
		assert.Equal(t, "alice", again.Name)
		assert.False(t, again.BlockedUsers.Has(42))
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryStore_ListByNameRange(t *testing.T) {
	s := NewMemoryStore()
	seedUsers(t, s, "bob", "alice", "alfred", "Alan", "al")

	_, err := s.View(context.Background(), func(tx Tx) error {
		users, err := tx.Users().ListByNameRange(context.Background(), "al", "al\uffff")
		require.NoError(t, err)
		names := make([]string, len(users))
		for i, u := range users {
			names[i] = u.Name
		}
		assert.Equal(t, []string{"al", "alfred", "alice"}, names)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryStore_BlockedSet(t *testing.T) {
	s := NewMemoryStore()
	ids := seedUsers(t, s, "alice", "bob")

	changes, err := s.Update(context.Background(), func(tx Tx) error {
		return tx.Users().AddBlocked(context.Background(), ids[0], ids[1])
	})
	require.NoError(t, err)
	assert.Equal(t, []string{UserKey(ids[0])}, changes.Writes)

	_, err = s.View(context.Background(), func(tx Tx) error {
		u, err := tx.Users().GetByID(context.Background(), ids[0])
		require.NoError(t, err)
		assert.True(t, u.BlockedUsers.Has(ids[1]))
		return nil
	})
	require.NoError(t, err)

	_, err = s.Update(context.Background(), func(tx Tx) error {
		return tx.Users().RemoveBlocked(context.Background(), ids[0], ids[1])
	})
	require.NoError(t, err)

	_, err = s.Update(context.Background(), func(tx Tx) error {
		return tx.Users().AddBlocked(context.Background(), 99, ids[1])
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_FriendshipPairsAreOrdered(t *testing.T) {
	s := NewMemoryStore()
	ids := seedUsers(t, s, "alice", "bob")
	create := func(from, to int64) error {
		_, err := s.Update(context.Background(), func(tx Tx) error {
			_, err := tx.Friends().Create(context.Background(), from, to)
			return err
		})
		return err
	}

	require.NoError(t, create(ids[0], ids[1]))
	assert.ErrorIs(t, create(ids[0], ids[1]), ErrDuplicate)
	require.NoError(t, create(ids[1], ids[0]))

	_, err := s.View(context.Background(), func(tx Tx) error {
		f, err := tx.Friends().GetByPair(context.Background(), ids[1], ids[0])
		require.NoError(t, err)
		assert.Equal(t, int64(2), f.ID)
		assert.Equal(t, models.FriendshipPending, f.Status)
		assert.Equal(t, ids[1], f.ActionUserID)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryStore_FriendshipLists(t *testing.T) {
	s := NewMemoryStore()
	ids := seedUsers(t, s, "alice", "bob", "carol", "dave")
	alice, bob, carol, dave := ids[0], ids[1], ids[2], ids[3]

	_, err := s.Update(context.Background(), func(tx Tx) error {
		for _, from := range []int64{carol, bob, dave} {
			if _, err := tx.Friends().Create(context.Background(), from, alice); err != nil {
				return err
			}
		}
		return tx.Friends().SetStatus(context.Background(), 2, models.FriendshipAccepted)
	})
	require.NoError(t, err)

	changes, err := s.View(context.Background(), func(tx Tx) error {
		pending, err := tx.Friends().ListIncoming(context.Background(), alice, models.FriendshipPending)
		require.NoError(t, err)
		require.Len(t, pending, 2)
		assert.Equal(t, carol, pending[0].UserID1)
		assert.Equal(t, dave, pending[1].UserID1)

		accepted, err := tx.Friends().ListByUser(context.Background(), bob, models.FriendshipAccepted)
		require.NoError(t, err)
		require.Len(t, accepted, 1)
		assert.Equal(t, alice, accepted[0].Other(bob))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		FriendshipsFromKey(bob),
		FriendshipsToKey(alice),
		FriendshipsToKey(bob),
	}, changes.Reads)

	var removed int64
	_, err = s.Update(context.Background(), func(tx Tx) error {
		var err error
		removed, err = tx.Friends().DeleteByUser(context.Background(), alice)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)
}

func TestMemoryStore_MessagesChronological(t *testing.T) {
	s := NewMemoryStore()
	ids := seedUsers(t, s, "alice", "bob", "carol")
	alice, bob, carol := ids[0], ids[1], ids[2]
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	_, err := s.Update(context.Background(), func(tx Tx) error {
		msgs := []models.Message{
			{Content: "late", SenderID: bob, ReceiverID: alice, CreatedAt: base.Add(2 * time.Second)},
			{Content: "early", SenderID: alice, ReceiverID: bob, CreatedAt: base},
			{Content: "tie", SenderID: alice, ReceiverID: bob, CreatedAt: base.Add(2 * time.Second)},
			{Content: "other", SenderID: alice, ReceiverID: carol, CreatedAt: base},
		}
		for i := range msgs {
			if _, err := tx.Messages().Create(context.Background(), &msgs[i]); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	changes, err := s.View(context.Background(), func(tx Tx) error {
		msgs, err := tx.Messages().ListBetween(context.Background(), bob, alice)
		require.NoError(t, err)
		contents := make([]string, len(msgs))
		for i, m := range msgs {
			contents[i] = m.Content
		}
		assert.Equal(t, []string{"early", "late", "tie"}, contents)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{MessagesKey(alice, bob)}, changes.Reads)

	var removed int64
	changes, err = s.Update(context.Background(), func(tx Tx) error {
		var err error
		removed, err = tx.Messages().DeleteByUser(context.Background(), carol)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
	assert.Equal(t, []string{MessagesKey(alice, carol)}, changes.Writes)
}

func TestMemoryStore_DeleteUserFreesName(t *testing.T) {
	s := NewMemoryStore()
	ids := seedUsers(t, s, "alice")

	_, err := s.Update(context.Background(), func(tx Tx) error {
		return tx.Users().Delete(context.Background(), ids[0])
	})
	require.NoError(t, err)

	again := seedUsers(t, s, "alice")
	assert.NotEqual(t, ids[0], again[0])

	_, err = s.Update(context.Background(), func(tx Tx) error {
		return tx.Users().Delete(context.Background(), ids[0])
	})
	assert.ErrorIs(t, err, ErrNotFound)
}
