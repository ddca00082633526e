package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"social-service/internal/live"
	"social-service/internal/mocks"
	"social-service/internal/models"
	"social-service/internal/repositories"
	"social-service/internal/telemetry"
)

type fixture struct {
	store     *repositories.MemoryStore
	users     *UserService
	friends   *FriendService
	messages  *MessageService
	directory *DirectoryService
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithDeps(t, Deps{Store: repositories.NewMemoryStore(), Feed: live.NewLocalFeed()})
}

func newFixtureWithDeps(t *testing.T, deps Deps) *fixture {
	t.Helper()
	return &fixture{
		store:     deps.Store.(*repositories.MemoryStore),
		users:     NewUserService(deps, bcrypt.MinCost),
		friends:   NewFriendService(deps),
		messages:  NewMessageService(deps),
		directory: NewDirectoryService(deps),
	}
}

func (f *fixture) createUser(t *testing.T, name string) int64 {
	t.Helper()
	id, err := f.users.CreateUser(context.Background(), name, "pw1234")
	require.NoError(t, err)
	return id
}

func (f *fixture) befriend(t *testing.T, a, b int64) int64 {
	t.Helper()
	ctx := context.Background()
	id, err := f.friends.SendFriendRequest(ctx, a, b)
	require.NoError(t, err)
	require.NoError(t, f.friends.AcceptFriendRequest(ctx, id))
	return id
}

func userIDs(users []models.User) []int64 {
	ids := make([]int64, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return ids
}

func TestCreateUserDuplicateName(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "alice")

	_, err := f.users.CreateUser(context.Background(), "alice", "other")
	require.ErrorIs(t, err, ErrDuplicateName)

	_, err = f.users.CreateUser(context.Background(), "Alice", "other")
	require.NoError(t, err, "names are compared exactly")
}

func TestCreateUserSetsOnlineAndHidesCredential(t *testing.T) {
	f := newFixture(t)
	id := f.createUser(t, "alice")

	u, err := f.users.GetUser(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Name)
	assert.True(t, u.IsOnline)
	assert.NotEqual(t, "pw1234", u.Credential)
	assert.Empty(t, u.BlockedUsers)
}

func TestLoginReturnsAbsentOnAnyMismatch(t *testing.T) {
	f := newFixture(t)
	id := f.createUser(t, "alice")
	ctx := context.Background()

	u, err := f.users.Login(ctx, "alice", "pw1234")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, id, u.ID)

	u, err = f.users.Login(ctx, "alice", "wrong")
	require.NoError(t, err)
	assert.Nil(t, u)

	u, err = f.users.Login(ctx, "nobody", "pw1234")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestGetUserNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.users.GetUser(context.Background(), 42)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBlockUserIsIdempotent(t *testing.T) {
	f := newFixture(t)
	a := f.createUser(t, "alice")
	b := f.createUser(t, "bob")
	ctx := context.Background()

	require.NoError(t, f.users.BlockUser(ctx, a, b))
	require.NoError(t, f.users.BlockUser(ctx, a, b))

	u, err := f.users.GetUser(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, []int64{b}, u.BlockedUsers.Slice())

	require.NoError(t, f.users.UnblockUser(ctx, a, b))
	require.NoError(t, f.users.UnblockUser(ctx, a, b))
	u, err = f.users.GetUser(ctx, a)
	require.NoError(t, err)
	assert.Empty(t, u.BlockedUsers.Slice())
}

func TestBlockUserRequiresExistingUser(t *testing.T) {
	f := newFixture(t)
	b := f.createUser(t, "bob")
	require.ErrorIs(t, f.users.BlockUser(context.Background(), 99, b), ErrNotFound)
	require.ErrorIs(t, f.users.UnblockUser(context.Background(), 99, b), ErrNotFound)
}

func TestSendFriendRequestUniquenessIsOrderSensitive(t *testing.T) {
	f := newFixture(t)
	a := f.createUser(t, "alice")
	b := f.createUser(t, "bob")
	ctx := context.Background()

	_, err := f.friends.SendFriendRequest(ctx, a, b)
	require.NoError(t, err)

	_, err = f.friends.SendFriendRequest(ctx, a, b)
	require.ErrorIs(t, err, ErrDuplicateRequest)

	// The reverse order is a separate row.
	_, err = f.friends.SendFriendRequest(ctx, b, a)
	require.NoError(t, err)
}

func TestSendFriendRequestPreconditions(t *testing.T) {
	f := newFixture(t)
	a := f.createUser(t, "alice")
	ctx := context.Background()

	_, err := f.friends.SendFriendRequest(ctx, a, a)
	require.ErrorIs(t, err, ErrSelfRequest)

	_, err = f.friends.SendFriendRequest(ctx, a, 999)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestConcurrentFriendRequestsCreateOneRow(t *testing.T) {
	f := newFixture(t)
	a := f.createUser(t, "alice")
	b := f.createUser(t, "bob")

	const attempts = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		dupes     int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.friends.SendFriendRequest(context.Background(), a, b)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrDuplicateRequest):
				dupes++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, attempts-1, dupes)

	reqs, err := f.friends.GetFriendRequests(context.Background(), b)
	require.NoError(t, err)
	assert.Len(t, reqs, 1)
}

func TestAcceptAndRefuseRequireExistingRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.ErrorIs(t, f.friends.AcceptFriendRequest(ctx, 7), ErrNotFound)
	require.ErrorIs(t, f.friends.RefuseFriendRequest(ctx, 7), ErrNotFound)
}

func TestAcceptedFriendshipIsSymmetric(t *testing.T) {
	f := newFixture(t)
	a := f.createUser(t, "alice")
	b := f.createUser(t, "bob")
	c := f.createUser(t, "carol")
	ctx := context.Background()

	f.befriend(t, a, b)
	_, err := f.friends.SendFriendRequest(ctx, c, a)
	require.NoError(t, err)

	friendsA, err := f.friends.GetFriends(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, []int64{b}, userIDs(friendsA), "pending rows are not friends")

	friendsB, err := f.friends.GetFriends(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, []int64{a}, userIDs(friendsB))

	ok, err := f.friends.AreFriends(ctx, b, a)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.friends.AreFriends(ctx, a, c)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRefuseRemovesRowWhateverItsStatus(t *testing.T) {
	f := newFixture(t)
	a := f.createUser(t, "alice")
	b := f.createUser(t, "bob")
	ctx := context.Background()

	id := f.befriend(t, a, b)
	require.NoError(t, f.friends.RefuseFriendRequest(ctx, id))

	friends, err := f.friends.GetFriends(ctx, a)
	require.NoError(t, err)
	assert.Empty(t, friends)

	// Absent again, so a fresh request is allowed.
	_, err = f.friends.SendFriendRequest(ctx, a, b)
	require.NoError(t, err)
}

func TestGetFriendRequestsListsPendingInInsertionOrder(t *testing.T) {
	f := newFixture(t)
	bob := f.createUser(t, "bob")
	zed := f.createUser(t, "zed")
	amy := f.createUser(t, "amy")
	cat := f.createUser(t, "cat")
	ctx := context.Background()

	first, err := f.friends.SendFriendRequest(ctx, zed, bob)
	require.NoError(t, err)
	second, err := f.friends.SendFriendRequest(ctx, amy, bob)
	require.NoError(t, err)
	f.befriend(t, cat, bob)

	reqs, err := f.friends.GetFriendRequests(ctx, bob)
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	assert.Equal(t, first, reqs[0].ID)
	assert.Equal(t, second, reqs[1].ID)
	require.NotNil(t, reqs[0].Requester)
	assert.Equal(t, "zed", reqs[0].Requester.Name)
	assert.Equal(t, models.FriendshipPending, reqs[1].Status)
	assert.Equal(t, amy, reqs[1].ActionUserID)
}

func TestBlockingGatesBothDirections(t *testing.T) {
	f := newFixture(t)
	a := f.createUser(t, "alice")
	b := f.createUser(t, "bob")
	ctx := context.Background()

	_, err := f.messages.SendMessage(ctx, "before", a, b)
	require.NoError(t, err)

	require.NoError(t, f.users.BlockUser(ctx, a, b))

	_, err = f.messages.SendMessage(ctx, "hi", b, a)
	require.ErrorIs(t, err, ErrBlocked)
	_, err = f.messages.SendMessage(ctx, "hi", a, b)
	require.ErrorIs(t, err, ErrBlocked)

	ok, err := f.messages.CanMessage(ctx, b, a)
	require.NoError(t, err)
	assert.False(t, ok)

	// Blocking is not retroactive.
	msgs, err := f.messages.GetMessages(ctx, b, a)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "before", msgs[0].Content)

	require.NoError(t, f.users.UnblockUser(ctx, a, b))
	_, err = f.messages.SendMessage(ctx, "again", b, a)
	require.NoError(t, err)
}

func TestSendMessageRequiresBothUsers(t *testing.T) {
	f := newFixture(t)
	a := f.createUser(t, "alice")
	_, err := f.messages.SendMessage(context.Background(), "hi", a, 404)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = f.messages.SendMessage(context.Background(), "hi", 404, a)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMessagesAreChronologicalInBothOrders(t *testing.T) {
	f := newFixture(t)
	a := f.createUser(t, "alice")
	b := f.createUser(t, "bob")
	c := f.createUser(t, "carol")
	ctx := context.Background()

	// A frozen wall clock still yields strictly increasing timestamps.
	frozen := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	f.messages.clock = newMonotonicClock(func() time.Time { return frozen })

	_, err := f.messages.SendMessage(ctx, "t1", a, b)
	require.NoError(t, err)
	_, err = f.messages.SendMessage(ctx, "t2", b, a)
	require.NoError(t, err)
	_, err = f.messages.SendMessage(ctx, "other", a, c)
	require.NoError(t, err)
	_, err = f.messages.SendMessage(ctx, "t3", a, b)
	require.NoError(t, err)

	for _, pair := range [][2]int64{{a, b}, {b, a}} {
		msgs, err := f.messages.GetMessages(ctx, pair[0], pair[1])
		require.NoError(t, err)
		require.Len(t, msgs, 3)
		assert.Equal(t, "t1", msgs[0].Content)
		assert.Equal(t, "t2", msgs[1].Content)
		assert.Equal(t, "t3", msgs[2].Content)
		assert.True(t, msgs[0].CreatedAt.Before(msgs[1].CreatedAt))
		assert.True(t, msgs[1].CreatedAt.Before(msgs[2].CreatedAt))
	}

	msgs, err := f.messages.GetMessages(ctx, b, c)
	require.NoError(t, err)
	assert.NotNil(t, msgs)
	assert.Empty(t, msgs)
}

func TestSearchUsers(t *testing.T) {
	f := newFixture(t)
	alice := f.createUser(t, "alice")
	albert := f.createUser(t, "albert")
	alfred := f.createUser(t, "alfred")
	f.createUser(t, "bob")
	alma := f.createUser(t, "alma")
	ctx := context.Background()

	res, err := f.directory.SearchUsers(ctx, "", alice)
	require.NoError(t, err)
	assert.Empty(t, res)

	res, err = f.directory.SearchUsers(ctx, "al", alice)
	require.NoError(t, err)
	assert.Equal(t, []int64{albert, alfred, alma}, userIDs(res), "caller excluded, ordered by name")

	// Only the (caller, candidate) order hides a candidate.
	_, err = f.friends.SendFriendRequest(ctx, alice, albert)
	require.NoError(t, err)
	_, err = f.friends.SendFriendRequest(ctx, alma, alice)
	require.NoError(t, err)

	res, err = f.directory.SearchUsers(ctx, "al", alice)
	require.NoError(t, err)
	assert.Equal(t, []int64{alfred, alma}, userIDs(res))

	res, err = f.directory.SearchUsers(ctx, "alf", alice)
	require.NoError(t, err)
	assert.Equal(t, []int64{alfred}, userIDs(res))

	res, err = f.directory.SearchUsers(ctx, "zz", alice)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestDeleteAccountCascades(t *testing.T) {
	f := newFixture(t)
	a := f.createUser(t, "alice")
	b := f.createUser(t, "bob")
	c := f.createUser(t, "carol")
	ctx := context.Background()

	f.befriend(t, a, b)
	_, err := f.friends.SendFriendRequest(ctx, a, c)
	require.NoError(t, err)
	f.befriend(t, b, c)
	_, err = f.messages.SendMessage(ctx, "hi", a, b)
	require.NoError(t, err)
	_, err = f.messages.SendMessage(ctx, "yo", c, a)
	require.NoError(t, err)
	_, err = f.messages.SendMessage(ctx, "kept", b, c)
	require.NoError(t, err)

	require.NoError(t, f.users.DeleteAccount(ctx, a))

	_, err = f.users.GetUser(ctx, a)
	require.ErrorIs(t, err, ErrNotFound)

	friendsB, err := f.friends.GetFriends(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, []int64{c}, userIDs(friendsB))

	reqs, err := f.friends.GetFriendRequests(ctx, c)
	require.NoError(t, err)
	assert.Empty(t, reqs)

	msgs, err := f.messages.GetMessages(ctx, b, a)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	msgs, err = f.messages.GetMessages(ctx, c, a)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	msgs, err = f.messages.GetMessages(ctx, b, c)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	// The name is free again.
	_, err = f.users.CreateUser(ctx, "alice", "pw")
	require.NoError(t, err)

	require.ErrorIs(t, f.users.DeleteAccount(ctx, a), ErrNotFound)
}

func TestEndToEndScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice, err := f.users.CreateUser(ctx, "alice", "pw1234")
	require.NoError(t, err)
	bob, err := f.users.CreateUser(ctx, "bob", "pw1234")
	require.NoError(t, err)

	_, err = f.friends.SendFriendRequest(ctx, alice, bob)
	require.NoError(t, err)

	reqs, err := f.friends.GetFriendRequests(ctx, bob)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, models.FriendshipPending, reqs[0].Status)
	assert.Equal(t, alice, reqs[0].Requester.ID)

	require.NoError(t, f.friends.AcceptFriendRequest(ctx, reqs[0].ID))

	friendsA, err := f.friends.GetFriends(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []int64{bob}, userIDs(friendsA))
	friendsB, err := f.friends.GetFriends(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, []int64{alice}, userIDs(friendsB))

	_, err = f.messages.SendMessage(ctx, "hi", alice, bob)
	require.NoError(t, err)

	msgs, err := f.messages.GetMessages(ctx, alice, bob)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Content)
	assert.Equal(t, alice, msgs[0].SenderID)
	assert.Equal(t, bob, msgs[0].ReceiverID)
}

func TestEventsArePublishedAfterCommit(t *testing.T) {
	pub := new(mocks.MockPublisher)
	f := newFixtureWithDeps(t, Deps{Store: repositories.NewMemoryStore(), Events: pub})
	ctx := context.Background()

	pub.On("Publish", mock.Anything, telemetry.EventUserCreated, mock.AnythingOfType("telemetry.UserCreatedPayload")).Return(nil).Twice()
	pub.On("Publish", mock.Anything, telemetry.EventFriendRequestCreated, mock.AnythingOfType("telemetry.FriendshipPayload")).Return(nil).Once()
	pub.On("Publish", mock.Anything, telemetry.EventMessageSent, mock.AnythingOfType("telemetry.MessageSentPayload")).Return(assert.AnError).Once()

	a := f.createUser(t, "alice")
	b := f.createUser(t, "bob")
	_, err := f.friends.SendFriendRequest(ctx, a, b)
	require.NoError(t, err)

	// A failed operation publishes nothing.
	_, err = f.friends.SendFriendRequest(ctx, a, b)
	require.ErrorIs(t, err, ErrDuplicateRequest)

	// A publish failure does not fail the committed operation.
	_, err = f.messages.SendMessage(ctx, "hi", a, b)
	require.NoError(t, err)

	pub.AssertExpectations(t)
}

func TestFailedUpdateDoesNotNotifyFeed(t *testing.T) {
	feed := new(mocks.MockFeed)
	f := newFixtureWithDeps(t, Deps{Store: repositories.NewMemoryStore(), Feed: feed})
	ctx := context.Background()

	feed.On("Publish", mock.Anything, []string{repositories.UserKey(1), repositories.KeyUserNames}).Return(nil).Once()
	f.createUser(t, "alice")

	_, err := f.users.CreateUser(ctx, "alice", "pw")
	require.ErrorIs(t, err, ErrDuplicateName)

	feed.AssertExpectations(t)
}

func TestMonotonicClockIsStrictlyIncreasing(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := base
	c := newMonotonicClock(func() time.Time { return now })

	t1 := c.Next()
	t2 := c.Next()
	now = base.Add(-time.Hour)
	t3 := c.Next()

	assert.True(t, t2.After(t1))
	assert.True(t, t3.After(t2))
}

func TestCanMessage(t *testing.T) {
	a := &models.User{ID: 1, BlockedUsers: models.NewIDSet()}
	b := &models.User{ID: 2, BlockedUsers: models.NewIDSet(3)}
	assert.True(t, CanMessage(a, b))

	b.BlockedUsers.Add(1)
	assert.False(t, CanMessage(a, b))
	assert.False(t, CanMessage(b, a))

	// Nil sets are empty.
	assert.True(t, CanMessage(&models.User{ID: 5}, &models.User{ID: 6}))
}

func TestStoreFailureSurfacesWithoutSideEffects(t *testing.T) {
	store := new(mocks.MockStore)
	feed := new(mocks.MockFeed)
	pub := new(mocks.MockPublisher)
	deps := Deps{Store: store, Feed: feed, Events: pub}
	ctx := context.Background()

	storeErr := errors.New("could not serialize access")
	store.On("Update", mock.Anything, mock.Anything).
		Return(repositories.Changes{Reads: []string{repositories.UserKey(1)}}, storeErr)

	_, err := NewMessageService(deps).SendMessage(ctx, "hi", 1, 2)
	assert.ErrorIs(t, err, storeErr)
	assert.ErrorIs(t, NewUserService(deps, bcrypt.MinCost).BlockUser(ctx, 1, 2), storeErr)

	store.AssertNumberOfCalls(t, "Update", 2)
	feed.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}
