package repositories

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"

	"social-service/internal/models"
)

// MemoryStore keeps all rows in process. Writers are serialized and each
// Update works on a private copy of the state that replaces the live state
// only when fn succeeds.
type MemoryStore struct {
	mu    sync.RWMutex
	state *memState
}

type memState struct {
	users       map[int64]*models.User
	names       map[string]int64
	friendships map[int64]models.Friendship
	pairs       map[[2]int64]int64
	messages    []models.Message

	nextUserID       int64
	nextFriendshipID int64
	nextMessageID    int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: &memState{
		users:       map[int64]*models.User{},
		names:       map[string]int64{},
		friendships: map[int64]models.Friendship{},
		pairs:       map[[2]int64]int64{},
	}}
}

func (s *MemoryStore) Update(ctx context.Context, fn func(Tx) error) (Changes, error) {
	if err := ctx.Err(); err != nil {
		return Changes{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	t := newTracker()
	if err := fn(&memTx{state: work, t: t}); err != nil {
		return t.failed(), err
	}
	s.state = work
	return t.changes(), nil
}

func (s *MemoryStore) View(ctx context.Context, fn func(Tx) error) (Changes, error) {
	if err := ctx.Err(); err != nil {
		return Changes{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	t := newTracker()
	if err := fn(&memTx{state: s.state, t: t, readOnly: true}); err != nil {
		return t.failed(), err
	}
	return t.changes(), nil
}

func (st *memState) clone() *memState {
	out := &memState{
		users:            make(map[int64]*models.User, len(st.users)),
		names:            make(map[string]int64, len(st.names)),
		friendships:      make(map[int64]models.Friendship, len(st.friendships)),
		pairs:            make(map[[2]int64]int64, len(st.pairs)),
		messages:         slices.Clone(st.messages),
		nextUserID:       st.nextUserID,
		nextFriendshipID: st.nextFriendshipID,
		nextMessageID:    st.nextMessageID,
	}
	for id, u := range st.users {
		out.users[id] = u.Clone()
	}
	for name, id := range st.names {
		out.names[name] = id
	}
	for id, f := range st.friendships {
		out.friendships[id] = f
	}
	for pair, id := range st.pairs {
		out.pairs[pair] = id
	}
	return out
}

type memTx struct {
	state    *memState
	t        *tracker
	readOnly bool
}

func (m *memTx) Users() UserRepository       { return &memUserRepository{m} }
func (m *memTx) Friends() FriendRepository   { return &memFriendRepository{m} }
func (m *memTx) Messages() MessageRepository { return &memMessageRepository{m} }

type memUserRepository struct{ *memTx }

func (r *memUserRepository) Create(_ context.Context, user *models.User) (int64, error) {
	if r.readOnly {
		return 0, ErrReadOnly
	}
	if _, ok := r.state.names[user.Name]; ok {
		return 0, ErrDuplicate
	}
	r.state.nextUserID++
	id := r.state.nextUserID
	stored := user.Clone()
	stored.ID = id
	if stored.BlockedUsers == nil {
		stored.BlockedUsers = models.NewIDSet()
	}
	r.state.users[id] = stored
	r.state.names[stored.Name] = id
	r.t.write(KeyUserNames, UserKey(id))
	return id, nil
}

func (r *memUserRepository) GetByID(_ context.Context, id int64) (*models.User, error) {
	r.t.read(UserKey(id))
	u, ok := r.state.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return u.Clone(), nil
}

func (r *memUserRepository) GetByName(_ context.Context, name string) (*models.User, error) {
	r.t.read(KeyUserNames)
	id, ok := r.state.names[name]
	if !ok {
		return nil, ErrNotFound
	}
	r.t.read(UserKey(id))
	return r.state.users[id].Clone(), nil
}

func (r *memUserRepository) ListByNameRange(_ context.Context, from, to string) ([]models.User, error) {
	r.t.read(KeyUserNames)
	var out []models.User
	for name, id := range r.state.names {
		if name >= from && name < to {
			r.t.read(UserKey(id))
			out = append(out, *r.state.users[id].Clone())
		}
	}
	slices.SortFunc(out, func(a, b models.User) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

func (r *memUserRepository) AddBlocked(_ context.Context, userID, targetID int64) error {
	if r.readOnly {
		return ErrReadOnly
	}
	u, ok := r.state.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.BlockedUsers.Add(targetID)
	r.t.write(UserKey(userID))
	return nil
}

func (r *memUserRepository) RemoveBlocked(_ context.Context, userID, targetID int64) error {
	if r.readOnly {
		return ErrReadOnly
	}
	u, ok := r.state.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.BlockedUsers.Remove(targetID)
	r.t.write(UserKey(userID))
	return nil
}

func (r *memUserRepository) Delete(_ context.Context, id int64) error {
	if r.readOnly {
		return ErrReadOnly
	}
	u, ok := r.state.users[id]
	if !ok {
		return ErrNotFound
	}
	delete(r.state.names, u.Name)
	delete(r.state.users, id)
	r.t.write(KeyUserNames, UserKey(id))
	return nil
}

type memFriendRepository struct{ *memTx }

func (r *memFriendRepository) Create(_ context.Context, fromUserID, toUserID int64) (*models.Friendship, error) {
	if r.readOnly {
		return nil, ErrReadOnly
	}
	pair := [2]int64{fromUserID, toUserID}
	if _, ok := r.state.pairs[pair]; ok {
		return nil, ErrDuplicate
	}
	r.state.nextFriendshipID++
	f := models.Friendship{
		ID:           r.state.nextFriendshipID,
		UserID1:      fromUserID,
		UserID2:      toUserID,
		Status:       models.FriendshipPending,
		ActionUserID: fromUserID,
	}
	r.state.friendships[f.ID] = f
	r.state.pairs[pair] = f.ID
	r.t.write(friendshipKeys(f)...)
	return &f, nil
}

func (r *memFriendRepository) GetByID(_ context.Context, id int64) (*models.Friendship, error) {
	r.t.read(FriendshipKey(id))
	f, ok := r.state.friendships[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &f, nil
}

func (r *memFriendRepository) GetByPair(_ context.Context, userID1, userID2 int64) (*models.Friendship, error) {
	r.t.read(FriendshipPairKey(userID1, userID2))
	id, ok := r.state.pairs[[2]int64{userID1, userID2}]
	if !ok {
		return nil, ErrNotFound
	}
	f := r.state.friendships[id]
	return &f, nil
}

func (r *memFriendRepository) SetStatus(_ context.Context, id int64, status string) error {
	if r.readOnly {
		return ErrReadOnly
	}
	f, ok := r.state.friendships[id]
	if !ok {
		return ErrNotFound
	}
	f.Status = status
	r.state.friendships[id] = f
	r.t.write(friendshipKeys(f)...)
	return nil
}

func (r *memFriendRepository) Delete(_ context.Context, id int64) error {
	if r.readOnly {
		return ErrReadOnly
	}
	f, ok := r.state.friendships[id]
	if !ok {
		return ErrNotFound
	}
	r.remove(f)
	return nil
}

func (r *memFriendRepository) ListIncoming(_ context.Context, userID int64, status string) ([]models.Friendship, error) {
	r.t.read(FriendshipsToKey(userID))
	return r.collect(func(f models.Friendship) bool {
		return f.UserID2 == userID && f.Status == status
	}), nil
}

func (r *memFriendRepository) ListByUser(_ context.Context, userID int64, status string) ([]models.Friendship, error) {
	r.t.read(FriendshipsFromKey(userID), FriendshipsToKey(userID))
	return r.collect(func(f models.Friendship) bool {
		return f.Status == status && f.Involves(userID)
	}), nil
}

func (r *memFriendRepository) DeleteByUser(_ context.Context, userID int64) (int64, error) {
	if r.readOnly {
		return 0, ErrReadOnly
	}
	doomed := r.collect(func(f models.Friendship) bool { return f.Involves(userID) })
	for _, f := range doomed {
		r.remove(f)
	}
	return int64(len(doomed)), nil
}

func (r *memFriendRepository) remove(f models.Friendship) {
	delete(r.state.friendships, f.ID)
	delete(r.state.pairs, [2]int64{f.UserID1, f.UserID2})
	r.t.write(friendshipKeys(f)...)
}

// collect returns matching rows in insertion (id) order.
func (r *memFriendRepository) collect(match func(models.Friendship) bool) []models.Friendship {
	var out []models.Friendship
	for _, f := range r.state.friendships {
		if match(f) {
			out = append(out, f)
		}
	}
	slices.SortFunc(out, func(a, b models.Friendship) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

type memMessageRepository struct{ *memTx }

func (r *memMessageRepository) Create(_ context.Context, msg *models.Message) (int64, error) {
	if r.readOnly {
		return 0, ErrReadOnly
	}
	r.state.nextMessageID++
	stored := *msg
	stored.ID = r.state.nextMessageID
	r.state.messages = append(r.state.messages, stored)
	r.t.write(MessagesKey(msg.SenderID, msg.ReceiverID))
	return stored.ID, nil
}

func (r *memMessageRepository) ListBetween(_ context.Context, a, b int64) ([]models.Message, error) {
	r.t.read(MessagesKey(a, b))
	var out []models.Message
	for _, m := range r.state.messages {
		if m.Between(a, b) {
			out = append(out, m)
		}
	}
	slices.SortStableFunc(out, func(x, y models.Message) int {
		if c := x.CreatedAt.Compare(y.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(x.ID, y.ID)
	})
	return out, nil
}

func (r *memMessageRepository) DeleteByUser(_ context.Context, userID int64) (int64, error) {
	if r.readOnly {
		return 0, ErrReadOnly
	}
	kept := r.state.messages[:0]
	var removed int64
	for _, m := range r.state.messages {
		if m.SenderID == userID || m.ReceiverID == userID {
			removed++
			r.t.write(MessagesKey(m.SenderID, m.ReceiverID))
			continue
		}
		kept = append(kept, m)
	}
	r.state.messages = kept
	return removed, nil
}
