package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/npezzotti/go-gigchat/internal/database"
	"github.com/npezzotti/go-gigchat/internal/identity"
	"github.com/npezzotti/go-gigchat/internal/testutil"
	"github.com/npezzotti/go-gigchat/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) (*Registry, *database.MemoryChatRepository) {
	repo := database.NewMemoryChatRepository()
	repo.PutUser(database.User{Id: "alice", DisplayName: "Alice"})
	repo.PutUser(database.User{Id: "bob", DisplayName: "Bob"})
	repo.PutUser(database.User{Id: "carol", DisplayName: "Carol"})

	return NewRegistry(testutil.TestLogger(t), repo, identity.NewRepositoryDirectory(repo), 0), repo
}

func Test_pairKey(t *testing.T) {
	assert.Equal(t, pairKey("a", "b"), pairKey("b", "a"))
	assert.NotEqual(t, pairKey("a:b", "c"), pairKey("a", "b:c"), "expected ids containing the separator to stay distinct")
}

func TestRegistry_GetOrCreateOneToOne(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)

	pairs := [][2]string{{"alice", "bob"}, {"bob", "carol"}, {"alice", "carol"}}
	for _, p := range pairs {
		t.Run(fmt.Sprintf("%s-%s", p[0], p[1]), func(t *testing.T) {
			ab, err := r.GetOrCreateOneToOne(ctx, p[0], p[1])
			require.NoError(t, err)
			ba, err := r.GetOrCreateOneToOne(ctx, p[1], p[0])
			require.NoError(t, err)

			assert.Equal(t, ab.Id, ba.Id)
			assert.Equal(t, types.RoomKindOneToOne, ab.Kind)
			assert.ElementsMatch(t, []string{p[0], p[1]}, ab.ParticipantIds)
			assert.Empty(t, ab.OrderId)
		})
	}
}

func TestRegistry_GetOrCreateOneToOneInvalid(t *testing.T) {
	r, _ := newTestRegistry(t)

	var tcases = []struct {
		name  string
		userA string
		userB string
	}{
		{"missing first", "", "bob"},
		{"missing second", "alice", ""},
		{"same user", "alice", "alice"},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.GetOrCreateOneToOne(context.Background(), tc.userA, tc.userB)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestRegistry_GetOrCreateOneToOneConcurrent(t *testing.T) {
	r, repo := newTestRegistry(t)

	var wg sync.WaitGroup
	ids := make([]string, 20)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := "alice", "bob"
			if i%2 == 0 {
				a, b = b, a
			}
			room, err := r.GetOrCreateOneToOne(context.Background(), a, b)
			assert.NoError(t, err)
			ids[i] = room.Id
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	rooms, err := repo.ListRoomsForUser(context.Background(), "alice")
	require.NoError(t, err)
	assert.Len(t, rooms, 1)
}

func TestRegistry_GetOrCreateOneToOneConflictRetry(t *testing.T) {
	repo := &database.MockChatRepository{}
	defer repo.AssertExpectations(t)
	r := NewRegistry(testutil.TestLogger(t), repo, nil, 0)
	r.generateId = func() (string, error) { return "r1", nil }

	key := pairKey("alice", "bob")
	existing := database.Room{Id: "r0", Kind: database.RoomKindOneToOne, PairKey: key, ParticipantIds: []string{"alice", "bob"}}
	repo.On("GetRoomByPairKey", mock.Anything, key).Return(database.Room{}, database.ErrNotFound).Once()
	repo.On("CreateRoom", mock.Anything, mock.MatchedBy(func(p database.CreateRoomParams) bool {
		return p.Id == "r1" && p.PairKey == key
	})).Return(database.Room{}, fmt.Errorf("%w: constraint", database.ErrConflict)).Once()
	repo.On("GetRoomByPairKey", mock.Anything, key).Return(existing, nil).Once()

	room, err := r.GetOrCreateOneToOne(context.Background(), "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, "r0", room.Id)
}

func TestRegistry_GetOrCreateOneToOneStoreError(t *testing.T) {
	repo := &database.MockChatRepository{}
	defer repo.AssertExpectations(t)
	r := NewRegistry(testutil.TestLogger(t), repo, nil, 0)

	repo.On("GetRoomByPairKey", mock.Anything, mock.Anything).Return(database.Room{}, errors.New("connection refused")).Once()

	_, err := r.GetOrCreateOneToOne(context.Background(), "alice", "bob")
	assert.ErrorIs(t, err, ErrPersistence)
	var chatErr *Error
	require.ErrorAs(t, err, &chatErr)
	assert.True(t, chatErr.Retryable())
}

func TestRegistry_GetOrCreateByOrder(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)

	r1, err := r.GetOrCreateByOrder(ctx, "ORD-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, types.RoomKindOrderScoped, r1.Kind)
	assert.Equal(t, "ORD-1", r1.OrderId)
	assert.Equal(t, []string{"alice"}, r1.ParticipantIds)

	again, err := r.GetOrCreateByOrder(ctx, "ORD-1", "bob")
	require.NoError(t, err)
	assert.Equal(t, r1.Id, again.Id)
	assert.Equal(t, []string{"alice", "bob"}, again.ParticipantIds)

	for range 3 {
		again, err = r.GetOrCreateByOrder(ctx, "ORD-1", "bob")
		require.NoError(t, err)
		assert.Equal(t, r1.Id, again.Id)
	}
	assert.Equal(t, []string{"alice", "bob"}, again.ParticipantIds, "expected join to be idempotent")

	_, err = r.GetOrCreateByOrder(ctx, "  ", "bob")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = r.GetOrCreateByOrder(ctx, "ORD-1", "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRegistry_GetOrCreateByOrderMembership(t *testing.T) {
	ctx := context.Background()
	r, repo := newTestRegistry(t)
	repo.PutOrder("ORD-1", "alice", "bob")
	r.WithOrderMembership(repo)

	_, err := r.GetOrCreateByOrder(ctx, "ORD-1", "carol")
	assert.ErrorIs(t, err, ErrAuthorization)

	room, err := r.GetOrCreateByOrder(ctx, "ORD-1", "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, room.ParticipantIds)
}

func TestRegistry_Authorize(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)
	room, err := r.GetOrCreateOneToOne(ctx, "alice", "bob")
	require.NoError(t, err)

	var tcases = []struct {
		name   string
		roomId string
		userId string
		err    error
	}{
		{"participant", room.Id, "alice", nil},
		{"non participant", room.Id, "carol", ErrAuthorization},
		{"unknown room", "missing", "alice", ErrNotFound},
		{"missing room id", "", "alice", ErrValidation},
		{"missing user id", room.Id, "", ErrValidation},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.Authorize(ctx, tc.roomId, tc.userId)
			if tc.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.err)
		})
	}

	ok, err := r.IsParticipant(ctx, room.Id, "bob")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = r.IsParticipant(ctx, room.Id, "carol")
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = r.IsParticipant(ctx, "missing", "bob")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_Archive(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)
	room, err := r.GetOrCreateByOrder(ctx, "ORD-1", "alice")
	require.NoError(t, err)
	_, err = r.GetOrCreateByOrder(ctx, "ORD-1", "bob")
	require.NoError(t, err)

	archived, err := r.Archive(ctx, room.Id, "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, archived.ArchivedBy)

	archived, err = r.ArchiveByOrder(ctx, "ORD-1", "alice")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, archived.ArchivedBy)

	_, err = r.Archive(ctx, room.Id, "carol")
	assert.ErrorIs(t, err, ErrAuthorization)
	_, err = r.ArchiveByOrder(ctx, "ORD-404", "alice")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.ArchiveByOrder(ctx, "", "alice")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRegistry_ListRooms(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)
	_, err := r.GetOrCreateOneToOne(ctx, "alice", "bob")
	require.NoError(t, err)
	_, err = r.GetOrCreateByOrder(ctx, "ORD-1", "alice")
	require.NoError(t, err)
	_, err = r.GetOrCreateOneToOne(ctx, "bob", "carol")
	require.NoError(t, err)

	rooms, err := r.ListRooms(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	for _, room := range rooms {
		require.Len(t, room.Participants, len(room.ParticipantIds))
		for i, p := range room.Participants {
			assert.Equal(t, room.ParticipantIds[i], p.Id)
			assert.NotEmpty(t, p.DisplayName)
		}
	}

	rooms, err = r.ListRooms(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, rooms)

	_, err = r.ListRooms(ctx, "")
	assert.ErrorIs(t, err, ErrValidation)
}
