package chat

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/npezzotti/go-gigchat/internal/database"
	"github.com/npezzotti/go-gigchat/internal/identity"
	"github.com/npezzotti/go-gigchat/internal/types"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/teris-io/shortid"
)

const DefaultStoreTimeout = 10 * time.Second

// OrderMembership answers whether a user belongs to an order. It is backed
// by the marketplace's order records.
type OrderMembership interface {
	IsOrderMember(ctx context.Context, orderId, userId string) (bool, error)
}

// Registry owns chat rooms. Rooms are created lazily, never deleted, and
// deduplicated by participant pair or by order id.
type Registry struct {
	db         database.ChatRepository
	dir        identity.Directory
	orders     OrderMembership
	timeout    time.Duration
	log        zerolog.Logger
	generateId func() (string, error)
	now        func() time.Time
}

func NewRegistry(logger zerolog.Logger, db database.ChatRepository, dir identity.Directory, timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}

	return &Registry{
		db:         db,
		dir:        dir,
		timeout:    timeout,
		log:        logger,
		generateId: shortid.Generate,
		now:        types.Now,
	}
}

// WithOrderMembership makes GetOrCreateByOrder reject users the order
// collaborator does not know as buyer or seller.
func (r *Registry) WithOrderMembership(m OrderMembership) *Registry {
	r.orders = m
	return r
}

// pairKey is the order-independent identity of a one-to-one room. The
// length prefix keeps ids containing the separator unambiguous.
func pairKey(userA, userB string) string {
	ids := []string{userA, userB}
	slices.Sort(ids)
	return fmt.Sprintf("%d:%s:%s", len(ids[0]), ids[0], ids[1])
}

func toRoom(r database.Room) types.Room {
	room := types.Room{
		Id:             r.Id,
		Kind:           types.RoomKind(r.Kind),
		ParticipantIds: r.ParticipantIds,
		OrderId:        r.OrderId,
		ArchivedBy:     r.ArchivedBy,
		CreatedAt:      r.CreatedAt,
	}
	if room.ParticipantIds == nil {
		room.ParticipantIds = []string{}
	}
	if room.ArchivedBy == nil {
		room.ArchivedBy = []string{}
	}

	return room
}

func (r *Registry) createRoom(ctx context.Context, params database.CreateRoomParams) (database.Room, error) {
	id, err := r.generateId()
	if err != nil {
		return database.Room{}, fmt.Errorf("generate room id: %w", err)
	}

	params.Id = id
	params.CreatedAt = r.now()

	return r.db.CreateRoom(ctx, params)
}

// GetOrCreateOneToOne returns the direct room for the unordered pair
// {userA, userB}, creating it on first use.
func (r *Registry) GetOrCreateOneToOne(ctx context.Context, userA, userB string) (types.Room, error) {
	if userA == "" || userB == "" {
		return types.Room{}, validationError("both participants are required")
	}
	if userA == userB {
		return types.Room{}, validationError("participants must be different users")
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	key := pairKey(userA, userB)
	room, err := r.db.GetRoomByPairKey(ctx, key)
	if err == nil {
		return toRoom(room), nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return types.Room{}, persistenceError("get direct room", err)
	}

	ids := []string{userA, userB}
	slices.Sort(ids)
	room, err = r.createRoom(ctx, database.CreateRoomParams{
		Kind:           database.RoomKindOneToOne,
		PairKey:        key,
		ParticipantIds: ids,
	})
	if errors.Is(err, database.ErrConflict) {
		// another process created the pair first
		room, err = r.db.GetRoomByPairKey(ctx, key)
	}
	if err != nil {
		return types.Room{}, persistenceError("create direct room", err)
	}

	r.log.Info().Str("room_id", room.Id).Strs("participants", ids).Msg("created direct room")
	return toRoom(room), nil
}

// GetOrCreateByOrder returns the room for orderId, creating it with
// userId as its first participant or adding userId if it is new to the room.
func (r *Registry) GetOrCreateByOrder(ctx context.Context, orderId, userId string) (types.Room, error) {
	if strings.TrimSpace(orderId) == "" {
		return types.Room{}, validationError("order id is required")
	}
	if userId == "" {
		return types.Room{}, validationError("user id is required")
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if r.orders != nil {
		ok, err := r.orders.IsOrderMember(ctx, orderId, userId)
		if err != nil {
			return types.Room{}, persistenceError("check order membership", err)
		}
		if !ok {
			r.log.Warn().Str("order_id", orderId).Str("user_id", userId).Msg("rejected order room join by non-member")
			return types.Room{}, authorizationError("user is not a party to this order")
		}
	}

	room, err := r.db.GetRoomByOrderId(ctx, orderId)
	if errors.Is(err, database.ErrNotFound) {
		room, err = r.createRoom(ctx, database.CreateRoomParams{
			Kind:           database.RoomKindOrderScoped,
			OrderId:        orderId,
			ParticipantIds: []string{userId},
		})
		if err == nil {
			r.log.Info().Str("room_id", room.Id).Str("order_id", orderId).Str("user_id", userId).Msg("created order room")
			return toRoom(room), nil
		}
		if errors.Is(err, database.ErrConflict) {
			room, err = r.db.GetRoomByOrderId(ctx, orderId)
		}
	}
	if err != nil {
		return types.Room{}, persistenceError("get order room", err)
	}

	if lo.Contains(room.ParticipantIds, userId) {
		return toRoom(room), nil
	}

	room, err = r.db.AddParticipant(ctx, room.Id, userId)
	if err != nil {
		return types.Room{}, persistenceError("add participant", err)
	}

	r.log.Info().Str("room_id", room.Id).Str("order_id", orderId).Str("user_id", userId).Msg("added participant to order room")
	return toRoom(room), nil
}

// Room loads a room by id.
func (r *Registry) Room(ctx context.Context, roomId string) (types.Room, error) {
	if roomId == "" {
		return types.Room{}, validationError("room id is required")
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	room, err := r.db.GetRoomById(ctx, roomId)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return types.Room{}, notFoundError("room not found")
		}
		return types.Room{}, persistenceError("get room", err)
	}

	return toRoom(room), nil
}

// Authorize loads the room and fails with an authorization error unless
// userId is one of its participants.
func (r *Registry) Authorize(ctx context.Context, roomId, userId string) (types.Room, error) {
	if userId == "" {
		return types.Room{}, validationError("user id is required")
	}

	room, err := r.Room(ctx, roomId)
	if err != nil {
		return types.Room{}, err
	}

	if !lo.Contains(room.ParticipantIds, userId) {
		r.log.Warn().Str("room_id", roomId).Str("user_id", userId).Msg("rejected non-participant")
		return types.Room{}, authorizationError("not a participant of this room")
	}

	return room, nil
}

func (r *Registry) IsParticipant(ctx context.Context, roomId, userId string) (bool, error) {
	_, err := r.Authorize(ctx, roomId, userId)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrAuthorization):
		return false, nil
	default:
		return false, err
	}
}

// Archive hides the room's history from userId only. Messages are kept
// and other participants are unaffected.
func (r *Registry) Archive(ctx context.Context, roomId, userId string) (types.Room, error) {
	if _, err := r.Authorize(ctx, roomId, userId); err != nil {
		return types.Room{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	room, err := r.db.ArchiveRoom(ctx, roomId, userId)
	if err != nil {
		return types.Room{}, persistenceError("archive room", err)
	}

	r.log.Info().Str("room_id", roomId).Str("user_id", userId).Msg("archived room")
	return toRoom(room), nil
}

// ArchiveByOrder archives the room that belongs to orderId.
func (r *Registry) ArchiveByOrder(ctx context.Context, orderId, userId string) (types.Room, error) {
	if strings.TrimSpace(orderId) == "" {
		return types.Room{}, validationError("order id is required")
	}

	lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
	room, err := r.db.GetRoomByOrderId(lookupCtx, orderId)
	cancel()
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return types.Room{}, notFoundError("no room for order")
		}
		return types.Room{}, persistenceError("get order room", err)
	}

	return r.Archive(ctx, room.Id, userId)
}

// ListRooms returns the rooms userId participates in, newest first, with
// participant display info attached when a directory is configured.
func (r *Registry) ListRooms(ctx context.Context, userId string) ([]types.Room, error) {
	if userId == "" {
		return nil, validationError("user id is required")
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	dbRooms, err := r.db.ListRoomsForUser(ctx, userId)
	if err != nil {
		return nil, persistenceError("list rooms", err)
	}

	rooms := lo.Map(dbRooms, func(item database.Room, _ int) types.Room {
		return toRoom(item)
	})
	if r.dir == nil {
		return rooms, nil
	}

	ids := lo.Uniq(lo.FlatMap(rooms, func(item types.Room, _ int) []string {
		return item.ParticipantIds
	}))
	users, err := identity.LookupMany(ctx, r.dir, ids)
	if err != nil {
		r.log.Warn().Err(err).Str("user_id", userId).Msg("participant lookup failed")
		return rooms, nil
	}

	for i := range rooms {
		rooms[i].Participants = lo.Map(rooms[i].ParticipantIds, func(id string, _ int) types.User {
			return users[id]
		})
	}

	return rooms, nil
}
