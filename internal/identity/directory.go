// Package identity resolves user ids to display information. The accounts
// themselves are owned by the marketplace; this package only reads them.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/npezzotti/go-gigchat/internal/database"
	"github.com/npezzotti/go-gigchat/internal/types"
)

var ErrUnknownUser = errors.New("unknown user")

type Directory interface {
	Lookup(ctx context.Context, userId string) (types.User, error)
}

type userGetter interface {
	GetUser(ctx context.Context, userId string) (database.User, error)
}

// RepositoryDirectory reads users from the accounts table.
type RepositoryDirectory struct {
	db userGetter
}

func NewRepositoryDirectory(db userGetter) *RepositoryDirectory {
	return &RepositoryDirectory{db: db}
}

func (d *RepositoryDirectory) Lookup(ctx context.Context, userId string) (types.User, error) {
	u, err := d.db.GetUser(ctx, userId)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return types.User{}, fmt.Errorf("%w: %s", ErrUnknownUser, userId)
		}
		return types.User{}, fmt.Errorf("get user: %w", err)
	}

	return types.User{
		Id:          u.Id,
		DisplayName: u.DisplayName,
		AvatarUrl:   u.AvatarUrl,
	}, nil
}

// LookupMany resolves each id once. Unknown users are returned with only
// their id set so a caller can still render them.
func LookupMany(ctx context.Context, dir Directory, userIds []string) (map[string]types.User, error) {
	users := make(map[string]types.User, len(userIds))
	for _, id := range userIds {
		if _, ok := users[id]; ok {
			continue
		}

		u, err := dir.Lookup(ctx, id)
		if err != nil {
			if errors.Is(err, ErrUnknownUser) {
				users[id] = types.User{Id: id}
				continue
			}
			return nil, err
		}
		users[id] = u
	}

	return users, nil
}
