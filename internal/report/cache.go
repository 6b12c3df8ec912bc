package report

import (
	"context"

	"gramwatch/internal/domain"
)

// userCache memoizes user lookups for the lifetime of one report run.
// Failed lookups are remembered as nil so a missing user costs one
// query, not one per reference.
type userCache struct {
	users domain.UserStore
	seen  map[int64]*domain.User
}

func newUserCache(users domain.UserStore) *userCache {
	return &userCache{
		users: users,
		seen:  make(map[int64]*domain.User),
	}
}

func (c *userCache) get(ctx context.Context, id int64) *domain.User {
	if u, ok := c.seen[id]; ok {
		return u
	}
	u, err := c.users.Get(ctx, id)
	if err != nil {
		u = nil
	}
	c.seen[id] = u
	return u
}
