package auth

import (
	"context"
	"fmt"

	"github.com/vovakirdan/teamchat-server/internal/store"
)

// UserSync records every resolved identity in the user store so that
// messages can be attributed to a known sender.
type UserSync struct {
	next  SessionResolver
	users store.UserStore
}

// NewUserSync wraps next.
func NewUserSync(next SessionResolver, users store.UserStore) *UserSync {
	return &UserSync{next: next, users: users}
}

// Resolve implements SessionResolver.
func (u *UserSync) Resolve(ctx context.Context, creds Credentials) (*Identity, error) {
	id, err := u.next.Resolve(ctx, creds)
	if err != nil {
		return nil, err
	}
	user := &store.User{
		ID:    id.ID,
		Name:  id.Name,
		Email: id.Email,
		Image: id.Image,
	}
	if err := u.users.EnsureUser(ctx, user); err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}
	return id, nil
}
