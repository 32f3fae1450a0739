// ABOUTME: Identity resolver bridging the hub to the platform's user records
// ABOUTME: Maps emails or stable IDs to users, reporting absence as a result, not an error

package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mentorconnect/chatd/internal/store"
)

// UserStore defines what the resolver needs from storage
type UserStore interface {
	GetUser(ctx context.Context, id string) (*store.User, error)
	GetUserByEmail(ctx context.Context, email string) (*store.User, error)
}

// Resolver looks up users in the identity mirror. It implements the hub's
// UserResolver contract: a missing user is (nil, false, nil), never an error.
type Resolver struct {
	store  UserStore
	logger *slog.Logger
}

// New creates a resolver over the given user store. Pass nil logger for default.
func New(userStore UserStore, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		store:  userStore,
		logger: logger.With("component", "identity"),
	}
}

// ResolveUser resolves an identifier to a user. Identifiers containing "@"
// are treated as emails, everything else as stable IDs.
func (r *Resolver) ResolveUser(ctx context.Context, identifier string) (*store.User, bool, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, false, nil
	}

	var user *store.User
	var err error
	if strings.Contains(identifier, "@") {
		user, err = r.store.GetUserByEmail(ctx, identifier)
	} else {
		user, err = r.store.GetUser(ctx, identifier)
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			r.logger.Debug("user not found", "identifier", identifier)
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("looking up user %q: %w", identifier, err)
	}
	return user, true, nil
}
