package auth

import (
	"context"
	"fmt"

	"github.com/fathima-sithara/realtime-service/internal/domain"
	"github.com/fathima-sithara/realtime-service/internal/repository"
)

type TokenValidator interface {
	Validate(token string) (string, error)
}

// Resolver turns a bearer token into the id of an existing user.
type Resolver struct {
	tokens TokenValidator
	users  repository.UserDirectory
}

func NewResolver(tokens TokenValidator, users repository.UserDirectory) *Resolver {
	return &Resolver{tokens: tokens, users: users}
}

func (r *Resolver) Resolve(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("%w: authentication required", domain.ErrUnauthorized)
	}
	uid, err := r.tokens.Validate(token)
	if err != nil {
		return "", fmt.Errorf("%w: invalid token: %v", domain.ErrUnauthorized, err)
	}
	ok, err := r.users.Exists(ctx, uid)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: user not found", domain.ErrUnauthorized)
	}
	return uid, nil
}
