// Copyright © 2018 One Concern

// Package auth authenticates users of the channel, with a password or a token
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/oneconcern/condarepo/pkg/auth/status"
	"golang.org/x/crypto/bcrypt"
)

// AnonymousName is the name of the user when authentication is disabled
const AnonymousName = "anonymous"

// User authenticated by the channel
type User struct {
	Name string
}

// Anonymous user
var Anonymous = User{Name: AnonymousName}

// Users knows how to authenticate a user with a password
type Users interface {
	Authenticate(name, password string) (User, error)
}

type passwords map[string][]byte

// NewUsers authenticates against bcrypt password hashes, indexed by user name
func NewUsers(hashes map[string]string) (Users, error) {
	p := make(passwords, len(hashes))
	for name, hash := range hashes {
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, status.ErrInvalidHash.WrapMessage(name)
		}
		p[name] = []byte(hash)
	}
	return p, nil
}

func (p passwords) Authenticate(name, password string) (User, error) {
	hash, ok := p[name]
	if !ok {
		// spend the same time as a mismatch
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return User{}, status.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return User{}, status.ErrInvalidCredentials
	}
	return User{Name: name}, nil
}

var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("condarepo"), bcrypt.MinCost)

type anonymous struct{}

// AnonymousUsers accepts any credentials as the anonymous user
func AnonymousUsers() Users {
	return anonymous{}
}

func (anonymous) Authenticate(string, string) (User, error) {
	return Anonymous, nil
}

// Hash a password with bcrypt
func Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Token extracts a token from the Authorization header. Both the "token" scheme
// used by conda clients and "Bearer" are accepted.
func Token(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok {
		return "", false
	}
	switch strings.ToLower(scheme) {
	case "token", "bearer":
		token = strings.TrimSpace(token)
		return token, token != ""
	default:
		return "", false
	}
}

type userKey struct{}

// WithUser stores the authenticated user in a context
func WithUser(ctx context.Context, user User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// FromContext retrieves the authenticated user
func FromContext(ctx context.Context) (User, bool) {
	user, ok := ctx.Value(userKey{}).(User)
	return user, ok
}
