// Copyright © 2018 One Concern

package tokens

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/oneconcern/condarepo/internal/rand"
	"github.com/oneconcern/condarepo/pkg/metrics"
	storagestatus "github.com/oneconcern/condarepo/pkg/storage/status"
	"github.com/oneconcern/condarepo/pkg/tokens/status"
	"github.com/oneconcern/condarepo/pkg/transform"
	"go.uber.org/zap"
)

const (
	// DefaultKey of the token document in the store
	DefaultKey = ".tokens.json"

	// Length of generated tokens
	Length = 30
)

// Tokens manages the bearer tokens of users
type Tokens interface {
	// Get a valid token
	Get(ctx context.Context, token string) (Item, bool, error)

	// Find a valid token issued to a user
	Find(ctx context.Context, user string) (Item, bool, error)

	// Generate a new token for a user, valid for ttl
	Generate(ctx context.Context, user string, ttl time.Duration) (Item, error)

	// Revoke a token. It tells if the token was known.
	Revoke(ctx context.Context, token string) (bool, error)

	// Clean removes expired tokens
	Clean(ctx context.Context) error
}

// errUnchanged aborts an edit which would not change the document
var errUnchanged = errors.New("token document unchanged")

type storeTokens struct {
	t   *transform.Transformer
	key string
	now func() time.Time
	l   *zap.Logger
	m   *metrics.Metrics
}

// NewStore keeps tokens in a document of the store edited by the transformer
func NewStore(t *transform.Transformer, opts ...Option) Tokens {
	s := &storeTokens{
		t:   t,
		key: DefaultKey,
		now: time.Now,
		l:   zap.NewNop(),
	}
	for _, apply := range opts {
		apply(s)
	}
	return s
}

func (s *storeTokens) scan(ctx context.Context, visit func(Item) bool) error {
	r, err := s.t.Store().Get(ctx, s.key)
	if errors.Is(err, storagestatus.ErrNotExists) {
		return nil
	}
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()
	return Scan(r, visit)
}

func (s *storeTokens) Get(ctx context.Context, token string) (Item, bool, error) {
	var (
		found Item
		ok    bool
	)
	now := s.now()
	err := s.scan(ctx, func(item Item) bool {
		if item.Token != token {
			return true
		}
		if !item.Expired(now) {
			found, ok = item, true
		}
		return false
	})
	if err != nil {
		return Item{}, false, err
	}
	return found, ok, nil
}

// Find returns the most recently issued valid token of the user
func (s *storeTokens) Find(ctx context.Context, user string) (Item, bool, error) {
	var (
		found Item
		ok    bool
	)
	now := s.now()
	err := s.scan(ctx, func(item Item) bool {
		if item.Name == user && !item.Expired(now) {
			found, ok = item, true
		}
		return true
	})
	if err != nil {
		return Item{}, false, err
	}
	return found, ok, nil
}

func (s *storeTokens) Generate(ctx context.Context, user string, ttl time.Duration) (Item, error) {
	if user == "" {
		return Item{}, status.ErrInvalidUser
	}
	token, err := rand.AlphaNumeric(Length)
	if err != nil {
		return Item{}, err
	}
	item := Item{
		Token:  token,
		Name:   user,
		Expire: s.now().Add(ttl).Truncate(time.Millisecond),
	}
	err = s.t.Apply(ctx, s.key, func(existing io.Reader, out io.Writer) error {
		return Append(existing, out, item)
	})
	if err != nil {
		return Item{}, err
	}
	s.m.Token("generate", 1)
	s.l.Debug("token generated", zap.String("user", user), zap.Time("expire", item.Expire))
	return item, nil
}

func (s *storeTokens) Revoke(ctx context.Context, token string) (bool, error) {
	err := s.t.Apply(ctx, s.key, func(existing io.Reader, out io.Writer) error {
		var found bool
		if err := Filter(existing, out, func(item Item) bool {
			if item.Token == token {
				found = true
				return false
			}
			return true
		}); err != nil {
			return err
		}
		if !found {
			return errUnchanged
		}
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	s.m.Token("revoke", 1)
	return true, nil
}

func (s *storeTokens) Clean(ctx context.Context) error {
	var removed int
	now := s.now()
	err := s.t.Apply(ctx, s.key, func(existing io.Reader, out io.Writer) error {
		removed = 0
		if err := Filter(existing, out, func(item Item) bool {
			if item.Expired(now) {
				removed++
				return false
			}
			return true
		}); err != nil {
			return err
		}
		if removed == 0 {
			return errUnchanged
		}
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return nil
	}
	if err != nil {
		return err
	}
	s.m.Token("expire", removed)
	s.l.Info("expired tokens removed", zap.Int("count", removed))
	return nil
}
