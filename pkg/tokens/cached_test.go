// Copyright © 2018 One Concern

package tokens

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type tokensMock struct {
	mock.Mock
}

func (m *tokensMock) Get(ctx context.Context, token string) (Item, bool, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(Item), args.Bool(1), args.Error(2)
}

func (m *tokensMock) Find(ctx context.Context, user string) (Item, bool, error) {
	args := m.Called(ctx, user)
	return args.Get(0).(Item), args.Bool(1), args.Error(2)
}

func (m *tokensMock) Generate(ctx context.Context, user string, ttl time.Duration) (Item, error) {
	args := m.Called(ctx, user, ttl)
	return args.Get(0).(Item), args.Error(1)
}

func (m *tokensMock) Revoke(ctx context.Context, token string) (bool, error) {
	args := m.Called(ctx, token)
	return args.Bool(0), args.Error(1)
}

func (m *tokensMock) Clean(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func TestCachedGet(t *testing.T) {
	ctx := context.Background()
	item := Item{Token: "abc", Name: "alice", Expire: time.Now().Add(time.Hour)}
	m := &tokensMock{}
	m.On("Get", ctx, "abc").Return(item, true, nil).Once()
	m.On("Get", ctx, "nope").Return(Item{}, false, nil).Twice()

	cached := NewCached(m, 10, time.Minute)
	for i := 0; i < 2; i++ {
		found, ok, err := cached.Get(ctx, "abc")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, item, found)

		_, ok, err = cached.Get(ctx, "nope")
		require.NoError(t, err)
		assert.False(t, ok, "unknown tokens are not cached")
	}
	m.AssertExpectations(t)
}

func TestCachedExpiredItem(t *testing.T) {
	ctx := context.Background()
	m := &tokensMock{}
	m.On("Generate", ctx, "alice", time.Millisecond).Return(Item{Token: "abc", Name: "alice", Expire: time.Now().Add(-time.Second)}, nil)

	cached := NewCached(m, 10, time.Minute)
	_, err := cached.Generate(ctx, "alice", time.Millisecond)
	require.NoError(t, err)

	_, ok, err := cached.Get(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, ok)
	m.AssertExpectations(t)
}

func TestCachedGenerateThenGet(t *testing.T) {
	ctx := context.Background()
	item := Item{Token: "abc", Name: "alice", Expire: time.Now().Add(time.Hour)}
	m := &tokensMock{}
	m.On("Generate", ctx, "alice", time.Hour).Return(item, nil)

	cached := NewCached(m, 10, time.Minute)
	_, err := cached.Generate(ctx, "alice", time.Hour)
	require.NoError(t, err)

	found, ok, err := cached.Get(ctx, "abc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, item, found)
	m.AssertNotCalled(t, "Get", ctx, "abc")
}

func TestCachedInvalidation(t *testing.T) {
	ctx := context.Background()
	item := Item{Token: "abc", Name: "alice", Expire: time.Now().Add(time.Hour)}
	m := &tokensMock{}
	m.On("Get", ctx, "abc").Return(item, true, nil).Once()
	m.On("Revoke", ctx, "abc").Return(true, nil).Once()
	m.On("Get", ctx, "abc").Return(Item{}, false, nil).Once()
	m.On("Clean", ctx).Return(nil).Once()

	cached := NewCached(m, 10, time.Minute)
	_, ok, err := cached.Get(ctx, "abc")
	require.NoError(t, err)
	require.True(t, ok)

	revoked, err := cached.Revoke(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, revoked)

	_, ok, err = cached.Get(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, ok, "a revoked token is not served from the cache")

	require.NoError(t, cached.Clean(ctx))
	m.AssertExpectations(t)
}

func TestCachedTTL(t *testing.T) {
	ctx := context.Background()
	item := Item{Token: "abc", Name: "alice", Expire: time.Now().Add(time.Hour)}
	m := &tokensMock{}
	m.On("Get", ctx, "abc").Return(item, true, nil).Twice()

	cached := NewCached(m, 10, 20*time.Millisecond)
	_, _, err := cached.Get(ctx, "abc")
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	_, _, err = cached.Get(ctx, "abc")
	require.NoError(t, err)
	m.AssertExpectations(t)
}

// slowTokens blocks revocations and clean-ups until released, then forgets "tok"
type slowTokens struct {
	Tokens
	mu      sync.Mutex
	gone    bool
	started chan struct{}
	release chan struct{}
}

func newSlowTokens() *slowTokens {
	return &slowTokens{started: make(chan struct{}), release: make(chan struct{})}
}

func (s *slowTokens) Get(_ context.Context, token string) (Item, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gone || token != "tok" {
		return Item{}, false, nil
	}
	return Item{Token: "tok", Name: "alice", Expire: time.Now().Add(time.Hour)}, true, nil
}

func (s *slowTokens) edit() {
	close(s.started)
	<-s.release
	s.mu.Lock()
	s.gone = true
	s.mu.Unlock()
}

func (s *slowTokens) Revoke(_ context.Context, _ string) (bool, error) {
	s.edit()
	return true, nil
}

func (s *slowTokens) Clean(_ context.Context) error {
	s.edit()
	return nil
}

func TestCachedLookupDuringEdit(t *testing.T) {
	for _, toPin := range []struct {
		name string
		edit func(context.Context, Tokens) error
	}{
		{
			name: "revoke",
			edit: func(ctx context.Context, c Tokens) error {
				_, err := c.Revoke(ctx, "tok")
				return err
			},
		},
		{
			name: "clean",
			edit: func(ctx context.Context, c Tokens) error {
				return c.Clean(ctx)
			},
		},
	} {
		tc := toPin
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			inner := newSlowTokens()
			cached := NewCached(inner, 10, time.Hour)

			edited := make(chan error, 1)
			go func() { edited <- tc.edit(ctx, cached) }()
			<-inner.started

			looked := make(chan bool, 1)
			go func() {
				_, ok, _ := cached.Get(ctx, "tok")
				looked <- ok
			}()
			time.Sleep(20 * time.Millisecond)
			close(inner.release)

			require.NoError(t, <-edited)
			assert.False(t, <-looked, "a lookup concurrent with the edit waits for it")

			_, ok, err := cached.Get(ctx, "tok")
			require.NoError(t, err)
			assert.False(t, ok, "the removed token is not served from the cache")
		})
	}
}
