package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type org struct {
	Login string `json:"login"`
}

func TestCache_ExpiredEntryIsDeletedOnRead(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	store := NewMemoryStore()
	c := New(store, zap.NewNop(), WithClock(clock.Now))

	require.NoError(t, c.Set(ctx, "orgs", []org{{Login: "acme"}}, 24*time.Hour))

	var got []org
	hit, err := c.Get(ctx, "orgs", &got)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, []org{{Login: "acme"}}, got)

	clock.Advance(25 * time.Hour)

	got = nil
	hit, err = c.Get(ctx, "orgs", &got)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Nil(t, got)
	assert.Equal(t, 0, store.Len(), "expired entry must be removed from the store")

	_, err = store.Get(ctx, "orgs")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCache_ExpiryBoundary(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	c := New(NewMemoryStore(), zap.NewNop(), WithClock(clock.Now))
	require.NoError(t, c.Set(ctx, "k", "v", time.Hour))

	var v string
	clock.Advance(time.Hour - time.Second)
	hit, err := c.Get(ctx, "k", &v)
	require.NoError(t, err)
	assert.True(t, hit)

	clock.Advance(time.Second)
	hit, err = c.Get(ctx, "k", &v)
	require.NoError(t, err)
	assert.False(t, hit, "an entry is expired at exactly expiresAt")
}

func TestCache_UnreadableEntryIsDropped(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Set(ctx, "k", []byte("not json"), 0))

	c := New(store, zap.NewNop())
	var v string
	hit, err := c.Get(ctx, "k", &v)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 0, store.Len())
}

func TestCache_Miss(t *testing.T) {
	c := New(NewMemoryStore(), zap.NewNop())
	var v string
	hit, err := c.Get(context.Background(), "absent", &v)
	require.NoError(t, err)
	assert.False(t, hit)
	require.NoError(t, c.Delete(context.Background(), "absent"))
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = fs.Get(ctx, "user/orgs")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, fs.Set(ctx, "user/orgs", []byte(`{"a":1}`), time.Hour))
	b, err := fs.Get(ctx, "user/orgs")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(b))

	require.NoError(t, fs.Delete(ctx, "user/orgs"))
	require.NoError(t, fs.Delete(ctx, "user/orgs"))
	_, err = fs.Get(ctx, "user/orgs")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	rs, err := NewRedisStore(ctx, mr.Addr(), "prboard:")
	require.NoError(t, err)
	defer rs.Close()

	_, err = rs.Get(ctx, "orgs")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, rs.Set(ctx, "orgs", []byte("x"), time.Minute))
	assert.True(t, mr.Exists("prboard:orgs"))

	b, err := rs.Get(ctx, "orgs")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), b)

	mr.FastForward(2 * time.Minute)
	_, err = rs.Get(ctx, "orgs")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, rs.Set(ctx, "orgs", []byte("y"), time.Minute))
	require.NoError(t, rs.Delete(ctx, "orgs"))
	assert.False(t, mr.Exists("prboard:orgs"))
}
