package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Redis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, NewRedis(client, "callwatch:pass-lock", time.Minute)
}

func TestRedis_TryLockExclusive(t *testing.T) {
	mr, l := setupTestRedis(t)
	ctx := context.Background()

	release, ok, err := l.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists("callwatch:pass-lock"))

	_, ok, err = l.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "second acquire should fail while held")

	release()
	assert.False(t, mr.Exists("callwatch:pass-lock"))

	release2, ok, err := l.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	release2()
}

func TestRedis_ReleaseKeepsForeignToken(t *testing.T) {
	mr, l := setupTestRedis(t)
	ctx := context.Background()

	release, ok, err := l.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// Lock expired and was taken by another instance.
	mr.FastForward(2 * time.Minute)
	require.NoError(t, mr.Set("callwatch:pass-lock", "other-token"))

	release()
	got, err := mr.Get("callwatch:pass-lock")
	require.NoError(t, err)
	assert.Equal(t, "other-token", got)
}

func TestRedis_TTL(t *testing.T) {
	mr, l := setupTestRedis(t)

	_, ok, err := l.TryLock(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.Minute, mr.TTL("callwatch:pass-lock"))
}

func TestRedis_RefreshExtendsTTL(t *testing.T) {
	mr, l := setupTestRedis(t)
	l.refresh = 10 * time.Millisecond

	release, ok, err := l.TryLock(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	defer release()

	// Simulate most of the TTL elapsing during a long pass.
	mr.SetTTL("callwatch:pass-lock", time.Second)
	assert.Eventually(t, func() bool {
		return mr.TTL("callwatch:pass-lock") == time.Minute
	}, 2*time.Second, 10*time.Millisecond, "held lock should be extended back to the full TTL")
}

func TestRedis_RefreshLeavesForeignToken(t *testing.T) {
	mr, l := setupTestRedis(t)
	l.refresh = 10 * time.Millisecond

	release, ok, err := l.TryLock(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	// Lock expired and was taken by another instance.
	require.NoError(t, mr.Set("callwatch:pass-lock", "other-token"))
	mr.SetTTL("callwatch:pass-lock", 5*time.Second)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 5*time.Second, mr.TTL("callwatch:pass-lock"))

	release()
	got, err := mr.Get("callwatch:pass-lock")
	require.NoError(t, err)
	assert.Equal(t, "other-token", got)
}

func TestRedis_ReleaseStopsRefresh(t *testing.T) {
	mr, l := setupTestRedis(t)
	l.refresh = 10 * time.Millisecond

	release, ok, err := l.TryLock(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	release()
	release()

	time.Sleep(50 * time.Millisecond)
	assert.False(t, mr.Exists("callwatch:pass-lock"))
}

func TestRedis_Unavailable(t *testing.T) {
	mr, l := setupTestRedis(t)
	mr.Close()

	_, ok, err := l.TryLock(context.Background())
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestLocal_TryLock(t *testing.T) {
	l := NewLocal()

	release, ok, err := l.TryLock(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, _ = l.TryLock(context.Background())
	assert.False(t, ok)

	release()
	release() // idempotent

	release, ok, _ = l.TryLock(context.Background())
	assert.True(t, ok)
	release()
}
