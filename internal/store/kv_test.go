package store

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRedisKV(t *testing.T) (*RedisKV, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	kv := NewRedisKVFromClient(client, 10, discardLogger())
	t.Cleanup(func() { kv.Close() })
	return kv, mr
}

// backends runs fn against every KV implementation
func backends(t *testing.T, fn func(t *testing.T, kv KV)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryKV())
	})
	t.Run("redis", func(t *testing.T) {
		kv, _ := newTestRedisKV(t)
		fn(t, kv)
	})
}

func TestKV_GetSetDelete(t *testing.T) {
	backends(t, func(t *testing.T, kv KV) {
		ctx := context.Background()

		_, err := kv.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, kv.Set(ctx, "k", []byte("v1")))
		require.NoError(t, kv.Set(ctx, "k", []byte("v2")))
		got, err := kv.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("v2"), got)

		require.NoError(t, kv.Delete(ctx, "k"))
		require.NoError(t, kv.Delete(ctx, "k"))
		_, err = kv.Get(ctx, "k")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestKV_PrefixQueries(t *testing.T) {
	backends(t, func(t *testing.T, kv KV) {
		ctx := context.Background()
		for _, k := range []string{"lb_team_2", "lb_team_1", "lb_local_1", "other_1", "lb_te*m_1"} {
			require.NoError(t, kv.Set(ctx, k, []byte(k)))
		}

		entries, err := kv.GetByPrefix(ctx, "lb_team_")
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "lb_team_1", entries[0].Key)
		assert.Equal(t, []byte("lb_team_1"), entries[0].Value)
		assert.Equal(t, "lb_team_2", entries[1].Key)

		keys, err := kv.KeysByPrefix(ctx, "lb_te*m_")
		require.NoError(t, err)
		assert.Equal(t, []string{"lb_te*m_1"}, keys)

		keys, err = kv.KeysByPrefix(ctx, "lb_")
		require.NoError(t, err)
		assert.Len(t, keys, 4)

		empty, err := kv.GetByPrefix(ctx, "nothing_")
		require.NoError(t, err)
		assert.Empty(t, empty)
	})
}

func TestKV_MultiDelete(t *testing.T) {
	backends(t, func(t *testing.T, kv KV) {
		ctx := context.Background()
		require.NoError(t, kv.Set(ctx, "a", []byte("1")))
		require.NoError(t, kv.Set(ctx, "b", []byte("2")))

		n, err := kv.MultiDelete(ctx, []string{"a", "b", "c"})
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = kv.MultiDelete(ctx, nil)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestRedisKV_ManyKeys(t *testing.T) {
	kv, _ := newTestRedisKV(t)
	ctx := context.Background()

	for i := 0; i < 1200; i++ {
		require.NoError(t, kv.Set(ctx, "lb_global_"+strconv.Itoa(i), []byte("{}")))
	}

	entries, err := kv.GetByPrefix(ctx, "lb_global_")
	require.NoError(t, err)
	assert.Len(t, entries, 1200)

	n, err := kv.MultiDelete(ctx, keysOf(entries))
	require.NoError(t, err)
	assert.Equal(t, 1200, n)
}

func TestRedisKV_PingFailsWhenServerDown(t *testing.T) {
	kv, mr := newTestRedisKV(t)
	require.NoError(t, kv.Ping(context.Background()))

	mr.Close()
	assert.Error(t, kv.Ping(context.Background()))
}

func TestEscapeGlob(t *testing.T) {
	assert.Equal(t, `a\*b\?c\[d\]e\\f`, escapeGlob(`a*b?c[d]e\f`))
}

func keysOf(entries []Entry) []string {
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}
	return keys
}
