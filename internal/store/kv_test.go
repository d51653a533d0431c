package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisKV(t *testing.T) (*miniredis.Miniredis, *RedisKV) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, NewRedisKV(client)
}

func TestResponseKey(t *testing.T) {
	key := ResponseKey("clinician", "Summarize patient ID P0001")

	assert.True(t, strings.HasPrefix(key, "medquery:response:clinician:"))
	// raw query text never appears in the key
	assert.NotContains(t, key, "P0001")

	// stable for identical input, distinct across role and text
	assert.Equal(t, key, ResponseKey("clinician", "Summarize patient ID P0001"))
	assert.NotEqual(t, key, ResponseKey("trainee", "Summarize patient ID P0001"))
	assert.NotEqual(t, key, ResponseKey("clinician", "Summarize patient ID P0002"))
}

func TestRedisKV_SetGet(t *testing.T) {
	_, kv := setupRedisKV(t)
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "k1", `{"success":true}`, time.Minute))
	val, err := kv.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, `{"success":true}`, val)
}

func TestRedisKV_MissingKeyIsErrMiss(t *testing.T) {
	_, kv := setupRedisKV(t)

	_, err := kv.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestRedisKV_TTLExpiry(t *testing.T) {
	mr, kv := setupRedisKV(t)
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "k1", "v", time.Minute))
	mr.FastForward(2 * time.Minute)

	_, err := kv.Get(ctx, "k1")
	assert.ErrorIs(t, err, ErrMiss)
}
