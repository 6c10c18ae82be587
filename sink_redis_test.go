package convogen

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) redis.UniversalClient {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisSink_RequiresRunID(t *testing.T) {
	_, err := NewRedisSink(newTestRedis(t), RedisSinkConfig{})
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
}

func TestRedisSink_PersistAndLoad(t *testing.T) {
	client := newTestRedis(t)
	s, err := NewRedisSink(client, RedisSinkConfig{RunID: "run-1"})
	require.NoError(t, err)

	ds := testDataset()
	require.NoError(t, s.Persist(context.Background(), ds))

	got, err := s.Load(context.Background())
	require.NoError(t, err)
	want, err := ds.Marshal()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// Stored under the default prefix.
	val, err := client.Get(context.Background(), "convogen:run:run-1").Bytes()
	require.NoError(t, err)
	assert.Equal(t, want, val)
}

func TestRedisSink_CustomPrefixAndTTL(t *testing.T) {
	client := newTestRedis(t)
	s, err := NewRedisSink(client, RedisSinkConfig{Prefix: "synth", RunID: "abc", TTL: time.Hour})
	require.NoError(t, err)

	require.NoError(t, s.Persist(context.Background(), testDataset()))

	ttl, err := client.TTL(context.Background(), "synth:run:abc").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestRedisSink_LoadMissingCheckpointIsNil(t *testing.T) {
	s, err := NewRedisSink(newTestRedis(t), RedisSinkConfig{RunID: "never-ran"})
	require.NoError(t, err)

	got, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisSink_SnapshotOverwritesPrevious(t *testing.T) {
	s, err := NewRedisSink(newTestRedis(t), RedisSinkConfig{RunID: "run-2"})
	require.NoError(t, err)

	ds := testDataset()
	require.NoError(t, s.Persist(context.Background(), ds))

	ds.Conversations[0].EndingReason = EndingUserEnded
	require.NoError(t, s.Persist(context.Background(), ds))

	got, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Contains(t, string(got), EndingUserEnded)
}
