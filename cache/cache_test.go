package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestCache(t *testing.T, ttl time.Duration) (*Cache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	c, err := New(context.Background(), Config{
		RedisURL: fmt.Sprintf("redis://%s", mr.Addr()),
		TTL:      ttl,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

type answer struct {
	Text    string   `json:"text"`
	Sources []string `json:"sources"`
}

func TestCache_SetGet(t *testing.T) {
	c, mr := setupTestCache(t, time.Hour)
	ctx := context.Background()

	var got answer
	hit, err := c.Get(ctx, AnswerKey("top_k=2", "why?"), &got)
	require.NoError(t, err)
	assert.False(t, hit)

	want := answer{Text: "because", Sources: []string{"S10001"}}
	require.NoError(t, c.Set(ctx, AnswerKey("top_k=2", "why?"), want))

	hit, err = c.Get(ctx, AnswerKey("top_k=2", "why?"), &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, want, got)

	assert.Equal(t, time.Hour, mr.TTL(AnswerKey("top_k=2", "why?")))

	mr.FastForward(2 * time.Hour)
	hit, err = c.Get(ctx, AnswerKey("top_k=2", "why?"), &got)
	require.NoError(t, err)
	assert.False(t, hit, "entry expires after the ttl")
}

func TestCache_Delete(t *testing.T) {
	c, mr := setupTestCache(t, 0)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", 1))
	assert.True(t, mr.Exists("k"))
	require.NoError(t, c.Delete(ctx, "k"))
	assert.False(t, mr.Exists("k"))
}

func TestCache_DeletePrefix(t *testing.T) {
	c, mr := setupTestCache(t, 0)
	ctx := context.Background()

	for i := range 250 {
		require.NoError(t, c.Set(ctx, AnswerKey("s", fmt.Sprint(i)), i))
	}
	require.NoError(t, c.Set(ctx, EmbeddingKey("m", "t"), []float32{1}))

	n, err := c.DeletePrefix(ctx, AnswerPrefix)
	require.NoError(t, err)
	assert.Equal(t, 250, n)
	assert.Len(t, mr.Keys(), 1)
	assert.True(t, mr.Exists(EmbeddingKey("m", "t")))

	n, err = c.DeletePrefix(ctx, AnswerPrefix)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCache_DecodeError(t *testing.T) {
	c, mr := setupTestCache(t, 0)
	require.NoError(t, mr.Set("k", "not json"))

	var v answer
	_, err := c.Get(context.Background(), "k", &v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache decode")
}

func TestNew_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := New(context.Background(), Config{
		RedisURL:       "redis://" + addr,
		ConnectTimeout: 200 * time.Millisecond,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect to redis")
}

func TestKeys(t *testing.T) {
	assert.Equal(t, AnswerKey("s", "q"), AnswerKey("s", "q"))
	assert.NotEqual(t, AnswerKey("s", "q1"), AnswerKey("s", "q2"))
	assert.NotEqual(t, AnswerKey("s1", "q"), AnswerKey("s2", "q"))
	assert.NotEqual(t, AnswerKey("ab", "c"), AnswerKey("a", "bc"))
	assert.Regexp(t, `^qa:[0-9a-f]{64}$`, AnswerKey("s", "How do I clear the disk?"))
	assert.NotEqual(t, EmbeddingKey("m1", "t"), EmbeddingKey("m2", "t"))
	assert.Regexp(t, `^emb:[0-9a-f]{64}$`, EmbeddingKey("m", "t"))
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.False(t, DefaultConfig().Enabled())

	cfg := DefaultConfig()
	cfg.RedisURL = "not-a-url://"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.TTL = -time.Second
	assert.Error(t, cfg.Validate())
}
