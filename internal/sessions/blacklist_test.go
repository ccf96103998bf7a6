package sessions

import (
	"context"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestBlacklist_AddAndContains(t *testing.T) {
	srv, err := mr.Run()
	require.NoError(t, err)
	defer srv.Close()

	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	b := NewBlacklist(client)
	ctx := context.Background()

	ok, err := b.Contains(ctx, "tok-1")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, b.Add(ctx, "tok-1", time.Minute))
	ok, err = b.Contains(ctx, "tok-1")
	require.NoError(t, err)
	require.True(t, ok)

	// entries fall out with the token's own expiry
	srv.FastForward(2 * time.Minute)
	ok, err = b.Contains(ctx, "tok-1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBlacklist_NilClientIsNoop(t *testing.T) {
	var b *Blacklist
	require.NoError(t, b.Add(context.Background(), "tok", time.Minute))
	ok, err := b.Contains(context.Background(), "tok")
	require.NoError(t, err)
	require.False(t, ok)

	b = NewBlacklist(nil)
	require.NoError(t, b.Add(context.Background(), "tok", time.Minute))
}

func TestBlacklist_NonPositiveTTLSkipped(t *testing.T) {
	srv, err := mr.Run()
	require.NoError(t, err)
	defer srv.Close()

	b := NewBlacklist(redis.NewClient(&redis.Options{Addr: srv.Addr()}))
	require.NoError(t, b.Add(context.Background(), "expired-tok", -time.Second))
	ok, err := b.Contains(context.Background(), "expired-tok")
	require.NoError(t, err)
	require.False(t, ok)
}
