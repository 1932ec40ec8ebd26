package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"borerelay/internal/core/domain"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// Set BORE_TEST_REDIS_ADDR to run against a disposable Redis. The selected
// database is flushed.
func newIntegrationClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("BORE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("BORE_TEST_REDIS_ADDR not set")
	}

	ctx := context.Background()
	raw := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	require.NoError(t, raw.FlushDB(ctx).Err())
	raw.Close()

	client, err := NewRedisClient(ctx, ClientConfig{Address: addr, DB: 15}, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { _ = CloseRedisClient(client) })
	return client
}

func TestRedisPlayerRepository(t *testing.T) {
	client := newIntegrationClient(t)
	repo := NewRedisPlayerRepository(client)
	ctx := context.Background()

	p := &domain.Player{Name: "Cheater01"}
	require.NoError(t, repo.Create(ctx, p))
	assert.EqualValues(t, 1, p.ID)
	assert.ErrorIs(t, repo.Create(ctx, &domain.Player{Name: "cheater01"}), domain.ErrConflict)
	require.NoError(t, repo.Create(ctx, &domain.Player{Name: "Griefer"}))

	expires := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.SetLegend(ctx, p.ID, 2, expires))
	require.NoError(t, repo.SetMod(ctx, p.ID, []int{1, 2}))
	require.NoError(t, repo.SetPassword(ctx, p.ID, "$2a$04$hash"))

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.VipLevel)
	assert.True(t, got.VipExpiresAt.Equal(expires))
	assert.Equal(t, []int{1, 2}, got.ModRooms)
	assert.Equal(t, "$2a$04$hash", got.PasswordHash)

	page, err := repo.List(ctx, domain.PageQuery{Limit: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 2, page.Total)
	assert.Equal(t, "Cheater01", page.Items[0].Name)

	page, err = repo.List(ctx, domain.PageQuery{SearchTerm: "grief"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)

	n, err := repo.ResetAllVip(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	assert.ErrorIs(t, repo.RemoveMod(ctx, 999), domain.ErrPlayerNotFound)
}

func TestRedisSanctionRepositories(t *testing.T) {
	client := newIntegrationClient(t)
	bans := NewRedisBanRepository(client)
	mutes := NewRedisMuteRepository(client)
	ctx := context.Background()
	base := time.Date(2026, 2, 11, 12, 0, 0, 0, time.UTC)

	for i, name := range []string{"old", "new"} {
		require.NoError(t, bans.Create(ctx, &domain.Ban{
			Sanction: domain.Sanction{Name: name, Time: base.Add(time.Duration(i) * time.Hour)},
			BannedBy: "staff",
		}))
	}

	page, err := bans.List(ctx, domain.PageQuery{})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "new", page.Items[0].Name)
	assert.Equal(t, "staff", page.Items[0].BannedBy)

	require.NoError(t, bans.Delete(ctx, page.Items[0].ID))
	assert.ErrorIs(t, bans.Delete(ctx, page.Items[0].ID), domain.ErrBanNotFound)

	mute := &domain.Mute{Sanction: domain.Sanction{Name: "Flooder", Time: base}, MutedBy: "mod"}
	require.NoError(t, mutes.Create(ctx, mute))
	assert.EqualValues(t, 1, mute.ID)
	assert.ErrorIs(t, mutes.Delete(ctx, 42), domain.ErrMuteNotFound)
}

func TestLockExcludesSecondHolder(t *testing.T) {
	client := newIntegrationClient(t)
	ctx := context.Background()

	first := NewLock(client, keyPrefix+"lock:test", time.Second)
	require.NoError(t, first.Acquire(ctx, 0))

	second := NewLock(client, keyPrefix+"lock:test", time.Second)
	err := second.Acquire(ctx, 150*time.Millisecond)
	assert.ErrorIs(t, err, errLockTimeout)

	require.NoError(t, first.Release(ctx))
	require.NoError(t, second.Acquire(ctx, time.Second))
	require.NoError(t, second.Release(ctx))
}
