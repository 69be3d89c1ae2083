package capacity

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-frontdesk/pkg/logging"
)

type countingStore struct {
	*MemoryStore
	gets int
}

func (c *countingStore) Get(ctx context.Context, key string) (int, error) {
	c.gets++
	return c.MemoryStore.Get(ctx, key)
}

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func TestCachedStore_ReadThrough(t *testing.T) {
	client, mr := setupTestRedis(t)
	backing := &countingStore{MemoryStore: NewMemoryStore()}
	require.NoError(t, backing.Set(context.Background(), "Monday", 5))
	cache := NewCachedStore(backing, client, time.Minute, logging.Discard())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		c, err := cache.Get(ctx, "Monday")
		require.NoError(t, err)
		assert.Equal(t, 5, c)
	}
	assert.Equal(t, 1, backing.gets)
	assert.True(t, mr.Exists("capacity:entry:Monday"))

	_, err := cache.Get(ctx, "Sunday")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = cache.Get(ctx, "Sunday")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 2, backing.gets, "absence should be cached too")
}

func TestCachedStore_WritesInvalidate(t *testing.T) {
	client, mr := setupTestRedis(t)
	backing := NewMemoryStore()
	cache := NewCachedStore(backing, client, time.Minute, logging.Discard())
	ctx := context.Background()

	_, err := cache.Get(ctx, "2025-06-02")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, cache.Set(ctx, "2025-06-02", 7))
	assert.False(t, mr.Exists("capacity:entry:2025-06-02"))
	c, err := cache.Get(ctx, "2025-06-02")
	require.NoError(t, err)
	assert.Equal(t, 7, c)

	require.NoError(t, cache.Delete(ctx, "2025-06-02"))
	_, err = cache.Get(ctx, "2025-06-02")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCachedStore_ExpiresWithTTL(t *testing.T) {
	client, mr := setupTestRedis(t)
	backing := &countingStore{MemoryStore: NewMemoryStore()}
	cache := NewCachedStore(backing, client, time.Minute, logging.Discard())
	ctx := context.Background()

	_, _ = cache.Get(ctx, "Friday")
	mr.FastForward(2 * time.Minute)
	_, _ = cache.Get(ctx, "Friday")
	assert.Equal(t, 2, backing.gets)
}

func TestCachedStore_LedgerEffective(t *testing.T) {
	client, _ := setupTestRedis(t)
	ledger := NewLedger(NewCachedStore(NewMemoryStore(), client, time.Minute, logging.Discard()), 10)
	ctx := context.Background()

	eff, err := ledger.Effective(ctx, "2025-06-01")
	require.NoError(t, err)
	assert.Equal(t, 10, eff.Capacity)

	_, err = ledger.Set(ctx, "Sunday", 2)
	require.NoError(t, err)
	eff, err = ledger.Effective(ctx, "2025-06-01")
	require.NoError(t, err)
	assert.Equal(t, 2, eff.Capacity)
	assert.Equal(t, SourceWeekday, eff.Source)
}

func TestPostgresStore(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store := NewPostgresStoreWithDB(mock)
	ctx := context.Background()

	mock.ExpectQuery("SELECT capacity FROM daily_capacity").WithArgs("Monday").
		WillReturnRows(pgxmock.NewRows([]string{"capacity"}).AddRow(5))
	c, err := store.Get(ctx, "Monday")
	require.NoError(t, err)
	assert.Equal(t, 5, c)

	mock.ExpectQuery("SELECT capacity FROM daily_capacity").WithArgs("Sunday").WillReturnError(pgx.ErrNoRows)
	_, err = store.Get(ctx, "Sunday")
	assert.ErrorIs(t, err, ErrNotFound)

	mock.ExpectExec("INSERT INTO daily_capacity").WithArgs("2025-06-02", 0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, store.Set(ctx, "2025-06-02", 0))

	mock.ExpectExec("DELETE FROM daily_capacity").WithArgs("Tuesday").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	assert.ErrorIs(t, store.Delete(ctx, "Tuesday"), ErrNotFound)

	mock.ExpectQuery("SELECT day_key, capacity FROM daily_capacity").
		WillReturnRows(pgxmock.NewRows([]string{"day_key", "capacity"}).AddRow("2025-06-02", 0).AddRow("Monday", 5))
	entries, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, KindDate, entries[0].Kind)
	assert.Equal(t, KindWeekday, entries[1].Kind)

	require.NoError(t, mock.ExpectationsWereMet())
}
