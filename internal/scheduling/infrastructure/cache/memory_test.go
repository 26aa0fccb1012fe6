package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/scheduler/internal/scheduling/domain"
	"github.com/flowforge/scheduler/internal/scheduling/infrastructure/cache"
)

func TestMemoryCache_SetThenGet(t *testing.T) {
	c := cache.NewMemoryCache(4)
	solution := &domain.ScheduleSolution{Feasible: true, Status: domain.SolverStatusOptimal}

	require.NoError(t, c.Set(context.Background(), "hash-1", solution, time.Minute))

	got, ok, err := c.Get(context.Background(), "hash-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, got.Feasible)
}

func TestMemoryCache_MissReturnsFalse(t *testing.T) {
	c := cache.NewMemoryCache(4)

	_, ok, err := c.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCache_ExpiredEntryIsEvictedOnRead(t *testing.T) {
	c := cache.NewMemoryCache(4)
	solution := &domain.ScheduleSolution{Feasible: true}

	require.NoError(t, c.Set(context.Background(), "hash-1", solution, -time.Second))

	_, ok, err := c.Get(context.Background(), "hash-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCache_EvictsLeastRecentlyUsedBeyondCapacity(t *testing.T) {
	c := cache.NewMemoryCache(2)
	solution := &domain.ScheduleSolution{Feasible: true}

	require.NoError(t, c.Set(context.Background(), "a", solution, time.Minute))
	require.NoError(t, c.Set(context.Background(), "b", solution, time.Minute))
	_, _, _ = c.Get(context.Background(), "a") // touch a, making b the LRU entry
	require.NoError(t, c.Set(context.Background(), "c", solution, time.Minute))

	_, okA, _ := c.Get(context.Background(), "a")
	_, okB, _ := c.Get(context.Background(), "b")
	_, okC, _ := c.Get(context.Background(), "c")

	assert.True(t, okA)
	assert.False(t, okB)
	assert.True(t, okC)
}
