package provider_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentserver/agentserver/internal/provider"
)

func TestAccountPool_Select_PrefersLeastRecentlyUsed(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := &provider.Account{ID: "a"}
	b := &provider.Account{ID: "b"}
	pool := provider.NewAccountPool(a, b)

	first, err := pool.Select(now)
	require.NoError(t, err)

	// Both start with zero lastUsed, so the first call ties and falls to
	// round robin; whichever is chosen should not be chosen again
	// immediately since it is now the most recently used.
	second, err := pool.Select(now.Add(time.Second))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	third, err := pool.Select(now.Add(2 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, first.ID, third.ID)
}

func TestAccountPool_Select_SkipsExhaustedAccounts(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := &provider.Account{ID: "a"}
	b := &provider.Account{ID: "b"}
	pool := provider.NewAccountPool(a, b)

	a.MarkExhausted(now.Add(time.Hour))

	chosen, err := pool.Select(now)
	require.NoError(t, err)
	assert.Equal(t, "b", chosen.ID)

	chosen, err = pool.Select(now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "b", chosen.ID)
}

func TestAccountPool_Select_ReturnsExhaustedAccountAfterReset(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := &provider.Account{ID: "a"}
	pool := provider.NewAccountPool(a)

	a.MarkExhausted(now.Add(time.Minute))

	_, err := pool.Select(now)
	assert.Error(t, err)

	chosen, err := pool.Select(now.Add(2 * time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "a", chosen.ID)
}

func TestAccountPool_Select_NoAccountsErrors(t *testing.T) {
	pool := provider.NewAccountPool()
	_, err := pool.Select(time.Now())
	assert.Error(t, err)
}
