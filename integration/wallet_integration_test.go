package integration_test

import (
	"context"
	"sync"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coachbook/internal/wallet"
)

func TestWalletLedgerFold_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	db := setupTestDB(t)
	defer db.Close()
	cleanDatabase(t, db)

	repo := wallet.NewRepository(db)
	ctx := context.Background()
	userID := createTestUser(t, db, "athlete@test.com", "athlete")

	expires := time.Now().Add(365 * 24 * time.Hour)
	_, err := repo.Credit(ctx, userID, 5000, wallet.TypePurchase, &expires, nil)
	require.NoError(t, err)
	_, err = repo.Credit(ctx, userID, 1000, wallet.TypeBonus, &expires, nil)
	require.NoError(t, err)

	balance, err := repo.Balance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(6000), balance)

	_, err = repo.Debit(ctx, userID, 2500, nil)
	require.NoError(t, err)

	balance, err = repo.Balance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(3500), balance)

	// Overdraw attempt leaves the ledger untouched.
	_, err = repo.Debit(ctx, userID, 9999, nil)
	require.ErrorIs(t, err, wallet.ErrInsufficientBalance)

	balance, err = repo.Balance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(3500), balance)
}

func TestWalletConcurrentDebitsSerialize_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	db := setupTestDB(t)
	defer db.Close()
	cleanDatabase(t, db)

	repo := wallet.NewRepository(db)
	ctx := context.Background()
	userID := createTestUser(t, db, "athlete@test.com", "athlete")

	_, err := repo.Credit(ctx, userID, 1000, wallet.TypePurchase, nil, nil)
	require.NoError(t, err)

	// Ten concurrent debits of 300 against a balance of 1000: exactly three
	// can succeed.
	const attempts = 10
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Debit(ctx, userID, 300, nil)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, wallet.ErrInsufficientBalance)
		}
	}
	assert.Equal(t, 3, succeeded)

	balance, err := repo.Balance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)
}

func TestWalletExpiredCreditsVanish_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	db := setupTestDB(t)
	defer db.Close()
	cleanDatabase(t, db)

	repo := wallet.NewRepository(db)
	ctx := context.Background()
	userID := createTestUser(t, db, "athlete@test.com", "athlete")

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(24 * time.Hour)
	_, err := repo.Credit(ctx, userID, 2000, wallet.TypePurchase, &past, nil)
	require.NoError(t, err)
	_, err = repo.Credit(ctx, userID, 500, wallet.TypeBonus, &future, nil)
	require.NoError(t, err)

	balance, err := repo.Balance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), balance, "lapsed credit must not count")

	expired, err := repo.ExpireCredits(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), expired)

	// The expiration journal entry is bookkeeping; the balance is unchanged.
	balance, err = repo.Balance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), balance)
}
