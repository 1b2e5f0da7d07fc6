package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"casual-game-core/models"
	"casual-game-core/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errInsufficient = errors.New("insufficient")

func seed(t *testing.T, s *Store, id string, coins int64) {
	t.Helper()
	acc := models.NewAccount(id, id, id, time.Now().UTC())
	acc.Profile.Coins = coins
	require.NoError(t, s.CreateAccount(context.Background(), acc))
}

func debit(s *Store, from, to string, amount int64) error {
	_, err := s.WithAccounts(context.Background(), store.MutateOptions{AccountIDs: []string{from, to}}, func(tx *store.AccountTx) (any, error) {
		a, _ := tx.Account(from)
		b, _ := tx.Account(to)
		if a.Profile.Coins < amount {
			return nil, errInsufficient
		}
		a.Profile.Coins -= amount
		b.Profile.Coins += amount
		tx.Journal(a, -amount, models.TxTransferOut, to)
		tx.Journal(b, amount, models.TxTransferIn, from)
		return a.Profile.Coins, nil
	})
	return err
}

func TestCreateAccountConflicts(t *testing.T) {
	s := New()
	seed(t, s, "a", 0)

	dup := models.NewAccount("a", "other", "other", time.Now())
	assert.ErrorIs(t, s.CreateAccount(context.Background(), dup), store.ErrConflict)

	sameSlug := models.NewAccount("b", "A", "a", time.Now())
	assert.ErrorIs(t, s.CreateAccount(context.Background(), sameSlug), store.ErrConflict)
}

func TestGetAccountReturnsCopy(t *testing.T) {
	s := New()
	seed(t, s, "a", 10)

	acc, err := s.GetAccount(context.Background(), "a")
	require.NoError(t, err)
	acc.Profile.Coins = 999
	acc.Grant("cosmetic:hat")

	again, err := s.GetAccount(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, int64(10), again.Profile.Coins)
	assert.False(t, again.Owns("cosmetic:hat"))

	_, err = s.GetAccount(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestWithAccountsDiscardsFailedMutation(t *testing.T) {
	s := New()
	seed(t, s, "a", 10)
	seed(t, s, "b", 0)

	require.ErrorIs(t, debit(s, "a", "b", 50), errInsufficient)

	a, _ := s.GetAccount(context.Background(), "a")
	assert.Equal(t, int64(10), a.Profile.Coins)
	txs, _ := s.ListCoinTransactions(context.Background(), "a", 10)
	assert.Empty(t, txs)
}

func TestWithAccountsIdempotency(t *testing.T) {
	s := New()
	seed(t, s, "a", 100)
	calls := 0
	opts := store.MutateOptions{AccountIDs: []string{"a"}, IdempotencyScope: "purchase:a", IdempotencyKey: "k1"}
	fn := func(tx *store.AccountTx) (any, error) {
		calls++
		acc, _ := tx.Account("a")
		acc.Profile.Coins -= 30
		return map[string]int64{"balance": acc.Profile.Coins}, nil
	}

	first, err := s.WithAccounts(context.Background(), opts, fn)
	require.NoError(t, err)
	second, err := s.WithAccounts(context.Background(), opts, fn)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.JSONEq(t, string(first), string(second))
	a, _ := s.GetAccount(context.Background(), "a")
	assert.Equal(t, int64(70), a.Profile.Coins)

	opts.IdempotencyScope = "purchase:other"
	_, err = s.WithAccounts(context.Background(), opts, fn)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	s := New()
	seed(t, s, "a", 100)
	seed(t, s, "b", 0)

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if debit(s, "a", "b", 10) == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	a, _ := s.GetAccount(context.Background(), "a")
	b, _ := s.GetAccount(context.Background(), "b")
	assert.Equal(t, 10, ok)
	assert.Equal(t, int64(0), a.Profile.Coins)
	assert.Equal(t, int64(100), b.Profile.Coins)
}

func TestOpposingTransfersDoNotDeadlock(t *testing.T) {
	s := New()
	seed(t, s, "a", 1000)
	seed(t, s, "b", 1000)

	done := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		for i := range 200 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if i%2 == 0 {
					_ = debit(s, "a", "b", 1)
				} else {
					_ = debit(s, "b", "a", 1)
				}
			}()
		}
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("opposing transfers deadlocked")
	}
	a, _ := s.GetAccount(context.Background(), "a")
	b, _ := s.GetAccount(context.Background(), "b")
	assert.Equal(t, int64(2000), a.Profile.Coins+b.Profile.Coins)
}

func TestDeleteThroughMutation(t *testing.T) {
	s := New()
	seed(t, s, "a", 0)
	_, err := s.WithAccounts(context.Background(), store.MutateOptions{AccountIDs: []string{"a"}}, func(tx *store.AccountTx) (any, error) {
		tx.Delete("a")
		_, ok := tx.Account("a")
		assert.False(t, ok)
		return nil, nil
	})
	require.NoError(t, err)
	_, err = s.GetAccount(context.Background(), "a")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// slug is free again
	seed(t, s, "a", 0)
}

func pairPlan(region, version string) store.PairingPlan {
	return store.PairingPlan{
		Query: store.PoolQuery{Region: region, GameplayVersion: version, MinRating: 0, MaxRating: 10000, Since: time.Time{}, Limit: 10},
		Pick: func(_ *models.PoolEntry, c []*models.PoolEntry) *models.PoolEntry {
			if len(c) == 0 {
				return nil
			}
			return c[0]
		},
		Build: func(e, p *models.PoolEntry) *models.Challenge {
			return &models.Challenge{ID: "c-" + e.ID, ChallengerID: p.PlayerID, OpponentID: e.PlayerID, Status: models.ChallengeInProgress}
		},
	}
}

func TestSubmitPoolEntryPairsOnce(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()

	c, err := s.SubmitPoolEntry(ctx, &models.PoolEntry{ID: "e1", PlayerID: "p1", Region: "eu", GameplayVersion: "1", CreatedAt: now}, pairPlan("eu", "1"))
	require.NoError(t, err)
	assert.Nil(t, c)

	c, err = s.SubmitPoolEntry(ctx, &models.PoolEntry{ID: "e2", PlayerID: "p2", Region: "eu", GameplayVersion: "1", CreatedAt: now}, pairPlan("eu", "1"))
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "p1", c.ChallengerID)

	// e1 is matched now, so a third entry stays pooled.
	c, err = s.SubmitPoolEntry(ctx, &models.PoolEntry{ID: "e3", PlayerID: "p3", Region: "eu", GameplayVersion: "1", CreatedAt: now}, pairPlan("eu", "1"))
	require.NoError(t, err)
	assert.Nil(t, c)

	n, err := s.DeleteUnmatchedPoolEntries(ctx, now.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSubmitPoolEntryOrdersCandidatesByRatingGap(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	for i, e := range []struct {
		id     string
		rating int
	}{{"far", 900}, {"above", 1010}, {"below", 990}, {"exact", 1000}} {
		_, err := s.SubmitPoolEntry(ctx, &models.PoolEntry{
			ID: e.id, PlayerID: "p-" + e.id, Region: "eu", GameplayVersion: "1",
			SkillRating: e.rating, CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}, store.PairingPlan{Query: store.PoolQuery{Region: "none"}, Pick: func(*models.PoolEntry, []*models.PoolEntry) *models.PoolEntry { return nil }})
		require.NoError(t, err)
	}

	var seen []string
	plan := pairPlan("eu", "1")
	plan.Query.Target = 1000
	plan.Query.Limit = 3
	plan.Pick = func(_ *models.PoolEntry, c []*models.PoolEntry) *models.PoolEntry {
		for _, e := range c {
			seen = append(seen, e.ID)
		}
		return nil
	}
	_, err := s.SubmitPoolEntry(ctx, &models.PoolEntry{ID: "new", PlayerID: "me", Region: "eu", GameplayVersion: "1", SkillRating: 1000, CreatedAt: time.Now()}, plan)
	require.NoError(t, err)
	// Closest first, the older of two equal gaps first, and the limit drops the far entry.
	assert.Equal(t, []string{"exact", "above", "below"}, seen)
}

func TestExpireChallengesSkipsTerminal(t *testing.T) {
	s := New()
	ctx := context.Background()
	old := time.Now().Add(-8 * 24 * time.Hour)
	require.NoError(t, s.CreateChallenge(ctx, &models.Challenge{ID: "pending", Status: models.ChallengePending, CreatedAt: old}))
	require.NoError(t, s.CreateChallenge(ctx, &models.Challenge{ID: "done", Status: models.ChallengeCompleted, CreatedAt: old}))
	require.NoError(t, s.CreateChallenge(ctx, &models.Challenge{ID: "fresh", Status: models.ChallengeInProgress, CreatedAt: time.Now()}))

	n, err := s.ExpireChallenges(ctx, time.Now().Add(-7*24*time.Hour), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	c, _ := s.GetChallenge(ctx, "pending")
	assert.Equal(t, models.ChallengeExpired, c.Status)
	assert.NotNil(t, c.CompletedAt)
	c, _ = s.GetChallenge(ctx, "done")
	assert.Equal(t, models.ChallengeCompleted, c.Status)
	c, _ = s.GetChallenge(ctx, "fresh")
	assert.Equal(t, models.ChallengeInProgress, c.Status)
}
