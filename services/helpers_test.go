package services

import (
	"context"
	"testing"
	"time"

	"casual-game-core/models"
	"casual-game-core/store"
	"casual-game-core/store/memstore"

	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestStore() (*memstore.Store, *fakeClock) {
	clk := &fakeClock{t: testNow}
	st := memstore.New()
	st.Now = clk.Now
	return st, clk
}

type seedOpt func(acc *models.Account)

func withRole(r models.AdminRole) seedOpt {
	return func(acc *models.Account) { acc.Profile.Role = r }
}

func owning(items ...string) seedOpt {
	return func(acc *models.Account) {
		for _, it := range items {
			acc.Grant(it)
		}
	}
}

func seedPlayer(t *testing.T, st *memstore.Store, id string, coins int64, opts ...seedOpt) {
	t.Helper()
	acc := models.NewAccount(id, id, UsernameSlug(id), testNow)
	acc.Profile.Coins = coins
	for _, o := range opts {
		o(acc)
	}
	require.NoError(t, st.CreateAccount(context.Background(), acc))
}

func coinsOf(t *testing.T, st *memstore.Store, id string) int64 {
	t.Helper()
	acc, err := st.GetAccount(context.Background(), id)
	require.NoError(t, err)
	return acc.Profile.Coins
}

func intPtr(v int) *int { return &v }

func banOpts(id string) store.MutateOptions {
	return store.MutateOptions{AccountIDs: []string{id}}
}

// banFn bans id permanently, bypassing the admin gateway.
func banFn(id string) store.MutateFunc {
	return func(tx *store.AccountTx) (any, error) {
		acc, _ := tx.Account(id)
		at := tx.Now.Add(-time.Minute)
		acc.Profile.BannedAt = &at
		return nil, nil
	}
}
