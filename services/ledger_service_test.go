package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"casual-game-core/apperrors"
	"casual-game-core/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPurchase(t *testing.T) {
	st, _ := newTestStore()
	seedPlayer(t, st, "p1", 500)
	ledger := NewLedgerService(st)
	ctx := context.Background()

	res, err := ledger.Purchase(ctx, "p1", "cosmetic:hat", 300, "")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, int64(200), res.NewBalance)

	// Second purchase of the same item reports ownership before funds.
	_, err = ledger.Purchase(ctx, "p1", "cosmetic:hat", 300, "")
	assert.ErrorIs(t, err, apperrors.ErrAlreadyOwned)

	_, err = ledger.Purchase(ctx, "p1", "avatar:hair_gold", 250, "")
	assert.ErrorIs(t, err, apperrors.ErrInsufficientFunds)

	_, err = ledger.Purchase(ctx, "p1", "cosmetic:cape", -1, "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidAmount)

	_, err = ledger.Purchase(ctx, "ghost", "cosmetic:cape", 1, "")
	assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))

	assert.Equal(t, int64(200), coinsOf(t, st, "p1"))
	acc, _ := st.GetAccount(ctx, "p1")
	assert.True(t, acc.Owns("cosmetic:hat"))

	txs, err := ledger.History(ctx, "p1", 10)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, int64(-300), txs[0].Delta)
	assert.Equal(t, int64(200), txs[0].BalanceAfter)
	assert.Equal(t, models.TxPurchase, txs[0].Kind)
}

func TestPurchaseAvatarPartGoesToAvatarSet(t *testing.T) {
	st, _ := newTestStore()
	seedPlayer(t, st, "p1", 100)
	ledger := NewLedgerService(st)

	_, err := ledger.Purchase(context.Background(), "p1", "avatar:hair_red", 10, "")
	require.NoError(t, err)
	acc, _ := st.GetAccount(context.Background(), "p1")
	assert.Contains(t, acc.State.OwnedAvatarParts, "avatar:hair_red")
	assert.NotContains(t, acc.State.OwnedCosmetics, "avatar:hair_red")
}

func TestPurchaseRejectedWhileBanned(t *testing.T) {
	st, _ := newTestStore()
	seedPlayer(t, st, "p1", 100, func(acc *models.Account) {
		banned := testNow.Add(-time.Hour)
		acc.Profile.BannedAt = &banned
	})
	_, err := NewLedgerService(st).Purchase(context.Background(), "p1", "cosmetic:hat", 10, "")
	assert.ErrorIs(t, err, apperrors.ErrAccountBanned)
}

func TestPurchaseIdempotencyKey(t *testing.T) {
	st, _ := newTestStore()
	seedPlayer(t, st, "p1", 500)
	ledger := NewLedgerService(st)
	ctx := context.Background()

	first, err := ledger.Purchase(ctx, "p1", "cosmetic:hat", 300, "req-1")
	require.NoError(t, err)
	replay, err := ledger.Purchase(ctx, "p1", "cosmetic:hat", 300, "req-1")
	require.NoError(t, err)
	assert.Equal(t, first, replay)
	assert.Equal(t, int64(200), coinsOf(t, st, "p1"))
}

func TestIdempotencyKeyBoundToRequest(t *testing.T) {
	st, _ := newTestStore()
	seedPlayer(t, st, "p1", 500)
	seedPlayer(t, st, "p2", 0)
	ledger := NewLedgerService(st)
	ctx := context.Background()

	_, err := ledger.Purchase(ctx, "p1", "cosmetic:hat", 100, "req-1")
	require.NoError(t, err)

	_, err = ledger.Purchase(ctx, "p1", "cosmetic:scarf", 100, "req-1")
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.CodeOf(err))
	_, err = ledger.Purchase(ctx, "p1", "cosmetic:hat", 50, "req-1")
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.CodeOf(err))

	acc, err := st.GetAccount(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, acc.Owns("cosmetic:scarf"))
	assert.Equal(t, int64(400), acc.Profile.Coins)

	_, err = ledger.Transfer(ctx, "p1", "p2", 10, "t-1")
	require.NoError(t, err)
	_, err = ledger.Transfer(ctx, "p1", "p2", 20, "t-1")
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.CodeOf(err))
	assert.Equal(t, int64(10), coinsOf(t, st, "p2"))
}

func TestTransfer(t *testing.T) {
	st, _ := newTestStore()
	seedPlayer(t, st, "a", 100)
	seedPlayer(t, st, "b", 0)
	ledger := NewLedgerService(st)
	ctx := context.Background()

	res, err := ledger.Transfer(ctx, "a", "b", 40, "")
	require.NoError(t, err)
	assert.Equal(t, int64(60), res.SenderBalance)
	assert.Equal(t, int64(40), coinsOf(t, st, "b"))

	cases := []struct {
		name     string
		from, to string
		amount   int64
		wantCode apperrors.Code
	}{
		{"zero", "a", "b", 0, apperrors.CodeInvalidAmount},
		{"negative", "a", "b", -5, apperrors.CodeInvalidAmount},
		{"self", "a", "a", 5, apperrors.CodeSelfTransfer},
		{"overdraw", "a", "b", 61, apperrors.CodeInsufficientFunds},
		{"missing recipient", "a", "ghost", 5, apperrors.CodeNotFound},
		{"missing sender", "ghost", "a", 5, apperrors.CodeNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ledger.Transfer(ctx, tc.from, tc.to, tc.amount, "")
			assert.Equal(t, tc.wantCode, apperrors.CodeOf(err))
		})
	}
	assert.Equal(t, int64(60), coinsOf(t, st, "a"))
	assert.Equal(t, int64(40), coinsOf(t, st, "b"))
}

func TestConcurrentTransfersConserveCoins(t *testing.T) {
	st, _ := newTestStore()
	seedPlayer(t, st, "a", 100)
	seedPlayer(t, st, "b", 100)
	ledger := NewLedgerService(st)

	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				_, _ = ledger.Transfer(context.Background(), "a", "b", 7, "")
			} else {
				_, _ = ledger.Transfer(context.Background(), "b", "a", 7, "")
			}
		}()
	}
	wg.Wait()

	a, b := coinsOf(t, st, "a"), coinsOf(t, st, "b")
	assert.GreaterOrEqual(t, a, int64(0))
	assert.GreaterOrEqual(t, b, int64(0))
	assert.Equal(t, int64(200), a+b)
}

func TestConcurrentDuplicatePurchaseChargesOnce(t *testing.T) {
	st, _ := newTestStore()
	seedPlayer(t, st, "p1", 1000)
	ledger := NewLedgerService(st)

	var wg sync.WaitGroup
	results := make(chan error, 20)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.Purchase(context.Background(), "p1", "cosmetic:crown", 100, "")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	ok, owned := 0, 0
	for err := range results {
		switch {
		case err == nil:
			ok++
		case apperrors.CodeOf(err) == apperrors.CodeAlreadyOwned:
			owned++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 19, owned)
	assert.Equal(t, int64(900), coinsOf(t, st, "p1"))
}

func TestGift(t *testing.T) {
	st, _ := newTestStore()
	seedPlayer(t, st, "a", 100)
	seedPlayer(t, st, "b", 0, owning("cosmetic:hat"))
	ledger := NewLedgerService(st)
	ctx := context.Background()

	res, err := ledger.Gift(ctx, "a", "b", "cosmetic:cape", 60, "")
	require.NoError(t, err)
	assert.Equal(t, int64(40), res.NewBalance)
	b, _ := st.GetAccount(ctx, "b")
	assert.True(t, b.Owns("cosmetic:cape"))
	assert.Equal(t, int64(0), b.Profile.Coins)

	_, err = ledger.Gift(ctx, "a", "b", "cosmetic:hat", 10, "")
	assert.ErrorIs(t, err, apperrors.ErrRecipientAlreadyOwns)

	_, err = ledger.Gift(ctx, "a", "b", "cosmetic:crown", 50, "")
	assert.ErrorIs(t, err, apperrors.ErrInsufficientFunds)

	_, err = ledger.Gift(ctx, "a", "a", "cosmetic:crown", 1, "")
	assert.ErrorIs(t, err, apperrors.ErrSelfTransfer)

	_, err = ledger.Gift(ctx, "a", "ghost", "cosmetic:crown", 1, "")
	assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
}

func TestCredit(t *testing.T) {
	st, _ := newTestStore()
	seedPlayer(t, st, "p1", 0)
	ledger := NewLedgerService(st)
	ctx := context.Background()

	res, err := ledger.Credit(ctx, "p1", 500, models.TxReceipt, "r1", "receipt:ios:1")
	require.NoError(t, err)
	assert.Equal(t, int64(500), res.NewBalance)
	_, err = ledger.Credit(ctx, "p1", 500, models.TxReceipt, "r1", "receipt:ios:1")
	require.NoError(t, err)
	assert.Equal(t, int64(500), coinsOf(t, st, "p1"))

	_, err = ledger.Credit(ctx, "p1", 0, models.TxReceipt, "r2", "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidAmount)
}

func TestEquip(t *testing.T) {
	st, _ := newTestStore()
	seedPlayer(t, st, "p1", 0, owning("cosmetic:hat", "avatar:hair_red"))
	ledger := NewLedgerService(st)
	ctx := context.Background()

	eq, err := ledger.Equip(ctx, "p1", models.SlotCosmetic, "cosmetic:hat")
	require.NoError(t, err)
	assert.Equal(t, "cosmetic:hat", eq[models.SlotCosmetic])

	_, err = ledger.Equip(ctx, "p1", models.SlotHair, "avatar:hair_red")
	require.NoError(t, err)
	acc, _ := st.GetAccount(ctx, "p1")
	assert.Equal(t, "avatar:hair_red", acc.Profile.Avatar.Data().Hair)

	_, err = ledger.Equip(ctx, "p1", models.SlotCosmetic, "cosmetic:crown")
	assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
	_, err = ledger.Equip(ctx, "p1", models.SlotHair, "cosmetic:hat")
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.CodeOf(err))
	_, err = ledger.Equip(ctx, "p1", "shoes", "cosmetic:hat")
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.CodeOf(err))

	eq, err = ledger.Equip(ctx, "p1", models.SlotHair, "")
	require.NoError(t, err)
	assert.NotContains(t, eq, models.SlotHair)
}
