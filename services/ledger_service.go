// services/ledger_service.go
package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"

	"casual-game-core/apperrors"
	"casual-game-core/models"
	"casual-game-core/store"
)

// LedgerService is the transaction engine: every balance or ownership change runs
// as one store mutation with the touched accounts locked.
type LedgerService struct {
	Store store.AccountStore
}

func NewLedgerService(st store.AccountStore) *LedgerService {
	return &LedgerService{Store: st}
}

type PurchaseResult struct {
	Success    bool   `json:"success"`
	ItemID     string `json:"item_id"`
	NewBalance int64  `json:"new_balance"`
}

type TransferResult struct {
	Success       bool  `json:"success"`
	SenderBalance int64 `json:"sender_balance"`
}

type CreditResult struct {
	Success    bool  `json:"success"`
	NewBalance int64 `json:"new_balance"`
}

// ledgerOpts locks ids. With a key, the request is fingerprinted from its arguments so
// the key cannot be replayed for a different purchase or transfer.
func ledgerOpts(scope, key string, request []any, ids ...string) store.MutateOptions {
	opts := store.MutateOptions{AccountIDs: ids, IdempotencyScope: scope, IdempotencyKey: key}
	if key != "" {
		sum := sha256.Sum256(fmt.Append(nil, request...))
		opts.Fingerprint = hex.EncodeToString(sum[:])
	}
	return opts
}

// Purchase debits cost and grants itemID. idempotencyKey may be empty.
func (s *LedgerService) Purchase(ctx context.Context, playerID, itemID string, cost int64, idempotencyKey string) (*PurchaseResult, error) {
	raw, err := s.Store.WithAccounts(ctx, ledgerOpts("purchase:"+playerID, idempotencyKey, []any{itemID, "|", cost}, playerID), func(tx *store.AccountTx) (any, error) {
		acc, ok := tx.Account(playerID)
		if !ok {
			return nil, apperrors.NewAppError(apperrors.CodeNotFound, "player not found", nil)
		}
		if err := requireActive(acc, tx.Now); err != nil {
			return nil, err
		}
		if err := applyPurchase(acc, itemID, cost); err != nil {
			return nil, err
		}
		tx.Journal(acc, -cost, models.TxPurchase, itemID)
		return PurchaseResult{Success: true, ItemID: itemID, NewBalance: acc.Profile.Coins}, nil
	})
	if err != nil {
		return nil, storeErr("purchase", "player", err)
	}
	log.Printf("[LEDGER] purchase player=%s item=%s cost=%d", playerID, itemID, cost)
	return decode[PurchaseResult](raw)
}

// Transfer moves coins between two players. Both accounts are locked in ascending id
// order whatever the direction of the transfer.
func (s *LedgerService) Transfer(ctx context.Context, senderID, recipientID string, amount int64, idempotencyKey string) (*TransferResult, error) {
	if amount <= 0 {
		return nil, apperrors.ErrInvalidAmount
	}
	if senderID == recipientID {
		return nil, apperrors.ErrSelfTransfer
	}
	raw, err := s.Store.WithAccounts(ctx, ledgerOpts("transfer:"+senderID, idempotencyKey, []any{recipientID, "|", amount}, senderID, recipientID), func(tx *store.AccountTx) (any, error) {
		sender, ok := tx.Account(senderID)
		if !ok {
			return nil, apperrors.NewAppError(apperrors.CodeNotFound, "sender not found", nil)
		}
		if err := requireActive(sender, tx.Now); err != nil {
			return nil, err
		}
		recipient, ok := tx.Account(recipientID)
		if !ok {
			return nil, apperrors.NewAppError(apperrors.CodeNotFound, "recipient not found", nil)
		}
		if err := applyTransfer(sender, recipient, amount); err != nil {
			return nil, err
		}
		tx.Journal(sender, -amount, models.TxTransferOut, recipientID)
		tx.Journal(recipient, amount, models.TxTransferIn, senderID)
		return TransferResult{Success: true, SenderBalance: sender.Profile.Coins}, nil
	})
	if err != nil {
		return nil, storeErr("transfer", "player", err)
	}
	log.Printf("[LEDGER] transfer %s -> %s amount=%d", senderID, recipientID, amount)
	return decode[TransferResult](raw)
}

// Gift debits the gifter and grants itemID to the recipient.
func (s *LedgerService) Gift(ctx context.Context, gifterID, recipientID, itemID string, cost int64, idempotencyKey string) (*PurchaseResult, error) {
	if gifterID == recipientID {
		return nil, apperrors.ErrSelfTransfer
	}
	raw, err := s.Store.WithAccounts(ctx, ledgerOpts("gift:"+gifterID, idempotencyKey, []any{recipientID, "|", itemID, "|", cost}, gifterID, recipientID), func(tx *store.AccountTx) (any, error) {
		gifter, ok := tx.Account(gifterID)
		if !ok {
			return nil, apperrors.NewAppError(apperrors.CodeNotFound, "gifter not found", nil)
		}
		if err := requireActive(gifter, tx.Now); err != nil {
			return nil, err
		}
		recipient, ok := tx.Account(recipientID)
		if !ok {
			return nil, apperrors.NewAppError(apperrors.CodeNotFound, "recipient not found", nil)
		}
		if err := applyGift(gifter, recipient, itemID, cost); err != nil {
			return nil, err
		}
		tx.Journal(gifter, -cost, models.TxGift, recipientID+":"+itemID)
		return PurchaseResult{Success: true, ItemID: itemID, NewBalance: gifter.Profile.Coins}, nil
	})
	if err != nil {
		return nil, storeErr("gift", "player", err)
	}
	log.Printf("[LEDGER] gift %s -> %s item=%s cost=%d", gifterID, recipientID, itemID, cost)
	return decode[PurchaseResult](raw)
}

// Credit adds coins from a system source (receipts). A non-empty key makes it
// replay-safe.
func (s *LedgerService) Credit(ctx context.Context, playerID string, amount int64, kind models.CoinTxKind, ref, idempotencyKey string) (*CreditResult, error) {
	raw, err := s.Store.WithAccounts(ctx, ledgerOpts("credit", idempotencyKey, []any{playerID, "|", amount, "|", kind, "|", ref}, playerID), func(tx *store.AccountTx) (any, error) {
		acc, ok := tx.Account(playerID)
		if !ok {
			return nil, apperrors.NewAppError(apperrors.CodeNotFound, "player not found", nil)
		}
		if err := applyCredit(acc, amount); err != nil {
			return nil, err
		}
		tx.Journal(acc, amount, kind, ref)
		return CreditResult{Success: true, NewBalance: acc.Profile.Coins}, nil
	})
	if err != nil {
		return nil, storeErr("credit", "player", err)
	}
	return decode[CreditResult](raw)
}

// Equip puts an owned item into an equip slot.
func (s *LedgerService) Equip(ctx context.Context, playerID, slot, itemID string) (map[string]string, error) {
	raw, err := s.Store.WithAccounts(ctx, store.MutateOptions{AccountIDs: []string{playerID}}, func(tx *store.AccountTx) (any, error) {
		acc, ok := tx.Account(playerID)
		if !ok {
			return nil, apperrors.NewAppError(apperrors.CodeNotFound, "player not found", nil)
		}
		if err := applyEquip(acc, slot, itemID); err != nil {
			return nil, err
		}
		return acc.State.Equipped.Data(), nil
	})
	if err != nil {
		return nil, storeErr("equip", "player", err)
	}
	out, err := decode[map[string]string](raw)
	if err != nil {
		return nil, err
	}
	return *out, nil
}

// History lists the most recent coin movements of a player.
func (s *LedgerService) History(ctx context.Context, playerID string, limit int) ([]models.CoinTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	txs, err := s.Store.ListCoinTransactions(ctx, playerID, limit)
	return txs, storeErr("history", "player", err)
}
