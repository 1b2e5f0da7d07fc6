// services/receipt_service.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"casual-game-core/apperrors"
	"casual-game-core/models"
	"casual-game-core/store"

	"github.com/google/uuid"
)

type ReceiptStores interface {
	store.AccountStore
	store.ReceiptStore
}

// ReceiptService credits coins for purchase receipts. Validation is delegated to an
// external collaborator and happens before any account is locked.
type ReceiptService struct {
	Store     ReceiptStores
	Ledger    *LedgerService
	Validator ReceiptValidator
	// Products maps a product id to the coins it grants.
	Products map[string]int64
	Now      func() time.Time
}

func NewReceiptService(st ReceiptStores, ledger *LedgerService, validator ReceiptValidator, products map[string]int64) *ReceiptService {
	return &ReceiptService{Store: st, Ledger: ledger, Validator: validator, Products: products, Now: time.Now}
}

type ReceiptSubmission struct {
	PlayerID      string
	Platform      string
	TransactionID string
	ProductID     string
	Payload       json.RawMessage
}

type ReceiptResult struct {
	Receipt    *models.Receipt `json:"receipt"`
	NewBalance int64           `json:"new_balance"`
}

func receiptIdempotencyKey(platform, transactionID string) string {
	return fmt.Sprintf("receipt:%s:%s", platform, transactionID)
}

// RecordReceipt validates, persists and credits a receipt. Replaying the same
// (platform, transaction id) never credits twice.
func (s *ReceiptService) RecordReceipt(ctx context.Context, sub ReceiptSubmission) (*ReceiptResult, error) {
	sub.Platform = strings.ToLower(strings.TrimSpace(sub.Platform))
	sub.TransactionID = strings.TrimSpace(sub.TransactionID)
	if sub.Platform == "" || sub.TransactionID == "" || sub.ProductID == "" {
		return nil, apperrors.NewAppError(apperrors.CodeInvalidInput, "platform, transaction_id and product_id are required", nil)
	}

	existing, err := s.Store.GetReceipt(ctx, sub.Platform, sub.TransactionID)
	switch {
	case err == nil:
		if existing.PlayerID != sub.PlayerID {
			return nil, apperrors.NewAppError(apperrors.CodeAlreadyExists, "receipt belongs to another player", nil)
		}
		if existing.Status != models.ReceiptValidated {
			return nil, apperrors.NewAppError(apperrors.CodeReceiptInvalid, "receipt was rejected", nil)
		}
		return s.credit(ctx, existing)
	case !errors.Is(err, store.ErrNotFound):
		return nil, storeErr("get receipt", "receipt", err)
	}

	coins, ok := s.Products[sub.ProductID]
	if !ok {
		return nil, apperrors.Newf(apperrors.CodeInvalidInput, "unknown product %q", sub.ProductID)
	}
	if s.Validator == nil {
		return nil, fmt.Errorf("receipt validation is not configured")
	}
	verdict, err := s.Validator.Validate(ctx, sub.Platform, sub.TransactionID, sub.Payload)
	if err != nil {
		return nil, fmt.Errorf("validate receipt: %w", err)
	}

	r := &models.Receipt{
		ID:            uuid.NewString(),
		PlayerID:      sub.PlayerID,
		Platform:      sub.Platform,
		TransactionID: sub.TransactionID,
		ProductID:     sub.ProductID,
		Status:        models.ReceiptValidated,
		Payload:       []byte(sub.Payload),
		CreatedAt:     clock(s.Now).now(),
	}
	if !verdict.Valid || verdict.ProductID != sub.ProductID {
		r.Status = models.ReceiptRejected
	} else {
		r.CoinsGranted = coins
	}
	if len(r.Payload) == 0 {
		r.Payload = []byte("null")
	}

	if err := s.Store.SaveReceipt(ctx, r); err != nil {
		if !errors.Is(err, store.ErrConflict) {
			return nil, storeErr("save receipt", "receipt", err)
		}
		// A concurrent submission of the same receipt won; continue from its row.
		if r, err = s.Store.GetReceipt(ctx, sub.Platform, sub.TransactionID); err != nil {
			return nil, storeErr("get receipt", "receipt", err)
		}
		if r.PlayerID != sub.PlayerID {
			return nil, apperrors.NewAppError(apperrors.CodeAlreadyExists, "receipt belongs to another player", nil)
		}
	}
	if r.Status != models.ReceiptValidated {
		log.Printf("🧾 [RECEIPT] rejected %s/%s for %s: %s", sub.Platform, sub.TransactionID, sub.PlayerID, verdict.Reason)
		return nil, apperrors.NewAppError(apperrors.CodeReceiptInvalid, "receipt rejected by validator", nil)
	}
	return s.credit(ctx, r)
}

func (s *ReceiptService) credit(ctx context.Context, r *models.Receipt) (*ReceiptResult, error) {
	res, err := s.Ledger.Credit(ctx, r.PlayerID, r.CoinsGranted, models.TxReceipt,
		r.Platform+":"+r.TransactionID, receiptIdempotencyKey(r.Platform, r.TransactionID))
	if err != nil {
		return nil, err
	}
	return &ReceiptResult{Receipt: r, NewBalance: res.NewBalance}, nil
}
