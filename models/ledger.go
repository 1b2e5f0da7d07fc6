// models/ledger.go
package models

import (
	"time"

	"gorm.io/datatypes"
)

type CoinTxKind string

const (
	TxPurchase    CoinTxKind = "purchase"
	TxTransferIn  CoinTxKind = "transfer_in"
	TxTransferOut CoinTxKind = "transfer_out"
	TxGift        CoinTxKind = "gift"
	TxAdmin       CoinTxKind = "admin"
	TxSettlement  CoinTxKind = "settlement"
	TxReceipt     CoinTxKind = "receipt"
)

// CoinTransaction journals every balance change.
type CoinTransaction struct {
	ID           string     `gorm:"primaryKey;type:uuid" json:"id"`
	PlayerID     string     `gorm:"type:uuid;index:idx_coin_tx_player_time;not null" json:"player_id"`
	Delta        int64      `gorm:"not null" json:"delta"`
	BalanceAfter int64      `gorm:"not null" json:"balance_after"`
	Kind         CoinTxKind `gorm:"type:varchar(16);not null" json:"kind"`
	Reference    string     `json:"reference,omitempty"`
	CreatedAt    time.Time  `gorm:"index:idx_coin_tx_player_time" json:"created_at"`
}

// IdempotencyRecord keeps the first result of a keyed mutation.
type IdempotencyRecord struct {
	Scope       string         `gorm:"primaryKey" json:"scope"`
	Key         string         `gorm:"primaryKey;column:idem_key" json:"key"`
	Fingerprint string         `gorm:"not null;default:''" json:"fingerprint"`
	Result      datatypes.JSON `json:"result"`
	CreatedAt   time.Time      `json:"created_at"`
}

type ReceiptStatus string

const (
	ReceiptValidated ReceiptStatus = "validated"
	ReceiptRejected  ReceiptStatus = "rejected"
)

// Receipt is unique per (platform, transaction id).
type Receipt struct {
	ID            string         `gorm:"primaryKey;type:uuid" json:"id"`
	PlayerID      string         `gorm:"type:uuid;index;not null" json:"player_id"`
	Platform      string         `gorm:"uniqueIndex:idx_receipt_tx;not null" json:"platform"`
	TransactionID string         `gorm:"uniqueIndex:idx_receipt_tx;not null" json:"transaction_id"`
	ProductID     string         `gorm:"not null" json:"product_id"`
	CoinsGranted  int64          `json:"coins_granted"`
	Status        ReceiptStatus  `gorm:"type:varchar(16);not null" json:"status"`
	Payload       datatypes.JSON `json:"-"`
	CreatedAt     time.Time      `json:"created_at"`
}

// LeaderboardRow is one ranked entry of a leaderboard projection.
type LeaderboardRow struct {
	Rank     int    `json:"rank"`
	PlayerID string `json:"player_id"`
	Username string `json:"username,omitempty"`
	Score    int64  `json:"score"`
}

// ActivitySummary aggregates a player's recent activity for the suspicious-activity view.
type ActivitySummary struct {
	PlayerID   string `json:"player_id"`
	Games      int64  `json:"games"`
	CoinInflow int64  `json:"coin_inflow"`
	MaxScore   int64  `json:"max_score"`
}
