// Package store is the data-access layer behind every service. Mutations run as
// callbacks under the locking discipline of the implementation: account rows are
// locked in ascending id order and a callback either commits in full or not at all.
package store

import (
	"context"
	"errors"
	"time"

	"casual-game-core/models"
)

var (
	ErrNotFound = errors.New("store: record not found")
	ErrConflict = errors.New("store: unique constraint conflict")
	// ErrIdempotencyMismatch is returned when a key is replayed with another request.
	ErrIdempotencyMismatch = errors.New("store: idempotency key reused for a different request")
)

// MutateOptions selects the accounts a mutation locks and, optionally, the key that
// makes it replay-safe. Fingerprint identifies the request behind the key; a replay
// with a different fingerprint fails with ErrIdempotencyMismatch.
type MutateOptions struct {
	AccountIDs       []string
	IdempotencyScope string
	IdempotencyKey   string
	Fingerprint      string
}

// MutateFunc runs with every requested account locked. Its result is JSON-encoded,
// stored with the idempotency key (if any) and handed back to the caller.
type MutateFunc func(tx *AccountTx) (any, error)

// SettleFunc runs with the challenge row and both participants' accounts locked.
type SettleFunc func(c *models.Challenge, tx *AccountTx) error

// PoolQuery selects pairing candidates. Candidates come back closest to Target first,
// oldest first among equal distances, so Limit never hides a closer entry.
type PoolQuery struct {
	Region          string
	GameplayVersion string
	Target          int
	MinRating       int
	MaxRating       int
	Since           time.Time
	Limit           int
}

// PairingPlan drives one pool submission: the candidates matching Query are locked,
// Pick chooses a partner (or nil) and Build creates the challenge for the pair.
type PairingPlan struct {
	Query PoolQuery
	Pick  func(entry *models.PoolEntry, candidates []*models.PoolEntry) *models.PoolEntry
	Build func(entry, partner *models.PoolEntry) *models.Challenge
}

type AuditQuery struct {
	ActorID  string
	TargetID string
	Action   string
	Since    time.Time
	Until    time.Time
	Limit    int
}

type LeaderboardQuery struct {
	Region string
	Since  time.Time
	Limit  int
}

type AccountStore interface {
	CreateAccount(ctx context.Context, acc *models.Account) error
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	SearchProfiles(ctx context.Context, fragments []string, limit int) ([]models.Profile, error)
	WithAccounts(ctx context.Context, opts MutateOptions, fn MutateFunc) ([]byte, error)
	ListCoinTransactions(ctx context.Context, playerID string, limit int) ([]models.CoinTransaction, error)
}

type PoolStore interface {
	SubmitPoolEntry(ctx context.Context, entry *models.PoolEntry, plan PairingPlan) (*models.Challenge, error)
	DeleteUnmatchedPoolEntries(ctx context.Context, cutoff time.Time) (int64, error)
}

type ChallengeStore interface {
	CreateChallenge(ctx context.Context, c *models.Challenge) error
	GetChallenge(ctx context.Context, id string) (*models.Challenge, error)
	UpdateChallenge(ctx context.Context, id string, fn func(c *models.Challenge) error) (*models.Challenge, error)
	SettleChallenge(ctx context.Context, id string, fn SettleFunc) (*models.Challenge, error)
	ExpireChallenges(ctx context.Context, cutoff, now time.Time) (int64, error)
	ListChallenges(ctx context.Context, playerID string, limit int) ([]models.Challenge, error)
	ListUnsettledChallenges(ctx context.Context, limit int) ([]models.Challenge, error)
}

type ModerationStore interface {
	CreateReport(ctx context.Context, r *models.PlayerReport) error
	UpdateReport(ctx context.Context, id string, fn func(r *models.PlayerReport) (*models.AuditLogEntry, error)) (*models.PlayerReport, error)
	ListReports(ctx context.Context, status models.ReportStatus, limit int) ([]models.PlayerReport, error)
	ListAudit(ctx context.Context, q AuditQuery) ([]models.AuditLogEntry, error)

	SaveAnnouncement(ctx context.Context, a *models.Announcement, audit models.AuditLogEntry) error
	ListAnnouncements(ctx context.Context, activeAt *time.Time) ([]models.Announcement, error)
	SaveFeatureFlag(ctx context.Context, f *models.FeatureFlag, audit models.AuditLogEntry) error
	ListFeatureFlags(ctx context.Context) ([]models.FeatureFlag, error)
	SaveAppConfig(ctx context.Context, c *models.AppConfig, audit models.AuditLogEntry) error
	GetAppConfig(ctx context.Context, key string) (*models.AppConfig, error)
}

type SocialStore interface {
	CreateFriendship(ctx context.Context, f *models.Friendship) error
	UpdateFriendship(ctx context.Context, id string, fn func(f *models.Friendship) error) (*models.Friendship, error)
	ListFriendships(ctx context.Context, playerID string) ([]models.Friendship, error)
}

type ScoreStore interface {
	TopScores(ctx context.Context, q LeaderboardQuery) ([]models.LeaderboardRow, error)
	// ScoreRegions lists every non-empty region that has a recorded score.
	ScoreRegions(ctx context.Context) ([]string, error)
	ActivitySince(ctx context.Context, since time.Time) ([]models.ActivitySummary, error)
}

type ReceiptStore interface {
	GetReceipt(ctx context.Context, platform, transactionID string) (*models.Receipt, error)
	SaveReceipt(ctx context.Context, r *models.Receipt) error
}

// Store is the full data-access surface.
type Store interface {
	AccountStore
	PoolStore
	ChallengeStore
	ModerationStore
	SocialStore
	ScoreStore
	ReceiptStore
}
