// Package gormstore is the PostgreSQL Store. Account rows are locked with
// SELECT ... FOR UPDATE one at a time in ascending id order.
package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"casual-game-core/models"
	"casual-game-core/store"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Store struct {
	DB  *gorm.DB
	Now func() time.Time
}

var _ store.Store = (*Store)(nil)

func New(db *gorm.DB) *Store {
	return &Store{DB: db, Now: time.Now}
}

// Open connects to PostgreSQL with constraint errors translated to gorm sentinels.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// Migrate creates or updates every table the core owns.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Profile{},
		&models.AccountState{},
		&models.Score{},
		&models.PoolEntry{},
		&models.Challenge{},
		&models.AuditLogEntry{},
		&models.PlayerReport{},
		&models.AppConfig{},
		&models.FeatureFlag{},
		&models.Announcement{},
		&models.Friendship{},
		&models.CoinTransaction{},
		&models.IdempotencyRecord{},
		&models.Receipt{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

func (s *Store) now() time.Time { return s.Now().UTC() }

// translate maps gorm errors onto store sentinels and leaves everything else as is.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return store.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return store.ErrConflict
	}
	return err
}

func forUpdate() clause.Locking { return clause.Locking{Strength: "UPDATE"} }

// lim turns "no limit" (<= 0) into gorm's -1.
func lim(n int) int {
	if n <= 0 {
		return -1
	}
	return n
}

// ---- accounts ----

func (s *Store) CreateAccount(ctx context.Context, acc *models.Account) error {
	return translate(s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&acc.Profile).Error; err != nil {
			return err
		}
		return tx.Create(&acc.State).Error
	}))
}

func (s *Store) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	return loadAccount(s.DB.WithContext(ctx), id, false)
}

func loadAccount(tx *gorm.DB, id string, lock bool) (*models.Account, error) {
	q := tx
	if lock {
		q = q.Clauses(forUpdate())
	}
	var acc models.Account
	if err := q.Where("id = ?", id).First(&acc.Profile).Error; err != nil {
		return nil, translate(err)
	}
	if err := tx.Where("player_id = ?", id).First(&acc.State).Error; err != nil {
		return nil, translate(err)
	}
	return &acc, nil
}

// lockAccounts loads and locks ids (already in lock order). Missing ids are skipped.
func lockAccounts(tx *gorm.DB, ids []string) (map[string]*models.Account, error) {
	out := make(map[string]*models.Account, len(ids))
	for _, id := range ids {
		acc, err := loadAccount(tx, id, true)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[id] = acc
	}
	return out, nil
}

func commitChanges(tx *gorm.DB, ch store.Changes) error {
	for _, acc := range ch.Accounts {
		if err := tx.Save(&acc.Profile).Error; err != nil {
			return err
		}
		if err := tx.Save(&acc.State).Error; err != nil {
			return err
		}
	}
	for _, id := range ch.Deleted {
		if err := tx.Where("player_id = ?", id).Delete(&models.AccountState{}).Error; err != nil {
			return err
		}
		if err := tx.Where("id = ?", id).Delete(&models.Profile{}).Error; err != nil {
			return err
		}
	}
	if len(ch.Audit) > 0 {
		if err := tx.Create(&ch.Audit).Error; err != nil {
			return err
		}
	}
	if len(ch.Journal) > 0 {
		if err := tx.Create(&ch.Journal).Error; err != nil {
			return err
		}
	}
	if len(ch.Scores) > 0 {
		if err := tx.Create(&ch.Scores).Error; err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) WithAccounts(ctx context.Context, opts store.MutateOptions, fn store.MutateFunc) ([]byte, error) {
	var result []byte
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		accounts, err := lockAccounts(tx, store.LockOrder(opts.AccountIDs))
		if err != nil {
			return err
		}

		if opts.IdempotencyKey != "" {
			var rec models.IdempotencyRecord
			err := tx.Where("scope = ? AND idem_key = ?", opts.IdempotencyScope, opts.IdempotencyKey).First(&rec).Error
			if err == nil {
				if rec.Fingerprint != opts.Fingerprint {
					return store.ErrIdempotencyMismatch
				}
				result = rec.Result
				return nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}

		now := s.now()
		atx := store.NewAccountTx(now, accounts)
		v, err := fn(atx)
		if err != nil {
			return err
		}
		if result, err = json.Marshal(v); err != nil {
			return fmt.Errorf("encode mutation result: %w", err)
		}
		if err := commitChanges(tx, atx.Changes()); err != nil {
			return err
		}
		if opts.IdempotencyKey != "" {
			return tx.Create(&models.IdempotencyRecord{
				Scope:       opts.IdempotencyScope,
				Key:         opts.IdempotencyKey,
				Fingerprint: opts.Fingerprint,
				Result:      result,
				CreatedAt:   now,
			}).Error
		}
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}
	return result, nil
}

func (s *Store) SearchProfiles(ctx context.Context, fragments []string, limit int) ([]models.Profile, error) {
	var conds []string
	var args []any
	for _, f := range fragments {
		if f != "" {
			conds = append(conds, "username_slug LIKE ?")
			args = append(args, "%"+f+"%")
		}
	}
	if len(conds) == 0 {
		return nil, nil
	}
	var out []models.Profile
	err := s.DB.WithContext(ctx).Where(strings.Join(conds, " OR "), args...).
		Order("username_slug ASC").Limit(lim(limit)).Find(&out).Error
	return out, translate(err)
}

func (s *Store) ListCoinTransactions(ctx context.Context, playerID string, limit int) ([]models.CoinTransaction, error) {
	var out []models.CoinTransaction
	err := s.DB.WithContext(ctx).Where("player_id = ?", playerID).
		Order("created_at DESC").Limit(lim(limit)).Find(&out).Error
	return out, translate(err)
}

// ---- pool ----

func (s *Store) SubmitPoolEntry(ctx context.Context, entry *models.PoolEntry, plan store.PairingPlan) (*models.Challenge, error) {
	var created *models.Challenge
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(entry).Error; err != nil {
			return err
		}

		q := plan.Query
		var rows []models.PoolEntry
		// SKIP LOCKED: an entry another submission is pairing right now is not a candidate.
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("region = ? AND gameplay_version = ? AND matched_at IS NULL", q.Region, q.GameplayVersion).
			Where("player_id <> ? AND id <> ?", entry.PlayerID, entry.ID).
			Where("skill_rating BETWEEN ? AND ? AND created_at >= ?", q.MinRating, q.MaxRating, q.Since).
			Order(clause.OrderBy{Expression: clause.Expr{
				SQL:                "ABS(skill_rating - ?) ASC, created_at ASC, id ASC",
				Vars:               []any{q.Target},
				WithoutParentheses: true,
			}}).
			Limit(lim(q.Limit)).
			Find(&rows).Error; err != nil {
			return err
		}
		candidates := make([]*models.PoolEntry, len(rows))
		for i := range rows {
			candidates[i] = &rows[i]
		}

		partner := plan.Pick(entry, candidates)
		if partner == nil {
			return nil
		}
		c := plan.Build(entry, partner)
		if err := tx.Create(c).Error; err != nil {
			return err
		}
		now := s.now()
		res := tx.Model(&models.PoolEntry{}).
			Where("id IN ? AND matched_at IS NULL", []string{entry.ID, partner.ID}).
			Updates(map[string]any{"matched_at": now, "challenge_id": c.ID})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 2 {
			return fmt.Errorf("pool pairing touched %d entries: %w", res.RowsAffected, store.ErrConflict)
		}
		entry.MatchedAt = &now
		entry.ChallengeID = &c.ID
		created = c
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}
	return created, nil
}

func (s *Store) DeleteUnmatchedPoolEntries(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.DB.WithContext(ctx).
		Where("matched_at IS NULL AND created_at < ?", cutoff).
		Delete(&models.PoolEntry{})
	return res.RowsAffected, translate(res.Error)
}

// ---- challenges ----

func (s *Store) CreateChallenge(ctx context.Context, c *models.Challenge) error {
	return translate(s.DB.WithContext(ctx).Create(c).Error)
}

func (s *Store) GetChallenge(ctx context.Context, id string) (*models.Challenge, error) {
	var c models.Challenge
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (s *Store) UpdateChallenge(ctx context.Context, id string, fn func(c *models.Challenge) error) (*models.Challenge, error) {
	var c models.Challenge
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(forUpdate()).Where("id = ?", id).First(&c).Error; err != nil {
			return err
		}
		if err := fn(&c); err != nil {
			return err
		}
		return tx.Save(&c).Error
	})
	if err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (s *Store) SettleChallenge(ctx context.Context, id string, fn store.SettleFunc) (*models.Challenge, error) {
	var c models.Challenge
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(forUpdate()).Where("id = ?", id).First(&c).Error; err != nil {
			return err
		}
		accounts, err := lockAccounts(tx, store.LockOrder([]string{c.ChallengerID, c.OpponentID}))
		if err != nil {
			return err
		}
		atx := store.NewAccountTx(s.now(), accounts)
		if err := fn(&c, atx); err != nil {
			return err
		}
		if err := commitChanges(tx, atx.Changes()); err != nil {
			return err
		}
		return tx.Save(&c).Error
	})
	if err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

// ExpireChallenges is a single conditional UPDATE; rows that turned terminal in the
// meantime no longer match the predicate.
func (s *Store) ExpireChallenges(ctx context.Context, cutoff, now time.Time) (int64, error) {
	res := s.DB.WithContext(ctx).Model(&models.Challenge{}).
		Where("status IN ? AND created_at < ?",
			[]models.ChallengeStatus{models.ChallengePending, models.ChallengeInProgress}, cutoff).
		Updates(map[string]any{"status": models.ChallengeExpired, "completed_at": now})
	return res.RowsAffected, translate(res.Error)
}

func (s *Store) ListChallenges(ctx context.Context, playerID string, limit int) ([]models.Challenge, error) {
	var out []models.Challenge
	err := s.DB.WithContext(ctx).
		Where("challenger_id = ? OR opponent_id = ?", playerID, playerID).
		Order("created_at DESC").Limit(lim(limit)).Find(&out).Error
	return out, translate(err)
}

func (s *Store) ListUnsettledChallenges(ctx context.Context, limit int) ([]models.Challenge, error) {
	var out []models.Challenge
	err := s.DB.WithContext(ctx).
		Where("status = ? AND settled_at IS NULL", models.ChallengeCompleted).
		Order("created_at ASC").Limit(lim(limit)).Find(&out).Error
	return out, translate(err)
}
