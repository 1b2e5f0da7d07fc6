package gormstore

import (
	"context"
	"time"

	"casual-game-core/models"
	"casual-game-core/store"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ---- moderation ----

func (s *Store) CreateReport(ctx context.Context, r *models.PlayerReport) error {
	return translate(s.DB.WithContext(ctx).Create(r).Error)
}

func (s *Store) UpdateReport(ctx context.Context, id string, fn func(r *models.PlayerReport) (*models.AuditLogEntry, error)) (*models.PlayerReport, error) {
	var r models.PlayerReport
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(forUpdate()).Where("id = ?", id).First(&r).Error; err != nil {
			return err
		}
		audit, err := fn(&r)
		if err != nil {
			return err
		}
		if err := tx.Save(&r).Error; err != nil {
			return err
		}
		if audit != nil {
			return tx.Create(audit).Error
		}
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}
	return &r, nil
}

func (s *Store) ListReports(ctx context.Context, status models.ReportStatus, limit int) ([]models.PlayerReport, error) {
	q := s.DB.WithContext(ctx)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []models.PlayerReport
	err := q.Order("created_at DESC").Limit(lim(limit)).Find(&out).Error
	return out, translate(err)
}

func (s *Store) ListAudit(ctx context.Context, aq store.AuditQuery) ([]models.AuditLogEntry, error) {
	q := s.DB.WithContext(ctx)
	if aq.ActorID != "" {
		q = q.Where("actor_id = ?", aq.ActorID)
	}
	if aq.TargetID != "" {
		q = q.Where("target_id = ?", aq.TargetID)
	}
	if aq.Action != "" {
		q = q.Where("action = ?", aq.Action)
	}
	if !aq.Since.IsZero() {
		q = q.Where("created_at >= ?", aq.Since)
	}
	if !aq.Until.IsZero() {
		q = q.Where("created_at < ?", aq.Until)
	}
	var out []models.AuditLogEntry
	err := q.Order("created_at DESC").Limit(lim(aq.Limit)).Find(&out).Error
	return out, translate(err)
}

// saveWithAudit upserts v and appends the audit entry in one transaction.
func (s *Store) saveWithAudit(ctx context.Context, v any, audit models.AuditLogEntry) error {
	return translate(s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(v).Error; err != nil {
			return err
		}
		return tx.Create(&audit).Error
	}))
}

func (s *Store) SaveAnnouncement(ctx context.Context, a *models.Announcement, audit models.AuditLogEntry) error {
	return s.saveWithAudit(ctx, a, audit)
}

func (s *Store) ListAnnouncements(ctx context.Context, activeAt *time.Time) ([]models.Announcement, error) {
	q := s.DB.WithContext(ctx)
	if activeAt != nil {
		q = q.Where("active = ?", true).
			Where("starts_at IS NULL OR starts_at <= ?", *activeAt).
			Where("ends_at IS NULL OR ends_at > ?", *activeAt)
	}
	var out []models.Announcement
	err := q.Order("created_at DESC").Find(&out).Error
	return out, translate(err)
}

func (s *Store) SaveFeatureFlag(ctx context.Context, f *models.FeatureFlag, audit models.AuditLogEntry) error {
	return s.saveWithAudit(ctx, f, audit)
}

func (s *Store) ListFeatureFlags(ctx context.Context) ([]models.FeatureFlag, error) {
	var out []models.FeatureFlag
	err := s.DB.WithContext(ctx).Order("key ASC").Find(&out).Error
	return out, translate(err)
}

func (s *Store) SaveAppConfig(ctx context.Context, c *models.AppConfig, audit models.AuditLogEntry) error {
	return s.saveWithAudit(ctx, c, audit)
}

func (s *Store) GetAppConfig(ctx context.Context, key string) (*models.AppConfig, error) {
	var c models.AppConfig
	if err := s.DB.WithContext(ctx).Where("key = ?", key).First(&c).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

// ---- social ----

func (s *Store) CreateFriendship(ctx context.Context, f *models.Friendship) error {
	return translate(s.DB.WithContext(ctx).Create(f).Error)
}

func (s *Store) UpdateFriendship(ctx context.Context, id string, fn func(f *models.Friendship) error) (*models.Friendship, error) {
	var f models.Friendship
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(forUpdate()).Where("id = ?", id).First(&f).Error; err != nil {
			return err
		}
		if err := fn(&f); err != nil {
			return err
		}
		return tx.Save(&f).Error
	})
	if err != nil {
		return nil, translate(err)
	}
	return &f, nil
}

func (s *Store) ListFriendships(ctx context.Context, playerID string) ([]models.Friendship, error) {
	var out []models.Friendship
	err := s.DB.WithContext(ctx).
		Where("low_id = ? OR high_id = ?", playerID, playerID).
		Order("created_at DESC").Find(&out).Error
	return out, translate(err)
}

// ---- scores ----

func (s *Store) TopScores(ctx context.Context, lq store.LeaderboardQuery) ([]models.LeaderboardRow, error) {
	q := s.DB.WithContext(ctx).Model(&models.Score{}).
		Select("scores.player_id, profiles.username, MAX(scores.score) AS score").
		Joins("JOIN profiles ON profiles.id = scores.player_id")
	if lq.Region != "" {
		q = q.Where("scores.region = ?", lq.Region)
	}
	if !lq.Since.IsZero() {
		q = q.Where("scores.created_at >= ?", lq.Since)
	}
	var rows []models.LeaderboardRow
	err := q.Group("scores.player_id, profiles.username").
		Order("score DESC, scores.player_id ASC").
		Limit(lim(lq.Limit)).
		Scan(&rows).Error
	if err != nil {
		return nil, translate(err)
	}
	for i := range rows {
		rows[i].Rank = i + 1
	}
	return rows, nil
}

func (s *Store) ScoreRegions(ctx context.Context) ([]string, error) {
	var out []string
	err := s.DB.WithContext(ctx).Model(&models.Score{}).
		Where("region <> ''").
		Distinct("region").Order("region ASC").
		Pluck("region", &out).Error
	return out, translate(err)
}

func (s *Store) ActivitySince(ctx context.Context, since time.Time) ([]models.ActivitySummary, error) {
	db := s.DB.WithContext(ctx)

	var games []models.ActivitySummary
	if err := db.Model(&models.Score{}).
		Select("player_id, COUNT(*) AS games, MAX(score) AS max_score").
		Where("created_at >= ?", since).
		Group("player_id").
		Scan(&games).Error; err != nil {
		return nil, translate(err)
	}

	var inflow []models.ActivitySummary
	if err := db.Model(&models.CoinTransaction{}).
		Select("player_id, SUM(delta) AS coin_inflow").
		Where("delta > 0 AND created_at >= ?", since).
		Group("player_id").
		Scan(&inflow).Error; err != nil {
		return nil, translate(err)
	}

	idx := make(map[string]int, len(games))
	for i, g := range games {
		idx[g.PlayerID] = i
	}
	for _, in := range inflow {
		if i, ok := idx[in.PlayerID]; ok {
			games[i].CoinInflow = in.CoinInflow
			continue
		}
		games = append(games, in)
	}
	return games, nil
}

// ---- receipts ----

func (s *Store) GetReceipt(ctx context.Context, platform, transactionID string) (*models.Receipt, error) {
	var r models.Receipt
	err := s.DB.WithContext(ctx).
		Where("platform = ? AND transaction_id = ?", platform, transactionID).
		First(&r).Error
	if err != nil {
		return nil, translate(err)
	}
	return &r, nil
}

func (s *Store) SaveReceipt(ctx context.Context, r *models.Receipt) error {
	return translate(s.DB.WithContext(ctx).Create(r).Error)
}
