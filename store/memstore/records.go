package memstore

import (
	"cmp"
	"context"
	"slices"
	"time"

	"casual-game-core/models"
	"casual-game-core/store"
)

// ---- moderation ----

func (s *Store) CreateReport(ctx context.Context, r *models.PlayerReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reports[r.ID]; ok {
		return store.ErrConflict
	}
	cp := *r
	s.reports[r.ID] = &cp
	return nil
}

func (s *Store) UpdateReport(ctx context.Context, id string, fn func(r *models.PlayerReport) (*models.AuditLogEntry, error)) (*models.PlayerReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.reports[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	r := *cur
	audit, err := fn(&r)
	if err != nil {
		return nil, err
	}
	s.reports[id] = &r
	if audit != nil {
		s.audit = append(s.audit, *audit)
	}
	out := r
	return &out, nil
}

func (s *Store) ListReports(ctx context.Context, status models.ReportStatus, limit int) ([]models.PlayerReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.PlayerReport
	for _, r := range s.reports {
		if status == "" || r.Status == status {
			out = append(out, *r)
		}
	}
	slices.SortFunc(out, func(a, b models.PlayerReport) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return truncate(out, limit), nil
}

func (s *Store) ListAudit(ctx context.Context, q store.AuditQuery) ([]models.AuditLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.AuditLogEntry
	for _, e := range s.audit {
		if q.ActorID != "" && e.ActorID != q.ActorID ||
			q.TargetID != "" && e.TargetID != q.TargetID ||
			q.Action != "" && e.Action != q.Action ||
			!q.Since.IsZero() && e.CreatedAt.Before(q.Since) ||
			!q.Until.IsZero() && !e.CreatedAt.Before(q.Until) {
			continue
		}
		out = append(out, e)
	}
	slices.SortStableFunc(out, func(a, b models.AuditLogEntry) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return truncate(out, q.Limit), nil
}

func (s *Store) SaveAnnouncement(ctx context.Context, a *models.Announcement, audit models.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.announcements[a.ID] = &cp
	s.audit = append(s.audit, audit)
	return nil
}

func (s *Store) ListAnnouncements(ctx context.Context, activeAt *time.Time) ([]models.Announcement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Announcement
	for _, a := range s.announcements {
		if activeAt != nil {
			t := *activeAt
			if !a.Active || a.StartsAt != nil && a.StartsAt.After(t) || a.EndsAt != nil && !a.EndsAt.After(t) {
				continue
			}
		}
		out = append(out, *a)
	}
	slices.SortFunc(out, func(a, b models.Announcement) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (s *Store) SaveFeatureFlag(ctx context.Context, f *models.FeatureFlag, audit models.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *f
	s.flags[f.Key] = &cp
	s.audit = append(s.audit, audit)
	return nil
}

func (s *Store) ListFeatureFlags(ctx context.Context) ([]models.FeatureFlag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.FeatureFlag, 0, len(s.flags))
	for _, f := range s.flags {
		out = append(out, *f)
	}
	slices.SortFunc(out, func(a, b models.FeatureFlag) int { return cmp.Compare(a.Key, b.Key) })
	return out, nil
}

func (s *Store) SaveAppConfig(ctx context.Context, c *models.AppConfig, audit models.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	cp.Value = slices.Clone(c.Value)
	s.appConfig[c.Key] = &cp
	s.audit = append(s.audit, audit)
	return nil
}

func (s *Store) GetAppConfig(ctx context.Context, key string) (*models.AppConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.appConfig[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// ---- social ----

func (s *Store) CreateFriendship(ctx context.Context, f *models.Friendship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.friendships {
		if existing.LowID == f.LowID && existing.HighID == f.HighID {
			return store.ErrConflict
		}
	}
	cp := *f
	s.friendships[f.ID] = &cp
	return nil
}

func (s *Store) UpdateFriendship(ctx context.Context, id string, fn func(f *models.Friendship) error) (*models.Friendship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.friendships[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	f := *cur
	if err := fn(&f); err != nil {
		return nil, err
	}
	s.friendships[id] = &f
	out := f
	return &out, nil
}

func (s *Store) ListFriendships(ctx context.Context, playerID string) ([]models.Friendship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Friendship
	for _, f := range s.friendships {
		if f.LowID == playerID || f.HighID == playerID {
			out = append(out, *f)
		}
	}
	slices.SortFunc(out, func(a, b models.Friendship) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

// ---- scores ----

func (s *Store) TopScores(ctx context.Context, q store.LeaderboardQuery) ([]models.LeaderboardRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	best := map[string]int64{}
	for _, sc := range s.scores {
		if q.Region != "" && sc.Region != q.Region || !q.Since.IsZero() && sc.CreatedAt.Before(q.Since) {
			continue
		}
		if _, ok := s.accounts[sc.PlayerID]; !ok {
			continue
		}
		if cur, ok := best[sc.PlayerID]; !ok || sc.Score > cur {
			best[sc.PlayerID] = sc.Score
		}
	}
	rows := make([]models.LeaderboardRow, 0, len(best))
	for id, score := range best {
		rows = append(rows, models.LeaderboardRow{PlayerID: id, Username: s.accounts[id].Profile.Username, Score: score})
	}
	slices.SortFunc(rows, func(a, b models.LeaderboardRow) int {
		return cmp.Or(cmp.Compare(b.Score, a.Score), cmp.Compare(a.PlayerID, b.PlayerID))
	})
	rows = truncate(rows, q.Limit)
	for i := range rows {
		rows[i].Rank = i + 1
	}
	return rows, nil
}

func (s *Store) ScoreRegions(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, sc := range s.scores {
		if sc.Region != "" && !slices.Contains(out, sc.Region) {
			out = append(out, sc.Region)
		}
	}
	slices.Sort(out)
	return out, nil
}

func (s *Store) ActivitySince(ctx context.Context, since time.Time) ([]models.ActivitySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byPlayer := map[string]*models.ActivitySummary{}
	get := func(id string) *models.ActivitySummary {
		a, ok := byPlayer[id]
		if !ok {
			a = &models.ActivitySummary{PlayerID: id}
			byPlayer[id] = a
		}
		return a
	}
	for _, sc := range s.scores {
		if sc.CreatedAt.Before(since) {
			continue
		}
		a := get(sc.PlayerID)
		a.Games++
		a.MaxScore = max(a.MaxScore, sc.Score)
	}
	for _, tx := range s.journal {
		if tx.Delta > 0 && !tx.CreatedAt.Before(since) {
			get(tx.PlayerID).CoinInflow += tx.Delta
		}
	}
	out := make([]models.ActivitySummary, 0, len(byPlayer))
	for _, a := range byPlayer {
		out = append(out, *a)
	}
	slices.SortFunc(out, func(a, b models.ActivitySummary) int { return cmp.Compare(a.PlayerID, b.PlayerID) })
	return out, nil
}

// ---- receipts ----

func receiptKey(platform, transactionID string) string { return platform + "\x00" + transactionID }

func (s *Store) GetReceipt(ctx context.Context, platform, transactionID string) (*models.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.receipts[receiptKey(platform, transactionID)]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *Store) SaveReceipt(ctx context.Context, r *models.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := receiptKey(r.Platform, r.TransactionID)
	if _, ok := s.receipts[key]; ok {
		return store.ErrConflict
	}
	cp := *r
	s.receipts[key] = &cp
	return nil
}
