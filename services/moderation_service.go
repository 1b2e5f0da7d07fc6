// services/moderation_service.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"casual-game-core/apperrors"
	"casual-game-core/models"
	"casual-game-core/store"

	"github.com/google/uuid"
)

type ModerationStores interface {
	store.AccountStore
	store.ModerationStore
}

// ModerationService owns player reports, announcements, feature flags, app config and
// the read side of the audit trail.
type ModerationService struct {
	Store   ModerationStores
	Limiter *ActorLimiter
	Now     func() time.Time
}

func NewModerationService(st ModerationStores, limiter *ActorLimiter) *ModerationService {
	return &ModerationService{Store: st, Limiter: limiter, Now: time.Now}
}

func (s *ModerationService) now() time.Time { return clock(s.Now).now() }

// admin resolves actorID to an admin account, optionally requiring the owner role.
// Mutations spend a moderator rate token, reads do not.
func (s *ModerationService) admin(ctx context.Context, actorID string, ownerOnly, mutation bool) (*models.Account, error) {
	actor, err := s.Store.GetAccount(ctx, actorID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.ErrPermissionDenied
		}
		return nil, storeErr("resolve admin", "player", err)
	}
	if ownerOnly && actor.Profile.Role != models.RoleOwner {
		return nil, apperrors.NewAppError(apperrors.CodePermissionDenied, "owner role required", nil)
	}
	check := checkAdmin(actor, s.now())
	if mutation {
		check = authorizeActor(actor, s.now(), s.Limiter)
	}
	if check != nil {
		return nil, check
	}
	return actor, nil
}

// RequireAdmin gates admin read surfaces.
func (s *ModerationService) RequireAdmin(ctx context.Context, actorID string) error {
	_, err := s.admin(ctx, actorID, false, false)
	return err
}

func (s *ModerationService) audit(actor *models.Account, action, target string, details adminChange) models.AuditLogEntry {
	return models.AuditLogEntry{
		ID:        uuid.NewString(),
		ActorID:   actor.ID(),
		ActorRole: actor.Profile.Role,
		Action:    action,
		TargetID:  target,
		Details:   auditDetails(details),
		CreatedAt: s.now(),
	}
}

// Report files a pending report against another player.
func (s *ModerationService) Report(ctx context.Context, reporterID, reportedID, reason, details string) (*models.PlayerReport, error) {
	if reporterID == reportedID {
		return nil, apperrors.ErrSelfReport
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.NewAppError(apperrors.CodeInvalidInput, "reason is required", nil)
	}
	if _, err := s.Store.GetAccount(ctx, reportedID); err != nil {
		return nil, storeErr("report", "reported player", err)
	}
	r := &models.PlayerReport{
		ID:         uuid.NewString(),
		ReporterID: reporterID,
		ReportedID: reportedID,
		Reason:     reason,
		Details:    details,
		Status:     models.ReportPending,
		CreatedAt:  s.now(),
	}
	if err := s.Store.CreateReport(ctx, r); err != nil {
		return nil, storeErr("report", "report", err)
	}
	log.Printf("🚩 [REPORT] %s reported %s: %s", reporterID, reportedID, reason)
	return r, nil
}

// ResolveReport moves a report to reviewed, actioned or dismissed. Actioned and
// dismissed are final.
func (s *ModerationService) ResolveReport(ctx context.Context, actorID, reportID string, status models.ReportStatus, actionTaken string) (*models.PlayerReport, error) {
	if !status.Resolution() {
		return nil, apperrors.Newf(apperrors.CodeInvalidInput, "status must be reviewed, actioned or dismissed")
	}
	actor, err := s.admin(ctx, actorID, false, true)
	if err != nil {
		return nil, err
	}
	r, err := s.Store.UpdateReport(ctx, reportID, func(r *models.PlayerReport) (*models.AuditLogEntry, error) {
		if r.Status == models.ReportActioned || r.Status == models.ReportDismissed {
			return nil, apperrors.Newf(apperrors.CodeInvalidState, "report already %s", r.Status)
		}
		prev := r.Status
		now := s.now()
		r.Status = status
		r.ActionTaken = actionTaken
		r.ResolvedBy = &actorID
		r.ResolvedAt = &now
		entry := s.audit(actor, models.ActionResolveReport, r.ReportedID, adminChange{
			"report_id": r.ID, "old_status": prev, "new_status": status, "action_taken": actionTaken,
		})
		return &entry, nil
	})
	if err != nil {
		return nil, storeErr("resolve report", "report", err)
	}
	return r, nil
}

func (s *ModerationService) ListReports(ctx context.Context, actorID string, status models.ReportStatus, limit int) ([]models.PlayerReport, error) {
	if _, err := s.admin(ctx, actorID, false, false); err != nil {
		return nil, err
	}
	out, err := s.Store.ListReports(ctx, status, clampLimit(limit, 50, 200))
	return out, storeErr("list reports", "report", err)
}

func (s *ModerationService) ListAudit(ctx context.Context, actorID string, q store.AuditQuery) ([]models.AuditLogEntry, error) {
	if _, err := s.admin(ctx, actorID, false, false); err != nil {
		return nil, err
	}
	q.Limit = clampLimit(q.Limit, 100, 500)
	out, err := s.Store.ListAudit(ctx, q)
	return out, storeErr("list audit", "audit entry", err)
}

// UpsertAnnouncement creates (empty ID) or replaces an announcement. Any admin may.
func (s *ModerationService) UpsertAnnouncement(ctx context.Context, actorID string, a models.Announcement) (*models.Announcement, error) {
	a.Title = strings.TrimSpace(a.Title)
	if a.Title == "" {
		return nil, apperrors.NewAppError(apperrors.CodeInvalidInput, "title is required", nil)
	}
	if a.StartsAt != nil && a.EndsAt != nil && !a.EndsAt.After(*a.StartsAt) {
		return nil, apperrors.NewAppError(apperrors.CodeInvalidInput, "ends_at must be after starts_at", nil)
	}
	actor, err := s.admin(ctx, actorID, false, true)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if a.ID == "" {
		a.ID = uuid.NewString()
		a.CreatedAt = now
	} else if _, err := uuid.Parse(a.ID); err != nil {
		return nil, apperrors.NewAppError(apperrors.CodeInvalidInput, "invalid announcement id", err)
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.CreatedBy = actorID
	a.UpdatedAt = now
	entry := s.audit(actor, models.ActionAnnouncement, "", adminChange{"announcement_id": a.ID, "title": a.Title, "active": a.Active})
	if err := s.Store.SaveAnnouncement(ctx, &a, entry); err != nil {
		return nil, storeErr("save announcement", "announcement", err)
	}
	return &a, nil
}

// ActiveAnnouncements lists announcements visible right now.
func (s *ModerationService) ActiveAnnouncements(ctx context.Context) ([]models.Announcement, error) {
	now := s.now()
	out, err := s.Store.ListAnnouncements(ctx, &now)
	return out, storeErr("list announcements", "announcement", err)
}

// SetFeatureFlag creates or updates a flag. Owners only.
func (s *ModerationService) SetFeatureFlag(ctx context.Context, actorID string, f models.FeatureFlag) (*models.FeatureFlag, error) {
	f.Key = strings.TrimSpace(f.Key)
	if f.Key == "" {
		return nil, apperrors.NewAppError(apperrors.CodeInvalidInput, "flag key is required", nil)
	}
	if f.RolloutPercent < 0 || f.RolloutPercent > 100 {
		return nil, apperrors.NewAppError(apperrors.CodeInvalidInput, "rollout_percent must be within 0..100", nil)
	}
	actor, err := s.admin(ctx, actorID, true, true)
	if err != nil {
		return nil, err
	}
	f.UpdatedBy = actorID
	f.UpdatedAt = s.now()
	entry := s.audit(actor, models.ActionFeatureFlag, "", adminChange{"key": f.Key, "enabled": f.Enabled, "rollout_percent": f.RolloutPercent})
	if err := s.Store.SaveFeatureFlag(ctx, &f, entry); err != nil {
		return nil, storeErr("save feature flag", "feature flag", err)
	}
	return &f, nil
}

func (s *ModerationService) FeatureFlags(ctx context.Context) ([]models.FeatureFlag, error) {
	out, err := s.Store.ListFeatureFlags(ctx)
	return out, storeErr("list feature flags", "feature flag", err)
}

// UpdateAppConfig replaces the JSON value stored under key. Owners only.
func (s *ModerationService) UpdateAppConfig(ctx context.Context, actorID, key string, value json.RawMessage) (*models.AppConfig, error) {
	key = strings.TrimSpace(key)
	if key == "" || !json.Valid(value) {
		return nil, apperrors.NewAppError(apperrors.CodeInvalidInput, "key and a valid JSON value are required", nil)
	}
	actor, err := s.admin(ctx, actorID, true, true)
	if err != nil {
		return nil, err
	}
	var old json.RawMessage
	if prev, err := s.Store.GetAppConfig(ctx, key); err == nil {
		old = json.RawMessage(prev.Value)
	}
	c := &models.AppConfig{Key: key, Value: []byte(value), UpdatedBy: actorID, UpdatedAt: s.now()}
	entry := s.audit(actor, models.ActionAppConfig, "", adminChange{"key": key, "old": old, "new": value})
	if err := s.Store.SaveAppConfig(ctx, c, entry); err != nil {
		return nil, storeErr("save app config", "app config", err)
	}
	return c, nil
}

func (s *ModerationService) AppConfig(ctx context.Context, key string) (*models.AppConfig, error) {
	c, err := s.Store.GetAppConfig(ctx, key)
	if err != nil {
		return nil, storeErr("get app config", "config key", err)
	}
	return c, nil
}

func clampLimit(limit, def, ceiling int) int {
	if limit <= 0 {
		return def
	}
	return min(limit, ceiling)
}
