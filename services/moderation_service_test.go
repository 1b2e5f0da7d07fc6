package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"casual-game-core/apperrors"
	"casual-game-core/models"
	"casual-game-core/store"
	"casual-game-core/store/memstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func moderationFixture(t *testing.T) (*ModerationService, *memstore.Store, *fakeClock) {
	st, clk := newTestStore()
	seedPlayer(t, st, "owner", 0, withRole(models.RoleOwner))
	seedPlayer(t, st, "mod", 0, withRole(models.RoleModerator))
	seedPlayer(t, st, "alice", 0)
	seedPlayer(t, st, "bob", 0)
	svc := NewModerationService(st, NewActorLimiter(100))
	svc.Now = clk.Now
	return svc, st, clk
}

func TestReportAndResolve(t *testing.T) {
	svc, st, _ := moderationFixture(t)
	ctx := context.Background()

	_, err := svc.Report(ctx, "alice", "alice", "spam", "")
	assert.ErrorIs(t, err, apperrors.ErrSelfReport)
	_, err = svc.Report(ctx, "alice", "bob", " ", "")
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.CodeOf(err))
	_, err = svc.Report(ctx, "alice", "ghost", "spam", "")
	assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))

	r, err := svc.Report(ctx, "alice", "bob", "spam", "posted links")
	require.NoError(t, err)
	assert.Equal(t, models.ReportPending, r.Status)

	_, err = svc.ResolveReport(ctx, "alice", r.ID, models.ReportDismissed, "")
	assert.ErrorIs(t, err, apperrors.ErrPermissionDenied)

	_, err = svc.ResolveReport(ctx, "mod", r.ID, models.ReportPending, "")
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.CodeOf(err))

	r, err = svc.ResolveReport(ctx, "mod", r.ID, models.ReportReviewed, "")
	require.NoError(t, err)
	assert.Equal(t, models.ReportReviewed, r.Status)

	r, err = svc.ResolveReport(ctx, "mod", r.ID, models.ReportActioned, "warned")
	require.NoError(t, err)
	assert.Equal(t, "mod", *r.ResolvedBy)

	_, err = svc.ResolveReport(ctx, "owner", r.ID, models.ReportDismissed, "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)

	_, err = svc.ResolveReport(ctx, "mod", "missing", models.ReportDismissed, "")
	assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))

	entries, err := st.ListAudit(ctx, store.AuditQuery{Action: models.ActionResolveReport})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, "bob", e.TargetID)
		assert.Equal(t, "mod", e.ActorID)
	}
}

func TestAdminReadSurfaces(t *testing.T) {
	svc, _, _ := moderationFixture(t)
	ctx := context.Background()

	_, err := svc.Report(ctx, "alice", "bob", "spam", "")
	require.NoError(t, err)

	reports, err := svc.ListReports(ctx, "mod", models.ReportPending, 0)
	require.NoError(t, err)
	assert.Len(t, reports, 1)

	_, err = svc.ListReports(ctx, "alice", "", 0)
	assert.ErrorIs(t, err, apperrors.ErrPermissionDenied)
	_, err = svc.ListAudit(ctx, "ghost", store.AuditQuery{})
	assert.ErrorIs(t, err, apperrors.ErrPermissionDenied)

	assert.NoError(t, svc.RequireAdmin(ctx, "owner"))
	assert.ErrorIs(t, svc.RequireAdmin(ctx, "bob"), apperrors.ErrPermissionDenied)
}

func TestReadsDoNotSpendRateTokens(t *testing.T) {
	svc, _, _ := moderationFixture(t)
	svc.Limiter = NewActorLimiter(1)
	ctx := context.Background()

	for range 3 {
		_, err := svc.ListAudit(ctx, "mod", store.AuditQuery{})
		require.NoError(t, err)
	}
	_, err := svc.UpsertAnnouncement(ctx, "mod", models.Announcement{Title: "hi", Active: true})
	require.NoError(t, err)
	_, err = svc.UpsertAnnouncement(ctx, "mod", models.Announcement{Title: "again", Active: true})
	assert.ErrorIs(t, err, apperrors.ErrRateLimited)
}

func TestAnnouncements(t *testing.T) {
	svc, _, clk := moderationFixture(t)
	ctx := context.Background()

	_, err := svc.UpsertAnnouncement(ctx, "mod", models.Announcement{Title: " "})
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.CodeOf(err))
	_, err = svc.UpsertAnnouncement(ctx, "alice", models.Announcement{Title: "x"})
	assert.ErrorIs(t, err, apperrors.ErrPermissionDenied)

	ends := clk.t.Add(time.Hour)
	a, err := svc.UpsertAnnouncement(ctx, "mod", models.Announcement{Title: "Maintenance", Active: true, EndsAt: &ends})
	require.NoError(t, err)
	_, err = svc.UpsertAnnouncement(ctx, "mod", models.Announcement{Title: "Draft", Active: false})
	require.NoError(t, err)

	active, err := svc.ActiveAnnouncements(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, a.ID, active[0].ID)

	// Upsert by id replaces the row.
	a.Title = "Maintenance tonight"
	_, err = svc.UpsertAnnouncement(ctx, "owner", *a)
	require.NoError(t, err)
	active, _ = svc.ActiveAnnouncements(ctx)
	require.Len(t, active, 1)
	assert.Equal(t, "Maintenance tonight", active[0].Title)

	clk.Advance(2 * time.Hour)
	active, _ = svc.ActiveAnnouncements(ctx)
	assert.Empty(t, active)
}

func TestFeatureFlagsAndConfigAreOwnerOnly(t *testing.T) {
	svc, st, _ := moderationFixture(t)
	ctx := context.Background()

	_, err := svc.SetFeatureFlag(ctx, "mod", models.FeatureFlag{Key: "pvp", Enabled: true, RolloutPercent: 50})
	assert.ErrorIs(t, err, apperrors.ErrPermissionDenied)
	_, err = svc.SetFeatureFlag(ctx, "owner", models.FeatureFlag{Key: "pvp", RolloutPercent: 101})
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.CodeOf(err))

	f, err := svc.SetFeatureFlag(ctx, "owner", models.FeatureFlag{Key: "pvp", Enabled: true, RolloutPercent: 50})
	require.NoError(t, err)
	assert.Equal(t, "owner", f.UpdatedBy)
	flags, err := svc.FeatureFlags(ctx)
	require.NoError(t, err)
	assert.Len(t, flags, 1)

	_, err = svc.UpdateAppConfig(ctx, "mod", "shop", json.RawMessage(`{"sale":true}`))
	assert.ErrorIs(t, err, apperrors.ErrPermissionDenied)
	_, err = svc.UpdateAppConfig(ctx, "owner", "shop", json.RawMessage(`{broken`))
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.CodeOf(err))

	_, err = svc.UpdateAppConfig(ctx, "owner", "shop", json.RawMessage(`{"sale":true}`))
	require.NoError(t, err)
	cfg, err := svc.AppConfig(ctx, "shop")
	require.NoError(t, err)
	assert.JSONEq(t, `{"sale":true}`, string(cfg.Value))

	_, err = svc.AppConfig(ctx, "missing")
	assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))

	entries, err := st.ListAudit(ctx, store.AuditQuery{ActorID: "owner"})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
