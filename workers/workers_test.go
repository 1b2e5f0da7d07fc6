package workers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"casual-game-core/config"
	"casual-game-core/models"
	"casual-game-core/services"
	"casual-game-core/store/memstore"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	key         string
	contentType string
	body        []byte
	err         error
}

func (f *fakeUploader) Upload(ctx context.Context, key, contentType string, body []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.key, f.contentType, f.body = key, contentType, body
	return "https://cdn.example.com/" + key, nil
}

func addAudit(t *testing.T, st *memstore.Store, action string, at time.Time) {
	t.Helper()
	entry := models.AuditLogEntry{
		ID:        uuid.NewString(),
		ActorID:   "owner",
		ActorRole: models.RoleOwner,
		Action:    action,
		CreatedAt: at,
	}
	a := &models.Announcement{ID: uuid.NewString(), Title: action, CreatedAt: at, UpdatedAt: at}
	require.NoError(t, st.SaveAnnouncement(context.Background(), a, entry))
}

func TestArchiveDay(t *testing.T) {
	st := memstore.New()
	day := time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)
	addAudit(t, st, "late", day.Add(23*time.Hour))
	addAudit(t, st, "early", day.Add(time.Hour))
	addAudit(t, st, "previous-day", day.Add(-time.Minute))
	addAudit(t, st, "next-day", day.AddDate(0, 0, 1))

	up := &fakeUploader{}
	arch := NewAuditArchiver(st, up)
	n, err := arch.ArchiveDay(context.Background(), day.Add(15*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "audit/2025/03/09.jsonl", up.key)
	assert.Equal(t, "application/x-ndjson", up.contentType)

	var actions []string
	sc := bufio.NewScanner(bytes.NewReader(up.body))
	for sc.Scan() {
		var e models.AuditLogEntry
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []string{"early", "late"}, actions)
}

func TestArchiveYesterday(t *testing.T) {
	st := memstore.New()
	addAudit(t, st, "ban", time.Date(2025, 12, 31, 8, 0, 0, 0, time.UTC))

	up := &fakeUploader{}
	arch := NewAuditArchiver(st, up)
	arch.Now = func() time.Time { return time.Date(2026, 1, 1, 0, 10, 0, 0, time.UTC) }
	n, err := arch.ArchiveYesterday(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, "audit/2025/12/31.jsonl", up.key)

	up.err = errors.New("bucket unavailable")
	_, err = arch.ArchiveYesterday(context.Background())
	assert.ErrorContains(t, err, "bucket unavailable")
}

func TestRetryingRunsUntilSuccess(t *testing.T) {
	calls := 0
	run := retrying(context.Background(), "flaky", func(ctx context.Context) (int64, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("store unavailable")
		}
		return 4, nil
	})
	run()
	assert.Equal(t, 3, calls)
}

func TestStartScheduler(t *testing.T) {
	st := memstore.New()
	challenges := services.NewChallengeService(st, 7*24*time.Hour, 25)
	jobs := Jobs{
		Challenges:   challenges,
		Matchmaking:  services.NewMatchmakingService(st, challenges, 150, 48*time.Hour),
		Archiver:     NewAuditArchiver(st, &fakeUploader{}),
		Leaderboards: services.NewLeaderboardService(st, nil, services.SuspiciousThresholds{}),
		Intervals: config.Matchmaking{
			ExpirySweep:    time.Hour,
			PoolSweep:      15 * time.Minute,
			SettlementScan: 5 * time.Minute,
		},
		RebuildEvery: time.Hour,
	}
	sched, err := StartScheduler(context.Background(), jobs)
	require.NoError(t, err)
	defer sched.Shutdown()

	var names []string
	for _, j := range sched.Jobs() {
		names = append(names, j.Name())
	}
	assert.ElementsMatch(t, []string{"expire-challenges", "cleanup-pool", "settle-challenges", "archive-audit", "rebuild-leaderboards"}, names)

	_, err = StartScheduler(context.Background(), Jobs{
		Challenges:  jobs.Challenges,
		Matchmaking: jobs.Matchmaking,
	})
	assert.Error(t, err, "zero intervals are rejected")
}
