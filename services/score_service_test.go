package services

import (
	"context"
	"testing"
	"time"

	"casual-game-core/apperrors"
	"casual-game-core/models"
	"casual-game-core/store"
	"casual-game-core/store/memstore"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAwardXP(t *testing.T) {
	tests := []struct {
		name      string
		startXP   int64
		startLvl  int64
		xp        int64
		wantLevel int64
		wantGain  int64
	}{
		{"below first threshold", 0, 1, 199, 1, 0},
		{"exactly first threshold", 0, 1, 200, 2, 1},
		{"two levels at once", 0, 1, 429, 3, 2},
		{"zero level is treated as one", 0, 0, 10, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &models.Profile{XP: tt.startXP, Level: tt.startLvl}
			gained := awardXP(p, tt.xp)
			assert.Equal(t, tt.wantLevel, p.Level)
			assert.Equal(t, tt.wantGain, gained)
			assert.Equal(t, tt.startXP+tt.xp, p.XP)
		})
	}
}

func newLeaderboards(t *testing.T, st *memstore.Store, clk *fakeClock) (*LeaderboardService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	lb := NewLeaderboardService(st, rdb, SuspiciousThresholds{
		Window:    time.Hour,
		MaxGames:  2,
		MaxInflow: 1000,
		MaxScore:  50000,
	})
	lb.Now = clk.Now
	_, err := lb.Rebuild(context.Background())
	require.NoError(t, err)
	return lb, mr
}

func TestRecordScore(t *testing.T) {
	st, clk := newTestStore()
	seedPlayer(t, st, "alice", 0)
	lb, _ := newLeaderboards(t, st, clk)
	svc := NewScoreService(st, lb)
	ctx := context.Background()

	res, err := svc.RecordScore(ctx, ScoreSubmission{PlayerID: "alice", Score: 19000, DurationMs: 60000, Region: "eu"})
	require.NoError(t, err)
	assert.Equal(t, int64(200), res.XPAwarded)
	assert.Equal(t, int64(2), res.Level)
	assert.Equal(t, int64(1), res.LevelsGained)
	assert.Equal(t, int64(1), res.GamesPlayed)
	assert.Equal(t, "alice", res.Username)

	acc, err := st.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(200), acc.Profile.XP)
	assert.Equal(t, int64(1), acc.Profile.GamesPlayed)

	_, err = svc.RecordScore(ctx, ScoreSubmission{PlayerID: "alice", Score: -1})
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.CodeOf(err))
	_, err = svc.RecordScore(ctx, ScoreSubmission{PlayerID: "alice", Score: 1, Rounds: models.Rounds{{Round: 2}, {Round: 1}}})
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.CodeOf(err))
	_, err = svc.RecordScore(ctx, ScoreSubmission{PlayerID: "ghost", Score: 1})
	assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))

	seedPlayer(t, st, "banned", 0)
	_, err = st.WithAccounts(ctx, banOpts("banned"), banFn("banned"))
	require.NoError(t, err)
	_, err = svc.RecordScore(ctx, ScoreSubmission{PlayerID: "banned", Score: 1})
	assert.ErrorIs(t, err, apperrors.ErrAccountBanned)
}

func TestLeaderboardsKeepBestScore(t *testing.T) {
	st, clk := newTestStore()
	seedPlayer(t, st, "alice", 0)
	seedPlayer(t, st, "bob", 0)
	lb, mr := newLeaderboards(t, st, clk)
	svc := NewScoreService(st, lb)
	ctx := context.Background()

	for _, sub := range []ScoreSubmission{
		{PlayerID: "alice", Score: 500, Region: "eu"},
		{PlayerID: "alice", Score: 300, Region: "eu"},
		{PlayerID: "bob", Score: 400, Region: "us"},
	} {
		_, err := svc.RecordScore(ctx, sub)
		require.NoError(t, err)
	}

	score, err := mr.ZScore(leaderboardGlobalKey, "alice")
	require.NoError(t, err)
	assert.Equal(t, float64(500), score)

	global, err := lb.Global(ctx, 10)
	require.NoError(t, err)
	require.Len(t, global, 2)
	assert.Equal(t, models.LeaderboardRow{Rank: 1, PlayerID: "alice", Username: "alice", Score: 500}, global[0])
	assert.Equal(t, models.LeaderboardRow{Rank: 2, PlayerID: "bob", Username: "bob", Score: 400}, global[1])

	us, err := lb.Region(ctx, "us", 10)
	require.NoError(t, err)
	require.Len(t, us, 1)
	assert.Equal(t, "bob", us[0].PlayerID)

	lb.Forget(ctx, "alice")
	assert.False(t, mr.Exists(regionKey("eu")))
	global, err = lb.Global(ctx, 10)
	require.NoError(t, err)
	require.Len(t, global, 1)
	assert.Equal(t, "bob", global[0].PlayerID)
}

func TestLeaderboardsFallBackToStore(t *testing.T) {
	st, clk := newTestStore()
	seedPlayer(t, st, "alice", 0)
	seedPlayer(t, st, "bob", 0)
	lb := NewLeaderboardService(st, nil, SuspiciousThresholds{})
	lb.Now = clk.Now
	svc := NewScoreService(st, lb)
	ctx := context.Background()

	_, err := svc.RecordScore(ctx, ScoreSubmission{PlayerID: "alice", Score: 100, Region: "eu"})
	require.NoError(t, err)
	_, err = svc.RecordScore(ctx, ScoreSubmission{PlayerID: "bob", Score: 100, Region: "us"})
	require.NoError(t, err)

	global, err := lb.Global(ctx, 10)
	require.NoError(t, err)
	require.Len(t, global, 2)
	// Equal scores rank by player id.
	assert.Equal(t, "alice", global[0].PlayerID)
	assert.Equal(t, 2, global[1].Rank)

	eu, err := lb.Region(ctx, "eu", 10)
	require.NoError(t, err)
	require.Len(t, eu, 1)
	assert.Equal(t, "alice", eu[0].PlayerID)
}

func TestLeaderboardCacheWaitsForRebuild(t *testing.T) {
	st, clk := newTestStore()
	seedPlayer(t, st, "alice", 0)
	seedPlayer(t, st, "bob", 0)
	ctx := context.Background()

	// Scores committed while no cache was attached.
	offline := NewScoreService(st, NewLeaderboardService(st, nil, SuspiciousThresholds{}))
	_, err := offline.RecordScore(ctx, ScoreSubmission{PlayerID: "alice", Score: 900, Region: "eu"})
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	lb := NewLeaderboardService(st, rdb, SuspiciousThresholds{})
	lb.Now = clk.Now
	svc := NewScoreService(st, lb)
	require.True(t, lb.Stale())

	_, err = svc.RecordScore(ctx, ScoreSubmission{PlayerID: "bob", Score: 100, Region: "us"})
	require.NoError(t, err)
	assert.False(t, mr.Exists(regionKey("eu")))

	global, err := lb.Global(ctx, 10)
	require.NoError(t, err)
	require.Len(t, global, 2)
	assert.Equal(t, "alice", global[0].PlayerID)

	n, err := lb.Rebuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.False(t, lb.Stale())
	score, err := mr.ZScore(leaderboardGlobalKey, "alice")
	require.NoError(t, err)
	assert.Equal(t, float64(900), score)
	score, err = mr.ZScore(regionKey("eu"), "alice")
	require.NoError(t, err)
	assert.Equal(t, float64(900), score)

	global, err = lb.Global(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []models.LeaderboardRow{
		{Rank: 1, PlayerID: "alice", Username: "alice", Score: 900},
		{Rank: 2, PlayerID: "bob", Username: "bob", Score: 100},
	}, global)
}

func TestLeaderboardFailedWriteFallsBackToStore(t *testing.T) {
	st, clk := newTestStore()
	seedPlayer(t, st, "alice", 0)
	seedPlayer(t, st, "bob", 0)
	lb, mr := newLeaderboards(t, st, clk)
	svc := NewScoreService(st, lb)
	ctx := context.Background()

	_, err := svc.RecordScore(ctx, ScoreSubmission{PlayerID: "alice", Score: 300})
	require.NoError(t, err)

	mr.Close()
	_, err = svc.RecordScore(ctx, ScoreSubmission{PlayerID: "bob", Score: 700})
	require.NoError(t, err)
	assert.True(t, lb.Stale())

	global, err := lb.Global(ctx, 10)
	require.NoError(t, err)
	require.Len(t, global, 2)
	assert.Equal(t, "bob", global[0].PlayerID)
	assert.Equal(t, int64(700), global[0].Score)

	_, err = lb.Rebuild(ctx)
	require.Error(t, err)
	assert.True(t, lb.Stale())
}

func TestLeaderboardTiesMatchStoreOrder(t *testing.T) {
	st, clk := newTestStore()
	for _, id := range []string{"dave", "carol", "bob", "alice", "erin"} {
		seedPlayer(t, st, id, 0)
	}
	lb, _ := newLeaderboards(t, st, clk)
	svc := NewScoreService(st, lb)
	ctx := context.Background()

	for _, sub := range []ScoreSubmission{
		{PlayerID: "erin", Score: 900},
		{PlayerID: "dave", Score: 500},
		{PlayerID: "carol", Score: 500},
		{PlayerID: "bob", Score: 500},
		{PlayerID: "alice", Score: 100},
	} {
		_, err := svc.RecordScore(ctx, sub)
		require.NoError(t, err)
	}
	require.False(t, lb.Stale())

	ids := func(rows []models.LeaderboardRow) []string {
		out := make([]string, len(rows))
		for i, r := range rows {
			out[i] = r.PlayerID
		}
		return out
	}
	for _, limit := range []int{2, 3, 5} {
		cached, err := lb.Global(ctx, limit)
		require.NoError(t, err)
		stored, err := st.TopScores(ctx, store.LeaderboardQuery{Limit: limit})
		require.NoError(t, err)
		assert.Equal(t, ids(stored), ids(cached), "limit %d", limit)
	}

	top, err := lb.Global(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"erin", "bob"}, ids(top))
	assert.Equal(t, 2, top[1].Rank)
}

func TestDailyLeaderboardWindow(t *testing.T) {
	st, clk := newTestStore()
	seedPlayer(t, st, "alice", 0)
	seedPlayer(t, st, "bob", 0)
	lb, _ := newLeaderboards(t, st, clk)
	svc := NewScoreService(st, lb)
	ctx := context.Background()

	_, err := svc.RecordScore(ctx, ScoreSubmission{PlayerID: "alice", Score: 900})
	require.NoError(t, err)
	clk.Advance(25 * time.Hour)
	_, err = svc.RecordScore(ctx, ScoreSubmission{PlayerID: "bob", Score: 100})
	require.NoError(t, err)

	daily, err := lb.Daily(ctx, 10)
	require.NoError(t, err)
	require.Len(t, daily, 1)
	assert.Equal(t, "bob", daily[0].PlayerID)
	assert.Equal(t, 1, daily[0].Rank)
}

func TestSuspiciousActivity(t *testing.T) {
	st, clk := newTestStore()
	seedPlayer(t, st, "grinder", 0)
	seedPlayer(t, st, "whale", 0)
	seedPlayer(t, st, "normal", 0)
	lb, _ := newLeaderboards(t, st, clk)
	scores := NewScoreService(st, lb)
	ledger := NewLedgerService(st)
	ctx := context.Background()

	for range 3 {
		_, err := scores.RecordScore(ctx, ScoreSubmission{PlayerID: "grinder", Score: 100})
		require.NoError(t, err)
	}
	_, err := scores.RecordScore(ctx, ScoreSubmission{PlayerID: "whale", Score: 60000})
	require.NoError(t, err)
	_, err = ledger.Credit(ctx, "whale", 5000, models.TxReceipt, "r1", "")
	require.NoError(t, err)
	_, err = scores.RecordScore(ctx, ScoreSubmission{PlayerID: "normal", Score: 100})
	require.NoError(t, err)

	flagged, err := lb.SuspiciousActivity(ctx)
	require.NoError(t, err)
	require.Len(t, flagged, 2)
	assert.Equal(t, "grinder", flagged[0].PlayerID)
	assert.Equal(t, []string{"games"}, flagged[0].Reasons)
	assert.Equal(t, "whale", flagged[1].PlayerID)
	assert.Equal(t, []string{"coin_inflow", "score"}, flagged[1].Reasons)

	clk.Advance(2 * time.Hour)
	flagged, err = lb.SuspiciousActivity(ctx)
	require.NoError(t, err)
	assert.Empty(t, flagged)
}
