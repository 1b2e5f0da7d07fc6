// services/leaderboard_service.go
package services

import (
	"cmp"
	"context"
	"fmt"
	"log"
	"slices"
	"strconv"
	"sync/atomic"
	"time"

	"casual-game-core/models"
	"casual-game-core/store"

	"github.com/redis/go-redis/v9"
)

const (
	leaderboardGlobalKey       = "leaderboard:global"
	leaderboardRegionKeyPrefix = "leaderboard:region:"
	leaderboardNamesKey        = "leaderboard:names"
	dailyWindow                = 24 * time.Hour
)

// SuspiciousThresholds flag an account when any recent measure goes above its limit.
type SuspiciousThresholds struct {
	Window    time.Duration
	MaxGames  int64
	MaxInflow int64
	MaxScore  int64
}

// LeaderboardService serves rank-ordered projections of the score table. The global
// and per-region boards are cached in Redis sorted sets holding each player's best
// score; the rolling-daily board and any cache miss are answered from the store.
//
// The cache starts out stale and is only read after Rebuild has loaded every stored
// best score into it. A failed cache write marks it stale again until the next Rebuild.
// Equal scores rank by ascending player id on both paths.
type LeaderboardService struct {
	Store      store.ScoreStore
	Redis      redis.Cmdable
	Thresholds SuspiciousThresholds
	Now        func() time.Time

	stale atomic.Bool
}

func NewLeaderboardService(st store.ScoreStore, rdb redis.Cmdable, th SuspiciousThresholds) *LeaderboardService {
	s := &LeaderboardService{Store: st, Redis: rdb, Thresholds: th, Now: time.Now}
	s.stale.Store(true)
	return s
}

// Stale reports whether reads bypass the Redis boards.
func (s *LeaderboardService) Stale() bool { return s.stale.Load() }

func regionKey(region string) string { return leaderboardRegionKeyPrefix + region }

// Record pushes a committed score into the Redis boards. Cache errors are logged; the
// store stays authoritative.
func (s *LeaderboardService) Record(ctx context.Context, sc models.Score, username string) {
	if s.Redis == nil {
		return
	}
	member := redis.Z{Score: float64(sc.Score), Member: sc.PlayerID}
	_, err := s.Redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAddGT(ctx, leaderboardGlobalKey, member)
		if sc.Region != "" {
			pipe.ZAddGT(ctx, regionKey(sc.Region), member)
		}
		pipe.HSet(ctx, leaderboardNamesKey, sc.PlayerID, username)
		return nil
	})
	if err != nil {
		s.stale.Store(true)
		log.Printf("⚠️ [LEADERBOARD] redis update for %s failed, serving boards from the store until the next rebuild: %v", sc.PlayerID, err)
	}
}

// Rebuild merges every stored best score into the Redis boards and, on success, lets
// reads use them again. It only raises scores, so it is safe next to live Record calls.
func (s *LeaderboardService) Rebuild(ctx context.Context) (int64, error) {
	if s.Redis == nil {
		return 0, nil
	}
	// Cleared first: a write failing while the rebuild runs marks the cache stale again.
	s.stale.Store(false)
	fail := func(err error) (int64, error) {
		s.stale.Store(true)
		return 0, err
	}

	regions, err := s.Store.ScoreRegions(ctx)
	if err != nil {
		return fail(storeErr("rebuild leaderboards", "leaderboard", err))
	}
	boards := map[string][]models.LeaderboardRow{}
	if boards[leaderboardGlobalKey], err = s.Store.TopScores(ctx, store.LeaderboardQuery{}); err != nil {
		return fail(storeErr("rebuild leaderboards", "leaderboard", err))
	}
	for _, region := range regions {
		if boards[regionKey(region)], err = s.Store.TopScores(ctx, store.LeaderboardQuery{Region: region}); err != nil {
			return fail(storeErr("rebuild leaderboards", "leaderboard", err))
		}
	}

	var n int64
	_, err = s.Redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for key, rows := range boards {
			if len(rows) == 0 {
				continue
			}
			members := make([]redis.Z, len(rows))
			for i, r := range rows {
				members[i] = redis.Z{Score: float64(r.Score), Member: r.PlayerID}
				pipe.HSet(ctx, leaderboardNamesKey, r.PlayerID, r.Username)
			}
			pipe.ZAddGT(ctx, key, members...)
			n += int64(len(rows))
		}
		return nil
	})
	if err != nil {
		return fail(fmt.Errorf("rebuild leaderboards: %w", err))
	}
	log.Printf("✅ [LEADERBOARD] rebuilt %d boards (%d rows) from the store", len(boards), n)
	return n, nil
}

// Forget removes a player from every cached board, including all region boards.
func (s *LeaderboardService) Forget(ctx context.Context, playerID string) {
	if s.Redis == nil {
		return
	}
	keys := []string{leaderboardGlobalKey}
	iter := s.Redis.Scan(ctx, 0, leaderboardRegionKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		log.Printf("⚠️ [LEADERBOARD] scan region boards: %v", err)
	}
	_, err := s.Redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, k := range keys {
			pipe.ZRem(ctx, k, playerID)
		}
		pipe.HDel(ctx, leaderboardNamesKey, playerID)
		return nil
	})
	if err != nil {
		log.Printf("⚠️ [LEADERBOARD] forget %s: %v", playerID, err)
	}
}

// topMembers reads the first limit members of a board, highest score first and
// ascending member within a score. ZREVRANGE orders ties by descending member, so the
// members tied at the cut-off score are re-read in ascending order.
func (s *LeaderboardService) topMembers(ctx context.Context, key string, limit int) ([]redis.Z, error) {
	zs, err := s.Redis.ZRevRangeWithScores(ctx, key, 0, int64(limit-1)).Result()
	if err != nil || len(zs) < limit {
		sortMembers(zs)
		return zs, err
	}
	cut := zs[len(zs)-1].Score
	bound := strconv.FormatFloat(cut, 'f', -1, 64)
	ties, err := s.Redis.ZRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{Min: bound, Max: bound}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]redis.Z, 0, limit+len(ties))
	for _, z := range zs {
		if z.Score > cut {
			out = append(out, z)
		}
	}
	out = append(out, ties...)
	sortMembers(out)
	return out[:min(limit, len(out))], nil
}

func sortMembers(zs []redis.Z) {
	slices.SortStableFunc(zs, func(a, b redis.Z) int {
		am, _ := a.Member.(string)
		bm, _ := b.Member.(string)
		return cmp.Or(cmp.Compare(b.Score, a.Score), cmp.Compare(am, bm))
	})
}

func (s *LeaderboardService) fromRedis(ctx context.Context, key string, limit int) ([]models.LeaderboardRow, bool) {
	if s.Redis == nil || s.stale.Load() {
		return nil, false
	}
	zs, err := s.topMembers(ctx, key, limit)
	if err != nil {
		log.Printf("[LEADERBOARD] redis read %s failed, using store: %v", key, err)
		return nil, false
	}
	if len(zs) == 0 {
		return nil, false
	}
	ids := make([]string, len(zs))
	for i, z := range zs {
		ids[i], _ = z.Member.(string)
	}
	names, err := s.Redis.HMGet(ctx, leaderboardNamesKey, ids...).Result()
	if err != nil {
		names = make([]any, len(ids))
	}
	rows := make([]models.LeaderboardRow, len(zs))
	for i, z := range zs {
		name, _ := names[i].(string)
		rows[i] = models.LeaderboardRow{Rank: i + 1, PlayerID: ids[i], Username: name, Score: int64(z.Score)}
	}
	return rows, true
}

func (s *LeaderboardService) Global(ctx context.Context, limit int) ([]models.LeaderboardRow, error) {
	limit = clampLimit(limit, 50, 100)
	if rows, ok := s.fromRedis(ctx, leaderboardGlobalKey, limit); ok {
		return rows, nil
	}
	rows, err := s.Store.TopScores(ctx, store.LeaderboardQuery{Limit: limit})
	return rows, storeErr("global leaderboard", "leaderboard", err)
}

func (s *LeaderboardService) Region(ctx context.Context, region string, limit int) ([]models.LeaderboardRow, error) {
	limit = clampLimit(limit, 50, 100)
	if rows, ok := s.fromRedis(ctx, regionKey(region), limit); ok {
		return rows, nil
	}
	rows, err := s.Store.TopScores(ctx, store.LeaderboardQuery{Region: region, Limit: limit})
	return rows, storeErr("region leaderboard", "leaderboard", err)
}

// Daily ranks best scores of the last 24 hours.
func (s *LeaderboardService) Daily(ctx context.Context, limit int) ([]models.LeaderboardRow, error) {
	limit = clampLimit(limit, 50, 100)
	since := clock(s.Now).now().Add(-dailyWindow)
	rows, err := s.Store.TopScores(ctx, store.LeaderboardQuery{Since: since, Limit: limit})
	return rows, storeErr("daily leaderboard", "leaderboard", err)
}

type SuspiciousAccount struct {
	models.ActivitySummary
	Reasons []string `json:"reasons"`
}

// SuspiciousActivity lists accounts whose activity in the window crosses a threshold.
func (s *LeaderboardService) SuspiciousActivity(ctx context.Context) ([]SuspiciousAccount, error) {
	th := s.Thresholds
	activity, err := s.Store.ActivitySince(ctx, clock(s.Now).now().Add(-th.Window))
	if err != nil {
		return nil, storeErr("suspicious activity", "activity", err)
	}
	out := []SuspiciousAccount{}
	for _, a := range activity {
		var reasons []string
		if a.Games > th.MaxGames {
			reasons = append(reasons, "games")
		}
		if a.CoinInflow > th.MaxInflow {
			reasons = append(reasons, "coin_inflow")
		}
		if a.MaxScore > th.MaxScore {
			reasons = append(reasons, "score")
		}
		if len(reasons) > 0 {
			out = append(out, SuspiciousAccount{ActivitySummary: a, Reasons: reasons})
		}
	}
	return out, nil
}
