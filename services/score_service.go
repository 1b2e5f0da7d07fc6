// services/score_service.go
package services

import (
	"context"
	"log"
	"math"

	"casual-game-core/apperrors"
	"casual-game-core/models"
	"casual-game-core/store"

	"github.com/google/uuid"
)

// BaseXPPerLevel scales the level curve.
const BaseXPPerLevel = 100

// MatchXP is the flat XP every recorded game earns on top of score/ScoreXPDivisor.
const (
	MatchXP        = 10
	ScoreXPDivisor = 100
)

// xpForNextLevel returns XP required to reach level+1 from current level
// e.g., xpForNextLevel(1) = XP to go from L1 → L2
func xpForNextLevel(currentLevel int64) int64 {
	if currentLevel < 1 {
		currentLevel = 1
	}
	// L_n = floor(BaseXPPerLevel * n^1.2)
	return int64(float64(BaseXPPerLevel) * math.Pow(float64(currentLevel), 1.2))
}

// awardXP adds xp and levels the profile up as long as the curve allows.
func awardXP(p *models.Profile, xp int64) (levelsGained int64) {
	p.XP += xp
	if p.Level < 1 {
		p.Level = 1
	}
	for p.XP >= BaseXPPerLevel*p.Level+xpForNextLevel(p.Level) {
		p.Level++
		levelsGained++
	}
	return levelsGained
}

type ScoreService struct {
	Store        store.AccountStore
	Leaderboards *LeaderboardService
}

func NewScoreService(st store.AccountStore, leaderboards *LeaderboardService) *ScoreService {
	return &ScoreService{Store: st, Leaderboards: leaderboards}
}

type ScoreSubmission struct {
	PlayerID   string
	Score      int64
	DurationMs int64
	Region     string
	Rounds     models.Rounds
}

type ScoreResult struct {
	Score        models.Score `json:"score"`
	XPAwarded    int64        `json:"xp_awarded"`
	XP           int64        `json:"xp"`
	Level        int64        `json:"level"`
	LevelsGained int64        `json:"levels_gained"`
	GamesPlayed  int64        `json:"games_played"`
	Username     string       `json:"username"`
}

// RecordScore appends a score, bumps games_played and awards XP in one mutation, then
// updates the cached leaderboards.
func (s *ScoreService) RecordScore(ctx context.Context, sub ScoreSubmission) (*ScoreResult, error) {
	if sub.Score < 0 || sub.DurationMs < 0 {
		return nil, apperrors.NewAppError(apperrors.CodeInvalidInput, "score and duration must not be negative", nil)
	}
	if len(sub.Rounds) > 0 && !sub.Rounds.Valid() {
		return nil, apperrors.NewAppError(apperrors.CodeInvalidInput, "rounds must be numbered ascending with non-negative values", nil)
	}
	raw, err := s.Store.WithAccounts(ctx, store.MutateOptions{AccountIDs: []string{sub.PlayerID}}, func(tx *store.AccountTx) (any, error) {
		acc, ok := tx.Account(sub.PlayerID)
		if !ok {
			return nil, apperrors.NewAppError(apperrors.CodeNotFound, "player not found", nil)
		}
		if err := requireActive(acc, tx.Now); err != nil {
			return nil, err
		}
		sc := models.Score{
			ID:         uuid.NewString(),
			PlayerID:   sub.PlayerID,
			Score:      sub.Score,
			DurationMs: sub.DurationMs,
			Region:     sub.Region,
			Rounds:     models.RoundsOf(sub.Rounds),
			CreatedAt:  tx.Now,
		}
		tx.AddScore(sc)
		p := &acc.Profile
		p.GamesPlayed++
		xp := int64(MatchXP) + sub.Score/ScoreXPDivisor
		gained := awardXP(p, xp)
		return ScoreResult{
			Score:        sc,
			XPAwarded:    xp,
			XP:           p.XP,
			Level:        p.Level,
			LevelsGained: gained,
			GamesPlayed:  p.GamesPlayed,
			Username:     p.Username,
		}, nil
	})
	if err != nil {
		return nil, storeErr("record score", "player", err)
	}
	res, err := decode[ScoreResult](raw)
	if err != nil {
		return nil, err
	}
	if res.LevelsGained > 0 {
		log.Printf("🎮 XP Awarded: %s → XP=%d, Lvl=%d", sub.PlayerID, res.XP, res.Level)
	}
	if s.Leaderboards != nil {
		s.Leaderboards.Record(ctx, res.Score, res.Username)
	}
	return res, nil
}
