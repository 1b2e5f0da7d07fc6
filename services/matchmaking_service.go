// services/matchmaking_service.go
package services

import (
	"context"
	"log"
	"strings"
	"time"

	"casual-game-core/apperrors"
	"casual-game-core/models"
	"casual-game-core/store"

	"github.com/google/uuid"
)

// candidateScanLimit bounds how many pooled entries one submission considers.
const candidateScanLimit = 50

type MatchmakingStores interface {
	store.AccountStore
	store.PoolStore
}

// MatchmakingService pairs async pool submissions into challenges.
type MatchmakingService struct {
	Store      MatchmakingStores
	Challenges *ChallengeService
	SkillBand  int
	Retention  time.Duration
	Now        func() time.Time
}

func NewMatchmakingService(st MatchmakingStores, challenges *ChallengeService, skillBand int, retention time.Duration) *MatchmakingService {
	return &MatchmakingService{Store: st, Challenges: challenges, SkillBand: skillBand, Retention: retention, Now: time.Now}
}

func (s *MatchmakingService) now() time.Time { return clock(s.Now).now() }

type PoolSubmission struct {
	PlayerID        string
	Region          string
	Rounds          models.Rounds
	SkillRating     int
	GameplayVersion string
}

type PoolResult struct {
	Entry     *models.PoolEntry `json:"entry"`
	Matched   bool              `json:"matched"`
	Challenge *models.Challenge `json:"challenge,omitempty"`
}

// pickClosest returns the candidate with the rating closest to entry; the oldest entry
// wins a tie. Entries on another gameplay version are never eligible.
func pickClosest(entry *models.PoolEntry, candidates []*models.PoolEntry) *models.PoolEntry {
	var best *models.PoolEntry
	bestDiff := -1
	for _, c := range candidates {
		if c.GameplayVersion != entry.GameplayVersion || c.Region != entry.Region || c.PlayerID == entry.PlayerID || c.Matched() {
			continue
		}
		diff := c.SkillRating - entry.SkillRating
		if diff < 0 {
			diff = -diff
		}
		if best == nil || diff < bestDiff || diff == bestDiff && c.CreatedAt.Before(best.CreatedAt) {
			best, bestDiff = c, diff
		}
	}
	return best
}

// buildPoolChallenge turns a pair into a challenge. The earlier submission is the
// challenger. Both round sets present means the challenge is already complete.
func buildPoolChallenge(now time.Time) func(entry, partner *models.PoolEntry) *models.Challenge {
	return func(entry, partner *models.PoolEntry) *models.Challenge {
		c := &models.Challenge{
			ID:               uuid.NewString(),
			ChallengerID:     partner.PlayerID,
			OpponentID:       entry.PlayerID,
			Status:           models.ChallengeInProgress,
			Source:           models.ChallengeSourcePool,
			Region:           entry.Region,
			GameplayVersion:  entry.GameplayVersion,
			ChallengerRounds: partner.Rounds,
			OpponentRounds:   entry.Rounds,
			CreatedAt:        now,
			StartedAt:        &now,
		}
		if c.BothSubmitted() {
			c.Complete(now)
		}
		return c
	}
}

// SubmitToPool pools a submission and pairs it with the closest-rated compatible entry
// within the skill band, if any.
func (s *MatchmakingService) SubmitToPool(ctx context.Context, sub PoolSubmission) (*PoolResult, error) {
	sub.Region = strings.TrimSpace(sub.Region)
	sub.GameplayVersion = strings.TrimSpace(sub.GameplayVersion)
	if sub.Region == "" || sub.GameplayVersion == "" {
		return nil, apperrors.NewAppError(apperrors.CodeInvalidInput, "region and gameplay_version are required", nil)
	}
	if sub.SkillRating < 0 {
		return nil, apperrors.NewAppError(apperrors.CodeInvalidInput, "skill_rating must not be negative", nil)
	}
	if len(sub.Rounds) > 0 && !sub.Rounds.Valid() {
		return nil, apperrors.NewAppError(apperrors.CodeInvalidInput, "rounds must be numbered ascending with non-negative values", nil)
	}

	now := s.now()
	acc, err := s.Store.GetAccount(ctx, sub.PlayerID)
	if err != nil {
		return nil, storeErr("submit to pool", "player", err)
	}
	if err := requireActive(acc, now); err != nil {
		return nil, err
	}

	entry := &models.PoolEntry{
		ID:              uuid.NewString(),
		PlayerID:        sub.PlayerID,
		Region:          sub.Region,
		GameplayVersion: sub.GameplayVersion,
		SkillRating:     sub.SkillRating,
		Rounds:          models.RoundsOf(sub.Rounds),
		CreatedAt:       now,
	}
	plan := store.PairingPlan{
		Query: store.PoolQuery{
			Region:          sub.Region,
			GameplayVersion: sub.GameplayVersion,
			Target:          sub.SkillRating,
			MinRating:       sub.SkillRating - s.SkillBand,
			MaxRating:       sub.SkillRating + s.SkillBand,
			Since:           now.Add(-s.Retention),
			Limit:           candidateScanLimit,
		},
		Pick:  pickClosest,
		Build: buildPoolChallenge(now),
	}
	c, err := s.Store.SubmitPoolEntry(ctx, entry, plan)
	if err != nil {
		return nil, storeErr("submit to pool", "pool entry", err)
	}
	if c == nil {
		log.Printf("🎯 [POOL] %s pooled (rating=%d region=%s version=%s)", sub.PlayerID, sub.SkillRating, sub.Region, sub.GameplayVersion)
		return &PoolResult{Entry: entry}, nil
	}

	log.Printf("🎯 [POOL] paired %s with %s into challenge %s (%s)", c.OpponentID, c.ChallengerID, c.ID, c.Status)
	entry.MatchedAt = &now
	entry.ChallengeID = &c.ID
	if c.Status == models.ChallengeCompleted && s.Challenges != nil {
		c = s.Challenges.settleAfterCompletion(ctx, c)
	}
	return &PoolResult{Entry: entry, Matched: true, Challenge: c}, nil
}

// CleanupPool deletes unmatched entries older than the retention window.
func (s *MatchmakingService) CleanupPool(ctx context.Context) (int64, error) {
	n, err := s.Store.DeleteUnmatchedPoolEntries(ctx, s.now().Add(-s.Retention))
	if err != nil {
		return 0, storeErr("cleanup pool", "pool entry", err)
	}
	if n > 0 {
		log.Printf("🧹 [POOL] removed %d stale pool entries", n)
	}
	return n, nil
}
