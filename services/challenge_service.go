// services/challenge_service.go
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

type ChallengeStores interface {
	store.AccountStore
	store.ChallengeStore
}

// ChallengeService drives a challenge from creation to settlement.
type ChallengeService struct {
	Store    ChallengeStores
	TTL      time.Duration
	WinBonus int64
	Now      func() time.Time
}

func NewChallengeService(st ChallengeStores, ttl time.Duration, winBonus int64) *ChallengeService {
	return &ChallengeService{Store: st, TTL: ttl, WinBonus: winBonus, Now: time.Now}
}

func (s *ChallengeService) now() time.Time { return clock(s.Now).now() }

// Create opens a direct challenge from challenger to opponent.
func (s *ChallengeService) Create(ctx context.Context, challengerID, opponentID, region, version string) (*models.Challenge, error) {
	region, version = strings.TrimSpace(region), strings.TrimSpace(version)
	if challengerID == opponentID {
		return nil, apperrors.NewAppError(apperrors.CodeInvalidInput, "cannot challenge yourself", nil)
	}
	if version == "" {
		return nil, apperrors.NewAppError(apperrors.CodeInvalidInput, "gameplay_version is required", nil)
	}
	now := s.now()
	challenger, err := s.Store.GetAccount(ctx, challengerID)
	if err != nil {
		return nil, storeErr("create challenge", "player", err)
	}
	if err := requireActive(challenger, now); err != nil {
		return nil, err
	}
	if _, err := s.Store.GetAccount(ctx, opponentID); err != nil {
		return nil, storeErr("create challenge", "opponent", err)
	}

	c := &models.Challenge{
		ID:              uuid.NewString(),
		ChallengerID:    challengerID,
		OpponentID:      opponentID,
		Status:          models.ChallengePending,
		Source:          models.ChallengeSourceDirect,
		Region:          region,
		GameplayVersion: version,
		CreatedAt:       now,
	}
	if err := s.Store.CreateChallenge(ctx, c); err != nil {
		return nil, storeErr("create challenge", "challenge", err)
	}
	log.Printf("⚔️ [H2H] challenge %s created %s vs %s", c.ID, challengerID, opponentID)
	return c, nil
}

func transition(c *models.Challenge, to models.ChallengeStatus) error {
	if !c.Status.CanTransition(to) {
		return apperrors.Newf(apperrors.CodeInvalidState, "challenge is %s and cannot become %s", c.Status, to)
	}
	c.Status = to
	return nil
}

// Accept moves a pending challenge to in_progress. Only the opponent may accept.
func (s *ChallengeService) Accept(ctx context.Context, playerID, challengeID string) (*models.Challenge, error) {
	c, err := s.Store.UpdateChallenge(ctx, challengeID, func(c *models.Challenge) error {
		if c.OpponentID != playerID {
			return apperrors.NewAppError(apperrors.CodePermissionDenied, "only the challenged player can accept", nil)
		}
		if err := transition(c, models.ChallengeInProgress); err != nil {
			return err
		}
		now := s.now()
		c.StartedAt = &now
		return nil
	})
	return c, storeErr("accept challenge", "challenge", err)
}

// Decline moves a pending challenge to declined. Only the opponent may decline.
func (s *ChallengeService) Decline(ctx context.Context, playerID, challengeID string) (*models.Challenge, error) {
	c, err := s.Store.UpdateChallenge(ctx, challengeID, func(c *models.Challenge) error {
		if c.OpponentID != playerID {
			return apperrors.NewAppError(apperrors.CodePermissionDenied, "only the challenged player can decline", nil)
		}
		if err := transition(c, models.ChallengeDeclined); err != nil {
			return err
		}
		now := s.now()
		c.CompletedAt = &now
		return nil
	})
	return c, storeErr("decline challenge", "challenge", err)
}

// SubmitRounds records one side's rounds. When both sides are in, the challenge
// completes and is settled.
func (s *ChallengeService) SubmitRounds(ctx context.Context, playerID, challengeID, version string, rounds models.Rounds) (*models.Challenge, error) {
	if !rounds.Valid() {
		return nil, apperrors.NewAppError(apperrors.CodeInvalidInput, "rounds must be numbered ascending with non-negative values", nil)
	}
	c, err := s.Store.UpdateChallenge(ctx, challengeID, func(c *models.Challenge) error {
		if !c.Participant(playerID) {
			return apperrors.NewAppError(apperrors.CodePermissionDenied, "not a participant of this challenge", nil)
		}
		if c.Status != models.ChallengeInProgress {
			return apperrors.Newf(apperrors.CodeInvalidState, "challenge is %s", c.Status)
		}
		if c.GameplayVersion != version {
			return apperrors.Newf(apperrors.CodeVersionMismatch, "challenge runs gameplay version %s", c.GameplayVersion)
		}
		side := &c.ChallengerRounds
		if playerID == c.OpponentID {
			side = &c.OpponentRounds
		}
		if len(side.Data()) > 0 {
			return apperrors.NewAppError(apperrors.CodeInvalidState, "rounds already submitted", nil)
		}
		*side = models.RoundsOf(rounds)
		if c.BothSubmitted() {
			if err := transition(c, models.ChallengeCompleted); err != nil {
				return err
			}
			c.Complete(s.now())
		}
		return nil
	})
	if err != nil {
		return nil, storeErr("submit rounds", "challenge", err)
	}
	if c.Status == models.ChallengeCompleted {
		return s.settleAfterCompletion(ctx, c), nil
	}
	return c, nil
}

// settleAfterCompletion pays out right away; a failure is left for the settlement scan.
func (s *ChallengeService) settleAfterCompletion(ctx context.Context, c *models.Challenge) *models.Challenge {
	settled, err := s.Settle(ctx, c.ID)
	if err != nil {
		log.Printf("[H2H] settlement of %s deferred: %v", c.ID, err)
		return c
	}
	return settled
}

// Get returns a challenge visible to playerID.
func (s *ChallengeService) Get(ctx context.Context, playerID, challengeID string) (*models.Challenge, error) {
	c, err := s.Store.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, storeErr("get challenge", "challenge", err)
	}
	if !c.Participant(playerID) {
		return nil, apperrors.NewAppError(apperrors.CodeNotFound, "challenge not found", nil)
	}
	return c, nil
}

func (s *ChallengeService) List(ctx context.Context, playerID string, limit int) ([]models.Challenge, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	out, err := s.Store.ListChallenges(ctx, playerID, limit)
	return out, storeErr("list challenges", "challenge", err)
}

// ExpireStale expires every pending or in_progress challenge older than the TTL.
func (s *ChallengeService) ExpireStale(ctx context.Context) (int64, error) {
	now := s.now()
	n, err := s.Store.ExpireChallenges(ctx, now.Add(-s.TTL), now)
	if err != nil {
		return 0, storeErr("expire challenges", "challenge", err)
	}
	if n > 0 {
		log.Printf("⏳ [H2H] expired %d stale challenges", n)
	}
	return n, nil
}

// SettlementPayouts is what each side earns from a completed challenge.
func SettlementPayouts(c *models.Challenge, winBonus int64) map[string]int64 {
	out := map[string]int64{
		c.ChallengerID: c.ChallengerRounds.Data().TotalCoins(),
		c.OpponentID:   c.OpponentRounds.Data().TotalCoins(),
	}
	if c.WinnerID != nil {
		out[*c.WinnerID] += winBonus
	}
	return out
}

// Settle pays out a completed challenge exactly once. Calling it again is a no-op.
func (s *ChallengeService) Settle(ctx context.Context, challengeID string) (*models.Challenge, error) {
	paid := false
	c, err := s.Store.SettleChallenge(ctx, challengeID, func(c *models.Challenge, tx *store.AccountTx) error {
		if c.Status != models.ChallengeCompleted {
			return apperrors.Newf(apperrors.CodeInvalidState, "challenge is %s", c.Status)
		}
		if c.SettledAt != nil {
			return nil
		}
		for playerID, coins := range SettlementPayouts(c, s.WinBonus) {
			acc, ok := tx.Account(playerID)
			if !ok || coins <= 0 {
				// deleted accounts forfeit their share
				continue
			}
			if err := applyCredit(acc, coins); err != nil {
				return err
			}
			tx.Journal(acc, coins, models.TxSettlement, "challenge:"+c.ID)
		}
		now := tx.Now
		c.SettledAt = &now
		paid = true
		return nil
	})
	if err != nil {
		return nil, storeErr("settle challenge", "challenge", err)
	}
	if paid {
		log.Printf("💰 [H2H] settled challenge %s winner=%v", c.ID, derefOr(c.WinnerID, "draw"))
	}
	return c, nil
}

// SettlePending retries settlement for completed challenges that were never paid.
func (s *ChallengeService) SettlePending(ctx context.Context, limit int) (int, error) {
	pending, err := s.Store.ListUnsettledChallenges(ctx, limit)
	if err != nil {
		return 0, storeErr("list unsettled", "challenge", err)
	}
	settled := 0
	for _, c := range pending {
		if _, err := s.Settle(ctx, c.ID); err != nil {
			log.Printf("[H2H] settlement of %s failed: %v", c.ID, err)
			continue
		}
		settled++
	}
	return settled, nil
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
