// services/friendship_service.go
package services

import (
	"context"
	"time"

	"casual-game-core/apperrors"
	"casual-game-core/models"
	"casual-game-core/store"

	"github.com/google/uuid"
)

type FriendshipStores interface {
	store.AccountStore
	store.SocialStore
}

type FriendshipService struct {
	Store FriendshipStores
	Now   func() time.Time
}

func NewFriendshipService(st FriendshipStores) *FriendshipService {
	return &FriendshipService{Store: st, Now: time.Now}
}

// Request opens a pending friendship. There is at most one edge per unordered pair.
func (s *FriendshipService) Request(ctx context.Context, requesterID, addresseeID string) (*models.Friendship, error) {
	if requesterID == addresseeID {
		return nil, apperrors.NewAppError(apperrors.CodeInvalidInput, "cannot befriend yourself", nil)
	}
	if _, err := s.Store.GetAccount(ctx, addresseeID); err != nil {
		return nil, storeErr("friend request", "player", err)
	}
	now := clock(s.Now).now()
	low, high := models.FriendPair(requesterID, addresseeID)
	f := &models.Friendship{
		ID:          uuid.NewString(),
		LowID:       low,
		HighID:      high,
		RequesterID: requesterID,
		AddresseeID: addresseeID,
		Status:      models.FriendshipPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.Store.CreateFriendship(ctx, f); err != nil {
		return nil, storeErr("friend request", "friendship", err)
	}
	return f, nil
}

// Respond accepts or declines a pending request. Only the addressee may respond.
func (s *FriendshipService) Respond(ctx context.Context, playerID, friendshipID string, accept bool) (*models.Friendship, error) {
	f, err := s.Store.UpdateFriendship(ctx, friendshipID, func(f *models.Friendship) error {
		if f.AddresseeID != playerID {
			return apperrors.NewAppError(apperrors.CodePermissionDenied, "only the addressee can respond", nil)
		}
		if f.Status != models.FriendshipPending {
			return apperrors.Newf(apperrors.CodeInvalidState, "friendship is already %s", f.Status)
		}
		f.Status = models.FriendshipDeclined
		if accept {
			f.Status = models.FriendshipAccepted
		}
		f.UpdatedAt = clock(s.Now).now()
		return nil
	})
	if err != nil {
		return nil, storeErr("respond friendship", "friendship", err)
	}
	return f, nil
}

func (s *FriendshipService) List(ctx context.Context, playerID string) ([]models.Friendship, error) {
	out, err := s.Store.ListFriendships(ctx, playerID)
	return out, storeErr("list friendships", "friendship", err)
}
