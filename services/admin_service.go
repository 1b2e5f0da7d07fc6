// services/admin_service.go
package services

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"casual-game-core/apperrors"
	"casual-game-core/models"
	"casual-game-core/store"
)

const maxModeratorBanDays = 30

// AdminService is the admin mutation gateway. The actor's role is read from the
// actor's own account row, locked together with the target, so a role revoked
// concurrently cannot be used.
type AdminService struct {
	Store   store.AccountStore
	Limiter *ActorLimiter
}

func NewAdminService(st store.AccountStore, limiter *ActorLimiter) *AdminService {
	return &AdminService{Store: st, Limiter: limiter}
}

// adminChange is what a gateway mutation reports for its audit entry.
type adminChange map[string]any

type adminMutation func(actor, target *models.Account, tx *store.AccountTx) (adminChange, error)

func checkAdmin(actor *models.Account, now time.Time) error {
	if !actor.Profile.Role.IsAdmin() || actor.Profile.BanActive(now) {
		return apperrors.ErrPermissionDenied
	}
	return nil
}

// authorizeActor checks the actor may use the gateway at all and spends a rate token.
func authorizeActor(actor *models.Account, now time.Time, limiter *ActorLimiter) error {
	if err := checkAdmin(actor, now); err != nil {
		return err
	}
	if actor.Profile.Role == models.RoleModerator && !limiter.Allow(actor.ID()) {
		return apperrors.ErrRateLimited
	}
	return nil
}

func auditDetails(details adminChange) []byte {
	raw, _ := json.Marshal(details)
	return raw
}

// mutate runs fn with actor and target locked and appends exactly one audit entry.
func (s *AdminService) mutate(ctx context.Context, actorID, targetID, action string, fn adminMutation) (*models.Profile, error) {
	raw, err := s.Store.WithAccounts(ctx, store.MutateOptions{AccountIDs: []string{actorID, targetID}}, func(tx *store.AccountTx) (any, error) {
		actor, ok := tx.Account(actorID)
		if !ok {
			return nil, apperrors.ErrPermissionDenied
		}
		if err := authorizeActor(actor, tx.Now, s.Limiter); err != nil {
			return nil, err
		}
		target, ok := tx.Account(targetID)
		if !ok {
			return nil, apperrors.NewAppError(apperrors.CodeNotFound, "target player not found", nil)
		}
		details, err := fn(actor, target, tx)
		if err != nil {
			return nil, err
		}
		tx.Audit(models.AuditLogEntry{
			ActorID:   actorID,
			ActorRole: actor.Profile.Role,
			Action:    action,
			TargetID:  targetID,
			Details:   auditDetails(details),
		})
		return target.Profile, nil
	})
	if err != nil {
		return nil, storeErr(action, "player", err)
	}
	log.Printf("🛡️ [ADMIN] %s by %s on %s", action, actorID, targetID)
	return decode[models.Profile](raw)
}

// IncrementStat adds amount to one allow-listed numeric column.
func (s *AdminService) IncrementStat(ctx context.Context, actorID, targetID, column string, amount int64) (*models.Profile, error) {
	col, err := ParseStatColumn(column)
	if err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, apperrors.ErrInvalidAmount
	}
	return s.mutate(ctx, actorID, targetID, models.ActionIncrementStat, func(actor, target *models.Account, tx *store.AccountTx) (adminChange, error) {
		prev, err := changeStat(actor.Profile.Role, &target.Profile, col, statFields[col].get(&target.Profile)+amount)
		if err != nil {
			return nil, err
		}
		if col == StatCoins {
			tx.Journal(target, amount, models.TxAdmin, "admin:"+actor.ID())
		}
		return adminChange{"column": col, "amount": amount, "old": prev, "new": statFields[col].get(&target.Profile)}, nil
	})
}

// SetStat overwrites one allow-listed numeric column. Moderators are held to the same
// per-call ceiling on the size of the change.
func (s *AdminService) SetStat(ctx context.Context, actorID, targetID, column string, value int64) (*models.Profile, error) {
	col, err := ParseStatColumn(column)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, actorID, targetID, models.ActionSetStat, func(actor, target *models.Account, tx *store.AccountTx) (adminChange, error) {
		prev, err := changeStat(actor.Profile.Role, &target.Profile, col, value)
		if err != nil {
			return nil, err
		}
		if col == StatCoins {
			tx.Journal(target, value-prev, models.TxAdmin, "admin:"+actor.ID())
		}
		return adminChange{"column": col, "old": prev, "new": value}, nil
	})
}

func (s *AdminService) SetLicense(ctx context.Context, actorID, targetID string, license models.License) (*models.Profile, error) {
	if !license.Valid() {
		return nil, apperrors.Newf(apperrors.CodeInvalidInput, "invalid license (tier must be one of %s)", strings.Join(models.LicenseTiers, ", "))
	}
	return s.mutate(ctx, actorID, targetID, models.ActionSetLicense, func(actor, target *models.Account, tx *store.AccountTx) (adminChange, error) {
		prev := target.Profile.License.Data()
		target.Profile.License = models.LicenseOf(license)
		return adminChange{"old": prev, "new": license}, nil
	})
}

// SetAvatar replaces the avatar config. Every part must already be owned by the target.
func (s *AdminService) SetAvatar(ctx context.Context, actorID, targetID string, avatar models.AvatarConfig) (*models.Profile, error) {
	if !avatar.Valid() {
		return nil, apperrors.NewAppError(apperrors.CodeInvalidInput, "invalid avatar config", nil)
	}
	return s.mutate(ctx, actorID, targetID, models.ActionSetAvatar, func(actor, target *models.Account, tx *store.AccountTx) (adminChange, error) {
		for _, part := range avatar.Parts() {
			if !models.IsAvatarPart(part) || !target.Owns(part) {
				return nil, apperrors.Newf(apperrors.CodeInvalidInput, "avatar part %q is not owned", part)
			}
		}
		prev := target.Profile.Avatar.Data()
		target.Profile.Avatar = models.AvatarOf(avatar)
		equipped := target.State.Equipped.Data()
		if equipped == nil {
			equipped = map[string]string{}
		}
		for slot, part := range map[string]string{
			models.SlotBase: avatar.Base, models.SlotHair: avatar.Hair,
			models.SlotOutfit: avatar.Outfit, models.SlotAccess: avatar.Accessory,
		} {
			if part == "" {
				delete(equipped, slot)
			} else {
				equipped[slot] = part
			}
		}
		target.State.Equipped = models.EquippedOf(equipped)
		return adminChange{"old": prev, "new": avatar}, nil
	})
}

// SetRole grants or revokes an admin role. Owners only, and never on themselves.
func (s *AdminService) SetRole(ctx context.Context, actorID, targetID string, role models.AdminRole) (*models.Profile, error) {
	if !role.Valid() {
		return nil, apperrors.Newf(apperrors.CodeInvalidInput, "unknown role %q", role)
	}
	if actorID == targetID {
		return nil, apperrors.NewAppError(apperrors.CodePermissionDenied, "owners cannot change their own role", nil)
	}
	return s.mutate(ctx, actorID, targetID, models.ActionSetRole, func(actor, target *models.Account, tx *store.AccountTx) (adminChange, error) {
		if actor.Profile.Role != models.RoleOwner {
			return nil, apperrors.NewAppError(apperrors.CodePermissionDenied, "only owners can change roles", nil)
		}
		prev := target.Profile.Role
		target.Profile.Role = role
		return adminChange{"old": prev, "new": role}, nil
	})
}

// BanUser soft-bans target. durationDays nil means permanent, which only owners may do.
func (s *AdminService) BanUser(ctx context.Context, actorID, targetID, reason string, durationDays *int) (*models.Profile, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.NewAppError(apperrors.CodeInvalidInput, "ban reason is required", nil)
	}
	if actorID == targetID {
		return nil, apperrors.NewAppError(apperrors.CodeInvalidInput, "admins cannot ban themselves", nil)
	}
	if durationDays != nil && *durationDays < 1 {
		return nil, apperrors.NewAppError(apperrors.CodeInvalidInput, "ban duration must be at least one day", nil)
	}
	return s.mutate(ctx, actorID, targetID, models.ActionBan, func(actor, target *models.Account, tx *store.AccountTx) (adminChange, error) {
		isOwner := actor.Profile.Role == models.RoleOwner
		if !isOwner {
			if durationDays == nil {
				return nil, apperrors.NewAppError(apperrors.CodePermissionDenied, "moderators can only issue time-bounded bans", nil)
			}
			if *durationDays > maxModeratorBanDays {
				return nil, apperrors.Newf(apperrors.CodeModeratorLimitExceeded, "moderator bans are capped at %d days", maxModeratorBanDays)
			}
			if target.Profile.Role.IsAdmin() {
				return nil, apperrors.ErrCannotBanAdmin
			}
		}
		now := tx.Now
		p := &target.Profile
		p.BannedAt = &now
		p.BanExpiresAt = nil
		if durationDays != nil {
			exp := now.AddDate(0, 0, *durationDays)
			p.BanExpiresAt = &exp
		}
		p.BanReason = reason
		p.BannedBy = actor.ID()
		return adminChange{"reason": reason, "duration_days": durationDays, "expires_at": p.BanExpiresAt}, nil
	})
}

// UnbanUser lifts a ban. Moderators cannot lift permanent bans or touch admins.
func (s *AdminService) UnbanUser(ctx context.Context, actorID, targetID string) (*models.Profile, error) {
	return s.mutate(ctx, actorID, targetID, models.ActionUnban, func(actor, target *models.Account, tx *store.AccountTx) (adminChange, error) {
		p := &target.Profile
		if p.BannedAt == nil {
			return nil, apperrors.NewAppError(apperrors.CodeInvalidState, "player is not banned", nil)
		}
		if actor.Profile.Role != models.RoleOwner {
			if p.PermanentlyBanned() {
				return nil, apperrors.NewAppError(apperrors.CodePermissionDenied, "only owners can lift permanent bans", nil)
			}
			if p.Role.IsAdmin() {
				return nil, apperrors.ErrCannotBanAdmin
			}
		}
		details := adminChange{"previous_reason": p.BanReason, "previous_banned_by": p.BannedBy}
		p.BannedAt, p.BanExpiresAt, p.BanReason, p.BannedBy = nil, nil, "", ""
		return details, nil
	})
}

// DeleteAccount hard-deletes a player on an explicit external request. Owners only.
func (s *AdminService) DeleteAccount(ctx context.Context, actorID, targetID, reason string) error {
	if actorID == targetID {
		return apperrors.NewAppError(apperrors.CodeInvalidInput, "owners cannot delete their own account", nil)
	}
	_, err := s.mutate(ctx, actorID, targetID, models.ActionDeleteAccount, func(actor, target *models.Account, tx *store.AccountTx) (adminChange, error) {
		if actor.Profile.Role != models.RoleOwner {
			return nil, apperrors.NewAppError(apperrors.CodePermissionDenied, "only owners can delete accounts", nil)
		}
		tx.Delete(target.ID())
		return adminChange{
			"reason":   reason,
			"username": target.Profile.Username,
			"coins":    target.Profile.Coins,
		}, nil
	})
	return err
}
