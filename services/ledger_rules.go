// services/ledger_rules.go
package services

import (
	"time"

	"casual-game-core/apperrors"
	"casual-game-core/models"
)

// The rules below are pure: they only read and mutate the accounts handed to them and
// never touch the store. The ledger runs them with the accounts locked.

func requireActive(acc *models.Account, now time.Time) error {
	if acc.Profile.BanActive(now) {
		return apperrors.ErrAccountBanned
	}
	return nil
}

func applyPurchase(acc *models.Account, itemID string, cost int64) error {
	if itemID == "" {
		return apperrors.NewAppError(apperrors.CodeInvalidInput, "item id is required", nil)
	}
	if cost < 0 {
		return apperrors.ErrInvalidAmount
	}
	// Ownership first: a replayed purchase reports AlreadyOwned even after the
	// balance dropped below the price.
	if acc.Owns(itemID) {
		return apperrors.ErrAlreadyOwned
	}
	if acc.Profile.Coins < cost {
		return apperrors.ErrInsufficientFunds
	}
	acc.Profile.Coins -= cost
	acc.Grant(itemID)
	return nil
}

func applyTransfer(sender, recipient *models.Account, amount int64) error {
	if amount <= 0 {
		return apperrors.ErrInvalidAmount
	}
	if sender.ID() == recipient.ID() {
		return apperrors.ErrSelfTransfer
	}
	if sender.Profile.Coins < amount {
		return apperrors.ErrInsufficientFunds
	}
	sender.Profile.Coins -= amount
	recipient.Profile.Coins += amount
	return nil
}

func applyGift(gifter, recipient *models.Account, itemID string, cost int64) error {
	if itemID == "" {
		return apperrors.NewAppError(apperrors.CodeInvalidInput, "item id is required", nil)
	}
	if cost < 0 {
		return apperrors.ErrInvalidAmount
	}
	if gifter.ID() == recipient.ID() {
		return apperrors.ErrSelfTransfer
	}
	if recipient.Owns(itemID) {
		return apperrors.ErrRecipientAlreadyOwns
	}
	if gifter.Profile.Coins < cost {
		return apperrors.ErrInsufficientFunds
	}
	gifter.Profile.Coins -= cost
	recipient.Grant(itemID)
	return nil
}

func applyCredit(acc *models.Account, amount int64) error {
	if amount <= 0 {
		return apperrors.ErrInvalidAmount
	}
	acc.Profile.Coins += amount
	return nil
}

// applyEquip puts an owned item into a slot. Avatar slots take avatar parts and keep
// the profile's avatar config in sync. Empty itemID clears an optional slot.
func applyEquip(acc *models.Account, slot, itemID string) error {
	avatarSlot := slot != models.SlotCosmetic
	switch slot {
	case models.SlotCosmetic, models.SlotBase, models.SlotHair, models.SlotOutfit, models.SlotAccess:
	default:
		return apperrors.Newf(apperrors.CodeInvalidInput, "unknown slot %q", slot)
	}
	if itemID == "" {
		if slot == models.SlotCosmetic || slot == models.SlotBase {
			return apperrors.Newf(apperrors.CodeInvalidInput, "slot %q cannot be empty", slot)
		}
	} else {
		if models.IsAvatarPart(itemID) != avatarSlot {
			return apperrors.Newf(apperrors.CodeInvalidInput, "item %q does not fit slot %q", itemID, slot)
		}
		if !acc.Owns(itemID) {
			return apperrors.NewAppError(apperrors.CodeNotFound, "item not owned", nil)
		}
	}

	equipped := acc.State.Equipped.Data()
	if equipped == nil {
		equipped = map[string]string{}
	}
	if itemID == "" {
		delete(equipped, slot)
	} else {
		equipped[slot] = itemID
	}
	acc.State.Equipped = models.EquippedOf(equipped)

	if avatarSlot {
		avatar := acc.Profile.Avatar.Data()
		switch slot {
		case models.SlotBase:
			avatar.Base = itemID
		case models.SlotHair:
			avatar.Hair = itemID
		case models.SlotOutfit:
			avatar.Outfit = itemID
		case models.SlotAccess:
			avatar.Accessory = itemID
		}
		acc.Profile.Avatar = models.AvatarOf(avatar)
	}
	return nil
}
