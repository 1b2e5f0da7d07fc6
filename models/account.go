// models/account.go
package models

import (
	"maps"
	"slices"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// AvatarPartPrefix marks item ids that belong to the avatar-part catalogue.
const AvatarPartPrefix = "avatar:"

// Items every player implicitly owns.
var DefaultItems = []string{"cosmetic:default", "avatar:base_default"}

// Equip slots.
const (
	SlotCosmetic = "cosmetic"
	SlotBase     = "base"
	SlotHair     = "hair"
	SlotOutfit   = "outfit"
	SlotAccess   = "accessory"
)

var EquipSlots = []string{SlotCosmetic, SlotBase, SlotHair, SlotOutfit, SlotAccess}

// AccountState is the per-player ownership row.
type AccountState struct {
	PlayerID         string                                `gorm:"primaryKey;type:uuid" json:"player_id"`
	OwnedCosmetics   datatypes.JSONSlice[string]           `json:"owned_cosmetics"`
	OwnedAvatarParts datatypes.JSONSlice[string]           `json:"owned_avatar_parts"`
	Equipped         datatypes.JSONType[map[string]string] `json:"equipped"`
	UpdatedAt        time.Time                             `json:"updated_at" gorm:"autoUpdateTime"`
}

func (AccountState) TableName() string { return "account_state" }

// Account is the unit the ledger locks: one player's profile and ownership state.
type Account struct {
	Profile Profile      `json:"profile"`
	State   AccountState `json:"state"`
}

// NewAccount builds a fresh account with default equipped items.
func NewAccount(id, username, usernameSlug string, now time.Time) *Account {
	return &Account{
		Profile: Profile{
			ID:           id,
			Username:     username,
			UsernameSlug: usernameSlug,
			Level:        1,
			Role:         RoleNone,
			License:      datatypes.NewJSONType(License{Tier: "free"}),
			Avatar:       datatypes.NewJSONType(AvatarConfig{Base: "avatar:base_default"}),
			CreatedAt:    now,
			UpdatedAt:    now,
		},
		State: AccountState{
			PlayerID:         id,
			OwnedCosmetics:   datatypes.JSONSlice[string]{},
			OwnedAvatarParts: datatypes.JSONSlice[string]{},
			Equipped: datatypes.NewJSONType(map[string]string{
				SlotCosmetic: "cosmetic:default",
				SlotBase:     "avatar:base_default",
			}),
			UpdatedAt: now,
		},
	}
}

func IsAvatarPart(itemID string) bool { return strings.HasPrefix(itemID, AvatarPartPrefix) }

func (a *Account) ID() string { return a.Profile.ID }

// Owns reports whether the item is in the matching owned set or is a default item.
func (a *Account) Owns(itemID string) bool {
	if slices.Contains(DefaultItems, itemID) {
		return true
	}
	if IsAvatarPart(itemID) {
		return slices.Contains(a.State.OwnedAvatarParts, itemID)
	}
	return slices.Contains(a.State.OwnedCosmetics, itemID)
}

// Grant adds the item to the matching owned set. It is a no-op for owned items.
func (a *Account) Grant(itemID string) {
	if a.Owns(itemID) {
		return
	}
	if IsAvatarPart(itemID) {
		a.State.OwnedAvatarParts = append(a.State.OwnedAvatarParts, itemID)
		return
	}
	a.State.OwnedCosmetics = append(a.State.OwnedCosmetics, itemID)
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (a *Account) Clone() *Account {
	out := *a
	p := &out.Profile
	p.License = datatypes.NewJSONType(a.Profile.License.Data().clone())
	p.Avatar = datatypes.NewJSONType(a.Profile.Avatar.Data())
	p.BannedAt = cloneTime(a.Profile.BannedAt)
	p.BanExpiresAt = cloneTime(a.Profile.BanExpiresAt)
	out.State.OwnedCosmetics = slices.Clone(a.State.OwnedCosmetics)
	out.State.OwnedAvatarParts = slices.Clone(a.State.OwnedAvatarParts)
	out.State.Equipped = datatypes.NewJSONType(maps.Clone(a.State.Equipped.Data()))
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func EquippedOf(m map[string]string) datatypes.JSONType[map[string]string] {
	return datatypes.NewJSONType(m)
}

func AvatarOf(a AvatarConfig) datatypes.JSONType[AvatarConfig] { return datatypes.NewJSONType(a) }

func LicenseOf(l License) datatypes.JSONType[License] { return datatypes.NewJSONType(l) }
