// models/profile.go
package models

import (
	"slices"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// AdminRole is the tiered administrative role of a player.
type AdminRole string

const (
	RoleNone      AdminRole = "none"
	RoleModerator AdminRole = "moderator"
	RoleOwner     AdminRole = "owner"
)

func (r AdminRole) IsAdmin() bool { return r == RoleModerator || r == RoleOwner }

func (r AdminRole) Valid() bool {
	return r == RoleNone || r == RoleModerator || r == RoleOwner
}

// Profile is the player-facing identity plus the numeric stats admins may mutate.
type Profile struct {
	ID           string    `gorm:"primaryKey;type:uuid" json:"id"`
	Username     string    `gorm:"not null" json:"username"`
	UsernameSlug string    `gorm:"uniqueIndex;not null" json:"-"`
	Coins        int64     `gorm:"not null;default:0;check:coins >= 0" json:"coins"`
	Level        int64     `gorm:"not null;default:1" json:"level"`
	XP           int64     `gorm:"column:xp;not null;default:0" json:"xp"`
	GamesPlayed  int64     `gorm:"not null;default:0" json:"games_played"`
	Role         AdminRole `gorm:"type:varchar(16);not null;default:'none'" json:"role"`

	License datatypes.JSONType[License]      `json:"license"`
	Avatar  datatypes.JSONType[AvatarConfig] `json:"avatar"`

	// Soft ban. BanExpiresAt nil with BannedAt set means permanent.
	BannedAt     *time.Time `gorm:"index" json:"banned_at,omitempty"`
	BanExpiresAt *time.Time `json:"ban_expires_at,omitempty"`
	BanReason    string     `json:"ban_reason,omitempty"`
	BannedBy     string     `json:"banned_by,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// BanActive reports whether the player is banned at the given instant.
func (p *Profile) BanActive(now time.Time) bool {
	if p.BannedAt == nil {
		return false
	}
	return p.BanExpiresAt == nil || now.Before(*p.BanExpiresAt)
}

// PermanentlyBanned is true for an active ban without expiry.
func (p *Profile) PermanentlyBanned() bool {
	return p.BannedAt != nil && p.BanExpiresAt == nil
}

// License is the typed replacement for the free-form license blob.
type License struct {
	Tier      string     `json:"tier"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Features  []string   `json:"features,omitempty"`
}

var LicenseTiers = []string{"free", "supporter", "premium", "lifetime"}

func (l License) Valid() bool {
	if !slices.Contains(LicenseTiers, l.Tier) {
		return false
	}
	if l.Tier == "lifetime" && l.ExpiresAt != nil {
		return false
	}
	for _, f := range l.Features {
		if strings.TrimSpace(f) == "" || len(f) > 64 {
			return false
		}
	}
	return true
}

func (l License) clone() License {
	out := l
	if l.ExpiresAt != nil {
		t := *l.ExpiresAt
		out.ExpiresAt = &t
	}
	out.Features = slices.Clone(l.Features)
	return out
}

// AvatarConfig holds the equipped avatar parts. Every non-empty part must be owned
// (or be a default part).
type AvatarConfig struct {
	Base      string `json:"base"`
	Hair      string `json:"hair,omitempty"`
	Outfit    string `json:"outfit,omitempty"`
	Accessory string `json:"accessory,omitempty"`
	Color     string `json:"color,omitempty"` // #RRGGBB
}

func (a AvatarConfig) Parts() []string {
	parts := make([]string, 0, 4)
	for _, p := range []string{a.Base, a.Hair, a.Outfit, a.Accessory} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

func (a AvatarConfig) Valid() bool {
	if a.Base == "" {
		return false
	}
	if a.Color == "" {
		return true
	}
	if len(a.Color) != 7 || a.Color[0] != '#' {
		return false
	}
	for _, c := range a.Color[1:] {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return false
		}
	}
	return true
}
