// services/admin_columns.go
package services

import (
	"casual-game-core/apperrors"
	"casual-game-core/models"
)

// StatColumn is the closed set of numeric profile fields the admin gateway may write.
type StatColumn string

const (
	StatCoins       StatColumn = "coins"
	StatLevel       StatColumn = "level"
	StatXP          StatColumn = "xp"
	StatGamesPlayed StatColumn = "games_played"
)

// statField binds a column to its typed accessor pair and limits.
type statField struct {
	get func(p *models.Profile) int64
	set func(p *models.Profile, v int64)
	// min is the lowest value the field may hold.
	min int64
	// moderatorCeiling caps the per-call change a moderator may apply.
	moderatorCeiling int64
}

var statFields = map[StatColumn]statField{
	StatCoins: {
		get:              func(p *models.Profile) int64 { return p.Coins },
		set:              func(p *models.Profile, v int64) { p.Coins = v },
		min:              0,
		moderatorCeiling: 1000,
	},
	StatLevel: {
		get:              func(p *models.Profile) int64 { return p.Level },
		set:              func(p *models.Profile, v int64) { p.Level = v },
		min:              1,
		moderatorCeiling: 5,
	},
	StatXP: {
		get:              func(p *models.Profile) int64 { return p.XP },
		set:              func(p *models.Profile, v int64) { p.XP = v },
		min:              0,
		moderatorCeiling: 5000,
	},
	StatGamesPlayed: {
		get:              func(p *models.Profile) int64 { return p.GamesPlayed },
		set:              func(p *models.Profile, v int64) { p.GamesPlayed = v },
		min:              0,
		moderatorCeiling: 10,
	},
}

// ParseStatColumn resolves a client-supplied column name.
func ParseStatColumn(name string) (StatColumn, error) {
	col := StatColumn(name)
	if _, ok := statFields[col]; !ok {
		return "", apperrors.NewAppError(apperrors.CodeInvalidColumn, "column "+name+" is not mutable", nil)
	}
	return col, nil
}

func moderatorCeiling(col StatColumn) int64 { return statFields[col].moderatorCeiling }

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// changeStat writes next into col after checking role ceilings and the field minimum.
func changeStat(role models.AdminRole, p *models.Profile, col StatColumn, next int64) (prev int64, err error) {
	f := statFields[col]
	prev = f.get(p)
	if ceiling := moderatorCeiling(col); role != models.RoleOwner && abs64(next-prev) > ceiling {
		return prev, apperrors.Newf(apperrors.CodeModeratorLimitExceeded,
			"moderators may change %s by at most %d per call", col, ceiling)
	}
	if next < f.min {
		return prev, apperrors.Newf(apperrors.CodeInvalidAmount, "%s cannot go below %d", col, f.min)
	}
	f.set(p, next)
	return prev, nil
}
