// models/moderation.go
package models

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLogEntry is append-only. Nothing updates or deletes these rows.
type AuditLogEntry struct {
	ID        string         `gorm:"primaryKey;type:uuid" json:"id"`
	ActorID   string         `gorm:"type:uuid;index;not null" json:"actor_id"`
	ActorRole AdminRole      `gorm:"type:varchar(16);not null" json:"actor_role"`
	Action    string         `gorm:"index;not null" json:"action"`
	TargetID  string         `gorm:"index" json:"target_id,omitempty"`
	Details   datatypes.JSON `json:"details"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
}

func (AuditLogEntry) TableName() string { return "admin_audit_log" }

// Audit actions.
const (
	ActionIncrementStat = "increment_stat"
	ActionSetStat       = "set_stat"
	ActionSetLicense    = "set_license"
	ActionSetAvatar     = "set_avatar"
	ActionSetRole       = "set_role"
	ActionBan           = "ban_user"
	ActionUnban         = "unban_user"
	ActionResolveReport = "resolve_report"
	ActionAnnouncement  = "upsert_announcement"
	ActionFeatureFlag   = "set_feature_flag"
	ActionAppConfig     = "update_app_config"
	ActionDeleteAccount = "delete_account"
)

type ReportStatus string

const (
	ReportPending   ReportStatus = "pending"
	ReportReviewed  ReportStatus = "reviewed"
	ReportActioned  ReportStatus = "actioned"
	ReportDismissed ReportStatus = "dismissed"
)

// Resolution reports whether the status is one an admin may move a report to.
func (s ReportStatus) Resolution() bool {
	return s == ReportReviewed || s == ReportActioned || s == ReportDismissed
}

type PlayerReport struct {
	ID          string       `gorm:"primaryKey;type:uuid" json:"id"`
	ReporterID  string       `gorm:"type:uuid;index;not null;check:reporter_id <> reported_id" json:"reporter_id"`
	ReportedID  string       `gorm:"type:uuid;index;not null" json:"reported_id"`
	Reason      string       `gorm:"not null" json:"reason"`
	Details     string       `json:"details,omitempty"`
	Status      ReportStatus `gorm:"type:varchar(16);index;not null;default:'pending'" json:"status"`
	ActionTaken string       `json:"action_taken,omitempty"`
	ResolvedBy  *string      `gorm:"type:uuid" json:"resolved_by,omitempty"`
	ResolvedAt  *time.Time   `json:"resolved_at,omitempty"`
	CreatedAt   time.Time    `gorm:"index" json:"created_at"`
}

// AppConfig is a single key → JSON value setting.
type AppConfig struct {
	Key       string         `gorm:"primaryKey" json:"key"`
	Value     datatypes.JSON `json:"value"`
	UpdatedBy string         `json:"updated_by"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (AppConfig) TableName() string { return "app_config" }

type FeatureFlag struct {
	Key            string    `gorm:"primaryKey" json:"key"`
	Enabled        bool      `json:"enabled"`
	RolloutPercent int       `gorm:"not null;default:100;check:rollout_percent BETWEEN 0 AND 100" json:"rollout_percent"`
	Description    string    `json:"description,omitempty"`
	UpdatedBy      string    `json:"updated_by"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type Announcement struct {
	ID        string     `gorm:"primaryKey;type:uuid" json:"id"`
	Title     string     `gorm:"not null" json:"title"`
	Body      string     `json:"body"`
	Active    bool       `gorm:"index" json:"active"`
	StartsAt  *time.Time `json:"starts_at,omitempty"`
	EndsAt    *time.Time `json:"ends_at,omitempty"`
	CreatedBy string     `json:"created_by"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type FriendshipStatus string

const (
	FriendshipPending  FriendshipStatus = "pending"
	FriendshipAccepted FriendshipStatus = "accepted"
	FriendshipDeclined FriendshipStatus = "declined"
)

// Friendship is unique over the unordered pair (LowID, HighID).
type Friendship struct {
	ID          string           `gorm:"primaryKey;type:uuid" json:"id"`
	LowID       string           `gorm:"type:uuid;uniqueIndex:idx_friend_pair;not null" json:"-"`
	HighID      string           `gorm:"type:uuid;uniqueIndex:idx_friend_pair;not null" json:"-"`
	RequesterID string           `gorm:"type:uuid;index;not null" json:"requester_id"`
	AddresseeID string           `gorm:"type:uuid;index;not null" json:"addressee_id"`
	Status      FriendshipStatus `gorm:"type:varchar(16);not null" json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// FriendPair orders two ids for the uniqueness key.
func FriendPair(a, b string) (low, high string) {
	if a < b {
		return a, b
	}
	return b, a
}
