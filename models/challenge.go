// models/challenge.go
package models

import (
	"time"

	"gorm.io/datatypes"
)

type ChallengeStatus string

const (
	ChallengePending    ChallengeStatus = "pending"
	ChallengeInProgress ChallengeStatus = "in_progress"
	ChallengeCompleted  ChallengeStatus = "completed"
	ChallengeExpired    ChallengeStatus = "expired"
	ChallengeDeclined   ChallengeStatus = "declined"
)

func (s ChallengeStatus) Terminal() bool {
	return s == ChallengeCompleted || s == ChallengeExpired || s == ChallengeDeclined
}

// CanTransition encodes the challenge state machine. Nothing leaves a terminal state.
func (s ChallengeStatus) CanTransition(to ChallengeStatus) bool {
	switch s {
	case ChallengePending:
		return to == ChallengeInProgress || to == ChallengeExpired || to == ChallengeDeclined
	case ChallengeInProgress:
		return to == ChallengeCompleted || to == ChallengeExpired
	default:
		return false
	}
}

// RoundResult is one round played by one side.
type RoundResult struct {
	Round  int   `json:"round"`
	Score  int64 `json:"score"`
	TimeMs int64 `json:"time_ms"`
	Coins  int64 `json:"coins"`
}

// Rounds is an ordered round set.
type Rounds []RoundResult

func (r Rounds) TotalScore() (total int64) {
	for _, rr := range r {
		total += rr.Score
	}
	return total
}

func (r Rounds) TotalTime() (total int64) {
	for _, rr := range r {
		total += rr.TimeMs
	}
	return total
}

func (r Rounds) TotalCoins() (total int64) {
	for _, rr := range r {
		total += rr.Coins
	}
	return total
}

// Valid requires at least one round, strictly increasing round numbers and non-negative values.
func (r Rounds) Valid() bool {
	if len(r) == 0 {
		return false
	}
	prev := 0
	for _, rr := range r {
		if rr.Round <= prev || rr.Score < 0 || rr.TimeMs < 0 || rr.Coins < 0 {
			return false
		}
		prev = rr.Round
	}
	return true
}

const (
	ChallengeSourceDirect = "direct"
	ChallengeSourcePool   = "pool"
)

// Challenge is a two-party async match.
type Challenge struct {
	ID              string          `gorm:"primaryKey;type:uuid" json:"id"`
	ChallengerID    string          `gorm:"type:uuid;index;not null" json:"challenger_id"`
	OpponentID      string          `gorm:"type:uuid;index;not null" json:"opponent_id"`
	Status          ChallengeStatus `gorm:"type:varchar(16);index;not null" json:"status"`
	Source          string          `gorm:"type:varchar(16);not null" json:"source"`
	Region          string          `gorm:"index" json:"region"`
	GameplayVersion string          `gorm:"not null" json:"gameplay_version"`

	ChallengerRounds datatypes.JSONType[Rounds] `json:"challenger_rounds"`
	OpponentRounds   datatypes.JSONType[Rounds] `json:"opponent_rounds"`

	// WinnerID is nil for a draw and for every non-completed state.
	WinnerID *string `gorm:"type:uuid" json:"winner_id,omitempty"`

	CreatedAt   time.Time  `gorm:"index" json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	SettledAt   *time.Time `gorm:"index" json:"settled_at,omitempty"`
}

// Participant reports whether the player is one of the two sides.
func (c *Challenge) Participant(playerID string) bool {
	return c.ChallengerID == playerID || c.OpponentID == playerID
}

// BothSubmitted is true once each side has a round set.
func (c *Challenge) BothSubmitted() bool {
	return len(c.ChallengerRounds.Data()) > 0 && len(c.OpponentRounds.Data()) > 0
}

// ResolveWinner applies the tie-break: higher total score, then lower total time,
// otherwise a draw.
func (c *Challenge) ResolveWinner() *string {
	a, b := c.ChallengerRounds.Data(), c.OpponentRounds.Data()
	var winner string
	switch {
	case a.TotalScore() > b.TotalScore():
		winner = c.ChallengerID
	case b.TotalScore() > a.TotalScore():
		winner = c.OpponentID
	case a.TotalTime() < b.TotalTime():
		winner = c.ChallengerID
	case b.TotalTime() < a.TotalTime():
		winner = c.OpponentID
	default:
		return nil
	}
	return &winner
}

// Complete moves the challenge to completed and fixes the winner.
func (c *Challenge) Complete(now time.Time) {
	c.Status = ChallengeCompleted
	c.WinnerID = c.ResolveWinner()
	c.CompletedAt = &now
	if c.StartedAt == nil {
		c.StartedAt = &now
	}
}

func (c *Challenge) Clone() *Challenge {
	out := *c
	out.ChallengerRounds = datatypes.NewJSONType(append(Rounds(nil), c.ChallengerRounds.Data()...))
	out.OpponentRounds = datatypes.NewJSONType(append(Rounds(nil), c.OpponentRounds.Data()...))
	if c.WinnerID != nil {
		w := *c.WinnerID
		out.WinnerID = &w
	}
	out.StartedAt = cloneTime(c.StartedAt)
	out.CompletedAt = cloneTime(c.CompletedAt)
	out.SettledAt = cloneTime(c.SettledAt)
	return &out
}

// PoolEntry is one player's unmatched async submission.
type PoolEntry struct {
	ID              string                     `gorm:"primaryKey;type:uuid" json:"id"`
	PlayerID        string                     `gorm:"type:uuid;index;not null" json:"player_id"`
	Region          string                     `gorm:"index:idx_pool_lookup;not null" json:"region"`
	GameplayVersion string                     `gorm:"index:idx_pool_lookup;not null" json:"gameplay_version"`
	SkillRating     int                        `gorm:"not null" json:"skill_rating"`
	Rounds          datatypes.JSONType[Rounds] `json:"rounds"`
	MatchedAt       *time.Time                 `gorm:"index:idx_pool_lookup" json:"matched_at,omitempty"`
	ChallengeID     *string                    `gorm:"type:uuid" json:"challenge_id,omitempty"`
	CreatedAt       time.Time                  `gorm:"index" json:"created_at"`
}

func (PoolEntry) TableName() string { return "matchmaking_pool" }

func (e *PoolEntry) Matched() bool { return e.MatchedAt != nil }

func (e *PoolEntry) Clone() *PoolEntry {
	out := *e
	out.Rounds = datatypes.NewJSONType(append(Rounds(nil), e.Rounds.Data()...))
	out.MatchedAt = cloneTime(e.MatchedAt)
	if e.ChallengeID != nil {
		id := *e.ChallengeID
		out.ChallengeID = &id
	}
	return &out
}

// Score is an immutable record of one completed game.
type Score struct {
	ID         string                     `gorm:"primaryKey;type:uuid" json:"id"`
	PlayerID   string                     `gorm:"type:uuid;index;not null" json:"player_id"`
	Score      int64                      `gorm:"index;not null" json:"score"`
	DurationMs int64                      `gorm:"not null" json:"duration_ms"`
	Region     string                     `gorm:"index" json:"region"`
	Rounds     datatypes.JSONType[Rounds] `json:"rounds"`
	CreatedAt  time.Time                  `gorm:"index" json:"created_at"`
}

func RoundsOf(r Rounds) datatypes.JSONType[Rounds] { return datatypes.NewJSONType(r) }
