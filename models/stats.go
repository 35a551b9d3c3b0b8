package models

import (
	"time"

	"gorm.io/gorm"
)

// PlayerStats is the per-account aggregate. Counters only ever grow.
type PlayerStats struct {
	AccountID  string  `gorm:"primaryKey;type:varchar(128)" json:"account_id"`
	ReferrerID *string `gorm:"type:varchar(128);index" json:"referrer_id,omitempty"`

	GamesPlayed uint64 `json:"games_played" gorm:"default:0"`
	Wins        uint64 `json:"wins" gorm:"default:0"`
	Penalties   uint64 `json:"penalties" gorm:"default:0;index"`

	Timestamps
}

// RewardKind separates prize money from referral income.
type RewardKind string

const (
	RewardKindPrize     RewardKind = "prize"
	RewardKindAffiliate RewardKind = "affiliate"
)

// RewardTotal accumulates what an account received in one asset.
type RewardTotal struct {
	AccountID string     `gorm:"primaryKey;type:varchar(128)" json:"account_id"`
	Asset     string     `gorm:"primaryKey;type:varchar(128)" json:"asset"`
	Kind      RewardKind `gorm:"primaryKey;type:varchar(16)" json:"kind"`
	Amount    uint64     `gorm:"type:numeric(20,0);not null" json:"amount"`
	UpdatedAt time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
