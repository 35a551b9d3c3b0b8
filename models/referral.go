package models

import "time"

// Affiliate links an account to the referrer that brought it in. An account
// is bound at most once.
type Affiliate struct {
	AccountID  string    `gorm:"primaryKey;type:varchar(128)" json:"account_id"`
	ReferrerID string    `gorm:"type:varchar(128);index;not null" json:"referrer_id"`
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime"`
}
