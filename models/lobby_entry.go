package models

import "time"

// LobbyEntry is a staked offer to play. One per account.
type LobbyEntry struct {
	AccountID     string    `gorm:"primaryKey;type:varchar(128)" json:"account_id"`
	Asset         string    `gorm:"type:varchar(128);not null" json:"asset"`
	Amount        uint64    `gorm:"type:numeric(20,0);not null" json:"amount"`
	OpponentID    *string   `gorm:"type:varchar(128)" json:"opponent_id,omitempty"`
	ReferrerID    *string   `gorm:"type:varchar(128)" json:"referrer_id,omitempty"`
	AvailableFrom time.Time `gorm:"not null" json:"available_from"`
	AvailableTo   time.Time `gorm:"not null;index" json:"available_to"`
}
