// models/credit.go
package models

import "time"

// Credit is an amount owed to an account after a payout could not be
// delivered. It is paid out on request.
type Credit struct {
	AccountID string    `gorm:"primaryKey;type:varchar(128)" json:"account_id"`
	Asset     string    `gorm:"primaryKey;type:varchar(128)" json:"asset"`
	Amount    uint64    `gorm:"type:numeric(20,0);not null" json:"amount"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
