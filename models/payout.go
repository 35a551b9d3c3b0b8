package models

import (
	"time"

	"gorm.io/datatypes"
)

// PayoutKind says why funds leave escrow and decides how a failed transfer
// is compensated.
type PayoutKind string

const (
	PayoutWinnerShare   PayoutKind = "winner_share"
	PayoutReferrerShare PayoutKind = "referrer_share"
	PayoutTieRefund     PayoutKind = "tie_refund"
	PayoutLobbyRefund   PayoutKind = "lobby_refund"
	PayoutCreditClaim   PayoutKind = "credit_claim"
)

type PayoutStatus string

const (
	PayoutPending   PayoutStatus = "pending"   // committed, not yet sent to the ledger
	PayoutSubmitted PayoutStatus = "submitted" // accepted by the ledger, awaiting result
	PayoutConfirmed PayoutStatus = "confirmed"
	PayoutFailed    PayoutStatus = "failed"
)

// Payout is one outbound transfer instruction.
type Payout struct {
	ID        string       `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Kind      PayoutKind   `gorm:"type:varchar(32);not null" json:"kind"`
	Status    PayoutStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	AccountID string       `gorm:"type:varchar(128);not null;index" json:"account_id"`
	Asset     string       `gorm:"type:varchar(128);not null" json:"asset"`
	Amount    uint64       `gorm:"type:numeric(20,0);not null" json:"amount"`
	MatchID   *string      `gorm:"type:varchar(36);index" json:"match_id,omitempty"`

	// LobbySnapshot holds the evicted entry for lobby refunds.
	LobbySnapshot datatypes.JSON `json:"lobby_snapshot,omitempty"`

	TransferID    string     `gorm:"type:varchar(128)" json:"transfer_id,omitempty"`
	FailureReason string     `gorm:"type:text" json:"failure_reason,omitempty"`
	Attempts      int        `gorm:"default:0" json:"attempts"`
	SubmittedAt   *time.Time `json:"submitted_at,omitempty"`
	SettledAt     *time.Time `json:"settled_at,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
