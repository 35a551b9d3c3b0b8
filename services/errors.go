package services

import (
	"errors"

	"match-escrow-system/settlement"
)

// Validation errors. Nothing is written when one is returned.
var (
	ErrInvalidRequest     = errors.New("invalid request")
	ErrAlreadyInLobby     = errors.New("account already has a lobby entry")
	ErrStakeTooLow        = errors.New("stake is below the minimum")
	ErrAvailabilityWindow = errors.New("availability is outside the allowed window")
	ErrOpponentRestricted = errors.New("lobby entry is reserved for another opponent")
	ErrStakeMismatch      = errors.New("stakes differ")
	ErrAssetMismatch      = errors.New("stake assets differ")
)

// State errors.
var (
	ErrInActiveMatch = errors.New("account is in an active match")
	ErrNotInLobby    = errors.New("account has no lobby entry")
	ErrMatchNotFound = errors.New("match not found")
	ErrNoCredit      = errors.New("no credit to claim")
	ErrPayoutSettled = errors.New("payout already settled")
)

// ErrArithmetic marks an overflow in escrow math. The operation is aborted
// before anything is written.
var ErrArithmetic = settlement.ErrOverflow
