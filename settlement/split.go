// Package settlement holds the payout arithmetic for finished matches.
// Amounts are integer base units of an asset; rates are basis points.
package settlement

import (
	"errors"
	"fmt"
	"math/bits"
)

// BasisPoints is the denominator of every rate.
const BasisPoints uint64 = 10_000

var (
	ErrOverflow    = errors.New("settlement: arithmetic overflow")
	ErrInvalidRate = errors.New("settlement: rate exceeds 100%")
)

// Rates configures the fee charged on a won pool and the share of that fee
// redirected to the winner's referrer.
type Rates struct {
	ServiceFeeBP    uint64 `json:"service_fee_bp"`
	ReferrerShareBP uint64 `json:"referrer_share_bp"`
}

func (r Rates) Validate() error {
	if r.ServiceFeeBP > BasisPoints {
		return fmt.Errorf("%w: service fee %d bp", ErrInvalidRate, r.ServiceFeeBP)
	}
	if r.ReferrerShareBP > BasisPoints {
		return fmt.Errorf("%w: referrer share %d bp", ErrInvalidRate, r.ReferrerShareBP)
	}
	return nil
}

// MulDivFloor returns floor(a*b/d) using a 128-bit intermediate product.
func MulDivFloor(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, fmt.Errorf("%w: division by zero", ErrOverflow)
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= d {
		return 0, ErrOverflow
	}
	q, _ := bits.Div64(hi, lo, d)
	return q, nil
}

// DoublePool returns the pool formed by two equal stakes.
func DoublePool(stake uint64) (uint64, error) {
	sum, carry := bits.Add64(stake, stake, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: doubling stake %d", ErrOverflow, stake)
	}
	return sum, nil
}

// AddChecked adds two amounts and fails instead of wrapping.
func AddChecked(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrOverflow
	}
	return sum, nil
}

// WinSplit is the division of a pool won by one player.
type WinSplit struct {
	Pool          uint64 `json:"pool"`
	Fee           uint64 `json:"fee"`
	WinnerShare   uint64 `json:"winner_share"`
	ReferrerShare uint64 `json:"referrer_share"`
	ProtocolShare uint64 `json:"protocol_share"`
}

// SplitWin charges the service fee on pool and pays the rest to the winner.
// When withReferrer is set, part of the fee goes to the winner's referrer.
func SplitWin(pool uint64, r Rates, withReferrer bool) (WinSplit, error) {
	if err := r.Validate(); err != nil {
		return WinSplit{}, err
	}
	fee, err := MulDivFloor(pool, r.ServiceFeeBP, BasisPoints)
	if err != nil {
		return WinSplit{}, err
	}
	s := WinSplit{Pool: pool, Fee: fee, WinnerShare: pool - fee}
	if withReferrer {
		if s.ReferrerShare, err = MulDivFloor(fee, r.ReferrerShareBP, BasisPoints); err != nil {
			return WinSplit{}, err
		}
	}
	s.ProtocolShare = fee - s.ReferrerShare
	s.mustConserve()
	return s, nil
}

func (s WinSplit) mustConserve() {
	if s.Fee > s.Pool || s.WinnerShare+s.Fee != s.Pool || s.ReferrerShare+s.ProtocolShare != s.Fee {
		panic(fmt.Sprintf("settlement: win split does not conserve the pool: %+v", s))
	}
}

// TieSplit is the refund of a drawn pool. No fee is charged on ties; an odd
// pool leaves a remainder with the protocol.
type TieSplit struct {
	Pool      uint64 `json:"pool"`
	PerPlayer uint64 `json:"per_player"`
	Remainder uint64 `json:"remainder"`
}

func SplitTie(pool uint64) TieSplit {
	s := TieSplit{Pool: pool, PerPlayer: pool / 2}
	s.Remainder = pool - 2*s.PerPlayer
	if 2*s.PerPlayer > pool || 2*s.PerPlayer+s.Remainder != pool {
		panic(fmt.Sprintf("settlement: tie split exceeds the pool: %+v", s))
	}
	return s
}
