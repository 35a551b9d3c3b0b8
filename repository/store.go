// Package repository persists lobby entries, matches, stats, history,
// payouts and credits behind one transactional interface.
package repository

import (
	"context"
	"errors"
	"time"

	"match-escrow-system/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
)

// Store is the engine's persistence collaborator.
type Store interface {
	// Transaction runs fn atomically. Any error rolls back every write.
	Transaction(ctx context.Context, fn func(tx Tx) error) error
	// View runs a read-only fn. Writes made inside View are not supported.
	View(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of operations available inside Transaction and View.
type Tx interface {
	LobbyRepository
	MatchRepository
	StatsRepository
	HistoryRepository
	PayoutRepository
	CreditRepository
}

type LobbyRepository interface {
	GetLobbyEntry(ctx context.Context, account string) (*models.LobbyEntry, error)
	CreateLobbyEntry(ctx context.Context, e *models.LobbyEntry) error
	DeleteLobbyEntry(ctx context.Context, account string) error
	ListLobbyEntries(ctx context.Context) ([]models.LobbyEntry, error)
	ListExpiredLobbyEntries(ctx context.Context, now time.Time) ([]models.LobbyEntry, error)
}

type MatchRepository interface {
	GetMatch(ctx context.Context, id string) (*models.MatchRecord, error)
	SaveMatch(ctx context.Context, r *models.MatchRecord) error
	DeleteMatch(ctx context.Context, id string) error
	ListActiveMatches(ctx context.Context) ([]models.MatchRecord, error)
	FindActiveMatchByAccount(ctx context.Context, account string) (*models.MatchRecord, error)
}

type StatsRepository interface {
	GetStats(ctx context.Context, account string) (*models.PlayerStats, error)
	SaveStats(ctx context.Context, s *models.PlayerStats) error
	ListPenalized(ctx context.Context) ([]models.PlayerStats, error)
	AddAffiliate(ctx context.Context, a *models.Affiliate) error
	ListAffiliates(ctx context.Context, referrer string) ([]string, error)
	AddRewardTotal(ctx context.Context, account, asset string, kind models.RewardKind, amount uint64) error
	ListRewardTotals(ctx context.Context, account string) ([]models.RewardTotal, error)
}

type HistoryRepository interface {
	// AppendFinishedMatch stores f and drops all but the newest keep records.
	AppendFinishedMatch(ctx context.Context, f *models.FinishedMatch, keep int) error
	// ListFinishedMatches returns the newest records first.
	ListFinishedMatches(ctx context.Context, limit int) ([]models.FinishedMatch, error)
	SetArchiveKey(ctx context.Context, matchID, key string) error
}

type PayoutRepository interface {
	CreatePayout(ctx context.Context, p *models.Payout) error
	GetPayout(ctx context.Context, id string) (*models.Payout, error)
	SavePayout(ctx context.Context, p *models.Payout) error
	// ListPayoutsByStatus returns the oldest payouts first.
	ListPayoutsByStatus(ctx context.Context, status models.PayoutStatus, limit int) ([]models.Payout, error)
	ListPayoutsByAccount(ctx context.Context, account string, limit int) ([]models.Payout, error)
}

type CreditRepository interface {
	AddCredit(ctx context.Context, account, asset string, amount uint64) error
	// TakeCredit zeroes the balance and returns what it held.
	TakeCredit(ctx context.Context, account, asset string) (uint64, error)
	ListCredits(ctx context.Context, account string) ([]models.Credit, error)
}
