package repository_test

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"match-escrow-system/game"
	"match-escrow-system/models"
	"match-escrow-system/repository"
	"match-escrow-system/repository/memtest"
	"match-escrow-system/settlement"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var t0 = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

func newSQLiteStore(t *testing.T) *repository.GormStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "escrow.db")), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	store := repository.NewGormStore(db)
	require.NoError(t, store.AutoMigrate())
	return store
}

func eachStore(t *testing.T, fn func(t *testing.T, s repository.Store)) {
	t.Run("memory", func(t *testing.T) { fn(t, memtest.NewMemoryStore()) })
	t.Run("sqlite", func(t *testing.T) { fn(t, newSQLiteStore(t)) })
}

func strPtr(s string) *string { return &s }

func TestStore_LobbyEntries(t *testing.T) {
	eachStore(t, func(t *testing.T, s repository.Store) {
		ctx := context.Background()
		err := s.Transaction(ctx, func(tx repository.Tx) error {
			require.NoError(t, tx.CreateLobbyEntry(ctx, &models.LobbyEntry{
				AccountID: "alice", Asset: "cheddar", Amount: 100,
				AvailableFrom: t0, AvailableTo: t0.Add(time.Minute),
			}))
			require.NoError(t, tx.CreateLobbyEntry(ctx, &models.LobbyEntry{
				AccountID: "bob", Asset: "cheddar", Amount: 100, OpponentID: strPtr("alice"),
				AvailableFrom: t0.Add(time.Second), AvailableTo: t0.Add(time.Hour),
			}))
			assert.ErrorIs(t, tx.CreateLobbyEntry(ctx, &models.LobbyEntry{
				AccountID: "alice", Asset: "cheddar", Amount: 5, AvailableFrom: t0, AvailableTo: t0,
			}), repository.ErrDuplicate)
			return nil
		})
		require.NoError(t, err)

		require.NoError(t, s.View(ctx, func(tx repository.Tx) error {
			all, err := tx.ListLobbyEntries(ctx)
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, "alice", all[0].AccountID)
			assert.Equal(t, uint64(100), all[0].Amount)

			expired, err := tx.ListExpiredLobbyEntries(ctx, t0.Add(2*time.Minute))
			require.NoError(t, err)
			require.Len(t, expired, 1)
			assert.Equal(t, "alice", expired[0].AccountID)

			bob, err := tx.GetLobbyEntry(ctx, "bob")
			require.NoError(t, err)
			require.NotNil(t, bob.OpponentID)
			assert.Equal(t, "alice", *bob.OpponentID)

			_, err = tx.GetLobbyEntry(ctx, "carol")
			assert.ErrorIs(t, err, repository.ErrNotFound)
			return nil
		}))

		require.NoError(t, s.Transaction(ctx, func(tx repository.Tx) error {
			require.NoError(t, tx.DeleteLobbyEntry(ctx, "alice"))
			assert.ErrorIs(t, tx.DeleteLobbyEntry(ctx, "alice"), repository.ErrNotFound)
			return nil
		}))
	})
}

func TestStore_TransactionRollsBack(t *testing.T) {
	eachStore(t, func(t *testing.T, s repository.Store) {
		ctx := context.Background()
		boom := errors.New("boom")
		err := s.Transaction(ctx, func(tx repository.Tx) error {
			require.NoError(t, tx.SaveStats(ctx, &models.PlayerStats{AccountID: "alice", GamesPlayed: 1}))
			require.NoError(t, tx.AddCredit(ctx, "alice", "cheddar", 10))
			return boom
		})
		require.ErrorIs(t, err, boom)

		require.NoError(t, s.View(ctx, func(tx repository.Tx) error {
			_, err := tx.GetStats(ctx, "alice")
			assert.ErrorIs(t, err, repository.ErrNotFound)
			credits, err := tx.ListCredits(ctx, "alice")
			require.NoError(t, err)
			assert.Empty(t, credits)
			return nil
		}))
	})
}

func TestStore_MatchesRoundTrip(t *testing.T) {
	eachStore(t, func(t *testing.T, s repository.Store) {
		ctx := context.Background()
		rules := game.Rules{BoardSize: 5, WinLength: 5, MaxTurnDuration: time.Minute, MaxMatchDuration: time.Hour, ClaimTimeout: 5 * time.Minute}
		m, err := game.NewMatch("m1", "alice", "bob", game.Deposit{Asset: "cheddar", Amount: 200}, rules, fixedCoin(false), t0)
		require.NoError(t, err)
		_, err = m.ApplyTurn("alice", game.Coordinate{X: 2, Y: 2}, t0.Add(3*time.Second))
		require.NoError(t, err)

		require.NoError(t, s.Transaction(ctx, func(tx repository.Tx) error {
			return tx.SaveMatch(ctx, models.NewMatchRecord(m))
		}))
		_, err = m.ApplyTurn("bob", game.Coordinate{X: 1, Y: 2}, t0.Add(5*time.Second))
		require.NoError(t, err)
		require.NoError(t, s.Transaction(ctx, func(tx repository.Tx) error {
			return tx.SaveMatch(ctx, models.NewMatchRecord(m))
		}))

		require.NoError(t, s.View(ctx, func(tx repository.Tx) error {
			rec, err := tx.GetMatch(ctx, "m1")
			require.NoError(t, err)
			restored, err := rec.ToMatch()
			require.NoError(t, err)
			assert.Equal(t, m.Players, restored.Players)
			assert.Equal(t, m.Board.Cells, restored.Board.Cells)
			assert.Equal(t, "alice", restored.CurrentPlayer())
			assert.Equal(t, 5*time.Second, restored.Duration)

			byBob, err := tx.FindActiveMatchByAccount(ctx, "bob")
			require.NoError(t, err)
			assert.Equal(t, "m1", byBob.ID)
			_, err = tx.FindActiveMatchByAccount(ctx, "carol")
			assert.ErrorIs(t, err, repository.ErrNotFound)

			active, err := tx.ListActiveMatches(ctx)
			require.NoError(t, err)
			assert.Len(t, active, 1)
			return nil
		}))

		require.NoError(t, s.Transaction(ctx, func(tx repository.Tx) error {
			return tx.DeleteMatch(ctx, "m1")
		}))
		require.NoError(t, s.View(ctx, func(tx repository.Tx) error {
			_, err := tx.GetMatch(ctx, "m1")
			assert.ErrorIs(t, err, repository.ErrNotFound)
			return nil
		}))
	})
}

func TestStore_StatsAffiliatesAndRewards(t *testing.T) {
	eachStore(t, func(t *testing.T, s repository.Store) {
		ctx := context.Background()
		require.NoError(t, s.Transaction(ctx, func(tx repository.Tx) error {
			require.NoError(t, tx.SaveStats(ctx, &models.PlayerStats{AccountID: "ref", GamesPlayed: 3}))
			require.NoError(t, tx.SaveStats(ctx, &models.PlayerStats{AccountID: "alice", ReferrerID: strPtr("ref"), Penalties: 1}))
			require.NoError(t, tx.AddAffiliate(ctx, &models.Affiliate{AccountID: "alice", ReferrerID: "ref"}))
			require.NoError(t, tx.AddAffiliate(ctx, &models.Affiliate{AccountID: "alice", ReferrerID: "other"}))
			require.NoError(t, tx.AddRewardTotal(ctx, "alice", "cheddar", models.RewardKindPrize, 90))
			require.NoError(t, tx.AddRewardTotal(ctx, "alice", "cheddar", models.RewardKindPrize, 45))
			require.NoError(t, tx.AddRewardTotal(ctx, "ref", "cheddar", models.RewardKindAffiliate, 2))
			return nil
		}))

		require.NoError(t, s.Transaction(ctx, func(tx repository.Tx) error {
			st, err := tx.GetStats(ctx, "alice")
			require.NoError(t, err)
			st.Wins++
			return tx.SaveStats(ctx, st)
		}))

		require.NoError(t, s.View(ctx, func(tx repository.Tx) error {
			st, err := tx.GetStats(ctx, "alice")
			require.NoError(t, err)
			assert.Equal(t, uint64(1), st.Wins)
			assert.Equal(t, "ref", *st.ReferrerID)

			affs, err := tx.ListAffiliates(ctx, "ref")
			require.NoError(t, err)
			assert.Equal(t, []string{"alice"}, affs)

			totals, err := tx.ListRewardTotals(ctx, "alice")
			require.NoError(t, err)
			require.Len(t, totals, 1)
			assert.Equal(t, uint64(135), totals[0].Amount)

			pen, err := tx.ListPenalized(ctx)
			require.NoError(t, err)
			require.Len(t, pen, 1)
			assert.Equal(t, "alice", pen[0].AccountID)
			return nil
		}))
	})
}

func TestStore_HistoryRing(t *testing.T) {
	eachStore(t, func(t *testing.T, s repository.Store) {
		ctx := context.Background()
		for i, id := range []string{"m1", "m2", "m3", "m4"} {
			f := &models.FinishedMatch{
				MatchID: id, PlayerA: "alice", PlayerB: "bob", Result: "tie", Reason: "board_full",
				Asset: "cheddar", Pool: 200, RewardOrRefund: 100,
				Tiles:      []models.Tile{{X: 0, Y: 0, Piece: "A"}},
				FinishedAt: t0.Add(time.Duration(i) * time.Minute),
			}
			require.NoError(t, s.Transaction(ctx, func(tx repository.Tx) error {
				return tx.AppendFinishedMatch(ctx, f, 2)
			}))
		}
		require.NoError(t, s.Transaction(ctx, func(tx repository.Tx) error {
			return tx.SetArchiveKey(ctx, "m4", "matches/m4.json.zst")
		}))

		require.NoError(t, s.View(ctx, func(tx repository.Tx) error {
			got, err := tx.ListFinishedMatches(ctx, 10)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, "m4", got[0].MatchID)
			assert.Equal(t, "m3", got[1].MatchID)
			assert.Equal(t, "matches/m4.json.zst", got[0].ArchiveKey)
			require.Len(t, got[0].Tiles, 1)
			assert.Equal(t, "A", got[0].Tiles[0].Piece)
			return nil
		}))
	})
}

func TestStore_PayoutsAndCredits(t *testing.T) {
	eachStore(t, func(t *testing.T, s repository.Store) {
		ctx := context.Background()
		require.NoError(t, s.Transaction(ctx, func(tx repository.Tx) error {
			for _, id := range []string{"p1", "p2", "p3"} {
				require.NoError(t, tx.CreatePayout(ctx, &models.Payout{
					ID: id, Kind: models.PayoutWinnerShare, Status: models.PayoutPending,
					AccountID: "alice", Asset: "cheddar", Amount: 90,
				}))
			}
			return nil
		}))

		require.NoError(t, s.Transaction(ctx, func(tx repository.Tx) error {
			p, err := tx.GetPayout(ctx, "p2")
			require.NoError(t, err)
			p.Status = models.PayoutSubmitted
			p.TransferID = "tx-2"
			return tx.SavePayout(ctx, p)
		}))

		require.NoError(t, s.View(ctx, func(tx repository.Tx) error {
			pending, err := tx.ListPayoutsByStatus(ctx, models.PayoutPending, 10)
			require.NoError(t, err)
			require.Len(t, pending, 2)
			assert.ElementsMatch(t, []string{"p1", "p3"}, []string{pending[0].ID, pending[1].ID})

			submitted, err := tx.ListPayoutsByStatus(ctx, models.PayoutSubmitted, 10)
			require.NoError(t, err)
			require.Len(t, submitted, 1)
			assert.Equal(t, "tx-2", submitted[0].TransferID)

			mine, err := tx.ListPayoutsByAccount(ctx, "alice", 2)
			require.NoError(t, err)
			assert.Len(t, mine, 2)
			return nil
		}))

		require.NoError(t, s.Transaction(ctx, func(tx repository.Tx) error {
			require.NoError(t, tx.AddCredit(ctx, "alice", "cheddar", 40))
			require.NoError(t, tx.AddCredit(ctx, "alice", "cheddar", 2))
			err := tx.AddCredit(ctx, "alice", "cheddar", math.MaxUint64)
			assert.ErrorIs(t, err, settlement.ErrOverflow)
			return nil
		}))
		require.NoError(t, s.Transaction(ctx, func(tx repository.Tx) error {
			amount, err := tx.TakeCredit(ctx, "alice", "cheddar")
			require.NoError(t, err)
			assert.Equal(t, uint64(42), amount)
			_, err = tx.TakeCredit(ctx, "alice", "cheddar")
			assert.ErrorIs(t, err, repository.ErrNotFound)
			return nil
		}))
	})
}

type fixedCoin bool

func (c fixedCoin) Flip() bool { return bool(c) }
