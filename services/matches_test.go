package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"match-escrow-system/config"
	"match-escrow-system/game"
	"match-escrow-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// playColumnWin has alice fill column 0 while bob plays column 1.
func playColumnWin(t *testing.T, h *harness, m *game.Match) *MoveResult {
	t.Helper()
	var res *MoveResult
	for y := uint(0); y < 5; y++ {
		res = h.move(t, m, "alice", 0, y)
		if y == 4 {
			break
		}
		require.False(t, res.Turn.Ended)
		h.move(t, m, "bob", 1, y)
	}
	return res
}

func TestMakeMove_Errors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.startMatch(t)

	_, err := h.Matches.MakeMove(ctx, "bob", m.ID, game.Coordinate{X: 0, Y: 0})
	assert.ErrorIs(t, err, game.ErrNotYourTurn)
	_, err = h.Matches.MakeMove(ctx, "mallory", m.ID, game.Coordinate{X: 0, Y: 0})
	assert.ErrorIs(t, err, game.ErrNotParticipant)
	_, err = h.Matches.MakeMove(ctx, "alice", m.ID, game.Coordinate{X: 5, Y: 0})
	assert.ErrorIs(t, err, game.ErrInvalidPosition)
	_, err = h.Matches.MakeMove(ctx, "alice", "missing", game.Coordinate{})
	assert.ErrorIs(t, err, ErrMatchNotFound)

	h.move(t, m, "alice", 2, 2)
	_, err = h.Matches.MakeMove(ctx, "bob", m.ID, game.Coordinate{X: 2, Y: 2})
	assert.ErrorIs(t, err, game.ErrTileFilled)

	stored, err := h.Matches.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stored.TurnCount)
	assert.Equal(t, "bob", stored.CurrentPlayer())
}

func TestMakeMove_WinPaysWinnerAndReferrer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedStats(t, "rita")
	_, err := h.Lobby.DeclareAvailable(ctx, DeclareRequest{Account: "alice", Stake: Stake{Asset: "cheddar", Amount: 100}, Referrer: "rita"})
	require.NoError(t, err)
	h.declare(t, "bob", 100)
	m, err := h.Lobby.Pair(ctx, "alice", "bob")
	require.NoError(t, err)

	res := playColumnWin(t, h, m)
	require.True(t, res.Turn.Ended)
	assert.Equal(t, game.OutcomeWin, res.Turn.Outcome.Kind)
	assert.Equal(t, "alice", res.Turn.Outcome.Winner)
	assert.Equal(t, game.ReasonLine, res.Turn.Outcome.Reason)

	split := res.Settlement.Win
	require.NotNil(t, split)
	assert.Equal(t, uint64(200), split.Pool)
	assert.Equal(t, uint64(20), split.Fee)
	assert.Equal(t, uint64(180), split.WinnerShare)
	assert.Equal(t, uint64(4), split.ReferrerShare)
	assert.Equal(t, uint64(16), split.ProtocolShare)
	assert.Equal(t, "rita", res.Settlement.Referrer)

	_, err = h.Matches.Get(ctx, m.ID)
	assert.ErrorIs(t, err, ErrMatchNotFound, "finished matches are retired")

	alice := h.stats(t, "alice")
	assert.Equal(t, uint64(1), alice.Wins)
	assert.Equal(t, uint64(180), reward(alice, models.RewardKindPrize))
	assert.Equal(t, uint64(4), reward(h.stats(t, "rita"), models.RewardKindAffiliate))
	assert.Equal(t, uint64(0), h.stats(t, "bob").Wins)
	assert.Equal(t, uint64(0), alice.Penalties)

	pending := h.payouts(t, models.PayoutPending)
	require.Len(t, pending, 2)
	assert.Equal(t, models.PayoutWinnerShare, pending[0].Kind)
	assert.Equal(t, "alice", pending[0].AccountID)
	assert.Equal(t, uint64(180), pending[0].Amount)
	assert.Equal(t, models.PayoutReferrerShare, pending[1].Kind)
	assert.Equal(t, "rita", pending[1].AccountID)
	assert.Equal(t, uint64(4), pending[1].Amount)

	history, err := h.Stats.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	rec := history[0]
	assert.Equal(t, "win", rec.Result)
	require.NotNil(t, rec.WinnerID)
	assert.Equal(t, "alice", *rec.WinnerID)
	assert.Nil(t, rec.DefaulterID)
	assert.Equal(t, uint64(180), rec.RewardOrRefund)
	assert.Len(t, rec.Tiles, 9)
	assert.Len(t, rec.Moves, 9)
}

func TestMakeMove_TieRefundsBothPlayers(t *testing.T) {
	h := newHarness(t)
	m := h.startMatch(t)

	pattern := []string{"AABBA", "BBAAB", "AABBA", "BBAAB", "AABBA"}
	var aCells, bCells []game.Coordinate
	for y, row := range pattern {
		for x, ch := range row {
			c := game.Coordinate{X: uint(x), Y: uint(y)}
			if ch == 'A' {
				aCells = append(aCells, c)
			} else {
				bCells = append(bCells, c)
			}
		}
	}

	var res *MoveResult
	for i := range aCells {
		res = h.move(t, m, "alice", aCells[i].X, aCells[i].Y)
		if i < len(bCells) {
			require.False(t, res.Turn.Ended)
			res = h.move(t, m, "bob", bCells[i].X, bCells[i].Y)
			require.False(t, res.Turn.Ended)
		}
	}
	require.True(t, res.Turn.Ended)
	assert.Equal(t, game.OutcomeTie, res.Turn.Outcome.Kind)

	tie := res.Settlement.Tie
	require.NotNil(t, tie)
	assert.Equal(t, uint64(100), tie.PerPlayer)
	assert.LessOrEqual(t, 2*tie.PerPlayer, tie.Pool)

	pending := h.payouts(t, models.PayoutPending)
	require.Len(t, pending, 2)
	for _, p := range pending {
		assert.Equal(t, models.PayoutTieRefund, p.Kind)
		assert.Equal(t, uint64(100), p.Amount)
	}
	assert.ElementsMatch(t, []string{"alice", "bob"}, []string{pending[0].AccountID, pending[1].AccountID})
	assert.Equal(t, uint64(0), h.stats(t, "alice").Wins)
	assert.Equal(t, uint64(0), h.stats(t, "bob").Wins)
}

func TestMakeMove_LateMoverForfeits(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.startMatch(t)
	h.move(t, m, "alice", 0, 0)

	h.clock.Advance(5*time.Minute + time.Second)
	res, err := h.Matches.MakeMove(ctx, "bob", m.ID, game.Coordinate{X: 1, Y: 1})
	require.NoError(t, err)
	assert.False(t, res.Applied)
	require.True(t, res.Turn.Ended)
	assert.Equal(t, "alice", res.Turn.Outcome.Winner)
	assert.Equal(t, "bob", res.Turn.Outcome.Defaulter)
	assert.Equal(t, game.ReasonTurnTimeout, res.Turn.Outcome.Reason)

	assert.Equal(t, uint64(1), h.stats(t, "bob").Penalties)
	history, err := h.Stats.History(ctx, 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Len(t, history[0].Moves, 1, "the late move is not applied")

	penalized, err := h.Stats.Penalized(ctx)
	require.NoError(t, err)
	require.Len(t, penalized, 1)
	assert.Equal(t, "bob", penalized[0].AccountID)
}

func TestClaimTimeoutWin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.startMatch(t)

	// Before the threshold nothing changes.
	h.clock.Advance(5 * time.Minute)
	res, err := h.Matches.ClaimTimeoutWin(ctx, "bob", m.ID)
	require.NoError(t, err)
	assert.Nil(t, res)
	stored, err := h.Matches.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, game.Active, stored.State)
	assert.Equal(t, uint64(0), h.stats(t, "alice").Penalties)

	_, err = h.Matches.ClaimTimeoutWin(ctx, "alice", m.ID)
	assert.ErrorIs(t, err, game.ErrCurrentPlayer)
	_, err = h.Matches.ClaimTimeoutWin(ctx, "mallory", m.ID)
	assert.ErrorIs(t, err, game.ErrNotParticipant)

	h.clock.Advance(time.Second)
	res, err = h.Matches.ClaimTimeoutWin(ctx, "bob", m.ID)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, game.OutcomeWin, res.Outcome.Kind)
	assert.Equal(t, "bob", res.Outcome.Winner)
	assert.Equal(t, "alice", res.Outcome.Defaulter)
	assert.Equal(t, game.ReasonTimeoutClaim, res.Outcome.Reason)
	assert.Equal(t, uint64(1), h.stats(t, "alice").Penalties)
	assert.Equal(t, uint64(1), h.stats(t, "bob").Wins)

	_, err = h.Matches.ClaimTimeoutWin(ctx, "bob", m.ID)
	assert.ErrorIs(t, err, ErrMatchNotFound, "a match can only be claimed once")
}

func TestGiveUp_NoPenalty(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.startMatch(t)

	_, err := h.Matches.GiveUp(ctx, "mallory", m.ID)
	assert.ErrorIs(t, err, game.ErrNotParticipant)

	res, err := h.Matches.GiveUp(ctx, "bob", m.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", res.Outcome.Winner)
	assert.Equal(t, game.ReasonGiveUp, res.Outcome.Reason)
	assert.Empty(t, res.Outcome.Defaulter)
	assert.Equal(t, uint64(0), h.stats(t, "bob").Penalties)
	assert.Equal(t, uint64(180), res.Win.WinnerShare)
	assert.Equal(t, uint64(0), res.Win.ReferrerShare)
}

func TestSweepMatches_FaultsPlayerToMove(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.startMatch(t)
	// Keep each turn short so only the match budget runs out.
	for i := uint(0); i < 4; i++ {
		h.clock.Advance(4 * time.Minute)
		_, err := h.Matches.MakeMove(ctx, m.CurrentPlayer(), m.ID, game.Coordinate{X: i, Y: i % 2})
		require.NoError(t, err)
		m, err = h.Matches.Get(ctx, m.ID)
		require.NoError(t, err)
	}
	require.Equal(t, "alice", m.CurrentPlayer())

	n, err := h.Expiry.SweepMatches(ctx, h.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	h.clock.Set(m.LastMoveAt.Add(time.Hour - m.Duration + time.Second))
	n, err = h.Expiry.SweepMatches(ctx, h.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	history, err := h.Stats.History(ctx, 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.NotNil(t, history[0].DefaulterID)
	assert.Equal(t, "alice", *history[0].DefaulterID)
	assert.Equal(t, string(game.ReasonMatchTimeout), history[0].Reason)
	assert.Equal(t, uint64(1), h.stats(t, "alice").Penalties)
	assert.Equal(t, uint64(1), h.stats(t, "bob").Wins)
}

func TestHistory_KeepsNewest(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	var ids []string
	for i := 0; i < 4; i++ {
		m := h.startMatch(t)
		_, err := h.Matches.GiveUp(ctx, "bob", m.ID)
		require.NoError(t, err)
		ids = append(ids, m.ID)
	}

	history, err := h.Stats.History(ctx, 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, ids[3], history[0].MatchID)
	assert.Equal(t, ids[1], history[2].MatchID)
}

func TestSettle_ArchivesTranscript(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.startMatch(t)
	playColumnWin(t, h, m)
	h.Wait()

	h.archive.mu.Lock()
	body, ok := h.archive.objects["matches/"+m.ID+".json"]
	h.archive.mu.Unlock()
	require.True(t, ok)

	var tr transcript
	require.NoError(t, json.Unmarshal(body, &tr))
	assert.Equal(t, m.ID, tr.ID)
	assert.Len(t, tr.Moves, 9)
	assert.Equal(t, "alice", tr.Outcome.Winner)

	history, err := h.Stats.History(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "matches/"+m.ID+".json.zst", history[0].ArchiveKey)
}

func TestMakeMove_ConcurrentMovesSerialize(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	m := h.startMatch(t)

	var wg sync.WaitGroup
	results := make(chan error, 5)
	for x := uint(0); x < 5; x++ {
		wg.Add(1)
		go func(x uint) {
			defer wg.Done()
			_, err := h.Matches.MakeMove(ctx, "alice", m.ID, game.Coordinate{X: x, Y: 0})
			results <- err
		}(x)
	}
	wg.Wait()
	close(results)

	accepted := 0
	for err := range results {
		if err == nil {
			accepted++
		} else {
			assert.ErrorIs(t, err, game.ErrNotYourTurn)
		}
	}
	assert.Equal(t, 1, accepted)

	stored, err := h.Matches.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stored.TurnCount)
}

func TestNewView(t *testing.T) {
	h := newHarness(t)
	m := h.startMatch(t)
	h.move(t, m, "alice", 3, 1)
	stored, err := h.Matches.Get(context.Background(), m.ID)
	require.NoError(t, err)

	v := NewView(stored)
	assert.Equal(t, "active", v.State)
	assert.Equal(t, "bob", v.CurrentPlayer)
	assert.Equal(t, "alice", v.NextPlayer)
	require.NotNil(t, v.LastMove)
	assert.Equal(t, game.Coordinate{X: 3, Y: 1}, *v.LastMove)
	assert.Equal(t, []models.Tile{{X: 3, Y: 1, Piece: "A"}}, v.Tiles)
}

// overdueRules keeps turn and claim limits as long as the match budget, so
// only the match clock can run out.
func overdueRules() config.Rules {
	r := testRules()
	r.MaxTurnDuration = time.Hour
	r.ClaimTimeout = time.Hour
	return r
}

func TestGiveUp_OverdueMatchFaultsPlayerToMove(t *testing.T) {
	h := newHarnessWithRules(t, overdueRules())
	ctx := context.Background()
	m := h.startMatch(t)
	require.Equal(t, "alice", m.CurrentPlayer())

	h.clock.Advance(61 * time.Minute)
	_, err := h.Matches.GiveUp(ctx, "mallory", m.ID)
	assert.ErrorIs(t, err, game.ErrNotParticipant)

	res, err := h.Matches.GiveUp(ctx, "bob", m.ID)
	require.NoError(t, err)
	assert.Equal(t, "bob", res.Outcome.Winner)
	assert.Equal(t, "alice", res.Outcome.Defaulter)
	assert.Equal(t, game.ReasonMatchTimeout, res.Outcome.Reason)
	assert.Equal(t, uint64(1), h.stats(t, "alice").Penalties)
	assert.Equal(t, uint64(0), h.stats(t, "bob").Penalties)

	_, err = h.Matches.Get(ctx, m.ID)
	assert.ErrorIs(t, err, ErrMatchNotFound)
}

func TestClaimTimeoutWin_OverdueMatchSettlesBeforeClaimWindow(t *testing.T) {
	h := newHarnessWithRules(t, overdueRules())
	ctx := context.Background()
	m := h.startMatch(t)

	h.clock.Advance(61 * time.Minute)
	res, err := h.Matches.ClaimTimeoutWin(ctx, "bob", m.ID)
	require.NoError(t, err)
	require.NotNil(t, res, "an overdue match is not left active")
	assert.Equal(t, "bob", res.Outcome.Winner)
	assert.Equal(t, "alice", res.Outcome.Defaulter)
	assert.Equal(t, game.ReasonMatchTimeout, res.Outcome.Reason)
	assert.Equal(t, uint64(1), h.stats(t, "alice").Penalties)
}

func TestClaimTimeoutWin_OverdueMatchByPlayerToMove(t *testing.T) {
	h := newHarnessWithRules(t, overdueRules())
	ctx := context.Background()
	m := h.startMatch(t)

	h.clock.Advance(61 * time.Minute)
	res, err := h.Matches.ClaimTimeoutWin(ctx, "alice", m.ID)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "bob", res.Outcome.Winner)
	assert.Equal(t, "alice", res.Outcome.Defaulter)
}

func TestMakeMove_OverdueMatchOutOfTurn(t *testing.T) {
	h := newHarnessWithRules(t, overdueRules())
	ctx := context.Background()
	m := h.startMatch(t)

	h.clock.Advance(61 * time.Minute)
	res, err := h.Matches.MakeMove(ctx, "bob", m.ID, game.Coordinate{X: 1, Y: 1})
	require.NoError(t, err)
	assert.False(t, res.Applied)
	require.True(t, res.Turn.Ended)
	assert.Equal(t, "bob", res.Turn.Outcome.Winner)
	assert.Equal(t, "alice", res.Turn.Outcome.Defaulter)
	assert.Equal(t, game.ReasonMatchTimeout, res.Turn.Outcome.Reason)
}
