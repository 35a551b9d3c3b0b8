package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"match-escrow-system/config"
	"match-escrow-system/events"
	"match-escrow-system/game"
	"match-escrow-system/models"
	"match-escrow-system/repository"
	"match-escrow-system/repository/memtest"
	"match-escrow-system/utils"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

type countingNotifier struct{ n atomic.Int64 }

func (c *countingNotifier) Notify() { c.n.Add(1) }

type memArchive struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func (a *memArchive) Put(_ context.Context, key string, body []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return "", a.err
	}
	if a.objects == nil {
		a.objects = make(map[string][]byte)
	}
	a.objects[key] = body
	return key + ".zst", nil
}

type harness struct {
	*Engine
	store    *memtest.MemoryStore
	clock    *utils.ManualClock
	broker   *events.Broker
	notifier *countingNotifier
	archive  *memArchive
}

func testRules() config.Rules {
	r := config.DefaultRules()
	r.ServiceFeeBP = 1000
	r.ReferrerShareBP = 2000
	r.MinStake = 50
	r.BoardSize = 5
	r.WinLength = 5
	r.MaxMatchDuration = time.Hour
	r.MaxTurnDuration = 5 * time.Minute
	r.ClaimTimeout = 5 * time.Minute
	r.MinAvailableFor = time.Minute
	r.MaxAvailableFor = time.Hour
	r.MaxStoredMatches = 3
	return r
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithRules(t, testRules())
}

func newHarnessWithRules(t *testing.T, rules config.Rules) *harness {
	t.Helper()
	h := &harness{
		store:    memtest.NewMemoryStore(),
		clock:    utils.NewManualClock(t0),
		broker:   events.NewBroker(64),
		notifier: &countingNotifier{},
		archive:  &memArchive{},
	}
	var seq atomic.Int64
	require.NoError(t, rules.Validate())
	h.Engine = NewEngine(Deps{
		Store:    h.store,
		Rules:    config.NewRulesHolder(rules),
		Clock:    h.clock,
		Coin:     utils.FixedCoin(false),
		Events:   events.NewEmitter(h.broker, h.clock.Now),
		Notifier: h.notifier,
		Archive:  h.archive,
		NewID:    func() string { return fmt.Sprintf("id-%d", seq.Add(1)) },
	})
	t.Cleanup(h.Wait)
	return h
}

func (h *harness) declare(t *testing.T, account string, stake uint64) *models.LobbyEntry {
	t.Helper()
	e, err := h.Lobby.DeclareAvailable(context.Background(), DeclareRequest{
		Account: account,
		Stake:   Stake{Asset: "cheddar", Amount: stake},
	})
	require.NoError(t, err)
	return e
}

// startMatch pairs alice (who opens) with bob at a stake of 100 each.
func (h *harness) startMatch(t *testing.T) *game.Match {
	t.Helper()
	h.declare(t, "alice", 100)
	h.declare(t, "bob", 100)
	m, err := h.Lobby.Pair(context.Background(), "alice", "bob")
	require.NoError(t, err)
	return m
}

func (h *harness) move(t *testing.T, m *game.Match, caller string, x, y uint) *MoveResult {
	t.Helper()
	h.clock.Advance(time.Second)
	res, err := h.Matches.MakeMove(context.Background(), caller, m.ID, game.Coordinate{X: x, Y: y})
	require.NoError(t, err, "%s at (%d,%d)", caller, x, y)
	return res
}

func (h *harness) seedStats(t *testing.T, account string) {
	t.Helper()
	err := h.store.Transaction(context.Background(), func(tx repository.Tx) error {
		return tx.SaveStats(context.Background(), &models.PlayerStats{AccountID: account, GamesPlayed: 3})
	})
	require.NoError(t, err)
}

func (h *harness) stats(t *testing.T, account string) *StatsView {
	t.Helper()
	v, err := h.Stats.Get(context.Background(), account)
	require.NoError(t, err)
	return v
}

func (h *harness) payouts(t *testing.T, status models.PayoutStatus) []models.Payout {
	t.Helper()
	var out []models.Payout
	err := h.store.View(context.Background(), func(tx repository.Tx) error {
		var err error
		out, err = tx.ListPayoutsByStatus(context.Background(), status, 0)
		return err
	})
	require.NoError(t, err)
	return out
}

func reward(v *StatsView, kind models.RewardKind) uint64 {
	for _, r := range v.Rewards {
		if r.Kind == kind {
			return r.Amount
		}
	}
	return 0
}
