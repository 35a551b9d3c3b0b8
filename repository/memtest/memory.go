// Package memtest is an in-memory repository.Store for tests.
package memtest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"match-escrow-system/models"
	"match-escrow-system/repository"
	"match-escrow-system/settlement"
)

var _ repository.Store = (*MemoryStore)(nil)

// MemoryStore keeps everything in process. Transactions work on a copy of
// the state that replaces the original only when fn succeeds.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState()}
}

func (m *MemoryStore) Transaction(_ context.Context, fn func(tx repository.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	draft := m.state.clone()
	if err := fn(draft); err != nil {
		return err
	}
	m.state = draft
	return nil
}

func (m *MemoryStore) View(_ context.Context, fn func(tx repository.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m.state)
}

type rewardKey struct {
	account, asset string
	kind           models.RewardKind
}

type creditKey struct {
	account, asset string
}

type memState struct {
	lobby      map[string]models.LobbyEntry
	matches    map[string]models.MatchRecord
	stats      map[string]models.PlayerStats
	affiliates map[string]models.Affiliate
	rewards    map[rewardKey]models.RewardTotal
	history    []models.FinishedMatch
	historySeq uint64
	payouts    map[string]models.Payout
	payoutSeq  map[string]uint64
	nextPayout uint64
	credits    map[creditKey]models.Credit
}

func newMemState() *memState {
	return &memState{
		lobby:      make(map[string]models.LobbyEntry),
		matches:    make(map[string]models.MatchRecord),
		stats:      make(map[string]models.PlayerStats),
		affiliates: make(map[string]models.Affiliate),
		rewards:    make(map[rewardKey]models.RewardTotal),
		payouts:    make(map[string]models.Payout),
		payoutSeq:  make(map[string]uint64),
		credits:    make(map[creditKey]models.Credit),
	}
}

func copyMap[K comparable, V any](src map[K]V) map[K]V {
	out := make(map[K]V, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func (s *memState) clone() *memState {
	return &memState{
		lobby:      copyMap(s.lobby),
		matches:    copyMap(s.matches),
		stats:      copyMap(s.stats),
		affiliates: copyMap(s.affiliates),
		rewards:    copyMap(s.rewards),
		history:    append([]models.FinishedMatch(nil), s.history...),
		historySeq: s.historySeq,
		payouts:    copyMap(s.payouts),
		payoutSeq:  copyMap(s.payoutSeq),
		nextPayout: s.nextPayout,
		credits:    copyMap(s.credits),
	}
}

// --- lobby

func (s *memState) GetLobbyEntry(_ context.Context, account string) (*models.LobbyEntry, error) {
	e, ok := s.lobby[account]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &e, nil
}

func (s *memState) CreateLobbyEntry(_ context.Context, e *models.LobbyEntry) error {
	if _, ok := s.lobby[e.AccountID]; ok {
		return repository.ErrDuplicate
	}
	s.lobby[e.AccountID] = *e
	return nil
}

func (s *memState) DeleteLobbyEntry(_ context.Context, account string) error {
	if _, ok := s.lobby[account]; !ok {
		return repository.ErrNotFound
	}
	delete(s.lobby, account)
	return nil
}

func (s *memState) ListLobbyEntries(_ context.Context) ([]models.LobbyEntry, error) {
	out := make([]models.LobbyEntry, 0, len(s.lobby))
	for _, e := range s.lobby {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AvailableFrom.Equal(out[j].AvailableFrom) {
			return out[i].AvailableFrom.Before(out[j].AvailableFrom)
		}
		return out[i].AccountID < out[j].AccountID
	})
	return out, nil
}

func (s *memState) ListExpiredLobbyEntries(_ context.Context, now time.Time) ([]models.LobbyEntry, error) {
	var out []models.LobbyEntry
	for _, e := range s.lobby {
		if e.AvailableTo.Before(now) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AvailableTo.Equal(out[j].AvailableTo) {
			return out[i].AvailableTo.Before(out[j].AvailableTo)
		}
		return out[i].AccountID < out[j].AccountID
	})
	return out, nil
}

// --- matches

func cloneMatch(r models.MatchRecord) models.MatchRecord {
	r.Moves = append(r.Moves[:0:0], r.Moves...)
	return r
}

func (s *memState) GetMatch(_ context.Context, id string) (*models.MatchRecord, error) {
	r, ok := s.matches[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	r = cloneMatch(r)
	return &r, nil
}

func (s *memState) SaveMatch(_ context.Context, r *models.MatchRecord) error {
	s.matches[r.ID] = cloneMatch(*r)
	return nil
}

func (s *memState) DeleteMatch(_ context.Context, id string) error {
	if _, ok := s.matches[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.matches, id)
	return nil
}

func (s *memState) ListActiveMatches(_ context.Context) ([]models.MatchRecord, error) {
	var out []models.MatchRecord
	for _, r := range s.matches {
		if r.State == models.MatchStateActive {
			out = append(out, cloneMatch(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].InitiatedAt.Equal(out[j].InitiatedAt) {
			return out[i].InitiatedAt.Before(out[j].InitiatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *memState) FindActiveMatchByAccount(_ context.Context, account string) (*models.MatchRecord, error) {
	for _, r := range s.matches {
		if r.State == models.MatchStateActive && (r.PlayerA == account || r.PlayerB == account) {
			r = cloneMatch(r)
			return &r, nil
		}
	}
	return nil, repository.ErrNotFound
}

// --- stats

func (s *memState) GetStats(_ context.Context, account string) (*models.PlayerStats, error) {
	st, ok := s.stats[account]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &st, nil
}

func (s *memState) SaveStats(_ context.Context, st *models.PlayerStats) error {
	s.stats[st.AccountID] = *st
	return nil
}

func (s *memState) ListPenalized(_ context.Context) ([]models.PlayerStats, error) {
	var out []models.PlayerStats
	for _, st := range s.stats {
		if st.Penalties > 0 {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Penalties != out[j].Penalties {
			return out[i].Penalties > out[j].Penalties
		}
		return out[i].AccountID < out[j].AccountID
	})
	return out, nil
}

func (s *memState) AddAffiliate(_ context.Context, a *models.Affiliate) error {
	if _, ok := s.affiliates[a.AccountID]; !ok {
		s.affiliates[a.AccountID] = *a
	}
	return nil
}

func (s *memState) ListAffiliates(_ context.Context, referrer string) ([]string, error) {
	var ids []string
	for _, a := range s.affiliates {
		if a.ReferrerID == referrer {
			ids = append(ids, a.AccountID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *memState) AddRewardTotal(_ context.Context, account, asset string, kind models.RewardKind, amount uint64) error {
	k := rewardKey{account: account, asset: asset, kind: kind}
	row := s.rewards[k]
	total, err := settlement.AddChecked(row.Amount, amount)
	if err != nil {
		return fmt.Errorf("reward total for %s: %w", account, err)
	}
	s.rewards[k] = models.RewardTotal{AccountID: account, Asset: asset, Kind: kind, Amount: total}
	return nil
}

func (s *memState) ListRewardTotals(_ context.Context, account string) ([]models.RewardTotal, error) {
	var out []models.RewardTotal
	for k, row := range s.rewards {
		if k.account == account {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Asset < out[j].Asset
	})
	return out, nil
}

// --- history

func (s *memState) AppendFinishedMatch(_ context.Context, f *models.FinishedMatch, keep int) error {
	for _, h := range s.history {
		if h.MatchID == f.MatchID {
			return repository.ErrDuplicate
		}
	}
	s.historySeq++
	f.Seq = s.historySeq
	s.history = append(s.history, *f)
	if keep >= 0 && len(s.history) > keep {
		s.history = append([]models.FinishedMatch(nil), s.history[len(s.history)-keep:]...)
	}
	return nil
}

func (s *memState) ListFinishedMatches(_ context.Context, limit int) ([]models.FinishedMatch, error) {
	out := make([]models.FinishedMatch, 0, len(s.history))
	for i := len(s.history) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, s.history[i])
	}
	return out, nil
}

func (s *memState) SetArchiveKey(_ context.Context, matchID, key string) error {
	for i := range s.history {
		if s.history[i].MatchID == matchID {
			s.history[i].ArchiveKey = key
		}
	}
	return nil
}

// --- payouts

func (s *memState) CreatePayout(_ context.Context, p *models.Payout) error {
	if _, ok := s.payouts[p.ID]; ok {
		return repository.ErrDuplicate
	}
	s.nextPayout++
	s.payoutSeq[p.ID] = s.nextPayout
	s.payouts[p.ID] = *p
	return nil
}

func (s *memState) GetPayout(_ context.Context, id string) (*models.Payout, error) {
	p, ok := s.payouts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (s *memState) SavePayout(_ context.Context, p *models.Payout) error {
	if _, ok := s.payouts[p.ID]; !ok {
		s.nextPayout++
		s.payoutSeq[p.ID] = s.nextPayout
	}
	s.payouts[p.ID] = *p
	return nil
}

func (s *memState) sortedPayouts(keep func(models.Payout) bool) []models.Payout {
	var out []models.Payout
	for _, p := range s.payouts {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return s.payoutSeq[out[i].ID] < s.payoutSeq[out[j].ID] })
	return out
}

func (s *memState) ListPayoutsByStatus(_ context.Context, status models.PayoutStatus, limit int) ([]models.Payout, error) {
	out := s.sortedPayouts(func(p models.Payout) bool { return p.Status == status })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memState) ListPayoutsByAccount(_ context.Context, account string, limit int) ([]models.Payout, error) {
	out := s.sortedPayouts(func(p models.Payout) bool { return p.AccountID == account })
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- credits

func (s *memState) AddCredit(_ context.Context, account, asset string, amount uint64) error {
	k := creditKey{account: account, asset: asset}
	c := s.credits[k]
	total, err := settlement.AddChecked(c.Amount, amount)
	if err != nil {
		return fmt.Errorf("credit for %s: %w", account, err)
	}
	s.credits[k] = models.Credit{AccountID: account, Asset: asset, Amount: total, UpdatedAt: time.Now()}
	return nil
}

func (s *memState) TakeCredit(_ context.Context, account, asset string) (uint64, error) {
	k := creditKey{account: account, asset: asset}
	c, ok := s.credits[k]
	if !ok {
		return 0, repository.ErrNotFound
	}
	delete(s.credits, k)
	return c.Amount, nil
}

func (s *memState) ListCredits(_ context.Context, account string) ([]models.Credit, error) {
	var out []models.Credit
	for k, c := range s.credits {
		if k.account == account && c.Amount > 0 {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out, nil
}
