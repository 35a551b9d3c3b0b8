package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"match-escrow-system/models"
	"match-escrow-system/settlement"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore keeps state in a SQL database through gorm.
type GormStore struct {
	DB *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

// Models lists every table owned by the store, in migration order.
func Models() []interface{} {
	return []interface{}{
		&models.LobbyEntry{},
		&models.MatchRecord{},
		&models.PlayerStats{},
		&models.Affiliate{},
		&models.RewardTotal{},
		&models.FinishedMatch{},
		&models.Payout{},
		&models.Credit{},
	}
}

func (s *GormStore) AutoMigrate() error {
	return s.DB.AutoMigrate(Models()...)
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Tx) error) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	})
}

func (s *GormStore) View(ctx context.Context, fn func(tx Tx) error) error {
	return fn(&gormTx{db: s.DB.WithContext(ctx)})
}

type gormTx struct {
	db *gorm.DB
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	return err
}

// --- lobby

func (t *gormTx) GetLobbyEntry(ctx context.Context, account string) (*models.LobbyEntry, error) {
	var e models.LobbyEntry
	if err := t.db.WithContext(ctx).Where("account_id = ?", account).First(&e).Error; err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

func (t *gormTx) CreateLobbyEntry(ctx context.Context, e *models.LobbyEntry) error {
	res := t.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(e)
	if res.Error != nil {
		return notFound(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrDuplicate
	}
	return nil
}

func (t *gormTx) DeleteLobbyEntry(ctx context.Context, account string) error {
	res := t.db.WithContext(ctx).Where("account_id = ?", account).Delete(&models.LobbyEntry{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *gormTx) ListLobbyEntries(ctx context.Context) ([]models.LobbyEntry, error) {
	var entries []models.LobbyEntry
	err := t.db.WithContext(ctx).Order("available_from ASC, account_id ASC").Find(&entries).Error
	return entries, err
}

func (t *gormTx) ListExpiredLobbyEntries(ctx context.Context, now time.Time) ([]models.LobbyEntry, error) {
	var entries []models.LobbyEntry
	err := t.db.WithContext(ctx).
		Where("available_to < ?", now).
		Order("available_to ASC, account_id ASC").
		Find(&entries).Error
	return entries, err
}

// --- matches

func (t *gormTx) GetMatch(ctx context.Context, id string) (*models.MatchRecord, error) {
	var r models.MatchRecord
	if err := t.db.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

func (t *gormTx) SaveMatch(ctx context.Context, r *models.MatchRecord) error {
	return t.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(r).Error
}

func (t *gormTx) DeleteMatch(ctx context.Context, id string) error {
	res := t.db.WithContext(ctx).Where("id = ?", id).Delete(&models.MatchRecord{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *gormTx) ListActiveMatches(ctx context.Context) ([]models.MatchRecord, error) {
	var records []models.MatchRecord
	err := t.db.WithContext(ctx).
		Where("state = ?", models.MatchStateActive).
		Order("initiated_at ASC, id ASC").
		Find(&records).Error
	return records, err
}

func (t *gormTx) FindActiveMatchByAccount(ctx context.Context, account string) (*models.MatchRecord, error) {
	var r models.MatchRecord
	err := t.db.WithContext(ctx).
		Where("state = ? AND (player_a = ? OR player_b = ?)", models.MatchStateActive, account, account).
		First(&r).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

// --- stats

func (t *gormTx) GetStats(ctx context.Context, account string) (*models.PlayerStats, error) {
	var s models.PlayerStats
	if err := t.db.WithContext(ctx).Where("account_id = ?", account).First(&s).Error; err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func (t *gormTx) SaveStats(ctx context.Context, s *models.PlayerStats) error {
	return t.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"referrer_id", "games_played", "wins", "penalties", "updated_at"}),
	}).Create(s).Error
}

func (t *gormTx) ListPenalized(ctx context.Context) ([]models.PlayerStats, error) {
	var out []models.PlayerStats
	err := t.db.WithContext(ctx).
		Where("penalties > 0").
		Order("penalties DESC, account_id ASC").
		Find(&out).Error
	return out, err
}

func (t *gormTx) AddAffiliate(ctx context.Context, a *models.Affiliate) error {
	return t.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(a).Error
}

func (t *gormTx) ListAffiliates(ctx context.Context, referrer string) ([]string, error) {
	var ids []string
	err := t.db.WithContext(ctx).
		Model(&models.Affiliate{}).
		Where("referrer_id = ?", referrer).
		Order("account_id ASC").
		Pluck("account_id", &ids).Error
	return ids, err
}

func (t *gormTx) AddRewardTotal(ctx context.Context, account, asset string, kind models.RewardKind, amount uint64) error {
	var row models.RewardTotal
	err := t.db.WithContext(ctx).
		Where("account_id = ? AND asset = ? AND kind = ?", account, asset, kind).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		row = models.RewardTotal{AccountID: account, Asset: asset, Kind: kind, Amount: amount}
		return t.db.WithContext(ctx).Create(&row).Error
	}
	if err != nil {
		return err
	}
	total, err := settlement.AddChecked(row.Amount, amount)
	if err != nil {
		return fmt.Errorf("reward total for %s: %w", account, err)
	}
	return t.db.WithContext(ctx).
		Model(&models.RewardTotal{}).
		Where("account_id = ? AND asset = ? AND kind = ?", account, asset, kind).
		Update("amount", total).Error
}

func (t *gormTx) ListRewardTotals(ctx context.Context, account string) ([]models.RewardTotal, error) {
	var out []models.RewardTotal
	err := t.db.WithContext(ctx).
		Where("account_id = ?", account).
		Order("kind ASC, asset ASC").
		Find(&out).Error
	return out, err
}

// --- history

func (t *gormTx) AppendFinishedMatch(ctx context.Context, f *models.FinishedMatch, keep int) error {
	db := t.db.WithContext(ctx)
	if err := db.Create(f).Error; err != nil {
		return notFound(err)
	}
	newest := db.Model(&models.FinishedMatch{}).Select("seq").Order("seq DESC").Limit(keep)
	return db.Where("seq NOT IN (?)", newest).Delete(&models.FinishedMatch{}).Error
}

func (t *gormTx) ListFinishedMatches(ctx context.Context, limit int) ([]models.FinishedMatch, error) {
	var out []models.FinishedMatch
	err := t.db.WithContext(ctx).Order("seq DESC").Limit(limit).Find(&out).Error
	return out, err
}

func (t *gormTx) SetArchiveKey(ctx context.Context, matchID, key string) error {
	return t.db.WithContext(ctx).
		Model(&models.FinishedMatch{}).
		Where("match_id = ?", matchID).
		Update("archive_key", key).Error
}

// --- payouts

func (t *gormTx) CreatePayout(ctx context.Context, p *models.Payout) error {
	return notFound(t.db.WithContext(ctx).Create(p).Error)
}

func (t *gormTx) GetPayout(ctx context.Context, id string) (*models.Payout, error) {
	var p models.Payout
	if err := t.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (t *gormTx) SavePayout(ctx context.Context, p *models.Payout) error {
	return t.db.WithContext(ctx).Save(p).Error
}

func (t *gormTx) ListPayoutsByStatus(ctx context.Context, status models.PayoutStatus, limit int) ([]models.Payout, error) {
	var out []models.Payout
	err := t.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (t *gormTx) ListPayoutsByAccount(ctx context.Context, account string, limit int) ([]models.Payout, error) {
	var out []models.Payout
	err := t.db.WithContext(ctx).
		Where("account_id = ?", account).
		Order("created_at DESC, id ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// --- credits

func (t *gormTx) AddCredit(ctx context.Context, account, asset string, amount uint64) error {
	var c models.Credit
	err := t.db.WithContext(ctx).Where("account_id = ? AND asset = ?", account, asset).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c = models.Credit{AccountID: account, Asset: asset, Amount: amount}
		return t.db.WithContext(ctx).Create(&c).Error
	}
	if err != nil {
		return err
	}
	total, err := settlement.AddChecked(c.Amount, amount)
	if err != nil {
		return fmt.Errorf("credit for %s: %w", account, err)
	}
	return t.db.WithContext(ctx).
		Model(&models.Credit{}).
		Where("account_id = ? AND asset = ?", account, asset).
		Update("amount", total).Error
}

func (t *gormTx) TakeCredit(ctx context.Context, account, asset string) (uint64, error) {
	var c models.Credit
	err := t.db.WithContext(ctx).Where("account_id = ? AND asset = ?", account, asset).First(&c).Error
	if err != nil {
		return 0, notFound(err)
	}
	if err := t.db.WithContext(ctx).
		Where("account_id = ? AND asset = ?", account, asset).
		Delete(&models.Credit{}).Error; err != nil {
		return 0, err
	}
	return c.Amount, nil
}

func (t *gormTx) ListCredits(ctx context.Context, account string) ([]models.Credit, error) {
	var out []models.Credit
	err := t.db.WithContext(ctx).
		Where("account_id = ? AND amount > 0", account).
		Order("asset ASC").
		Find(&out).Error
	return out, err
}
