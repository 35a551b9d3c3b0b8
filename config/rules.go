package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"match-escrow-system/game"
	"match-escrow-system/settlement"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed rules.schema.json
var rulesSchema string

// Bounds enforced on every rules update.
const (
	MinServiceFeeBP    = 10   // 0.1%
	MaxServiceFeeBP    = 1000 // 10%
	MaxReferrerShareBP = 5000 // 50% of the fee
	MaxBoardSize       = 100
	MinWinLength       = 2

	MinMatchDuration = 25 * time.Minute
	MaxMatchDuration = 4 * time.Hour
	MinAvailableFor  = time.Minute
	MaxAvailableFor  = time.Hour
)

// Rules are the validated match limits.
type Rules struct {
	ServiceFeeBP     uint64        `json:"service_fee_bp"`
	ReferrerShareBP  uint64        `json:"referrer_share_bp"`
	MinStake         uint64        `json:"min_stake"`
	BoardSize        uint          `json:"board_size"`
	WinLength        uint          `json:"win_length"`
	MaxMatchDuration time.Duration `json:"max_match_duration"`
	MaxTurnDuration  time.Duration `json:"max_turn_duration"`
	ClaimTimeout     time.Duration `json:"claim_timeout"`
	MinAvailableFor  time.Duration `json:"min_available_for"`
	MaxAvailableFor  time.Duration `json:"max_available_for"`
	SweepInterval    time.Duration `json:"sweep_interval"`
	MaxStoredMatches int           `json:"max_stored_matches"`
}

// rulesFile mirrors rules.yaml. Fields left out keep their defaults.
type rulesFile struct {
	ServiceFeePercent    string        `yaml:"service_fee_percent"`
	ReferrerSharePercent string        `yaml:"referrer_share_percent"`
	MinStake             uint64        `yaml:"min_stake"`
	BoardSize            uint          `yaml:"board_size"`
	WinLength            uint          `yaml:"win_length"`
	MaxMatchDuration     time.Duration `yaml:"max_match_duration"`
	MaxTurnDuration      time.Duration `yaml:"max_turn_duration"`
	ClaimTimeout         time.Duration `yaml:"claim_timeout"`
	MinAvailableFor      time.Duration `yaml:"min_available_for"`
	MaxAvailableFor      time.Duration `yaml:"max_available_for"`
	SweepInterval        time.Duration `yaml:"sweep_interval"`
	MaxStoredMatches     int           `yaml:"max_stored_matches"`
}

func defaultRulesFile() rulesFile {
	return rulesFile{
		ServiceFeePercent:    "1",
		ReferrerSharePercent: "20",
		MinStake:             50,
		BoardSize:            25,
		WinLength:            5,
		MaxMatchDuration:     time.Hour,
		MaxTurnDuration:      5 * time.Minute,
		ClaimTimeout:         5 * time.Minute,
		MinAvailableFor:      MinAvailableFor,
		MaxAvailableFor:      MaxAvailableFor,
		SweepInterval:        time.Minute,
		MaxStoredMatches:     50,
	}
}

// DefaultRules returns the rules used when no file overrides them.
func DefaultRules() Rules {
	r, err := defaultRulesFile().toRules()
	if err != nil {
		panic(err)
	}
	return r
}

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource("rules.schema.json", strings.NewReader(rulesSchema)); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = c.Compile("rules.schema.json")
	})
	return schema, schemaErr
}

// LoadRules reads and validates a rules file.
func LoadRules(path string) (Rules, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, err
	}
	r, err := ParseRules(raw)
	if err != nil {
		return Rules{}, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// ParseRules decodes YAML (or JSON) rules on top of the defaults.
func ParseRules(raw []byte) (Rules, error) {
	var doc interface{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return Rules{}, fmt.Errorf("rules: %w", err)
	}
	if doc == nil {
		doc = map[string]interface{}{}
	}
	if err := validateSchema(doc); err != nil {
		return Rules{}, err
	}

	f := defaultRulesFile()
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return Rules{}, fmt.Errorf("rules: %w", err)
	}
	return f.toRules()
}

func validateSchema(doc interface{}) error {
	sch, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("rules schema: %w", err)
	}
	encoded, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("rules: %w", err)
	}
	var v interface{}
	if err := json.Unmarshal(encoded, &v); err != nil {
		return fmt.Errorf("rules: %w", err)
	}
	if err := sch.Validate(v); err != nil {
		return fmt.Errorf("rules: %w", err)
	}
	return nil
}

func (f rulesFile) toRules() (Rules, error) {
	fee, err := percentToBP("service_fee_percent", f.ServiceFeePercent)
	if err != nil {
		return Rules{}, err
	}
	ref, err := percentToBP("referrer_share_percent", f.ReferrerSharePercent)
	if err != nil {
		return Rules{}, err
	}
	r := Rules{
		ServiceFeeBP:     fee,
		ReferrerShareBP:  ref,
		MinStake:         f.MinStake,
		BoardSize:        f.BoardSize,
		WinLength:        f.WinLength,
		MaxMatchDuration: f.MaxMatchDuration,
		MaxTurnDuration:  f.MaxTurnDuration,
		ClaimTimeout:     f.ClaimTimeout,
		MinAvailableFor:  f.MinAvailableFor,
		MaxAvailableFor:  f.MaxAvailableFor,
		SweepInterval:    f.SweepInterval,
		MaxStoredMatches: f.MaxStoredMatches,
	}
	if err := r.Validate(); err != nil {
		return Rules{}, err
	}
	return r.withDerived(), nil
}

// withDerived fills a zero turn budget with max_match_duration / board_size².
func (r Rules) withDerived() Rules {
	if r.MaxTurnDuration == 0 && r.BoardSize > 0 {
		r.MaxTurnDuration = r.MaxMatchDuration / time.Duration(r.BoardSize*r.BoardSize)
	}
	return r
}

// percentToBP converts "1.25" to 125 basis points. Fractions of a basis
// point are rejected.
func percentToBP(field, s string) (uint64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a decimal", field, s)
	}
	bp := d.Mul(decimal.NewFromInt(100))
	if !bp.IsInteger() {
		return 0, fmt.Errorf("%s: %s%% is not a whole number of basis points", field, s)
	}
	if bp.IsNegative() {
		return 0, fmt.Errorf("%s: must not be negative", field)
	}
	if bp.GreaterThan(decimal.NewFromInt(int64(settlement.BasisPoints))) {
		return 0, fmt.Errorf("%s: %s%% exceeds 100%%", field, s)
	}
	return uint64(bp.IntPart()), nil
}

// Validate reports every bound the rules break. Nothing is clamped.
func (r Rules) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}
	check(r.ServiceFeeBP >= MinServiceFeeBP && r.ServiceFeeBP <= MaxServiceFeeBP,
		"service fee %d bp outside [%d, %d]", r.ServiceFeeBP, MinServiceFeeBP, MaxServiceFeeBP)
	check(r.ReferrerShareBP <= MaxReferrerShareBP,
		"referrer share %d bp above %d", r.ReferrerShareBP, MaxReferrerShareBP)
	check(r.MinStake >= 1, "min stake must be at least 1")
	check(r.BoardSize >= 1 && r.BoardSize <= MaxBoardSize,
		"board size %d outside [1, %d]", r.BoardSize, MaxBoardSize)
	check(r.WinLength >= MinWinLength && r.WinLength <= MaxBoardSize,
		"win length %d outside [%d, %d]", r.WinLength, MinWinLength, MaxBoardSize)
	check(r.MaxMatchDuration >= MinMatchDuration && r.MaxMatchDuration <= MaxMatchDuration,
		"max match duration %s outside [%s, %s]", r.MaxMatchDuration, MinMatchDuration, MaxMatchDuration)
	check(r.MaxTurnDuration == 0 || (r.MaxTurnDuration >= time.Second && r.MaxTurnDuration <= r.MaxMatchDuration),
		"max turn duration %s must be 0 or within [1s, %s]", r.MaxTurnDuration, r.MaxMatchDuration)
	check(r.ClaimTimeout >= time.Second && r.ClaimTimeout <= r.MaxMatchDuration,
		"claim timeout %s outside [1s, %s]", r.ClaimTimeout, r.MaxMatchDuration)
	check(r.MinAvailableFor >= MinAvailableFor && r.MinAvailableFor <= MaxAvailableFor,
		"min available for %s outside [%s, %s]", r.MinAvailableFor, MinAvailableFor, MaxAvailableFor)
	check(r.MaxAvailableFor >= MinAvailableFor && r.MaxAvailableFor <= MaxAvailableFor,
		"max available for %s outside [%s, %s]", r.MaxAvailableFor, MinAvailableFor, MaxAvailableFor)
	check(r.MinAvailableFor <= r.MaxAvailableFor,
		"min available for %s above max %s", r.MinAvailableFor, r.MaxAvailableFor)
	check(r.SweepInterval >= time.Second, "sweep interval %s below 1s", r.SweepInterval)
	check(r.MaxStoredMatches >= 1, "max stored matches must be at least 1")
	if len(errs) > 0 {
		return fmt.Errorf("invalid rules: %w", errors.Join(errs...))
	}
	return nil
}

// MatchRules is the slice of the rules copied into each new match.
func (r Rules) MatchRules() game.Rules {
	return game.Rules{
		BoardSize:        r.BoardSize,
		WinLength:        r.WinLength,
		MaxTurnDuration:  r.MaxTurnDuration,
		MaxMatchDuration: r.MaxMatchDuration,
		ClaimTimeout:     r.ClaimTimeout,
	}
}

func (r Rules) Rates() settlement.Rates {
	return settlement.Rates{ServiceFeeBP: r.ServiceFeeBP, ReferrerShareBP: r.ReferrerShareBP}
}

// RulesHolder lets admins swap rules at runtime. Matches already running
// keep the rules they were created with.
type RulesHolder struct {
	mu    sync.RWMutex
	rules Rules
}

func NewRulesHolder(r Rules) *RulesHolder {
	return &RulesHolder{rules: r.withDerived()}
}

func (h *RulesHolder) Get() Rules {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rules
}

// Replace validates r before installing it. A zero turn budget is derived
// the same way the rules file derives it.
func (h *RulesHolder) Replace(r Rules) error {
	if err := r.Validate(); err != nil {
		return err
	}
	h.mu.Lock()
	h.rules = r.withDerived()
	h.mu.Unlock()
	return nil
}
