package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/evanward1/Triangular-Arbitrage-sub001/internal/types"
)

// OpportunityRow is the persisted shape of an accepted opportunity. Amounts
// are stored as decimal strings; SQLite floats would lose precision.
type OpportunityRow struct {
	ID                 uint      `gorm:"primaryKey"`
	RouteID            string    `gorm:"index"`
	Venue              string
	GrossBps           string
	NetBps             string
	GasUSD             string
	TotalSlippageBps   string
	TotalFeeBps        string
	BreakevenBeforeGas string
	BreakevenAfterGas  string
	BlockNumber        uint64
	ObservedAt         time.Time `gorm:"index"`
	CreatedAt          time.Time
}

// ExecutionRow records one accepted execution, matching the dedup manager's
// route record.
type ExecutionRow struct {
	ID          uint      `gorm:"primaryKey"`
	RouteID     string    `gorm:"index"`
	Fingerprint string    `gorm:"index"`
	BlockOrTick uint64
	NetPct      string
	ExecutedAt  time.Time `gorm:"index"`
	CreatedAt   time.Time
}

// Store is an append-only audit log backed by SQLite. Rows are never
// updated or deleted.
type Store struct {
	db *gorm.DB
}

// Open connects to (or creates) the audit database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("audit: create db directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("audit: open database: %w", err)
	}

	if err := db.AutoMigrate(&OpportunityRow{}, &ExecutionRow{}); err != nil {
		return nil, fmt.Errorf("audit: migrate: %w", err)
	}

	return &Store{db: db}, nil
}

// AppendOpportunity writes one accepted opportunity.
func (s *Store) AppendOpportunity(routeID string, opp *types.Opportunity) error {
	row := OpportunityRow{
		RouteID:            routeID,
		Venue:              opp.Route.Venue,
		GrossBps:           opp.GrossBps.String(),
		NetBps:             opp.NetBps.String(),
		GasUSD:             opp.GasUSD.String(),
		TotalSlippageBps:   opp.TotalSlippageBps.String(),
		TotalFeeBps:        opp.TotalFeeBps.String(),
		BreakevenBeforeGas: opp.BreakevenBeforeGasUSD.String(),
		BreakevenAfterGas:  opp.BreakevenAfterGasUSD.String(),
		BlockNumber:        opp.BlockNumber,
		ObservedAt:         opp.Ts,
	}
	return s.db.Create(&row).Error
}

// AppendExecution writes one execution record.
func (s *Store) AppendExecution(rec types.RouteExecutionRecord) error {
	row := ExecutionRow{
		RouteID:     rec.RouteID,
		Fingerprint: rec.Fingerprint,
		BlockOrTick: rec.BlockOrTick,
		NetPct:      rec.NetPct.String(),
		ExecutedAt:  rec.ExecutedAt,
	}
	return s.db.Create(&row).Error
}

// RecentExecutions returns the latest n executions, newest first.
func (s *Store) RecentExecutions(n int) ([]ExecutionRow, error) {
	var rows []ExecutionRow
	err := s.db.Order("executed_at desc").Limit(n).Find(&rows).Error
	return rows, err
}

// RecentOpportunities returns the latest n accepted opportunities, newest
// first.
func (s *Store) RecentOpportunities(n int) ([]OpportunityRow, error) {
	var rows []OpportunityRow
	err := s.db.Order("observed_at desc").Limit(n).Find(&rows).Error
	return rows, err
}
