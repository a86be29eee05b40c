package result

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Store saves run results through gorm on a single sqlite file.
type Store struct {
	db *gorm.DB
}

func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("result store path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open result store failed: %w", err)
	}
	if err := db.AutoMigrate(&RunModel{}, &OrderModel{}, &TradeModel{}, &SnapshotModel{}); err != nil {
		return nil, fmt.Errorf("migrate result store failed: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) InsertRun(ctx context.Context, run *RunModel) error {
	return s.db.WithContext(ctx).Create(run).Error
}

func (s *Store) UpdateRunStatus(ctx context.Context, id, status, message string) error {
	return s.db.WithContext(ctx).Model(&RunModel{}).Where("id = ?", id).
		Updates(map[string]any{"status": status, "message": message}).Error
}

// FinishRun writes the terminal status plus summary fields in one update.
func (s *Store) FinishRun(ctx context.Context, run *RunModel) error {
	now := time.Now()
	run.CompletedAt = &now
	return s.db.WithContext(ctx).Model(&RunModel{}).Where("id = ?", run.ID).
		Updates(map[string]any{
			"status":           run.Status,
			"message":          run.Message,
			"final_equity":     run.FinalEquity,
			"profit":           run.Profit,
			"return_pct":       run.ReturnPct,
			"max_drawdown_pct": run.MaxDrawdownPct,
			"stats":            run.Stats,
			"completed_at":     run.CompletedAt,
		}).Error
}

func (s *Store) GetRun(ctx context.Context, id string) (*RunModel, error) {
	var run RunModel
	err := s.db.WithContext(ctx).First(&run, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunModel, error) {
	var runs []RunModel
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

func (s *Store) InsertOrder(ctx context.Context, o *OrderModel) error {
	return s.db.WithContext(ctx).Create(o).Error
}

func (s *Store) InsertTrade(ctx context.Context, t *TradeModel) error {
	return s.db.WithContext(ctx).Create(t).Error
}

// InsertSnapshots writes equity-curve points in one batch per run.
func (s *Store) InsertSnapshots(ctx context.Context, snaps []SnapshotModel) error {
	if len(snaps) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).CreateInBatches(snaps, 500).Error
}

func (s *Store) ListOrders(ctx context.Context, runID string) ([]OrderModel, error) {
	var orders []OrderModel
	err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("created_ts ASC, id ASC").Find(&orders).Error
	return orders, err
}

func (s *Store) ListTrades(ctx context.Context, runID string) ([]TradeModel, error) {
	var trades []TradeModel
	err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("close_ts ASC, id ASC").Find(&trades).Error
	return trades, err
}

func (s *Store) ListSnapshots(ctx context.Context, runID string) ([]SnapshotModel, error) {
	var snaps []SnapshotModel
	err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("ts ASC").Find(&snaps).Error
	return snaps, err
}
