package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RunTotals are the counts recorded when a load finishes
type RunTotals struct {
	Parts    int
	Sets     int
	Minifigs int
	Warnings int
}

// LoadRuns records the history of catalog loads
type LoadRuns struct {
	db *gorm.DB
}

func NewLoadRuns(db *gorm.DB) *LoadRuns {
	return &LoadRuns{db: db}
}

// Start opens a new run in the loading state
func (r *LoadRuns) Start(ctx context.Context) (*LoadRun, error) {
	now := time.Now()
	run := &LoadRun{
		ID:        uuid.New().String(),
		Status:    RunStatusLoading,
		Label:     "Initializing",
		StartedAt: now,
		UpdatedAt: now,
	}
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, fmt.Errorf("create load run: %w", err)
	}
	return run, nil
}

// Progress records the step a run has reached
func (r *LoadRuns) Progress(ctx context.Context, id string, step int, label string) error {
	return r.db.WithContext(ctx).Model(&LoadRun{}).Where("id = ?", id).Updates(map[string]any{
		"step":       step,
		"label":      label,
		"updated_at": time.Now(),
	}).Error
}

// Finish closes a run as indexed or failed
func (r *LoadRuns) Finish(ctx context.Context, id string, ok bool, totals RunTotals, errMsg string) error {
	now := time.Now()
	status := RunStatusIndexed
	if !ok {
		status = RunStatusFailed
	}
	return r.db.WithContext(ctx).Model(&LoadRun{}).Where("id = ?", id).Updates(map[string]any{
		"status":       status,
		"parts":        totals.Parts,
		"sets":         totals.Sets,
		"minifigs":     totals.Minifigs,
		"warnings":     totals.Warnings,
		"error":        errMsg,
		"updated_at":   now,
		"completed_at": now,
	}).Error
}

// Recent returns the latest runs, newest first
func (r *LoadRuns) Recent(ctx context.Context, limit int) ([]LoadRun, error) {
	if limit <= 0 {
		limit = 10
	}
	var runs []LoadRun
	err := r.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&runs).Error
	return runs, err
}
