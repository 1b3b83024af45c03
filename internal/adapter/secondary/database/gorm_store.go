package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/splitledger/payment-confirm/internal/constant/model/db"
	"github.com/splitledger/payment-confirm/internal/core"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore is a secondary adapter that implements the PendingOperationStore
// and OutcomeStore output ports on postgres.
type GormStore struct {
	gormDB *gorm.DB
}

// NewGormStore creates a new GORM-backed store
func NewGormStore(gormDB *gorm.DB) *GormStore {
	return &GormStore{gormDB: gormDB}
}

// toCore converts db.PendingOperation to core.PendingOperation
func toCore(p *db.PendingOperation) *core.PendingOperation {
	return &core.PendingOperation{
		Reference:  p.Reference,
		Kind:       core.OperationKind(p.Kind),
		TargetID:   p.TargetID,
		Amount:     p.Amount,
		ReturnPath: p.ReturnPath,
		CreatedAt:  p.CreatedAt,
	}
}

// fromCore converts core.PendingOperation to db.PendingOperation
func fromCore(p *core.PendingOperation) *db.PendingOperation {
	return &db.PendingOperation{
		Reference:  p.Reference,
		Kind:       string(p.Kind),
		TargetID:   p.TargetID,
		Amount:     p.Amount,
		ReturnPath: p.ReturnPath,
		CreatedAt:  p.CreatedAt,
	}
}

// Put persists a pending operation, last write wins per reference.
func (s *GormStore) Put(ctx context.Context, op *core.PendingOperation) error {
	record := fromCore(op)
	err := s.gormDB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "reference"}},
			UpdateAll: true,
		}).
		Create(record).Error
	if err != nil {
		return fmt.Errorf("failed to put pending operation: %w", err)
	}
	return nil
}

// Get retrieves a pending operation by reference.
func (s *GormStore) Get(ctx context.Context, reference string) (*core.PendingOperation, error) {
	var record db.PendingOperation
	err := s.gormDB.WithContext(ctx).
		Where("reference = ?", reference).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, core.ErrNoPendingOperation
		}
		return nil, fmt.Errorf("failed to get pending operation: %w", err)
	}
	return toCore(&record), nil
}

// Clear removes a pending operation. Clearing an absent record is not an error.
func (s *GormStore) Clear(ctx context.Context, reference string) error {
	err := s.gormDB.WithContext(ctx).
		Where("reference = ?", reference).
		Delete(&db.PendingOperation{}).Error
	if err != nil {
		return fmt.Errorf("failed to clear pending operation: %w", err)
	}
	return nil
}

// ListStale returns pending operations created before olderThan, oldest first.
func (s *GormStore) ListStale(ctx context.Context, olderThan time.Time, limit int) ([]*core.PendingOperation, error) {
	var records []db.PendingOperation
	err := s.gormDB.WithContext(ctx).
		Where("created_at < ?", olderThan).
		Order("created_at asc").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list stale operations: %w", err)
	}
	ops := make([]*core.PendingOperation, 0, len(records))
	for i := range records {
		ops = append(ops, toCore(&records[i]))
	}
	return ops, nil
}

// Record persists a terminal outcome, overwriting any prior outcome for the
// same reference.
func (s *GormStore) Record(ctx context.Context, outcome *core.ConfirmationOutcome) error {
	record := &db.ConfirmationOutcome{
		Reference:       outcome.Reference,
		Status:          string(outcome.Status),
		AppliedEffectID: outcome.AppliedEffectID,
		ResolvedAt:      outcome.ResolvedAt,
	}
	err := s.gormDB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "reference"}},
			UpdateAll: true,
		}).
		Create(record).Error
	if err != nil {
		return fmt.Errorf("failed to record outcome: %w", err)
	}
	return nil
}

// GetOutcome retrieves the recorded outcome for a reference.
func (s *GormStore) GetOutcome(ctx context.Context, reference string) (*core.ConfirmationOutcome, error) {
	var record db.ConfirmationOutcome
	err := s.gormDB.WithContext(ctx).
		Where("reference = ?", reference).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, core.ErrNoOutcome
		}
		return nil, fmt.Errorf("failed to get outcome: %w", err)
	}
	return &core.ConfirmationOutcome{
		Reference:       record.Reference,
		Status:          core.OutcomeStatus(record.Status),
		AppliedEffectID: record.AppliedEffectID,
		ResolvedAt:      record.ResolvedAt,
	}, nil
}
