package db

import (
	"time"

	"gorm.io/gorm"
)

// PendingOperation is the durable record of a payment handed off to the
// external gateway, keyed by the gateway reference.
type PendingOperation struct {
	Reference  string    `gorm:"type:varchar(255);primaryKey" json:"reference"`
	Kind       string    `gorm:"type:varchar(32);not null" json:"kind"`
	TargetID   string    `gorm:"type:varchar(255)" json:"target_id"`
	Amount     string    `gorm:"type:varchar(64);not null" json:"amount"`
	ReturnPath string    `gorm:"type:varchar(512);not null" json:"return_path"`
	CreatedAt  time.Time `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
	UpdatedAt  time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName specifies the table name for GORM
func (PendingOperation) TableName() string {
	return "pending_operations"
}

// BeforeCreate is a GORM hook that runs before creating a record
func (p *PendingOperation) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}
	return nil
}

// BeforeUpdate is a GORM hook that runs before updating a record
func (p *PendingOperation) BeforeUpdate(tx *gorm.DB) error {
	p.UpdatedAt = time.Now()
	return nil
}

// ConfirmationOutcome is the recorded terminal result of a confirmation run,
// keyed by reference with last write winning.
type ConfirmationOutcome struct {
	Reference       string    `gorm:"type:varchar(255);primaryKey" json:"reference"`
	Status          string    `gorm:"type:varchar(20);not null" json:"status"`
	AppliedEffectID string    `gorm:"type:varchar(255)" json:"applied_effect_id"`
	ResolvedAt      time.Time `gorm:"not null" json:"resolved_at"`
}

// TableName specifies the table name for GORM
func (ConfirmationOutcome) TableName() string {
	return "confirmation_outcomes"
}
