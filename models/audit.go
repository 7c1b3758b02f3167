package models

import (
	"time"

	"gorm.io/datatypes"
)

type AuditAction string

const (
	AuditActionRelease        AuditAction = "release"
	AuditActionPartialRelease AuditAction = "partial_release"
	AuditActionSetPolicy      AuditAction = "set_policy"
)

// AuditLog is the reconciliation log, kept in Postgres. Partial releases
// (usage accrued but the occupant not removed from the directory) land here
// for manual correction; policy changes and normal releases are recorded too.
type AuditLog struct {
	ID        string         `gorm:"primaryKey;size:36" json:"id"`
	Action    string         `gorm:"type:varchar(32);not null;index" json:"action"`
	StudentID string         `gorm:"size:128;index" json:"student_id"`
	GPUID     string         `gorm:"column:gpu_id;size:64;index" json:"gpu_id"`
	Seconds   float64        `json:"seconds"`
	Partial   bool           `gorm:"index" json:"partial"`
	Details   datatypes.JSON `json:"details"`
	CreatedAt time.Time      `gorm:"column:create_at;autoCreateTime" json:"created_at"`
}
