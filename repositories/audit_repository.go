package repositories

import (
	"time"

	"github.com/linskybing/gpulab/db"
	"github.com/linskybing/gpulab/models"
)

type AuditQueryParams struct {
	StudentID *string
	GPUID     *string
	Action    *string
	Partial   *bool
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int
	Offset    int
}

type AuditRepo interface {
	GetAuditLogs(params AuditQueryParams) ([]models.AuditLog, error)
	CreateAuditLog(audit *models.AuditLog) error
}

type DBAuditRepo struct{}

func (r *DBAuditRepo) GetAuditLogs(params AuditQueryParams) ([]models.AuditLog, error) {
	var logs []models.AuditLog
	query := db.DB.Model(&models.AuditLog{})

	if params.StudentID != nil {
		query = query.Where("student_id = ?", *params.StudentID)
	}
	if params.GPUID != nil {
		query = query.Where("gpu_id = ?", *params.GPUID)
	}
	if params.Action != nil {
		query = query.Where("action = ?", *params.Action)
	}
	if params.Partial != nil {
		query = query.Where("partial = ?", *params.Partial)
	}
	if params.StartTime != nil {
		query = query.Where("create_at >= ?", *params.StartTime)
	}
	if params.EndTime != nil {
		query = query.Where("create_at <= ?", *params.EndTime)
	}

	limit := params.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query = query.Order("create_at DESC").Limit(limit).Offset(params.Offset)

	if err := query.Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

func (r *DBAuditRepo) CreateAuditLog(audit *models.AuditLog) error {
	return db.DB.Create(audit).Error
}
