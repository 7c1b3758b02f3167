package models

import "github.com/linskybing/gpulab/docstore"

const (
	DefaultMonthlyHourLimit = 10
)

// Student is one document of the students collection: the per-student ledger
// of quota, permission and cumulative usage.
type Student struct {
	StudentID           string  `json:"student_id"`
	Name                string  `json:"name"`
	StudentNumber       string  `json:"student_number"`
	Email               string  `json:"email"`
	HasAccessPermission bool    `json:"has_access_permission"`
	MonthlyHourLimit    float64 `json:"monthly_hour_limit"`
	TotalUsageSeconds   float64 `json:"total_usage_seconds"`
}

// DefaultStudent is the record written on first observation of an unknown
// student (self-healing provisioning).
func DefaultStudent(id, name, email string) Student {
	if name == "" {
		name = "Student"
	}
	return Student{
		StudentID:           id,
		Name:                name,
		Email:               email,
		HasAccessPermission: true,
		MonthlyHourLimit:    DefaultMonthlyHourLimit,
	}
}

func (s Student) QuotaSeconds() float64 {
	return s.MonthlyHourLimit * 3600
}

func (s Student) ToDoc() docstore.Doc {
	return docstore.Doc{
		"student_id":            s.StudentID,
		"name":                  s.Name,
		"student_number":        s.StudentNumber,
		"email":                 s.Email,
		"has_access_permission": s.HasAccessPermission,
		"monthly_hour_limit":    s.MonthlyHourLimit,
		"total_usage_seconds":   s.TotalUsageSeconds,
	}
}

func StudentFromDoc(id string, d docstore.Doc) Student {
	return Student{
		StudentID:           id,
		Name:                d.String("name"),
		StudentNumber:       d.String("student_number"),
		Email:               d.String("email"),
		HasAccessPermission: d.Bool("has_access_permission"),
		MonthlyHourLimit:    d.Float("monthly_hour_limit"),
		TotalUsageSeconds:   d.Float("total_usage_seconds"),
	}
}
