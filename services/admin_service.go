package services

import (
	"context"
	"encoding/json"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/linskybing/gpulab/dto"
	"github.com/linskybing/gpulab/models"
	"github.com/linskybing/gpulab/repositories"
	"gopkg.in/yaml.v2"
)

// defaultFleet is the built-in GPU set used when no seed file is configured.
var defaultFleet = []models.GPU{
	{ID: "gpu-0", Name: "NVIDIA RTX 4090", Address: "192.168.1.100"},
	{ID: "gpu-1", Name: "NVIDIA RTX 4080", Address: "192.168.1.101"},
	{ID: "gpu-2", Name: "AMD Radeon RX 7900 XTX", Address: "192.168.1.102"},
	{ID: "gpu-3", Name: "NVIDIA RTX 3070 Ti", Address: "192.168.1.103"},
}

// AdminService is the professor-side surface: student policy, the student
// roster and the one-time directory bootstrap. It never touches occupancy.
type AdminService struct {
	Repos *repositories.Repos
}

func NewAdminService(repos *repositories.Repos) *AdminService {
	return &AdminService{Repos: repos}
}

func (s *AdminService) ListStudents(ctx context.Context) ([]models.Student, error) {
	return s.Repos.Ledger.List(ctx)
}

// SetStudentPolicy partially updates a student's monthly hour limit and/or
// access permission and records the change in the audit log.
func (s *AdminService) SetStudentPolicy(ctx context.Context, studentID string, input dto.SetPolicyInput) (models.Student, error) {
	if err := s.Repos.Ledger.SetPolicy(ctx, studentID, input.MonthlyHourLimit, input.HasAccessPermission); err != nil {
		return models.Student{}, err
	}
	student, err := s.Repos.Ledger.Get(ctx, studentID)
	if err != nil {
		return models.Student{}, err
	}

	raw, _ := json.Marshal(input)
	audit := &models.AuditLog{
		ID:        uuid.NewString(),
		Action:    string(models.AuditActionSetPolicy),
		StudentID: studentID,
		Details:   raw,
	}
	if err := s.Repos.Audit.CreateAuditLog(audit); err != nil {
		log.Printf("failed to audit policy change for %s: %v", studentID, err)
	}
	return student, nil
}

// SeedIfEmpty provisions the fixed GPU fleet only when the directory holds no
// records at all. Safe to call on every professor login.
func (s *AdminService) SeedIfEmpty(ctx context.Context, seedFile string) (bool, error) {
	fleet := defaultFleet
	if seedFile != "" {
		loaded, err := loadFleet(seedFile)
		if err != nil {
			return false, err
		}
		fleet = loaded
	}
	return s.Repos.Directory.SeedIfEmpty(ctx, fleet)
}

type fleetFile struct {
	GPUs []models.GPU `yaml:"gpus"`
}

func loadFleet(path string) ([]models.GPU, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f fleetFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	return f.GPUs, nil
}
