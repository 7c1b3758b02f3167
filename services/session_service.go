package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/linskybing/gpulab/models"
	"github.com/linskybing/gpulab/repositories"
)

var (
	ErrAccessRevoked   = errors.New("gpu access has been revoked by the professor")
	ErrQuotaExceeded   = errors.New("monthly gpu quota exceeded")
	ErrAlreadyActive   = errors.New("student is already using a gpu")
	ErrGPUNotAvailable = errors.New("gpu is not available")
	ErrGPUNotInUse     = errors.New("gpu is not in use")
	ErrPartialRelease  = errors.New("usage recorded but gpu release failed, manual reconciliation required")
)

var timeNow = time.Now

// Identity is the authenticated student as supplied by the identity provider.
type Identity struct {
	StudentID     string
	Name          string
	Email         string
	StudentNumber string
}

// SessionService drives the per-student session state machine: Idle until an
// Access or Join succeeds, Active until the matching Release. Preconditions
// are validated against the latest store reads; nothing is locked across the
// round trips, so two racing clients can still merge occupancy (accepted,
// last writer wins at the store).
type SessionService struct {
	Repos *repositories.Repos
}

func NewSessionService(repos *repositories.Repos) *SessionService {
	return &SessionService{Repos: repos}
}

func (s *SessionService) ListGPUs(ctx context.Context) ([]models.GPU, error) {
	return s.Repos.Directory.Snapshot(ctx)
}

// Account returns the caller's ledger record, provisioning the default one on
// first sight (self-healing, idempotent under concurrent first logins).
func (s *SessionService) Account(ctx context.Context, id Identity) (models.Student, error) {
	seed := models.DefaultStudent(id.StudentID, id.Name, id.Email)
	seed.StudentNumber = id.StudentNumber
	student, created, err := s.Repos.Ledger.EnsureProvisioned(ctx, seed)
	if err != nil {
		return models.Student{}, err
	}
	if created {
		log.Printf("provisioned student account %s", id.StudentID)
	}
	return student, nil
}

// Access starts an exclusive session on an available GPU and returns the
// connection command for display.
func (s *SessionService) Access(ctx context.Context, id Identity, gpuID string) (string, error) {
	student, gpu, err := s.checkEligibility(ctx, id, gpuID)
	if err != nil {
		return "", err
	}
	if gpu.Status != models.GPUStatusAvailable {
		return "", ErrGPUNotAvailable
	}
	if err := s.Repos.Directory.Acquire(ctx, gpuID, id.StudentID, student.Name); err != nil {
		return "", err
	}
	return sshCommand(id, gpu), nil
}

// Join adds the student to a GPU that is already in use.
func (s *SessionService) Join(ctx context.Context, id Identity, gpuID string) (string, error) {
	student, gpu, err := s.checkEligibility(ctx, id, gpuID)
	if err != nil {
		return "", err
	}
	if gpu.Status != models.GPUStatusInUse {
		return "", ErrGPUNotInUse
	}
	if err := s.Repos.Directory.Join(ctx, gpuID, id.StudentID, student.Name); err != nil {
		return "", err
	}
	return sshCommand(id, gpu), nil
}

// checkEligibility runs the shared Access/Join precondition chain in order,
// short-circuiting on the first failure: provisioned account, permission,
// quota (a student exactly at the limit is rejected), not already active on
// any GPU. Returns the account and the target GPU for the caller's own
// state check.
func (s *SessionService) checkEligibility(ctx context.Context, id Identity, gpuID string) (models.Student, models.GPU, error) {
	student, err := s.Account(ctx, id)
	if err != nil {
		return models.Student{}, models.GPU{}, err
	}
	if !student.HasAccessPermission {
		return models.Student{}, models.GPU{}, ErrAccessRevoked
	}
	if student.TotalUsageSeconds >= student.QuotaSeconds() {
		return models.Student{}, models.GPU{}, ErrQuotaExceeded
	}
	gpus, err := s.Repos.Directory.Snapshot(ctx)
	if err != nil {
		return models.Student{}, models.GPU{}, err
	}
	for _, g := range gpus {
		if g.HasOccupant(id.StudentID) {
			return models.Student{}, models.GPU{}, ErrAlreadyActive
		}
	}
	gpu, err := s.Repos.Directory.Get(ctx, gpuID)
	if err != nil {
		return models.Student{}, models.GPU{}, err
	}
	return student, gpu, nil
}

// Release ends the caller's session on gpuID: accrues the elapsed seconds
// against the ledger, then removes the occupant entry. The two writes hit
// independent records; when the directory write fails after the ledger one
// succeeded, the inconsistency is logged for manual reconciliation and
// surfaced as ErrPartialRelease.
func (s *SessionService) Release(ctx context.Context, id Identity, gpuID string) (float64, error) {
	gpu, err := s.Repos.Directory.Get(ctx, gpuID)
	if err != nil {
		return 0, err
	}
	me, ok := gpu.OccupantByID(id.StudentID)
	if !ok {
		return 0, repositories.ErrNotAnOccupant
	}

	now := timeNow()
	start := me.JoinedAt
	if start.IsZero() && gpu.SessionStartedAt != nil {
		start = *gpu.SessionStartedAt
	}
	if start.IsZero() {
		// Unresolvable timestamps accrue nothing rather than failing.
		start = now
	}
	elapsed := now.Sub(start).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}

	newTotal, err := s.Repos.Ledger.Accrue(ctx, id.StudentID, elapsed)
	if err != nil {
		return 0, err
	}

	if err := s.Repos.Directory.Leave(ctx, gpuID, id.StudentID); err != nil {
		s.recordRelease(id.StudentID, gpuID, elapsed, newTotal, err)
		log.Printf("partial release: student=%s gpu=%s accrued=%.0fs leave failed: %v",
			id.StudentID, gpuID, elapsed, err)
		return elapsed, fmt.Errorf("%w: %v", ErrPartialRelease, err)
	}

	s.recordRelease(id.StudentID, gpuID, elapsed, newTotal, nil)
	return elapsed, nil
}

// recordRelease writes the reconciliation log entry. Best effort: a failed
// audit write never fails the release itself.
func (s *SessionService) recordRelease(studentID, gpuID string, seconds, newTotal float64, leaveErr error) {
	action := models.AuditActionRelease
	details := map[string]interface{}{
		"total_usage_seconds": newTotal,
	}
	if leaveErr != nil {
		action = models.AuditActionPartialRelease
		details["leave_error"] = leaveErr.Error()
	}
	raw, _ := json.Marshal(details)

	audit := &models.AuditLog{
		ID:        uuid.NewString(),
		Action:    string(action),
		StudentID: studentID,
		GPUID:     gpuID,
		Seconds:   seconds,
		Partial:   leaveErr != nil,
		Details:   raw,
	}
	if err := s.Repos.Audit.CreateAuditLog(audit); err != nil {
		log.Printf("failed to write audit log for %s/%s: %v", studentID, gpuID, err)
	}
}

func sshCommand(id Identity, gpu models.GPU) string {
	username := id.StudentNumber
	if username == "" {
		username = "student"
	}
	return fmt.Sprintf("ssh %s@%s", username, gpu.Address)
}
