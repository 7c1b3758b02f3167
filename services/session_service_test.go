package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/linskybing/gpulab/docstore"
	"github.com/linskybing/gpulab/models"
	"github.com/linskybing/gpulab/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --------------------- Setup ---------------------

type memAuditRepo struct {
	mu   sync.Mutex
	logs []models.AuditLog
}

func (r *memAuditRepo) GetAuditLogs(params repositories.AuditQueryParams) ([]models.AuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.AuditLog(nil), r.logs...), nil
}

func (r *memAuditRepo) CreateAuditLog(audit *models.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, *audit)
	return nil
}

// failingStore wraps the memory store and fails updates to one collection,
// for driving the partial-release path.
type failingStore struct {
	docstore.Store
	mu             sync.Mutex
	failCollection string
}

func (s *failingStore) failUpdatesTo(collection string) {
	s.mu.Lock()
	s.failCollection = collection
	s.mu.Unlock()
}

func (s *failingStore) Update(ctx context.Context, collection, id string, fields docstore.Doc) error {
	s.mu.Lock()
	failing := s.failCollection
	s.mu.Unlock()
	if failing == collection {
		return errors.New("store unavailable")
	}
	return s.Store.Update(ctx, collection, id, fields)
}

func setupSession(t *testing.T) (*SessionService, *docstore.MemoryStore, *failingStore, *memAuditRepo) {
	t.Helper()
	mem := docstore.NewMemoryStore()
	store := &failingStore{Store: mem}
	audit := &memAuditRepo{}
	repos := &repositories.Repos{
		Directory: repositories.NewStoreDirectoryRepo(store),
		Ledger:    repositories.NewStoreLedgerRepo(store),
		Audit:     audit,
	}
	svc := NewSessionService(repos)

	_, err := svc.Repos.Directory.SeedIfEmpty(context.Background(), []models.GPU{
		{ID: "gpu-0", Name: "NVIDIA RTX 4090", Address: "192.168.1.100"},
		{ID: "gpu-1", Name: "NVIDIA RTX 4080", Address: "192.168.1.101"},
	})
	require.NoError(t, err)
	return svc, mem, store, audit
}

func fixedClock(t *testing.T, at time.Time) {
	t.Helper()
	old := timeNow
	timeNow = func() time.Time { return at }
	t.Cleanup(func() { timeNow = old })
}

var alice = Identity{StudentID: "alice", Name: "Alice", Email: "alice@uni.edu", StudentNumber: "b10901234"}
var bob = Identity{StudentID: "bob", Name: "Bob", Email: "bob@uni.edu"}

// --------------------- Access ---------------------

func TestAccessProvisionsAndReturnsSSHCommand(t *testing.T) {
	svc, _, _, _ := setupSession(t)
	ctx := context.Background()

	sshCommand, err := svc.Access(ctx, alice, "gpu-0")
	require.NoError(t, err)
	assert.Equal(t, "ssh b10901234@192.168.1.100", sshCommand)

	gpu, err := svc.Repos.Directory.Get(ctx, "gpu-0")
	require.NoError(t, err)
	assert.Equal(t, models.GPUStatusInUse, gpu.Status)
	require.Len(t, gpu.Occupants, 1)
	assert.Equal(t, "alice", gpu.Occupants[0].StudentID)
	assert.Equal(t, "Alice", gpu.Occupants[0].Name)

	student, err := svc.Repos.Ledger.Get(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, student.HasAccessPermission)
}

func TestAccessFallbackUsername(t *testing.T) {
	svc, _, _, _ := setupSession(t)

	sshCommand, err := svc.Access(context.Background(), bob, "gpu-0")
	require.NoError(t, err)
	assert.Equal(t, "ssh student@192.168.1.100", sshCommand)
}

func TestAccessRevokedPermission(t *testing.T) {
	svc, _, _, _ := setupSession(t)
	ctx := context.Background()

	_, err := svc.Account(ctx, alice)
	require.NoError(t, err)
	revoked := false
	require.NoError(t, svc.Repos.Ledger.SetPolicy(ctx, "alice", nil, &revoked))

	_, err = svc.Access(ctx, alice, "gpu-0")
	assert.ErrorIs(t, err, ErrAccessRevoked)
}

func TestAccessQuotaBoundary(t *testing.T) {
	svc, mem, _, _ := setupSession(t)
	ctx := context.Background()

	_, err := svc.Account(ctx, alice)
	require.NoError(t, err)

	// Exactly at the limit: rejected.
	require.NoError(t, mem.Update(ctx, repositories.StudentCollection, "alice", docstore.Doc{
		"total_usage_seconds": float64(models.DefaultMonthlyHourLimit * 3600),
	}))
	_, err = svc.Access(ctx, alice, "gpu-0")
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	// One second under: accepted.
	require.NoError(t, mem.Update(ctx, repositories.StudentCollection, "alice", docstore.Doc{
		"total_usage_seconds": float64(models.DefaultMonthlyHourLimit*3600 - 1),
	}))
	_, err = svc.Access(ctx, alice, "gpu-0")
	assert.NoError(t, err)
}

func TestAccessWhileAlreadyActive(t *testing.T) {
	svc, _, _, _ := setupSession(t)
	ctx := context.Background()

	_, err := svc.Access(ctx, alice, "gpu-0")
	require.NoError(t, err)

	_, err = svc.Access(ctx, alice, "gpu-1")
	assert.ErrorIs(t, err, ErrAlreadyActive)
}

func TestAccessOccupiedGPU(t *testing.T) {
	svc, _, _, _ := setupSession(t)
	ctx := context.Background()

	_, err := svc.Access(ctx, alice, "gpu-0")
	require.NoError(t, err)

	_, err = svc.Access(ctx, bob, "gpu-0")
	assert.ErrorIs(t, err, ErrGPUNotAvailable)
}

func TestAccessUnknownGPU(t *testing.T) {
	svc, _, _, _ := setupSession(t)
	_, err := svc.Access(context.Background(), alice, "gpu-42")
	assert.ErrorIs(t, err, repositories.ErrGPUNotFound)
}

// --------------------- Join ---------------------

func TestJoinInUseGPU(t *testing.T) {
	svc, _, _, _ := setupSession(t)
	ctx := context.Background()

	_, err := svc.Access(ctx, alice, "gpu-0")
	require.NoError(t, err)

	sshCommand, err := svc.Join(ctx, bob, "gpu-0")
	require.NoError(t, err)
	assert.Equal(t, "ssh student@192.168.1.100", sshCommand)

	gpu, err := svc.Repos.Directory.Get(ctx, "gpu-0")
	require.NoError(t, err)
	require.Len(t, gpu.Occupants, 2)
	assert.Equal(t, "alice", gpu.Occupants[0].StudentID)
	assert.Equal(t, "bob", gpu.Occupants[1].StudentID)
}

func TestJoinAvailableGPU(t *testing.T) {
	svc, _, _, _ := setupSession(t)
	_, err := svc.Join(context.Background(), alice, "gpu-0")
	assert.ErrorIs(t, err, ErrGPUNotInUse)
}

func TestJoinWhileAlreadyActive(t *testing.T) {
	svc, _, _, _ := setupSession(t)
	ctx := context.Background()

	_, err := svc.Access(ctx, alice, "gpu-0")
	require.NoError(t, err)
	_, err = svc.Access(ctx, bob, "gpu-1")
	require.NoError(t, err)

	_, err = svc.Join(ctx, bob, "gpu-0")
	assert.ErrorIs(t, err, ErrAlreadyActive)
}

// --------------------- Release ---------------------

func TestReleaseAccruesElapsedSeconds(t *testing.T) {
	svc, mem, _, audit := setupSession(t)
	ctx := context.Background()

	t0 := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	mem.NowFunc = func() time.Time { return t0 }

	_, err := svc.Access(ctx, alice, "gpu-0")
	require.NoError(t, err)

	// Pre-existing usage must be preserved, not overwritten.
	_, err = svc.Repos.Ledger.Accrue(ctx, "alice", 300)
	require.NoError(t, err)

	fixedClock(t, t0.Add(125*time.Second))
	seconds, err := svc.Release(ctx, alice, "gpu-0")
	require.NoError(t, err)
	assert.InDelta(t, 125, seconds, 0.001)

	student, err := svc.Repos.Ledger.Get(ctx, "alice")
	require.NoError(t, err)
	assert.InDelta(t, 425, student.TotalUsageSeconds, 0.001)

	gpu, err := svc.Repos.Directory.Get(ctx, "gpu-0")
	require.NoError(t, err)
	assert.Equal(t, models.GPUStatusAvailable, gpu.Status)
	assert.Empty(t, gpu.Occupants)
	assert.Nil(t, gpu.SessionStartedAt)

	logs, err := audit.GetAuditLogs(repositories.AuditQueryParams{})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, string(models.AuditActionRelease), logs[0].Action)
	assert.False(t, logs[0].Partial)
	assert.InDelta(t, 125, logs[0].Seconds, 0.001)
}

func TestReleaseFallsBackToSessionStart(t *testing.T) {
	svc, mem, _, _ := setupSession(t)
	ctx := context.Background()

	t0 := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	mem.NowFunc = func() time.Time { return t0 }
	_, err := svc.Access(ctx, alice, "gpu-0")
	require.NoError(t, err)

	// Corrupt the occupant's own timestamp; the GPU's episode start remains.
	gpu, err := svc.Repos.Directory.Get(ctx, "gpu-0")
	require.NoError(t, err)
	require.NoError(t, mem.Update(ctx, repositories.GPUCollection, "gpu-0", docstore.Doc{
		"occupants": []interface{}{
			docstore.Doc{"student_id": "alice", "name": "Alice", "joined_at": nil},
		},
		"session_started_at": *gpu.SessionStartedAt,
	}))

	fixedClock(t, t0.Add(60*time.Second))
	seconds, err := svc.Release(ctx, alice, "gpu-0")
	require.NoError(t, err)
	assert.InDelta(t, 60, seconds, 0.001)
}

func TestReleaseWithUnresolvableTimestampsAccruesNothing(t *testing.T) {
	svc, mem, _, _ := setupSession(t)
	ctx := context.Background()

	_, err := svc.Access(ctx, alice, "gpu-0")
	require.NoError(t, err)
	require.NoError(t, mem.Update(ctx, repositories.GPUCollection, "gpu-0", docstore.Doc{
		"occupants": []interface{}{
			docstore.Doc{"student_id": "alice", "name": "Alice", "joined_at": nil},
		},
		"session_started_at": nil,
	}))

	seconds, err := svc.Release(ctx, alice, "gpu-0")
	require.NoError(t, err)
	assert.Zero(t, seconds)
}

func TestReleaseNotAnOccupant(t *testing.T) {
	svc, _, _, _ := setupSession(t)
	_, err := svc.Release(context.Background(), alice, "gpu-0")
	assert.ErrorIs(t, err, repositories.ErrNotAnOccupant)
}

func TestReleasePartialFailureIsAudited(t *testing.T) {
	svc, mem, store, audit := setupSession(t)
	ctx := context.Background()

	t0 := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	mem.NowFunc = func() time.Time { return t0 }
	_, err := svc.Access(ctx, alice, "gpu-0")
	require.NoError(t, err)

	store.failUpdatesTo(repositories.GPUCollection)
	fixedClock(t, t0.Add(200*time.Second))

	seconds, err := svc.Release(ctx, alice, "gpu-0")
	assert.ErrorIs(t, err, ErrPartialRelease)
	assert.InDelta(t, 200, seconds, 0.001)

	// Usage was recorded even though the occupant entry survived.
	student, err := svc.Repos.Ledger.Get(ctx, "alice")
	require.NoError(t, err)
	assert.InDelta(t, 200, student.TotalUsageSeconds, 0.001)

	store.failUpdatesTo("")
	gpu, err := svc.Repos.Directory.Get(ctx, "gpu-0")
	require.NoError(t, err)
	assert.True(t, gpu.HasOccupant("alice"))

	logs, err := audit.GetAuditLogs(repositories.AuditQueryParams{})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, string(models.AuditActionPartialRelease), logs[0].Action)
	assert.True(t, logs[0].Partial)

	var details map[string]interface{}
	require.NoError(t, json.Unmarshal(logs[0].Details, &details))
	assert.Contains(t, details, "leave_error")
}

func TestReleaseAbortsWhenAccrualFails(t *testing.T) {
	svc, _, store, audit := setupSession(t)
	ctx := context.Background()

	_, err := svc.Access(ctx, alice, "gpu-0")
	require.NoError(t, err)

	store.failUpdatesTo(repositories.StudentCollection)
	_, err = svc.Release(ctx, alice, "gpu-0")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrPartialRelease)

	// The occupant entry is untouched and nothing was audited.
	store.failUpdatesTo("")
	gpu, err := svc.Repos.Directory.Get(ctx, "gpu-0")
	require.NoError(t, err)
	assert.True(t, gpu.HasOccupant("alice"))
	logs, _ := audit.GetAuditLogs(repositories.AuditQueryParams{})
	assert.Empty(t, logs)
}

// --------------------- Exclusivity & revocation ---------------------

func TestGlobalExclusivityAcrossSequences(t *testing.T) {
	svc, _, _, _ := setupSession(t)
	ctx := context.Background()

	_, err := svc.Access(ctx, alice, "gpu-0")
	require.NoError(t, err)
	_, err = svc.Join(ctx, alice, "gpu-0")
	assert.ErrorIs(t, err, ErrAlreadyActive)

	_, err = svc.Release(ctx, alice, "gpu-0")
	require.NoError(t, err)
	_, err = svc.Access(ctx, alice, "gpu-1")
	require.NoError(t, err)

	gpus, err := svc.Repos.Directory.Snapshot(ctx)
	require.NoError(t, err)
	occurrences := 0
	for _, g := range gpus {
		if g.HasOccupant("alice") {
			occurrences++
		}
	}
	assert.Equal(t, 1, occurrences)
}

// Revoking permission mid-session never evicts the student; it only blocks
// the next access or join.
func TestRevocationMidSessionDoesNotEvict(t *testing.T) {
	svc, mem, _, _ := setupSession(t)
	ctx := context.Background()

	t0 := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	mem.NowFunc = func() time.Time { return t0 }
	_, err := svc.Access(ctx, alice, "gpu-0")
	require.NoError(t, err)

	revoked := false
	require.NoError(t, svc.Repos.Ledger.SetPolicy(ctx, "alice", nil, &revoked))

	gpu, err := svc.Repos.Directory.Get(ctx, "gpu-0")
	require.NoError(t, err)
	assert.True(t, gpu.HasOccupant("alice"))

	// Release still works and accrues normally.
	fixedClock(t, t0.Add(45*time.Second))
	seconds, err := svc.Release(ctx, alice, "gpu-0")
	require.NoError(t, err)
	assert.InDelta(t, 45, seconds, 0.001)

	// But a new session is rejected.
	_, err = svc.Access(ctx, alice, "gpu-0")
	assert.ErrorIs(t, err, ErrAccessRevoked)
}
