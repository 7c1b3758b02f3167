package integration

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/linskybing/gpulab/db"
	"github.com/linskybing/gpulab/internal/testutils"
	"github.com/linskybing/gpulab/models"
	"github.com/linskybing/gpulab/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditRepositoryRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	gormDB, cleanup := testutils.SetupPostgresForIntegration(&models.AuditLog{})
	defer cleanup()
	db.InitWithGormDB(gormDB)

	repo := &repositories.DBAuditRepo{}

	details, _ := json.Marshal(map[string]interface{}{"leave_error": "store unavailable"})
	partial := &models.AuditLog{
		ID:        uuid.NewString(),
		Action:    string(models.AuditActionPartialRelease),
		StudentID: "alice",
		GPUID:     "gpu-0",
		Seconds:   200,
		Partial:   true,
		Details:   details,
	}
	require.NoError(t, repo.CreateAuditLog(partial))

	normal := &models.AuditLog{
		ID:        uuid.NewString(),
		Action:    string(models.AuditActionRelease),
		StudentID: "bob",
		GPUID:     "gpu-1",
		Seconds:   60,
	}
	require.NoError(t, repo.CreateAuditLog(normal))

	all, err := repo.GetAuditLogs(repositories.AuditQueryParams{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	onlyPartial := true
	logs, err := repo.GetAuditLogs(repositories.AuditQueryParams{Partial: &onlyPartial})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "alice", logs[0].StudentID)
	assert.Equal(t, "gpu-0", logs[0].GPUID)
	assert.InDelta(t, 200, logs[0].Seconds, 0.001)

	student := "bob"
	logs, err = repo.GetAuditLogs(repositories.AuditQueryParams{StudentID: &student})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, string(models.AuditActionRelease), logs[0].Action)
}
