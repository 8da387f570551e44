package deleter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vendo/internal/common"
	"github.com/ternarybob/vendo/internal/interfaces"
	"github.com/ternarybob/vendo/internal/models"
	badgerstorage "github.com/ternarybob/vendo/internal/storage/badger"
)

type testEnv struct {
	service *Service
	manager interfaces.StorageManager
}

func setupDeleter(t *testing.T) *testEnv {
	t.Helper()

	logger := arbor.NewLogger()
	manager, err := badgerstorage.NewManager(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	service := NewService(
		manager.TemplateStorage(),
		manager.RunStorage(),
		manager.LogStorage(),
		manager.DiffStorage(),
		manager.StagingStorage(),
		5*time.Minute,
		logger,
	)
	return &testEnv{service: service, manager: manager}
}

// seedTemplate creates a template with one run, its queue event, one diff,
// one staging row and one product source
func seedTemplate(t *testing.T, env *testEnv, name string) (*models.Template, *models.Run) {
	t.Helper()
	ctx := context.Background()

	tpl := &models.Template{
		ID:         common.NewTemplateID(),
		Name:       name,
		SupplierID: name,
		CreatedAt:  time.Now(),
	}
	require.NoError(t, env.manager.TemplateStorage().SaveTemplate(ctx, tpl))

	run := models.NewRun(common.NewRunID(), tpl.ID, nil)
	require.NoError(t, env.manager.RunStorage().SaveRun(ctx, run))

	require.NoError(t, env.manager.LogStorage().AppendEvent(ctx, &models.LogEvent{
		TemplateID: tpl.ID,
		RunID:      run.ID,
		Type:       models.EventPrepareQueued,
	}))

	require.NoError(t, env.manager.DiffStorage().SaveDiff(ctx, &models.Diff{
		ID:         common.NewDiffID(),
		RunID:      run.ID,
		ExternalID: "sku-1",
		Type:       models.DiffTypeAdd,
		CreatedAt:  time.Now(),
	}))

	require.NoError(t, env.manager.StagingStorage().SaveStagingRow(ctx, &models.StagingRow{
		ID:         common.NewStagingID(),
		TemplateID: tpl.ID,
		RunID:      run.ID,
		ExternalID: "sku-1",
	}))
	require.NoError(t, env.manager.StagingStorage().SaveProductSource(ctx, &models.ProductSource{
		ID:         common.NewSourceID(),
		TemplateID: tpl.ID,
		ExternalID: "sku-1",
		URL:        "https://supplier.example/p/1",
	}))

	return tpl, run
}

func TestBuildDeletePlan_CountsAndRunCollection(t *testing.T) {
	env := setupDeleter(t)
	ctx := context.Background()
	tpl, run := seedTemplate(t, env, "acme")

	// A stray event whose RunID is not run-shaped must not join the cascade
	require.NoError(t, env.manager.LogStorage().AppendEvent(ctx, &models.LogEvent{
		TemplateID: tpl.ID,
		RunID:      "not-a-run-reference",
		Type:       models.EventPublishDone,
	}))

	plan, err := env.service.BuildDeletePlan(ctx, []string{tpl.ID, "tpl_missing"})
	require.NoError(t, err)

	require.Len(t, plan.Templates, 1, "missing ids are silently absent")
	assert.Equal(t, []string{run.ID}, plan.RunIDs)
	assert.Equal(t, 2, plan.Counts.Logs)
	assert.Equal(t, 1, plan.Counts.StagingRows)
	assert.Equal(t, 1, plan.Counts.ProductSources)
	assert.Equal(t, 1, plan.Counts.Runs)
	assert.Equal(t, 1, plan.Counts.Diffs)
	assert.False(t, plan.Blocked())
}

func TestExecute_DryRunHasNoSideEffects(t *testing.T) {
	env := setupDeleter(t)
	ctx := context.Background()
	tpl, run := seedTemplate(t, env, "acme")

	result, err := env.service.Execute(ctx, []string{tpl.ID}, true, false)
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.True(t, result.DryRun)
	assert.Equal(t, 1, result.Counts.Runs)

	// Nothing was deleted
	_, err = env.manager.TemplateStorage().GetTemplate(ctx, tpl.ID)
	require.NoError(t, err)
	_, err = env.manager.RunStorage().GetRun(ctx, run.ID)
	require.NoError(t, err)

	diffs, err := env.manager.DiffStorage().CountDiffsByRuns(ctx, []string{run.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, diffs)

	// Re-running yields identical counts (plus the audit events just logged)
	again, err := env.service.Execute(ctx, []string{tpl.ID}, true, false)
	require.NoError(t, err)
	assert.Equal(t, result.Counts.Runs, again.Counts.Runs)
	assert.Equal(t, result.Counts.Diffs, again.Counts.Diffs)
	assert.Equal(t, result.Counts.StagingRows, again.Counts.StagingRows)
}

func TestExecute_BlockedByActivePrepare(t *testing.T) {
	env := setupDeleter(t)
	ctx := context.Background()
	tpl, run := seedTemplate(t, env, "acme")
	other, _ := seedTemplate(t, env, "other")

	require.NoError(t, env.manager.TemplateStorage().UpdateSlot(ctx, tpl.ID, &models.SlotLease{
		RunID:      run.ID,
		AcquiredAt: time.Now(),
	}))

	result, err := env.service.Execute(ctx, []string{tpl.ID, other.ID}, false, false)
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.True(t, result.Blocked)
	require.Len(t, result.Blockers, 1)
	assert.Equal(t, models.BlockerActivePrepare, result.Blockers[0].Code)
	assert.Equal(t, []string{tpl.ID}, result.Blockers[0].Templates)

	// Never partially delete: both templates survive
	_, err = env.manager.TemplateStorage().GetTemplate(ctx, tpl.ID)
	require.NoError(t, err)
	_, err = env.manager.TemplateStorage().GetTemplate(ctx, other.ID)
	require.NoError(t, err)
}

func TestExecute_BlockedByPublishInProgress(t *testing.T) {
	env := setupDeleter(t)
	ctx := context.Background()
	tpl, run := seedTemplate(t, env, "acme")

	require.NoError(t, env.manager.LogStorage().AppendEvent(ctx, &models.LogEvent{
		TemplateID: tpl.ID,
		RunID:      run.ID,
		Type:       models.EventPublishProgress,
		At:         time.Now().Add(-time.Minute),
	}))

	result, err := env.service.Execute(ctx, []string{tpl.ID}, false, false)
	require.NoError(t, err)
	assert.True(t, result.Blocked)
	require.Len(t, result.Blockers, 1)
	assert.Equal(t, models.BlockerPublishInProgress, result.Blockers[0].Code)
}

func TestExecute_OldPublishEventsDoNotBlock(t *testing.T) {
	env := setupDeleter(t)
	ctx := context.Background()
	tpl, run := seedTemplate(t, env, "acme")

	require.NoError(t, env.manager.LogStorage().AppendEvent(ctx, &models.LogEvent{
		TemplateID: tpl.ID,
		RunID:      run.ID,
		Type:       models.EventPublishProgress,
		At:         time.Now().Add(-time.Hour),
	}))

	plan, err := env.service.BuildDeletePlan(ctx, []string{tpl.ID})
	require.NoError(t, err)
	assert.False(t, plan.Blocked())
}

func TestExecute_ForceBypassesBlockers(t *testing.T) {
	env := setupDeleter(t)
	ctx := context.Background()
	tpl, run := seedTemplate(t, env, "acme")

	require.NoError(t, env.manager.TemplateStorage().UpdateSlot(ctx, tpl.ID, &models.SlotLease{
		RunID:      run.ID,
		AcquiredAt: time.Now(),
	}))

	result, err := env.service.Execute(ctx, []string{tpl.ID}, false, true)
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, 1, result.Deleted)
}

func TestExecute_CommitCascade(t *testing.T) {
	env := setupDeleter(t)
	ctx := context.Background()
	tpl1, run1 := seedTemplate(t, env, "acme")
	tpl2, run2 := seedTemplate(t, env, "globex")
	survivor, survivorRun := seedTemplate(t, env, "initech")

	result, err := env.service.Execute(ctx, []string{tpl1.ID, tpl2.ID}, false, false)
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, 2, result.Deleted)

	for _, tplID := range []string{tpl1.ID, tpl2.ID} {
		_, err = env.manager.TemplateStorage().GetTemplate(ctx, tplID)
		assert.ErrorIs(t, err, interfaces.ErrTemplateNotFound)
	}
	for _, runID := range []string{run1.ID, run2.ID} {
		_, err = env.manager.RunStorage().GetRun(ctx, runID)
		assert.ErrorIs(t, err, interfaces.ErrRunNotFound)
	}

	logs, err := env.manager.LogStorage().CountByTemplates(ctx, []string{tpl1.ID, tpl2.ID})
	require.NoError(t, err)
	assert.Zero(t, logs)

	staging, err := env.manager.StagingStorage().CountStagingByTemplates(ctx, []string{tpl1.ID, tpl2.ID})
	require.NoError(t, err)
	assert.Zero(t, staging)

	// Unrelated rows survive
	_, err = env.manager.TemplateStorage().GetTemplate(ctx, survivor.ID)
	require.NoError(t, err)
	_, err = env.manager.RunStorage().GetRun(ctx, survivorRun.ID)
	require.NoError(t, err)
}
