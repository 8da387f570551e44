package staging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vendo/internal/common"
	"github.com/ternarybob/vendo/internal/interfaces"
	"github.com/ternarybob/vendo/internal/models"
	"github.com/ternarybob/vendo/internal/services/orchestrator"
	badgerstorage "github.com/ternarybob/vendo/internal/storage/badger"
)

func setupPipeline(t *testing.T) (*Pipeline, interfaces.StorageManager) {
	t.Helper()

	logger := arbor.NewLogger()
	manager, err := badgerstorage.NewManager(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	pipeline := NewPipeline(manager.RunStorage(), manager.DiffStorage(), manager.StagingStorage(), logger)
	return pipeline, manager
}

func itemsOption(items []map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{"items": items}
}

func TestPrepare_StagesItems(t *testing.T) {
	pipeline, manager := setupPipeline(t)
	ctx := context.Background()

	tpl := &models.Template{ID: common.NewTemplateID(), Name: "acme", SupplierID: "acme"}
	run := models.NewRun(common.NewRunID(), tpl.ID, itemsOption([]map[string]interface{}{
		{
			"external_id": "w1",
			"source_url":  "https://supplier.example/w1",
			"snapshot":    map[string]interface{}{"title": "Widget", "sku": "W-1", "price": "9.99"},
		},
		{
			"external_id": "w2",
			"snapshot":    map[string]interface{}{"title": "Gadget", "sku": "W-2", "price": "4.99"},
		},
	}))
	require.NoError(t, manager.RunStorage().SaveRun(ctx, run))

	require.NoError(t, pipeline.Prepare(ctx, run, tpl))

	diffs, err := manager.DiffStorage().ListDiffsByRun(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, diffs, 2)
	assert.Equal(t, models.DiffTypeAdd, diffs[0].Type)
	assert.Equal(t, "Widget", diffs[0].After.Title)

	rows, err := manager.StagingStorage().CountStagingByTemplates(ctx, []string{tpl.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, rows)

	sources, err := manager.StagingStorage().CountSourcesByTemplates(ctx, []string{tpl.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, sources, "only the item carrying a source_url records one")
}

func TestPrepare_NoItemsIsANoop(t *testing.T) {
	pipeline, manager := setupPipeline(t)
	ctx := context.Background()

	tpl := &models.Template{ID: common.NewTemplateID(), Name: "acme", SupplierID: "acme"}
	run := models.NewRun(common.NewRunID(), tpl.ID, nil)
	require.NoError(t, manager.RunStorage().SaveRun(ctx, run))

	require.NoError(t, pipeline.Prepare(ctx, run, tpl))

	diffs, err := manager.DiffStorage().ListDiffsByRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Empty(t, diffs)
}

func TestPrepare_RejectsMalformedItems(t *testing.T) {
	pipeline, manager := setupPipeline(t)
	ctx := context.Background()

	tpl := &models.Template{ID: common.NewTemplateID(), Name: "acme", SupplierID: "acme"}
	run := models.NewRun(common.NewRunID(), tpl.ID, itemsOption([]map[string]interface{}{
		{"snapshot": map[string]interface{}{"title": "No ID"}},
	}))
	require.NoError(t, manager.RunStorage().SaveRun(ctx, run))

	err := pipeline.Prepare(ctx, run, tpl)
	assert.ErrorContains(t, err, "external_id")
}

func TestPrepare_HonorsDurableCancelFlag(t *testing.T) {
	pipeline, manager := setupPipeline(t)
	ctx := context.Background()

	tpl := &models.Template{ID: common.NewTemplateID(), Name: "acme", SupplierID: "acme"}
	run := models.NewRun(common.NewRunID(), tpl.ID, itemsOption([]map[string]interface{}{
		{"external_id": "w1", "snapshot": map[string]interface{}{"title": "Widget"}},
	}))
	run.Summary.Control.CancelRequested = true
	require.NoError(t, manager.RunStorage().SaveRun(ctx, run))

	err := pipeline.Prepare(ctx, run, tpl)
	assert.ErrorIs(t, err, orchestrator.ErrCancelled)

	diffs, err := manager.DiffStorage().ListDiffsByRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Empty(t, diffs, "no item is staged after the cancel checkpoint fires")
}

func TestPrepare_HonorsContextCancellation(t *testing.T) {
	pipeline, manager := setupPipeline(t)

	tpl := &models.Template{ID: common.NewTemplateID(), Name: "acme", SupplierID: "acme"}
	run := models.NewRun(common.NewRunID(), tpl.ID, itemsOption([]map[string]interface{}{
		{"external_id": "w1", "snapshot": map[string]interface{}{"title": "Widget"}},
	}))
	require.NoError(t, manager.RunStorage().SaveRun(context.Background(), run))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := pipeline.Prepare(ctx, run, tpl)
	assert.ErrorIs(t, err, orchestrator.ErrCancelled)
}
