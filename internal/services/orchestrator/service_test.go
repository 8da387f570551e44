package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vendo/internal/common"
	"github.com/ternarybob/vendo/internal/interfaces"
	"github.com/ternarybob/vendo/internal/models"
	"github.com/ternarybob/vendo/internal/services/events"
	badgerstorage "github.com/ternarybob/vendo/internal/storage/badger"
)

// fakePipeline delegates to fn and records which runs it saw, in order
type fakePipeline struct {
	mu    sync.Mutex
	seen  []string
	inner int
	peak  int
	fn    func(ctx context.Context, run *models.Run, tpl *models.Template) error
}

func (f *fakePipeline) Prepare(ctx context.Context, run *models.Run, tpl *models.Template) error {
	f.mu.Lock()
	f.seen = append(f.seen, run.ID)
	f.inner++
	if f.inner > f.peak {
		f.peak = f.inner
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inner--
		f.mu.Unlock()
	}()

	if f.fn != nil {
		return f.fn(ctx, run, tpl)
	}
	return nil
}

func (f *fakePipeline) order() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.seen...)
}

func (f *fakePipeline) maxConcurrency() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peak
}

type testEnv struct {
	service   *Service
	templates interfaces.TemplateStorage
	runs      interfaces.RunStorage
	logs      interfaces.LogStorage
	pipeline  *fakePipeline
}

func setupOrchestrator(t *testing.T, cfg common.OrchestratorConfig) *testEnv {
	t.Helper()

	logger := arbor.NewLogger()
	manager, err := badgerstorage.NewManager(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	pipeline := &fakePipeline{}
	service := NewService(
		manager.TemplateStorage(),
		manager.RunStorage(),
		manager.LogStorage(),
		pipeline,
		events.NewService(logger),
		cfg,
		logger,
	)
	t.Cleanup(service.Stop)

	return &testEnv{
		service:   service,
		templates: manager.TemplateStorage(),
		runs:      manager.RunStorage(),
		logs:      manager.LogStorage(),
		pipeline:  pipeline,
	}
}

func defaultOrchestratorConfig() common.OrchestratorConfig {
	return common.OrchestratorConfig{
		Workers:        2,
		QueueDepth:     16,
		QueueScanLimit: 10,
		LeaseTTL:       30 * time.Minute,
	}
}

func newTemplate(t *testing.T, env *testEnv) *models.Template {
	t.Helper()
	tpl := &models.Template{
		ID:         common.NewTemplateID(),
		Name:       "acme",
		SupplierID: "acme",
		CreatedAt:  time.Now(),
	}
	require.NoError(t, env.templates.SaveTemplate(context.Background(), tpl))
	return tpl
}

func waitForStatus(t *testing.T, env *testEnv, runID string, status models.RunStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		run, err := env.runs.GetRun(context.Background(), runID)
		return err == nil && run.Status == status
	}, 5*time.Second, 10*time.Millisecond, "run %s never reached %s", runID, status)
}

// flakyRunStorage fails SaveRun for preparing-status runs a fixed number
// of times, then behaves normally
type flakyRunStorage struct {
	interfaces.RunStorage
	mu            sync.Mutex
	failPreparing int
}

func (f *flakyRunStorage) SaveRun(ctx context.Context, run *models.Run) error {
	f.mu.Lock()
	if run.Status == models.RunStatusPreparing && f.failPreparing > 0 {
		f.failPreparing--
		f.mu.Unlock()
		return errors.New("storage write failed")
	}
	f.mu.Unlock()
	return f.RunStorage.SaveRun(ctx, run)
}

func TestStartNextQueued_FailedPromotionLeavesRunPromotable(t *testing.T) {
	logger := arbor.NewLogger()
	manager, err := badgerstorage.NewManager(logger, &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	flaky := &flakyRunStorage{RunStorage: manager.RunStorage(), failPreparing: 1}
	pipeline := &fakePipeline{}
	service := NewService(
		manager.TemplateStorage(),
		flaky,
		manager.LogStorage(),
		pipeline,
		events.NewService(logger),
		defaultOrchestratorConfig(),
		logger,
	)
	t.Cleanup(service.Stop)

	ctx := context.Background()
	tpl := &models.Template{ID: common.NewTemplateID(), Name: "acme", SupplierID: "acme", CreatedAt: time.Now()}
	require.NoError(t, manager.TemplateStorage().SaveTemplate(ctx, tpl))

	runID, err := service.EnqueuePrepare(ctx, tpl.ID, nil)
	require.NoError(t, err)

	// The promotion write failed mid-flight: the run must stay queued and
	// the slot must not be stranded
	run, err := manager.RunStorage().GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusQueued, run.Status)

	got, err := manager.TemplateStorage().GetTemplate(ctx, tpl.ID)
	require.NoError(t, err)
	assert.False(t, got.SlotHeld())

	// The next kick promotes it normally
	require.NoError(t, service.KickTemplate(ctx, tpl.ID))
	require.Eventually(t, func() bool {
		run, err := manager.RunStorage().GetRun(ctx, runID)
		return err == nil && run.Status == models.RunStatusStaged
	}, 5*time.Second, 10*time.Millisecond)
}

func TestEnqueuePrepare_CompletesAndReleasesSlot(t *testing.T) {
	env := setupOrchestrator(t, defaultOrchestratorConfig())
	ctx := context.Background()
	tpl := newTemplate(t, env)

	runID, err := env.service.EnqueuePrepare(ctx, tpl.ID, map[string]interface{}{"depth": 1})
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	waitForStatus(t, env, runID, models.RunStatusStaged)

	require.Eventually(t, func() bool {
		got, err := env.templates.GetTemplate(ctx, tpl.ID)
		return err == nil && !got.SlotHeld()
	}, 5*time.Second, 10*time.Millisecond, "slot never released")

	queued, err := env.logs.RecentEventsByType(ctx, tpl.ID, models.EventPrepareQueued, 10)
	require.NoError(t, err)
	assert.Len(t, queued, 1)

	done, err := env.logs.RecentEventsByType(ctx, tpl.ID, models.EventOrchestratorDone, 10)
	require.NoError(t, err)
	assert.Len(t, done, 1)
}

func TestEnqueuePrepare_UnknownTemplate(t *testing.T) {
	env := setupOrchestrator(t, defaultOrchestratorConfig())

	_, err := env.service.EnqueuePrepare(context.Background(), "tpl_missing", nil)
	assert.ErrorIs(t, err, interfaces.ErrTemplateNotFound)
}

func TestQueueDrain_SerialFIFO(t *testing.T) {
	env := setupOrchestrator(t, defaultOrchestratorConfig())
	ctx := context.Background()
	tpl := newTemplate(t, env)

	env.pipeline.fn = func(ctx context.Context, run *models.Run, tpl *models.Template) error {
		time.Sleep(20 * time.Millisecond)
		return nil
	}

	var runIDs []string
	for i := 0; i < 3; i++ {
		runID, err := env.service.EnqueuePrepare(ctx, tpl.ID, nil)
		require.NoError(t, err)
		runIDs = append(runIDs, runID)
		// Distinct queue-event timestamps keep the FIFO order observable
		time.Sleep(5 * time.Millisecond)
	}

	for _, runID := range runIDs {
		waitForStatus(t, env, runID, models.RunStatusStaged)
	}

	assert.Equal(t, runIDs, env.pipeline.order(), "promotions must follow queue order")
	assert.Equal(t, 1, env.pipeline.maxConcurrency(), "never two prepares for one template")
}

func TestSingleSlotInvariant(t *testing.T) {
	env := setupOrchestrator(t, defaultOrchestratorConfig())
	ctx := context.Background()
	tpl := newTemplate(t, env)

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	env.pipeline.fn = func(ctx context.Context, run *models.Run, tpl *models.Template) error {
		started <- struct{}{}
		<-release
		return nil
	}

	first, err := env.service.EnqueuePrepare(ctx, tpl.ID, nil)
	require.NoError(t, err)
	<-started

	second, err := env.service.EnqueuePrepare(ctx, tpl.ID, nil)
	require.NoError(t, err)

	// While the first run holds the slot, the second stays queued
	run, err := env.runs.GetRun(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusQueued, run.Status)

	got, err := env.templates.GetTemplate(ctx, tpl.ID)
	require.NoError(t, err)
	require.True(t, got.SlotHeld())
	assert.Equal(t, first, got.Slot.RunID)

	close(release)
	waitForStatus(t, env, first, models.RunStatusStaged)
	waitForStatus(t, env, second, models.RunStatusStaged)
}

func TestRequestCancel_MidRun(t *testing.T) {
	env := setupOrchestrator(t, defaultOrchestratorConfig())
	ctx := context.Background()
	tpl := newTemplate(t, env)

	started := make(chan struct{}, 1)
	env.pipeline.fn = func(ctx context.Context, run *models.Run, tpl *models.Template) error {
		started <- struct{}{}
		<-ctx.Done()
		return ErrCancelled
	}

	runID, err := env.service.EnqueuePrepare(ctx, tpl.ID, nil)
	require.NoError(t, err)
	<-started

	result, err := env.service.RequestCancel(ctx, runID)
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.False(t, result.AlreadyTerminal)

	waitForStatus(t, env, runID, models.RunStatusCancelled)

	// Second cancel on the now-terminal run still succeeds
	result, err = env.service.RequestCancel(ctx, runID)
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.True(t, result.AlreadyTerminal)

	cancelled, err := env.logs.RecentEventsByType(ctx, tpl.ID, models.EventOrchestratorCancelled, 10)
	require.NoError(t, err)
	assert.Len(t, cancelled, 1, "terminal transition must be logged exactly once")
}

func TestRequestCancel_TerminalRunClearsOrphanedSlot(t *testing.T) {
	env := setupOrchestrator(t, defaultOrchestratorConfig())
	ctx := context.Background()
	tpl := newTemplate(t, env)

	run := models.NewRun(common.NewRunID(), tpl.ID, nil)
	run.MarkStaged()
	require.NoError(t, env.runs.SaveRun(ctx, run))
	require.NoError(t, env.templates.UpdateSlot(ctx, tpl.ID, &models.SlotLease{
		RunID:      run.ID,
		AcquiredAt: time.Now(),
	}))

	result, err := env.service.RequestCancel(ctx, run.ID)
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.True(t, result.AlreadyTerminal)
	assert.True(t, result.ClearedSlot)

	got, err := env.templates.GetTemplate(ctx, tpl.ID)
	require.NoError(t, err)
	assert.False(t, got.SlotHeld())
}

func TestRunPrepareJob_PipelinePanicFailsRun(t *testing.T) {
	env := setupOrchestrator(t, defaultOrchestratorConfig())
	ctx := context.Background()
	tpl := newTemplate(t, env)

	env.pipeline.fn = func(ctx context.Context, run *models.Run, tpl *models.Template) error {
		panic("boom")
	}

	runID, err := env.service.EnqueuePrepare(ctx, tpl.ID, nil)
	require.NoError(t, err)

	waitForStatus(t, env, runID, models.RunStatusFailed)

	run, err := env.runs.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Contains(t, run.Summary.Error, "panic")
}

func TestSweep_ClearsAbandonedLeases(t *testing.T) {
	env := setupOrchestrator(t, defaultOrchestratorConfig())
	ctx := context.Background()

	// Lease pointing at a missing run
	tplMissing := newTemplate(t, env)
	require.NoError(t, env.templates.UpdateSlot(ctx, tplMissing.ID, &models.SlotLease{
		RunID:      common.NewRunID(),
		AcquiredAt: time.Now(),
	}))

	// Lease pointing at a terminal run
	tplTerminal := newTemplate(t, env)
	terminalRun := models.NewRun(common.NewRunID(), tplTerminal.ID, nil)
	terminalRun.MarkFailed("earlier crash")
	require.NoError(t, env.runs.SaveRun(ctx, terminalRun))
	require.NoError(t, env.templates.UpdateSlot(ctx, tplTerminal.ID, &models.SlotLease{
		RunID:      terminalRun.ID,
		AcquiredAt: time.Now(),
	}))

	require.NoError(t, env.service.Sweep(ctx))

	for _, tpl := range []*models.Template{tplMissing, tplTerminal} {
		got, err := env.templates.GetTemplate(ctx, tpl.ID)
		require.NoError(t, err)
		assert.False(t, got.SlotHeld(), "sweep must clear lease for %s", tpl.ID)
	}

	cleared, err := env.logs.RecentEventsByType(ctx, tplMissing.ID, models.EventMaintenanceSlotCleared, 10)
	require.NoError(t, err)
	require.Len(t, cleared, 1)
	assert.Equal(t, models.SlotClearedMissingRun, cleared[0].Payload["reason"])
}

func TestSweep_ReclaimsExpiredLease(t *testing.T) {
	cfg := defaultOrchestratorConfig()
	cfg.LeaseTTL = time.Minute
	env := setupOrchestrator(t, cfg)
	ctx := context.Background()
	tpl := newTemplate(t, env)

	// A preparing run with an old lease and no live execution: orphaned
	// by a crashed process.
	run := models.NewRun(common.NewRunID(), tpl.ID, nil)
	run.MarkPreparing()
	require.NoError(t, env.runs.SaveRun(ctx, run))
	require.NoError(t, env.templates.UpdateSlot(ctx, tpl.ID, &models.SlotLease{
		RunID:      run.ID,
		AcquiredAt: time.Now().Add(-10 * time.Minute),
	}))

	require.NoError(t, env.service.Sweep(ctx))

	got, err := env.runs.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, got.Status)

	tplGot, err := env.templates.GetTemplate(ctx, tpl.ID)
	require.NoError(t, err)
	assert.False(t, tplGot.SlotHeld())
}

func TestSweep_LeavesFreshLeaseAlone(t *testing.T) {
	env := setupOrchestrator(t, defaultOrchestratorConfig())
	ctx := context.Background()
	tpl := newTemplate(t, env)

	run := models.NewRun(common.NewRunID(), tpl.ID, nil)
	run.MarkPreparing()
	require.NoError(t, env.runs.SaveRun(ctx, run))
	require.NoError(t, env.templates.UpdateSlot(ctx, tpl.ID, &models.SlotLease{
		RunID:      run.ID,
		AcquiredAt: time.Now(),
	}))

	require.NoError(t, env.service.Sweep(ctx))

	got, err := env.templates.GetTemplate(ctx, tpl.ID)
	require.NoError(t, err)
	assert.True(t, got.SlotHeld(), "a fresh lease on a live run must survive the sweep")
}
