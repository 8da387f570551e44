package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vendo/internal/common"
	"github.com/ternarybob/vendo/internal/interfaces"
)

type fakeOrchestrator struct {
	sweeps atomic.Int32
}

func (f *fakeOrchestrator) EnqueuePrepare(ctx context.Context, templateID string, options map[string]interface{}) (string, error) {
	return "", nil
}

func (f *fakeOrchestrator) StartNextQueued(ctx context.Context, templateID string) error { return nil }
func (f *fakeOrchestrator) KickTemplate(ctx context.Context, templateID string) error    { return nil }

func (f *fakeOrchestrator) RequestCancel(ctx context.Context, runID string) (*interfaces.CancelResult, error) {
	return &interfaces.CancelResult{OK: true}, nil
}

func (f *fakeOrchestrator) Sweep(ctx context.Context) error {
	f.sweeps.Add(1)
	return nil
}

func (f *fakeOrchestrator) Stop() {}

func TestStart_RunsStartupSweep(t *testing.T) {
	orch := &fakeOrchestrator{}
	service := NewService(orch, common.MaintenanceConfig{
		SweepSchedule:  "*/5 * * * *",
		SweepOnStartup: true,
	}, arbor.NewLogger())

	require.NoError(t, service.Start())
	defer service.Stop()

	require.Eventually(t, func() bool {
		return orch.sweeps.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStart_NoStartupSweepWhenDisabled(t *testing.T) {
	orch := &fakeOrchestrator{}
	service := NewService(orch, common.MaintenanceConfig{SweepSchedule: "*/5 * * * *"}, arbor.NewLogger())

	require.NoError(t, service.Start())
	defer service.Stop()

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, orch.sweeps.Load())
}

func TestStart_RejectsDoubleStart(t *testing.T) {
	service := NewService(&fakeOrchestrator{}, common.MaintenanceConfig{}, arbor.NewLogger())
	require.NoError(t, service.Start())
	defer service.Stop()

	assert.Error(t, service.Start())
}

func TestStart_RejectsBadSchedule(t *testing.T) {
	service := NewService(&fakeOrchestrator{}, common.MaintenanceConfig{SweepSchedule: "not-a-schedule"}, arbor.NewLogger())
	assert.Error(t, service.Start())
}

func TestStop_IsIdempotent(t *testing.T) {
	service := NewService(&fakeOrchestrator{}, common.MaintenanceConfig{}, arbor.NewLogger())
	require.NoError(t, service.Start())
	require.NoError(t, service.Stop())
	require.NoError(t, service.Stop())
}
