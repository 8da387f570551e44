package staging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vendo/internal/common"
	"github.com/ternarybob/vendo/internal/interfaces"
	"github.com/ternarybob/vendo/internal/models"
	"github.com/ternarybob/vendo/internal/services/orchestrator"
)

// Pipeline stages supplier items submitted with the prepare request into
// diffs and staging rows. Cancellation is checked between items; a run
// cancelled mid-batch keeps the rows staged so far.
type Pipeline struct {
	runs    interfaces.RunStorage
	diffs   interfaces.DiffStorage
	staging interfaces.StagingStorage
	logger  arbor.ILogger
}

// NewPipeline creates a new staging pipeline
func NewPipeline(runs interfaces.RunStorage, diffs interfaces.DiffStorage, staging interfaces.StagingStorage, logger arbor.ILogger) *Pipeline {
	return &Pipeline{
		runs:    runs,
		diffs:   diffs,
		staging: staging,
		logger:  logger,
	}
}

// stagedItem is one supplier item carried in the prepare options
type stagedItem struct {
	ExternalID string                  `json:"external_id"`
	SourceURL  string                  `json:"source_url,omitempty"`
	Snapshot   *models.ProductSnapshot `json:"snapshot"`
	Delete     bool                    `json:"delete,omitempty"`
}

// Prepare stages the run's items. Honors both context cancellation and
// the run's durable cancel flag at per-item checkpoints.
func (p *Pipeline) Prepare(ctx context.Context, run *models.Run, tpl *models.Template) error {
	items, err := p.parseItems(run.Summary.Options)
	if err != nil {
		return err
	}

	p.logger.Info().
		Str("run_id", run.ID).
		Str("template_id", tpl.ID).
		Int("items", len(items)).
		Msg("Staging pipeline started")

	for i, item := range items {
		if err := p.checkCancelled(ctx, run.ID); err != nil {
			p.logger.Info().
				Str("run_id", run.ID).
				Int("staged", i).
				Msg("Staging pipeline cancelled")
			return err
		}

		if err := p.stageItem(ctx, run, tpl, item); err != nil {
			return fmt.Errorf("failed to stage item %s: %w", item.ExternalID, err)
		}
	}

	return nil
}

// parseItems decodes the items array from the prepare options
func (p *Pipeline) parseItems(options map[string]interface{}) ([]stagedItem, error) {
	raw, ok := options["items"]
	if !ok {
		return nil, nil
	}

	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid items payload: %w", err)
	}
	var items []stagedItem
	if err := json.Unmarshal(encoded, &items); err != nil {
		return nil, fmt.Errorf("invalid items payload: %w", err)
	}

	for _, item := range items {
		if item.ExternalID == "" {
			return nil, fmt.Errorf("item missing external_id")
		}
		if item.Snapshot == nil && !item.Delete {
			return nil, fmt.Errorf("item %s missing snapshot", item.ExternalID)
		}
	}
	return items, nil
}

// checkCancelled observes both cancellation channels: the in-process
// context and the durable flag on the run record.
func (p *Pipeline) checkCancelled(ctx context.Context, runID string) error {
	select {
	case <-ctx.Done():
		return orchestrator.ErrCancelled
	default:
	}

	run, err := p.runs.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Summary.Control.CancelRequested {
		return orchestrator.ErrCancelled
	}
	return nil
}

func (p *Pipeline) stageItem(ctx context.Context, run *models.Run, tpl *models.Template, item stagedItem) error {
	diffType := models.DiffTypeAdd
	if item.Delete {
		diffType = models.DiffTypeDelete
	} else if existing, err := p.staging.GetStagingRow(ctx, run.ID, item.ExternalID); err == nil && existing != nil {
		diffType = models.DiffTypeChange
	}

	diff := &models.Diff{
		ID:         common.NewDiffID(),
		RunID:      run.ID,
		ExternalID: item.ExternalID,
		Type:       diffType,
		After:      item.Snapshot,
		CreatedAt:  time.Now(),
	}
	if err := p.diffs.SaveDiff(ctx, diff); err != nil {
		return err
	}

	row := &models.StagingRow{
		ID:         common.NewStagingID(),
		TemplateID: tpl.ID,
		RunID:      run.ID,
		ExternalID: item.ExternalID,
		Status:     string(diffType),
		UpdatedAt:  time.Now(),
	}
	if err := p.staging.SaveStagingRow(ctx, row); err != nil {
		return err
	}

	if item.SourceURL != "" {
		source := &models.ProductSource{
			ID:           common.NewSourceID(),
			TemplateID:   tpl.ID,
			ExternalID:   item.ExternalID,
			URL:          item.SourceURL,
			DiscoveredAt: time.Now(),
		}
		if err := p.staging.SaveProductSource(ctx, source); err != nil {
			return err
		}
	}

	return nil
}
