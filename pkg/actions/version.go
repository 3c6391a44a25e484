package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowforge/orchestrator/pkg/artifact"
	"github.com/flowforge/orchestrator/pkg/events"
	"github.com/flowforge/orchestrator/pkg/flow/resolver"
	"github.com/flowforge/orchestrator/pkg/models"
	"github.com/google/uuid"
)

// runVersion implements the version executor (§4.H): build a file manifest,
// persist it as a labeled snapshot, optionally commit it to git, and emit
// files_changed with the snapshot path sentinel rather than a real path
// list (a snapshot touches the whole tree, not an enumerable change set).
func runVersion(ctx context.Context, ac *Context, step *resolver.ActionStep) (*Result, error) {
	label := step.SnapshotLabel
	if label == "" {
		label = "snapshot"
	}

	manifest, err := artifact.BuildManifest(ac.ProjectRoot)
	if err != nil {
		return nil, fmt.Errorf("actions: version build manifest: %w", err)
	}

	if ac.Store != nil {
		snap := &models.Snapshot{
			ID:           uuid.New().String(),
			ProjectID:    ac.ProjectID,
			ChatID:       ac.ChatID,
			Label:        label,
			FileManifest: manifest,
			CreatedAt:    time.Now(),
		}
		if err := ac.Store.CreateSnapshot(ctx, snap); err != nil {
			return nil, fmt.Errorf("actions: version persist snapshot: %w", err)
		}
	}

	artifact.CommitSnapshot(ac.ProjectRoot, label, slog.Default())

	if ac.Bus != nil {
		ac.Bus.PublishFilesChanged(events.FilesChangedPayload{
			ChatID: ac.ChatID,
			Paths:  []string{events.FilesChangedSentinel},
		})
	}

	manifestJSON, err := json.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("actions: version marshal manifest: %w", err)
	}
	return &Result{Content: string(manifestJSON)}, nil
}
