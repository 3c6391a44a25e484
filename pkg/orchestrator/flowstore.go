package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/flowforge/orchestrator/pkg/flow"
	"github.com/flowforge/orchestrator/pkg/flow/templates"
	"github.com/flowforge/orchestrator/pkg/store"
)

// templateSettingKey and activeSettingKey are the app_settings key shapes
// §4.E/§6 define: "flow.template.<id>" stores a template's JSON, and
// "flow.active.<intent>" stores which template id is bound to an intent.
func templateSettingKey(id string) string        { return "flow.template." + id }
func activeSettingKey(intent flow.Intent) string  { return "flow.active." + string(intent) }

// loadActiveTemplate returns the template bound to intent, seeding the three
// stock default templates (and their active bindings) on first use if
// nothing is bound yet (§4.G: "if absent, the system seeds default templates
// and retries"). A stale default (Version < config.FlowDefaultsVersion) is
// upgraded in place before it's returned, preserving id/name (§6, §8).
func loadActiveTemplate(ctx context.Context, s *store.Store, intent flow.Intent) (*flow.Template, error) {
	t, err := fetchActiveTemplate(ctx, s, intent)
	if err == nil {
		return upgradeAndPersist(ctx, s, t)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if err := seedDefaultTemplates(ctx, s); err != nil {
		return nil, fmt.Errorf("orchestrator: seed default templates: %w", err)
	}

	t, err = fetchActiveTemplate(ctx, s, intent)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: no template bound to intent %q even after seeding defaults: %w", intent, err)
	}
	return upgradeAndPersist(ctx, s, t)
}

func fetchActiveTemplate(ctx context.Context, s *store.Store, intent flow.Intent) (*flow.Template, error) {
	id, err := s.GetSetting(ctx, activeSettingKey(intent))
	if err != nil {
		return nil, err
	}
	raw, err := s.GetSetting(ctx, templateSettingKey(id))
	if err != nil {
		return nil, err
	}
	var t flow.Template
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return nil, fmt.Errorf("orchestrator: unmarshal template %q: %w", id, err)
	}
	return &t, nil
}

func upgradeAndPersist(ctx context.Context, s *store.Store, t *flow.Template) (*flow.Template, error) {
	fresh := templates.UpgradeIfStale(t)
	if fresh == t {
		return t, nil
	}
	if err := saveTemplate(ctx, s, fresh); err != nil {
		return nil, fmt.Errorf("orchestrator: persist upgraded template %q: %w", fresh.ID, err)
	}
	return fresh, nil
}

func saveTemplate(ctx context.Context, s *store.Store, t *flow.Template) error {
	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("orchestrator: marshal template %q: %w", t.ID, err)
	}
	return s.PutSetting(ctx, templateSettingKey(t.ID), string(body))
}

// seedDefaultTemplates writes the three stock templates and binds each as
// the active template for its intent, the one-time bootstrap a fresh
// database needs before any pipeline can resolve a plan.
func seedDefaultTemplates(ctx context.Context, s *store.Store) error {
	for _, t := range templates.Defaults() {
		if err := saveTemplate(ctx, s, t); err != nil {
			return err
		}
		if err := s.PutSetting(ctx, activeSettingKey(t.Intent), t.ID); err != nil {
			return fmt.Errorf("orchestrator: bind active template for intent %q: %w", t.Intent, err)
		}
	}
	return nil
}
