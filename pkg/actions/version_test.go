package actions_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowforge/orchestrator/pkg/actions"
	"github.com/flowforge/orchestrator/pkg/events"
	"github.com/flowforge/orchestrator/pkg/flow"
	"github.com/flowforge/orchestrator/pkg/flow/resolver"
)

func TestVersion_BuildsManifestAndPublishesFilesChanged(t *testing.T) {
	ac, dir := newTestContext(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main"), 0o644))

	ch, unsubscribe := ac.Bus.Subscribe("sub-1", ac.ChatID)
	defer unsubscribe()

	step := &resolver.ActionStep{Kind: flow.ActionVersion, SnapshotLabel: "v1"}

	result, err := actions.Execute(context.Background(), ac, "version-1", step)
	require.NoError(t, err)

	var manifest map[string]string
	require.NoError(t, json.Unmarshal([]byte(result.Content), &manifest))
	require.Contains(t, manifest, "main.go")

	env := <-ch
	require.Equal(t, events.TypeFilesChanged, env.Type)
}

func TestVersion_DefaultsLabelWhenUnset(t *testing.T) {
	ac, _ := newTestContext(t)
	step := &resolver.ActionStep{Kind: flow.ActionVersion}

	result, err := actions.Execute(context.Background(), ac, "version-1", step)

	require.NoError(t, err)
	require.NotEmpty(t, result.Content)
}

func TestVersion_SkipsPersistenceWithoutStore(t *testing.T) {
	ac, _ := newTestContext(t)
	require.Nil(t, ac.Store)

	_, err := actions.Execute(context.Background(), ac, "version-1", &resolver.ActionStep{Kind: flow.ActionVersion})

	require.NoError(t, err)
}
