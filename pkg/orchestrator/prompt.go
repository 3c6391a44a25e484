package orchestrator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/flowforge/orchestrator/pkg/flow"
	"github.com/flowforge/orchestrator/pkg/llmgateway/tools"
)

// stepToolCalls records the tool calls a completed agent step made, so a
// later step's "file-manifest" upstream transform can scrape the paths it
// wrote without re-parsing the streamed text.
type stepToolCalls struct {
	Names    []string
	ArgsJSON []string
}

// renderInputTemplate substitutes the one placeholder §4.F's AgentSpec
// documents ("{{userMessage}}") into a node's input template.
func renderInputTemplate(tmpl, userMessage string) string {
	return strings.ReplaceAll(tmpl, "{{userMessage}}", userMessage)
}

// buildUpstreamBlock assembles the "Previous Agent Outputs" block (§4.G):
// for each UpstreamSource, resolve its value, apply its Transform, and label
// it by alias ?? sourceKey, then concatenate in declaration order.
func (rc *runContext) buildUpstreamBlock(sources []flow.UpstreamSource) string {
	var b strings.Builder
	for _, src := range sources {
		value := rc.resolveSource(src)
		if value == "" {
			continue
		}
		fmt.Fprintf(&b, "### %s\n%s\n\n", src.Label(), value)
	}
	return b.String()
}

func (rc *runContext) resolveSource(src flow.UpstreamSource) string {
	switch src.SourceKey {
	case flow.SourceProjectSource:
		text, err := rc.artifact.ProjectSource(rc.projectRoot)
		if err != nil {
			rc.log.Warn("orchestrator: project-source transform failed", "error", err)
			return ""
		}
		return text
	case flow.SourceVibeBrief, flow.SourceMoodAnalysis:
		return rc.getResult(src.SourceKey)
	}

	raw := rc.getResult(src.SourceKey)
	if raw == "" {
		return ""
	}
	switch src.Transform {
	case flow.TransformDesignSystem:
		return extractDesignSystem(raw)
	case flow.TransformFileManifest:
		return fileManifestText(rc.getToolCalls(src.SourceKey))
	default: // flow.TransformRaw and flow.TransformProjectSrc-on-a-node-key both pass through
		return raw
	}
}

// extractDesignSystem implements the "design-system" transform (§4.G): pull
// the design_system field out of the architect's JSON output. If the
// upstream text isn't valid JSON or lacks the field, the raw text is passed
// through unchanged rather than silently dropped — a malformed architect
// response should still give the frontend/backend agent something to work
// from.
func extractDesignSystem(raw string) string {
	var parsed map[string]any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return raw
	}
	ds, ok := parsed["design_system"]
	if !ok {
		return raw
	}
	body, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return raw
	}
	return string(body)
}

// fileManifestText implements the "file-manifest" transform (§4.G): scrape
// write_file/write_files tool-call paths out of the upstream step's tool
// calls.
func fileManifestText(calls stepToolCalls) string {
	paths := tools.FileManifestFromCalls(calls.Names, calls.ArgsJSON)
	if len(paths) == 0 {
		return ""
	}
	return "Files written:\n- " + strings.Join(paths, "\n- ")
}
