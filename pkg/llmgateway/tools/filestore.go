package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/flowforge/orchestrator/pkg/artifact"
)

// fileStoreTool adapts one pkg/artifact.Store operation to the Tool
// interface. root and chatID are fixed per agent step, since every
// file-store call an agent makes targets the same project working tree.
type fileStoreTool struct {
	name   string
	root   string
	chatID string
	store  *artifact.Store
}

func (t *fileStoreTool) Name() string { return t.name }

// FileStoreTools returns the five built-in file-store tools (§4.G) bound to
// one project root and chat, ready to register into a Registry.
func FileStoreTools(store *artifact.Store, root, chatID string) []Tool {
	base := fileStoreTool{root: root, chatID: chatID, store: store}
	writeFile := base
	writeFile.name = "write_file"
	writeFiles := base
	writeFiles.name = "write_files"
	readFile := base
	readFile.name = "read_file"
	listFiles := base
	listFiles.name = "list_files"
	saveVersion := base
	saveVersion.name = "save_version"
	return []Tool{&writeFile, &writeFiles, &readFile, &listFiles, &saveVersion}
}

func (t *fileStoreTool) Call(ctx context.Context, argsJSON string) (string, error) {
	switch t.name {
	case "write_file":
		var args struct {
			Path    string `json:"path"`
			Content string `json:"content"`
		}
		if err := argsInto(argsJSON, &args); err != nil {
			return "", err
		}
		if err := t.store.WriteFile(t.root, t.chatID, args.Path, []byte(args.Content)); err != nil {
			return "", err
		}
		return fmt.Sprintf("wrote %s", args.Path), nil

	case "write_files":
		var args struct {
			Files map[string]string `json:"files"`
		}
		if err := argsInto(argsJSON, &args); err != nil {
			return "", err
		}
		files := make(map[string][]byte, len(args.Files))
		for path, content := range args.Files {
			files[path] = []byte(content)
		}
		if err := t.store.WriteFiles(t.root, t.chatID, files); err != nil {
			return "", err
		}
		return fmt.Sprintf("wrote %d files", len(files)), nil

	case "read_file":
		var args struct {
			Path string `json:"path"`
		}
		if err := argsInto(argsJSON, &args); err != nil {
			return "", err
		}
		content, err := t.store.ReadFile(t.root, args.Path)
		if err != nil {
			return "", err
		}
		return string(content), nil

	case "list_files":
		entries, err := t.store.ListFiles(t.root)
		if err != nil {
			return "", err
		}
		var paths []string
		for _, e := range entries {
			if !e.IsDir {
				paths = append(paths, e.Path)
			}
		}
		b, err := json.Marshal(paths)
		if err != nil {
			return "", err
		}
		return string(b), nil

	case "save_version":
		var args struct {
			Label string `json:"label"`
		}
		if err := argsInto(argsJSON, &args); err != nil {
			return "", err
		}
		manifest, err := artifact.BuildManifest(t.root)
		if err != nil {
			return "", err
		}
		artifact.CommitSnapshot(t.root, args.Label, nil)
		b, err := json.Marshal(manifest)
		if err != nil {
			return "", err
		}
		return string(b), nil

	default:
		return "", fmt.Errorf("tools: file store has no tool %q", t.name)
	}
}

// FileManifestFromCalls collects the paths written by write_file/write_files
// tool calls, for the "file-manifest" UpstreamSource transform (§4.G). It
// works off the tool calls recorded for a step, passed in by the caller as
// tool names and their index-aligned argument JSON, since the scanner has
// already stripped tool_call blocks out of the agent's output text.
func FileManifestFromCalls(names []string, argsJSON []string) []string {
	var paths []string
	for i, name := range names {
		switch name {
		case "write_file":
			var args struct {
				Path string `json:"path"`
			}
			if json.Unmarshal([]byte(argsJSON[i]), &args) == nil && args.Path != "" {
				paths = append(paths, args.Path)
			}
		case "write_files":
			var args struct {
				Files map[string]string `json:"files"`
			}
			if json.Unmarshal([]byte(argsJSON[i]), &args) == nil {
				for p := range args.Files {
					paths = append(paths, p)
				}
			}
		}
	}
	return paths
}
