// Package artifact is the §4.C Artifact Store: reads and writes a project's
// disk working tree, serializes it for the "project-source" upstream
// transform, exports a zip, watches for out-of-band edits, and wraps build
// and test subprocess execution. Every mutation emits a files_changed event
// (§6), grounded in the teacher's pkg/events.ConnectionManager fan-out.
package artifact

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/flowforge/orchestrator/pkg/events"
)

// maxWalkBytes caps how much file content the project-source transform will
// serialize, per §4.G ("size caps").
const maxWalkBytes = 512 * 1024

// Store mutates one project's working tree on disk.
type Store struct {
	bus *events.Bus
	log *slog.Logger
}

// New builds a Store that publishes files_changed through bus.
func New(bus *events.Bus, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{bus: bus, log: log}
}

// resolve joins root and a user-supplied relative path, rejecting any path
// that would escape root via ".." or an absolute path component.
func resolve(root, relPath string) (string, error) {
	full := filepath.Join(root, relPath)
	if full != root && !strings.HasPrefix(full, root+string(filepath.Separator)) {
		return "", fmt.Errorf("artifact: path %q escapes project root", relPath)
	}
	return full, nil
}

// ReadFile returns a file's contents relative to root.
func (s *Store) ReadFile(root, relPath string) ([]byte, error) {
	full, err := resolve(root, relPath)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("artifact: read %q: %w", relPath, err)
	}
	return b, nil
}

// WriteFile creates or overwrites a file relative to root, creating parent
// directories as needed, then emits files_changed for chatID.
func (s *Store) WriteFile(root, chatID, relPath string, content []byte) error {
	full, err := resolve(root, relPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("artifact: mkdir for %q: %w", relPath, err)
	}
	if err := os.WriteFile(full, content, 0o644); err != nil {
		return fmt.Errorf("artifact: write %q: %w", relPath, err)
	}
	s.log.Debug("artifact: wrote file", "path", relPath, "bytes", len(content))
	s.publishChanged(chatID, []string{relPath})
	return nil
}

// WriteFiles applies a batch write (the `write_files` tool call) as a single
// files_changed event rather than one per file.
func (s *Store) WriteFiles(root, chatID string, files map[string][]byte) error {
	var paths []string
	for relPath, content := range files {
		full, err := resolve(root, relPath)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return fmt.Errorf("artifact: mkdir for %q: %w", relPath, err)
		}
		if err := os.WriteFile(full, content, 0o644); err != nil {
			return fmt.Errorf("artifact: write %q: %w", relPath, err)
		}
		paths = append(paths, relPath)
	}
	s.log.Debug("artifact: wrote files", "count", len(paths))
	s.publishChanged(chatID, paths)
	return nil
}

// DeleteFile removes a file relative to root.
func (s *Store) DeleteFile(root, chatID, relPath string) error {
	full, err := resolve(root, relPath)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		return fmt.Errorf("artifact: delete %q: %w", relPath, err)
	}
	s.publishChanged(chatID, []string{relPath})
	return nil
}

// FileEntry is one node in a ListFiles result.
type FileEntry struct {
	Path  string `json:"path"`
	IsDir bool   `json:"isDir"`
	Size  int64  `json:"size"`
}

// ListFiles walks root and returns every file and directory beneath it,
// excluding dotdirs like .git.
func (s *Store) ListFiles(root string) ([]FileEntry, error) {
	var out []FileEntry
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		if d.IsDir() && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, FileEntry{Path: rel, IsDir: d.IsDir(), Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("artifact: list files: %w", err)
	}
	return out, nil
}

// ProjectSource serializes the current file tree as a single string for the
// "project-source" upstream transform (§4.G): each file's relative path
// followed by a fenced block of its content (dot-directories are skipped; no
// text/binary check is made), with file content capped at maxWalkBytes total.
func (s *Store) ProjectSource(root string) (string, error) {
	var b strings.Builder
	var written int

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if written >= maxWalkBytes {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			s.log.Warn("artifact: project source skipped unreadable file", "path", path, "error", err)
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		remaining := maxWalkBytes - written
		if len(content) > remaining {
			content = content[:remaining]
		}
		fmt.Fprintf(&b, "### %s\n```\n%s\n```\n\n", rel, content)
		written += len(content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("artifact: project source: %w", err)
	}
	return b.String(), nil
}

func (s *Store) publishChanged(chatID string, paths []string) {
	if s.bus == nil {
		return
	}
	s.bus.PublishFilesChanged(events.FilesChangedPayload{ChatID: chatID, Paths: paths})
}
