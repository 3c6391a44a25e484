package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// BuildManifest walks root and returns a path -> sha256 content hash map,
// the shape §6's snapshots.file_manifest column stores.
func BuildManifest(root string) (map[string]string, error) {
	manifest := map[string]string{}
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
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("artifact: manifest read %q: %w", path, err)
		}
		sum := sha256.Sum256(content)
		rel, _ := filepath.Rel(root, path)
		manifest[filepath.ToSlash(rel)] = hex.EncodeToString(sum[:])
		return nil
	})
	if err != nil {
		return nil, err
	}
	return manifest, nil
}

// CommitSnapshot records the current working tree as a commit labeled by
// the version node. This is best-effort: a project that was never
// `git init`-ed gets one, so every
// snapshot is commit-backed going forward; any git failure is logged and
// swallowed, since the snapshot's row in `snapshots` is the durable record
// of record, not the commit.
func CommitSnapshot(root, label string, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}

	repo, err := git.PlainOpen(root)
	if err != nil {
		repo, err = git.PlainInit(root, false)
		if err != nil {
			log.Warn("artifact: could not init git worktree for snapshot", "path", root, "error", err)
			return
		}
	}

	wt, err := repo.Worktree()
	if err != nil {
		log.Warn("artifact: could not open git worktree for snapshot", "path", root, "error", err)
		return
	}

	if _, err := wt.Add("."); err != nil {
		log.Warn("artifact: git add failed for snapshot", "path", root, "error", err)
		return
	}

	status, err := wt.Status()
	if err == nil && status.IsClean() {
		return
	}

	_, err = wt.Commit(fmt.Sprintf("snapshot: %s", label), &git.CommitOptions{
		Author: &object.Signature{
			Name:  "flowforge-orchestrator",
			Email: "orchestrator@flowforge.local",
			When:  time.Now(),
		},
	})
	if err != nil {
		log.Warn("artifact: git commit failed for snapshot", "path", root, "label", label, "error", err)
	}
}
