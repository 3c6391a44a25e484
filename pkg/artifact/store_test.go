package artifact_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/flowforge/orchestrator/pkg/artifact"
	"github.com/flowforge/orchestrator/pkg/events"
	"github.com/stretchr/testify/require"
)

func TestStore_WriteReadRoundTrip(t *testing.T) {
	root := t.TempDir()
	bus := events.NewBus(nil)
	s := artifact.New(bus, nil)

	ch, unsub := bus.Subscribe("sub", "chat-1")
	defer unsub()

	require.NoError(t, s.WriteFile(root, "chat-1", "src/app.go", []byte("package main")))

	env := <-ch
	require.Equal(t, events.TypeFilesChanged, env.Type)

	got, err := s.ReadFile(root, "src/app.go")
	require.NoError(t, err)
	require.Equal(t, "package main", string(got))
}

func TestStore_RejectsPathEscape(t *testing.T) {
	root := t.TempDir()
	s := artifact.New(events.NewBus(nil), nil)

	err := s.WriteFile(root, "chat-1", "../../etc/passwd", []byte("pwned"))
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(filepath.Dir(root), "etc", "passwd"))
	require.True(t, os.IsNotExist(statErr))
}

func TestStore_ListFilesExcludesDotDirs(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".git", "HEAD"), []byte("ref: refs/heads/main"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("# hi"), 0o644))

	s := artifact.New(nil, nil)
	entries, err := s.ListFiles(root)
	require.NoError(t, err)

	for _, e := range entries {
		require.NotContains(t, e.Path, ".git")
	}
	require.Contains(t, pathsOf(entries), "README.md")
}

func pathsOf(entries []artifact.FileEntry) []string {
	var out []string
	for _, e := range entries {
		out = append(out, e.Path)
	}
	return out
}

func TestStore_ProjectSourceCapsSize(t *testing.T) {
	root := t.TempDir()
	big := make([]byte, 1024*1024)
	for i := range big {
		big[i] = 'x'
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "big.txt"), big, 0o644))

	s := artifact.New(nil, nil)
	src, err := s.ProjectSource(root)
	require.NoError(t, err)
	require.LessOrEqual(t, len(src), 1024*1024) // well under the raw file size
}
