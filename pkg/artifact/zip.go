package artifact

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ExportZip archives root into a zip stream, excluding dotdirs (.git, .vscode).
// No pack repo specializes in archive writing beyond this — stdlib's
// archive/zip is exactly what the pack's own repos reach for here too.
func ExportZip(root string, w io.Writer) error {
	zw := zip.NewWriter(w)

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
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
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		f, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return fmt.Errorf("artifact: zip create %q: %w", rel, err)
		}
		src, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("artifact: zip open %q: %w", rel, err)
		}
		defer src.Close()
		if _, err := io.Copy(f, src); err != nil {
			return fmt.Errorf("artifact: zip copy %q: %w", rel, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return zw.Close()
}
