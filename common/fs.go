package common

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// CopyDir copies the tree under src into dst, creating dst. Existing files in dst are
// overwritten; files only present in dst are left alone.
func CopyDir(fs afero.Fs, src string, dst string) error {
	info, err := fs.Stat(src)
	if err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("copy %s: not a directory", src)
	}
	return afero.Walk(fs, src, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if fi.IsDir() {
			return fs.MkdirAll(target, fi.Mode().Perm()|0o700)
		}
		data, err := afero.ReadFile(fs, path)
		if err != nil {
			return err
		}
		return afero.WriteFile(fs, target, data, fi.Mode().Perm())
	})
}

// DirExists reports whether path is an existing directory.
func DirExists(fs afero.Fs, path string) bool {
	ok, err := afero.DirExists(fs, path)
	return err == nil && ok
}
