package rollback

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/colorfulnotion/cloudop/operrors"
	"github.com/spf13/afero"
)

const manifestFile = "manifest.toml"

const (
	ModeCopy   = "copy"
	ModeExport = "export"
)

// Manifest records how a backup dir was produced.
type Manifest struct {
	RunID   string    `toml:"run_id"`
	Mode    string    `toml:"mode"`
	Height  uint64    `toml:"height"`
	Begin   uint64    `toml:"begin"`
	Storage string    `toml:"storage"`
	Schema  string    `toml:"schema"`
	Created time.Time `toml:"created"`
}

func WriteManifest(fsys afero.Fs, dir string, m *Manifest) error {
	f, err := fsys.Create(filepath.Join(dir, manifestFile))
	if err != nil {
		return fmt.Errorf("create manifest in %s: %v: %w", dir, err, operrors.ErrIO)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(m); err != nil {
		return fmt.Errorf("write manifest in %s: %v: %w", dir, err, operrors.ErrIO)
	}
	return nil
}

// ReadManifest returns ok=false when dir has no manifest.
func ReadManifest(fsys afero.Fs, dir string) (*Manifest, bool, error) {
	data, err := afero.ReadFile(fsys, filepath.Join(dir, manifestFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read manifest in %s: %v: %w", dir, err, operrors.ErrIO)
	}
	m := new(Manifest)
	if _, err := toml.Decode(string(data), m); err != nil {
		return nil, false, fmt.Errorf("parse manifest in %s: %v: %w", dir, err, operrors.ErrIO)
	}
	return m, true, nil
}
