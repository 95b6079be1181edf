package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/zgramming/cmsgate/pkg/sdk"
)

const snapshotFile = "session.json"

// FileStore implements sdk.SnapshotStore using a JSON file. Tokens are
// never written here; they live in the cookie file.
type FileStore struct {
	path string
}

// Ensure FileStore implements sdk.SnapshotStore at compile time.
var _ sdk.SnapshotStore = (*FileStore)(nil)

// NewFileStore creates a FileStore under dir, creating dir with 0700.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}
	return &FileStore{path: filepath.Join(dir, snapshotFile)}, nil
}

// SaveSnapshot writes the snapshot with mode 0600.
func (s *FileStore) SaveSnapshot(snap *sdk.Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session snapshot: %w", err)
	}
	return writePrivate(s.path, data)
}

// LoadSnapshot returns nil without error when nothing was saved yet.
func (s *FileStore) LoadSnapshot() (*sdk.Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}
	var snap sdk.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session snapshot: %w", err)
	}
	return &snap, nil
}

// writePrivate replaces path atomically with a 0600 file.
func writePrivate(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}
