package snapshot

import (
	"context"
	"os"
	"path/filepath"

	"github.com/saiset-co/sai-lru/types"
)

// FileStorage keeps the record in a single file. Writes go to a temporary
// file in the same directory and are renamed over the target, so a failed
// or interrupted write never clobbers the previous record.
type FileStorage struct {
	path     string
	readOnly bool
}

func NewFileStorage(path string, readOnly bool) (*FileStorage, error) {
	if path == "" {
		return nil, types.Errorf(types.ErrStorageConfigInvalid, "file storage requires a path")
	}

	return &FileStorage{path: path, readOnly: readOnly}, nil
}

func (f *FileStorage) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, types.Errorf(types.ErrSnapshotNotFound, "path: %s", f.path)
		}
		return nil, err
	}

	return data, nil
}

func (f *FileStorage) Write(ctx context.Context, data []byte) (err error) {
	if f.readOnly {
		return types.Errorf(types.ErrSnapshotReadOnly, "path: %s", f.path)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return types.WrapError(err, "failed to create snapshot directory")
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return types.WrapError(err, "failed to create temporary snapshot")
	}

	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return types.WrapError(err, "failed to write temporary snapshot")
	}

	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return types.WrapError(err, "failed to sync temporary snapshot")
	}

	if err = tmp.Close(); err != nil {
		return types.WrapError(err, "failed to close temporary snapshot")
	}

	if err = os.Rename(tmp.Name(), f.path); err != nil {
		return types.WrapError(err, "failed to replace snapshot")
	}

	return nil
}

func (f *FileStorage) Close() error {
	return nil
}
