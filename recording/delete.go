package recording

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"go.uber.org/zap"

	"vms-recordings/database"
)

// Deleter removes recordings from the catalog and, best effort, from disk.
type Deleter struct {
	store  database.CatalogStore
	remove func(name string) error
	log    *zap.Logger
}

// NewDeleter creates a deleter that unlinks files with os.Remove.
func NewDeleter(store database.CatalogStore, log *zap.Logger) *Deleter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Deleter{store: store, remove: os.Remove, log: log}
}

// Delete removes recording id. It reports false when no such recording
// exists. A file that cannot be removed is logged and does not fail the call.
func (d *Deleter) Delete(ctx context.Context, id string) (bool, error) {
	deleted, err := d.store.DeleteRecording(ctx, id, func(path string) {
		if err := d.remove(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				d.log.Warn("[delete] file already gone", zap.String("id", id), zap.String("path", path))
				return
			}
			d.log.Warn("[delete] failed to remove file", zap.String("id", id), zap.String("path", path), zap.Error(err))
		}
	})
	if err != nil {
		return false, err
	}
	if deleted {
		d.log.Info("[delete] recording deleted", zap.String("id", id))
	}
	return deleted, nil
}
