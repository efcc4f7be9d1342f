package persist

import (
	"errors"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/skillbase/ragengine/internal/domain"
)

// File names inside the data root, fixed by the persisted-state layout.
const (
	IndexFile    = "index.bin"
	MetadataFile = "metadata.json"
)

// Manager checkpoints the vector index and its metadata side-car as a paired
// unit. Both files are written to temp paths and renamed into place so a
// reader never observes them out of sync after a successful save.
type Manager struct {
	root string
	log  *zap.Logger
}

// NewManager creates a manager rooted at dir, creating it if needed.
func NewManager(dir string, log *zap.Logger) (*Manager, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, domain.NewError(domain.KindIndexIO, "create data root", err)
	}
	return &Manager{root: dir, log: log}, nil
}

// IndexPath returns the path of the serialized vector matrix.
func (m *Manager) IndexPath() string { return filepath.Join(m.root, IndexFile) }

// MetadataPath returns the path of the metadata side-car.
func (m *Manager) MetadataPath() string { return filepath.Join(m.root, MetadataFile) }

// Save checkpoints the index and metadata atomically. Remote index backends
// may skip writing a file; only files that were produced get renamed.
func (m *Manager) Save(idx domain.VectorIndex, meta domain.MetadataStore) error {
	idxTmp := m.IndexPath() + ".tmp"
	metaTmp := m.MetadataPath() + ".tmp"

	if err := idx.Save(idxTmp); err != nil {
		return err
	}
	if err := meta.Save(metaTmp); err != nil {
		_ = os.Remove(idxTmp)
		return err
	}
	if err := renameIfExists(metaTmp, m.MetadataPath()); err != nil {
		_ = os.Remove(idxTmp)
		return domain.NewError(domain.KindIndexIO, "commit metadata file", err)
	}
	if err := renameIfExists(idxTmp, m.IndexPath()); err != nil {
		return domain.NewError(domain.KindIndexIO, "commit index file", err)
	}
	m.log.Info("checkpoint written",
		zap.Int("rows", idx.Len()),
		zap.String("root", m.root))
	return nil
}

// Load restores the index/metadata pair from disk. Missing files on first
// start are normal; a corrupt or inconsistent pair is reset to empty with a
// logged warning. Load never fails startup over bad files; data loss is
// explicit in the log, not masked.
func (m *Manager) Load(idx domain.VectorIndex, meta domain.MetadataStore) error {
	idxErr := idx.Load(m.IndexPath())
	metaErr := meta.Load(m.MetadataPath())

	switch {
	case idxErr == nil && metaErr == nil:
		if idx.Len() != meta.Len() {
			// A crash between checkpoints leaves one side a batch ahead.
			// Rewind both to the common prefix instead of wiping; row ids
			// are dense and monotone, so the prefix is the last state the
			// pair agreed on.
			keep := int64(idx.Len())
			if n := int64(meta.Len()); n < keep {
				keep = n
			}
			m.log.Warn("index and metadata row counts diverge; rewinding to common prefix",
				zap.Int("index_rows", idx.Len()),
				zap.Int("metadata_rows", meta.Len()),
				zap.Int64("kept_rows", keep))
			if err := idx.Truncate(keep); err != nil {
				m.log.Warn("prefix rewind failed; resetting to empty", zap.Error(err))
				idx.Reset()
				meta.Reset()
				return nil
			}
			if err := meta.Truncate(keep); err != nil {
				m.log.Warn("prefix rewind failed; resetting to empty", zap.Error(err))
				idx.Reset()
				meta.Reset()
			}
		}
	case missing(idxErr) && missing(metaErr):
		m.log.Info("no persisted index found; starting empty", zap.String("root", m.root))
	default:
		m.log.Warn("persisted index unreadable; resetting to empty",
			zap.NamedError("index_error", idxErr),
			zap.NamedError("metadata_error", metaErr))
		idx.Reset()
		meta.Reset()
	}
	return nil
}

func missing(err error) bool {
	return err != nil && errors.Is(err, os.ErrNotExist)
}

func renameIfExists(tmp, dst string) error {
	if _, err := os.Stat(tmp); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return os.Rename(tmp, dst)
}
