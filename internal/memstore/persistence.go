package memstore

import (
	"archive/tar"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog/log"
	"github.com/trinityvector/trinitymemory/internal/models"
	"github.com/trinityvector/trinitymemory/internal/retry"
)

func tierFileName(tier models.Tier) string {
	return string(tier) + ".json"
}

const (
	predictorFileName = "predictor.json"
	configFileName    = "config.json"
)

// Save persists each tier, the consolidation predictor, and the active
// configuration to their own JSON files under storagePath, atomically
// (write-to-temp + rename), matching the persisted-state layout. Each
// write is retried with linear backoff when it fails with a Transient
// error (spec §7 names persistence, alongside embedding, as one of the
// two operations eligible for retry).
func (m *Manager) Save() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := os.MkdirAll(m.storagePath, 0o755); err != nil {
		return models.Wrap(models.ErrPersistenceFailed, fmt.Errorf("create storage dir: %w", err))
	}

	ctx := context.Background()
	var totalBytes int64
	for _, tier := range []models.Tier{models.TierWorking, models.TierEpisodic, models.TierSemantic} {
		var written int64
		err := retry.Do(ctx, func() error {
			w, err := saveTier(m.storagePath, tier, m.tierMap(tier))
			written = w
			return err
		})
		if err != nil {
			return models.Wrap(models.ErrPersistenceFailed, err)
		}
		totalBytes += written
	}

	predictorPath := filepath.Join(m.storagePath, predictorFileName)
	if err := retry.Do(ctx, func() error { return m.predictor.Save(predictorPath) }); err != nil {
		return models.Wrap(models.ErrPersistenceFailed, err)
	}

	if m.fullCfg != nil {
		var written int64
		err := retry.Do(ctx, func() error {
			w, err := saveConfig(m.storagePath, m.fullCfg)
			written = w
			return err
		})
		if err != nil {
			return models.Wrap(models.ErrPersistenceFailed, err)
		}
		totalBytes += written
	}

	log.Debug().Str("bytes", humanize.Bytes(uint64(totalBytes))).Msg("memory state persisted")
	return nil
}

func saveConfig(root string, cfg *models.Config) (int64, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("marshal config: %w", err)
	}

	path := filepath.Join(root, configFileName)
	tmp, err := os.CreateTemp(root, "config-*.tmp")
	if err != nil {
		return 0, models.Wrap(models.ErrTransient, fmt.Errorf("create temp file for config: %w", err))
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close temp file for config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return 0, models.Wrap(models.ErrTransient, fmt.Errorf("rename config into place: %w", err))
	}
	return int64(len(data)), nil
}

func saveTier(root string, tier models.Tier, entries map[string]*models.Entry) (int64, error) {
	list := mapValues(entries)

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("marshal %s tier: %w", tier, err)
	}

	path := filepath.Join(root, tierFileName(tier))
	tmp, err := os.CreateTemp(root, string(tier)+"-*.tmp")
	if err != nil {
		return 0, models.Wrap(models.ErrTransient, fmt.Errorf("create temp file for %s tier: %w", tier, err))
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("write %s tier: %w", tier, err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close temp file for %s tier: %w", tier, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return 0, models.Wrap(models.ErrTransient, fmt.Errorf("rename %s tier into place: %w", tier, err))
	}
	return int64(len(data)), nil
}

// Load replaces the manager's containers and index with what's
// persisted under storagePath. A tier file that fails to parse is
// treated as corrupt: that tier starts empty rather than aborting the
// whole load.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, tier := range []models.Tier{models.TierWorking, models.TierEpisodic, models.TierSemantic} {
		for id := range m.tierMap(tier) {
			m.index.Delete(id)
		}
	}
	m.working = make(map[string]*models.Entry)
	m.episodic = make(map[string]*models.Entry)
	m.semantic = make(map[string]*models.Entry)

	for _, tier := range []models.Tier{models.TierWorking, models.TierEpisodic, models.TierSemantic} {
		entries, err := loadTier(m.storagePath, tier)
		if err != nil {
			return models.Wrap(models.ErrIndexCorrupt, err)
		}
		dest := m.tierMap(tier)
		for _, e := range entries {
			dest[e.ID] = e
			m.index.Insert(e.ID, e.Embedding, e.Tier, e.AccessCount, e.LastAccessed)
		}
	}

	predictorPath := filepath.Join(m.storagePath, predictorFileName)
	if err := m.predictor.Load(predictorPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("predictor state not loaded, keeping freshly initialized weights")
	}

	return nil
}

func loadTier(root string, tier models.Tier) ([]*models.Entry, error) {
	path := filepath.Join(root, tierFileName(tier))
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s tier: %w", tier, err)
	}

	var entries []*models.Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		// A malformed tier file starts empty rather than failing the
		// whole load, per the corrupt-index contract.
		return nil, nil
	}
	return entries, nil
}

// Export writes a directory copy of all tier files to dir (the
// canonical export-bundle form).
func (m *Manager) Export(dir string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("memstore: create export dir: %w", err)
	}
	for _, tier := range []models.Tier{models.TierWorking, models.TierEpisodic, models.TierSemantic} {
		if _, err := saveTier(dir, tier, m.tierMap(tier)); err != nil {
			return fmt.Errorf("memstore: export %s tier: %w", tier, err)
		}
	}
	return nil
}

// ExportArchive writes a gzip+tar archive of the export bundle to w,
// for copying the bundle over a narrow transport. The directory-copy
// form (Export) remains the canonical export.
func (m *Manager) ExportArchive(w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	for _, tier := range []models.Tier{models.TierWorking, models.TierEpisodic, models.TierSemantic} {
		data, err := json.MarshalIndent(mapValues(m.tierMap(tier)), "", "  ")
		if err != nil {
			return fmt.Errorf("memstore: marshal %s tier for archive: %w", tier, err)
		}
		hdr := &tar.Header{
			Name: tierFileName(tier),
			Mode: 0o644,
			Size: int64(len(data)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("memstore: write archive header: %w", err)
		}
		if _, err := tw.Write(data); err != nil {
			return fmt.Errorf("memstore: write archive entry: %w", err)
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("memstore: close tar writer: %w", err)
	}
	return gz.Close()
}

// Import merges a directory export bundle into the live manager,
// preferring the newer lastAccessed on an id collision.
func (m *Manager) Import(dir string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, tier := range []models.Tier{models.TierWorking, models.TierEpisodic, models.TierSemantic} {
		entries, err := loadTier(dir, tier)
		if err != nil {
			return fmt.Errorf("memstore: import %s tier: %w", tier, err)
		}
		dest := m.tierMap(tier)
		for _, e := range entries {
			if existing, ok := dest[e.ID]; ok && existing.LastAccessed.After(e.LastAccessed) {
				continue
			}
			dest[e.ID] = e
			m.index.Insert(e.ID, e.Embedding, e.Tier, e.AccessCount, e.LastAccessed)
		}
	}
	return nil
}
