package history

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/pders01/confhist/internal/models"
)

// ListRevisions returns the entity's revisions in ascending identifier order.
// An entity without history yields an empty slice.
func (s *Store) ListRevisions(ctx context.Context, entity models.Entity) ([]models.Revision, error) {
	if err := entity.Validate(); err != nil {
		return nil, err
	}

	ids, err := s.identifiers(entity)
	if err != nil {
		return nil, err
	}

	revs := make([]models.Revision, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rev, err := s.readRevision(entity, id)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				// Deleted between directory listing and read
				continue
			}
			return nil, err
		}
		revs = append(revs, rev)
	}
	return revs, nil
}

// identifiers returns the committed identifiers of an entity, sorted
func (s *Store) identifiers(entity models.Entity) ([]string, error) {
	entries, err := os.ReadDir(s.entityDir(entity))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read history of %s: %w", entity, err)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if !entry.IsDir() {
			return nil, fmt.Errorf("%w: unexpected file %q in history of %s", ErrMalformedIdentifier, name, entity)
		}
		if _, err := models.ParseIdentifier(name); err != nil {
			return nil, fmt.Errorf("history of %s: %w", entity, err)
		}
		ids = append(ids, name)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) readRevision(entity models.Entity, id string) (models.Revision, error) {
	dir := models.RevisionPath(s.root, entity, id)
	data, err := os.ReadFile(filepath.Join(dir, models.MetadataFile))
	if err != nil {
		return models.Revision{}, fmt.Errorf("failed to read metadata of %s@%s: %w", entity, id, err)
	}

	var meta models.Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return models.Revision{}, fmt.Errorf("failed to parse metadata of %s@%s: %w", entity, id, err)
	}
	return meta.Revision(entity, id, dir), nil
}

// Latest returns the newest revision of the entity, if any
func (s *Store) Latest(ctx context.Context, entity models.Entity) (models.Revision, bool, error) {
	return s.Nth(ctx, entity, -1)
}

// Find returns the revision with the given identifier, if it exists
func (s *Store) Find(ctx context.Context, entity models.Entity, id string) (models.Revision, bool, error) {
	if err := entity.Validate(); err != nil {
		return models.Revision{}, false, err
	}
	if _, err := models.ParseIdentifier(id); err != nil {
		return models.Revision{}, false, err
	}
	if err := ctx.Err(); err != nil {
		return models.Revision{}, false, err
	}

	rev, err := s.readRevision(entity, id)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return models.Revision{}, false, nil
		}
		return models.Revision{}, false, err
	}
	return rev, true, nil
}

// Nth returns the revision at index n: 0 is the oldest, negative values
// count back from the newest (-1 is the latest).
func (s *Store) Nth(ctx context.Context, entity models.Entity, n int) (models.Revision, bool, error) {
	if err := entity.Validate(); err != nil {
		return models.Revision{}, false, err
	}

	ids, err := s.identifiers(entity)
	if err != nil {
		return models.Revision{}, false, err
	}

	// Re-resolve if the chosen entry vanished under a concurrent delete
	for {
		if err := ctx.Err(); err != nil {
			return models.Revision{}, false, err
		}
		idx := n
		if n < 0 {
			idx = len(ids) + n
		}
		if idx < 0 || idx >= len(ids) {
			return models.Revision{}, false, nil
		}

		rev, err := s.readRevision(entity, ids[idx])
		if err == nil {
			return rev, true, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return models.Revision{}, false, err
		}
		ids = append(ids[:idx], ids[idx+1:]...)
	}
}

// Entities lists every entity of the given kind that has a history directory
func (s *Store) Entities(ctx context.Context, kind models.EntityKind) ([]models.Entity, error) {
	if kind.Dir() == "" {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidEntity, kind)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(filepath.Join(s.root, kind.Dir()))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %s entities: %w", kind, err)
	}

	var entities []models.Entity
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		e, err := models.ParseDirName(kind, entry.Name())
		if err != nil {
			s.logger.Warn("Skipping unrecognized history directory",
				zap.String("kind", string(kind)), zap.String("dir", entry.Name()), zap.Error(err))
			continue
		}
		entities = append(entities, e)
	}
	sort.Slice(entities, func(i, j int) bool {
		return entities[i].Name < entities[j].Name
	})
	return entities, nil
}

// AllEntities lists jobs followed by system configurations
func (s *Store) AllEntities(ctx context.Context) ([]models.Entity, error) {
	var all []models.Entity
	for _, kind := range []models.EntityKind{models.KindJob, models.KindSystemConfig} {
		entities, err := s.Entities(ctx, kind)
		if err != nil {
			return nil, err
		}
		all = append(all, entities...)
	}
	return all, nil
}

// Open returns the snapshot content of a revision
func (s *Store) Open(rev models.Revision) (io.ReadCloser, error) {
	file, err := os.Open(rev.SnapshotPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: snapshot of %s@%s: %w", ErrNotFound, rev.Entity, rev.Identifier, err)
		}
		return nil, fmt.Errorf("failed to open snapshot of %s@%s: %w", rev.Entity, rev.Identifier, err)
	}
	return file, nil
}

// Verify re-hashes the snapshot and compares it with the recorded checksum
func (s *Store) Verify(rev models.Revision) error {
	file, err := s.Open(rev)
	if err != nil {
		return err
	}
	defer file.Close()

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return fmt.Errorf("failed to read snapshot of %s@%s: %w", rev.Entity, rev.Identifier, err)
	}
	if rev.Checksum == "" {
		return nil
	}
	if got := hex.EncodeToString(h.Sum(nil)); got != rev.Checksum {
		return fmt.Errorf("%w: %s@%s has %s, recorded %s", ErrCorruptSnapshot, rev.Entity, rev.Identifier, got, rev.Checksum)
	}
	return nil
}
