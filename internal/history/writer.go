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
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pders01/confhist/internal/models"
)

// maxCommitAttempts bounds retries when another process commits the same identifier
const maxCommitAttempts = 16

// Record persists content as a new revision of entity and returns it.
// The revision is visible to readers only once content and metadata are
// both on disk. On failure nothing is left behind.
func (s *Store) Record(ctx context.Context, entity models.Entity, op models.Operation, user models.User, content io.Reader) (models.Revision, error) {
	if err := validateRecord(entity, op, user); err != nil {
		return models.Revision{}, err
	}

	unlock := s.locks.lock(entity)
	defer unlock()

	return s.recordLocked(ctx, entity, op, user, content)
}

func validateRecord(entity models.Entity, op models.Operation, user models.User) error {
	if err := entity.Validate(); err != nil {
		return err
	}
	if !op.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidOperation, op)
	}
	if strings.TrimSpace(user.Name) == "" || strings.TrimSpace(user.ID) == "" {
		return ErrInvalidUser
	}
	return nil
}

func (s *Store) recordLocked(ctx context.Context, entity models.Entity, op models.Operation, user models.User, content io.Reader) (models.Revision, error) {
	if err := ctx.Err(); err != nil {
		return models.Revision{}, err
	}

	latest, hasLatest, err := s.Latest(ctx, entity)
	if err != nil {
		return models.Revision{}, err
	}
	latestID := ""
	if hasLatest {
		latestID = latest.Identifier
		if latest.Operation == models.OpDeleted && op != models.OpCreated {
			return models.Revision{}, fmt.Errorf("%w: %s after %s on %s", ErrInvalidTransition, op, latest.Operation, entity)
		}
	}

	dir := s.entityDir(entity)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return models.Revision{}, fmt.Errorf("%w: failed to create entity directory: %w", ErrWriteFailure, err)
	}

	staging := filepath.Join(dir, stagingPrefix+uuid.NewString())
	if err := os.Mkdir(staging, dirPerm); err != nil {
		return models.Revision{}, fmt.Errorf("%w: failed to create staging directory: %w", ErrWriteFailure, err)
	}
	committed := false
	defer func() {
		if !committed {
			if err := os.RemoveAll(staging); err != nil {
				s.logger.Warn("Failed to remove staging directory", zap.String("path", staging), zap.Error(err))
			}
		}
	}()

	snapshotName := models.SnapshotFile(entity)
	checksum, size, err := writeSnapshot(filepath.Join(staging, snapshotName), content)
	if err != nil {
		return models.Revision{}, fmt.Errorf("%w: %w", ErrWriteFailure, err)
	}

	recordedAt := s.now()
	taken := func(id string) bool {
		_, err := os.Lstat(filepath.Join(dir, id))
		return err == nil
	}

	for attempt := 0; attempt < maxCommitAttempts; attempt++ {
		id, err := models.NextIdentifier(recordedAt, latestID, taken)
		if err != nil {
			return models.Revision{}, fmt.Errorf("%w: %w", ErrWriteFailure, err)
		}

		meta := models.NewMetadata(entity, id, op, user, recordedAt)
		meta.Checksum = checksum
		meta.Size = size
		if err := writeMetadata(filepath.Join(staging, models.MetadataFile), meta); err != nil {
			return models.Revision{}, fmt.Errorf("%w: %w", ErrWriteFailure, err)
		}

		final := filepath.Join(dir, id)
		if err := os.Rename(staging, final); err != nil {
			if errors.Is(err, fs.ErrExist) {
				// Another process committed this identifier first
				latestID = id
				continue
			}
			return models.Revision{}, fmt.Errorf("%w: failed to commit revision: %w", ErrWriteFailure, err)
		}
		committed = true
		syncDir(dir)

		rev := meta.Revision(entity, id, final)
		s.logger.Debug("Recorded revision",
			zap.String("entity", entity.Key()),
			zap.String("id", id),
			zap.String("operation", string(op)),
			zap.String("user", user.ID),
			zap.Int64("size", size),
		)
		return rev, nil
	}

	return models.Revision{}, fmt.Errorf("%w: identifier kept colliding for %s", ErrWriteFailure, entity)
}

func writeSnapshot(path string, content io.Reader) (string, int64, error) {
	if content == nil {
		content = strings.NewReader("")
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create snapshot: %w", err)
	}
	defer file.Close()

	h := sha256.New()
	size, err := io.Copy(io.MultiWriter(file, h), content)
	if err != nil {
		return "", 0, fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := file.Sync(); err != nil {
		return "", 0, fmt.Errorf("failed to sync snapshot: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), size, nil
}

func writeMetadata(path string, meta *models.Metadata) error {
	metaBytes, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, filePerm)
	if err != nil {
		return fmt.Errorf("failed to create metadata: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(metaBytes); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("failed to sync metadata: %w", err)
	}
	return nil
}

// syncDir flushes a directory entry change; errors are not actionable here
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

// Delete removes one revision, content and metadata together
func (s *Store) Delete(ctx context.Context, entity models.Entity, id string) error {
	if err := entity.Validate(); err != nil {
		return err
	}
	if _, err := models.ParseIdentifier(id); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	unlock := s.locks.lock(entity)
	defer unlock()

	return s.deleteLocked(entity, id)
}

func (s *Store) deleteLocked(entity models.Entity, id string) error {
	dir := models.RevisionPath(s.root, entity, id)
	if _, err := os.Stat(filepath.Join(dir, models.MetadataFile)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s@%s", ErrNotFound, entity, id)
		}
		return fmt.Errorf("failed to stat revision %s@%s: %w", entity, id, err)
	}

	if err := s.discard(dir, s.entityDir(entity)); err != nil {
		return fmt.Errorf("%w: failed to delete %s@%s: %w", ErrWriteFailure, entity, id, err)
	}

	s.logger.Debug("Deleted revision", zap.String("entity", entity.Key()), zap.String("id", id))
	return nil
}

// discard atomically moves dir out of the index into a trash entry below
// parent, then removes it
func (s *Store) discard(dir, parent string) error {
	trash := filepath.Join(parent, trashPrefix+uuid.NewString())
	if err := os.Rename(dir, trash); err != nil {
		return err
	}
	syncDir(parent)
	if err := os.RemoveAll(trash); err != nil {
		// Already invisible to readers; leftovers are only wasted space
		s.logger.Warn("Failed to remove trash directory", zap.String("path", trash), zap.Error(err))
	}
	return nil
}

// Rename moves the history of from to to and records a renamed revision
// under the new name. It refuses to merge into an entity that already has
// history.
func (s *Store) Rename(ctx context.Context, from, to models.Entity, user models.User, content io.Reader) (models.Revision, error) {
	if err := validateRecord(to, models.OpRenamed, user); err != nil {
		return models.Revision{}, err
	}
	if err := from.Validate(); err != nil {
		return models.Revision{}, err
	}
	if from.Kind != to.Kind {
		return models.Revision{}, fmt.Errorf("%w: cannot rename %s to %s", ErrInvalidEntity, from, to)
	}
	if from == to {
		return models.Revision{}, fmt.Errorf("%w: rename source and target are both %s", ErrInvalidEntity, from)
	}

	unlock := s.locks.lock(from, to)
	defer unlock()

	existing, err := s.ListRevisions(ctx, to)
	if err != nil {
		return models.Revision{}, err
	}
	if len(existing) > 0 {
		return models.Revision{}, fmt.Errorf("%w: %s has %d revision(s)", ErrEntityExists, to, len(existing))
	}

	fromDir := s.entityDir(from)
	toDir := s.entityDir(to)
	moved := false
	if _, err := os.Stat(fromDir); err == nil {
		// Only dot entries can be left in the target at this point
		if err := os.RemoveAll(toDir); err != nil {
			return models.Revision{}, fmt.Errorf("%w: failed to clear %s: %w", ErrWriteFailure, to, err)
		}
		if err := os.Rename(fromDir, toDir); err != nil {
			return models.Revision{}, fmt.Errorf("%w: failed to move history of %s: %w", ErrWriteFailure, from, err)
		}
		moved = true
	}

	rev, err := s.recordLocked(ctx, to, models.OpRenamed, user, content)
	if err != nil {
		if moved {
			if rbErr := os.Rename(toDir, fromDir); rbErr != nil {
				s.logger.Error("Failed to restore history after failed rename",
					zap.String("from", from.Key()), zap.String("to", to.Key()), zap.Error(rbErr))
			}
		}
		return models.Revision{}, err
	}

	s.logger.Info("Renamed entity history", zap.String("from", from.Key()), zap.String("to", to.Key()))
	return rev, nil
}

// Purge deletes the whole history of an entity
func (s *Store) Purge(ctx context.Context, entity models.Entity) error {
	if err := entity.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	unlock := s.locks.lock(entity)
	defer unlock()

	dir := s.entityDir(entity)
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: no history for %s", ErrNotFound, entity)
		}
		return err
	}
	if err := s.discard(dir, s.root); err != nil {
		return fmt.Errorf("%w: failed to purge %s: %w", ErrWriteFailure, entity, err)
	}

	s.logger.Info("Purged entity history", zap.String("entity", entity.Key()))
	return nil
}

// DeleteError reports one revision that could not be deleted
type DeleteError struct {
	Revision models.Revision
	Err      error
}

func (e *DeleteError) Error() string {
	return fmt.Sprintf("failed to delete %s@%s: %v", e.Revision.Entity, e.Revision.Identifier, e.Err)
}

func (e *DeleteError) Unwrap() error {
	return e.Err
}

// DeleteSelected lists the entity's revisions, asks selector which ones to
// drop and deletes them one at a time while holding the entity lock. Each
// deletion is committed on its own, so cancelling ctx leaves a consistent
// history. Failures do not stop the remaining deletions.
func (s *Store) DeleteSelected(ctx context.Context, entity models.Entity, selector func([]models.Revision) []models.Revision) ([]models.Revision, []*DeleteError, error) {
	if err := entity.Validate(); err != nil {
		return nil, nil, err
	}

	unlock := s.locks.lock(entity)
	defer unlock()

	revs, err := s.ListRevisions(ctx, entity)
	if err != nil {
		return nil, nil, err
	}

	var deleted []models.Revision
	var failed []*DeleteError
	for _, rev := range selector(revs) {
		if err := ctx.Err(); err != nil {
			return deleted, failed, err
		}
		if err := s.deleteLocked(entity, rev.Identifier); err != nil {
			failed = append(failed, &DeleteError{Revision: rev, Err: err})
			continue
		}
		deleted = append(deleted, rev)
	}
	return deleted, failed, nil
}
