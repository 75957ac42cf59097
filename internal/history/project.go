package history

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/pders01/confhist/internal/models"
)

// Project builds the exported view of a revision. Jobs are named by the
// current full name of the entity; system configurations by the name
// recorded with the revision.
func (s *Store) Project(rev models.Revision) (models.ConfigInfo, error) {
	file, err := EncodeSnapshotPath(rev.SnapshotPath)
	if err != nil {
		s.logger.Error("Cannot encode snapshot path",
			zap.String("entity", rev.Entity.Key()),
			zap.String("id", rev.Identifier),
			zap.String("path", rev.SnapshotPath),
			zap.Error(err),
		)
		return models.ConfigInfo{}, err
	}

	name := rev.Entity.Name
	if !rev.Entity.IsJob() && rev.EntityName != "" {
		name = rev.EntityName
	}

	return models.ConfigInfo{
		User:      rev.User.Name,
		UserID:    rev.User.ID,
		Date:      rev.Identifier,
		File:      file,
		Job:       name,
		Operation: rev.Operation,
		IsJob:     rev.Entity.IsJob(),
	}, nil
}

// ProjectAll projects every revision, stopping at the first failure
func (s *Store) ProjectAll(revs []models.Revision) ([]models.ConfigInfo, error) {
	infos := make([]models.ConfigInfo, 0, len(revs))
	for _, rev := range revs {
		info, err := s.Project(rev)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// EncodeSnapshotPath returns the absolute path in URL form encoding
func EncodeSnapshotPath(path string) (string, error) {
	if strings.ContainsRune(path, 0) {
		return "", fmt.Errorf("%w: %q contains a NUL byte", ErrEncodingFailure, path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrEncodingFailure, path, err)
	}
	return url.QueryEscape(abs), nil
}

// DecodeSnapshotPath reverses EncodeSnapshotPath
func DecodeSnapshotPath(file string) (string, error) {
	path, err := url.QueryUnescape(file)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrEncodingFailure, err)
	}
	return path, nil
}
