// Package history persists immutable configuration snapshots and indexes them
// per entity.
//
// Layout below the root directory:
//
//	jobs/<escaped name>/<identifier>/config.xml
//	jobs/<escaped name>/<identifier>/history.json
//	system/<escaped name>/<identifier>/<snapshot file>
//	system/<escaped name>/<identifier>/history.json
//
// A revision becomes visible with a single directory rename, so readers never
// observe metadata without content. Writers for one entity are serialized by
// a lock owned by the Store; different entities never contend.
package history

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/pders01/confhist/internal/models"
)

const (
	stagingPrefix = ".staging-"
	trashPrefix   = ".trash-"
	dirPerm       = 0755
	filePerm      = 0644
)

// Store is the configuration history of one root directory.
// Create one per process with New and share it; it is safe for concurrent use.
type Store struct {
	root   string
	logger *zap.Logger
	now    func() time.Time
	locks  *lockTable
}

// Option configures a Store
type Option func(*Store)

// WithLogger sets the logger used for diagnostics
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source used for new identifiers
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New opens (and creates if needed) the history rooted at root
func New(root string, opts ...Option) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("history root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve history root: %w", err)
	}

	s := &Store{
		root:   abs,
		logger: zap.NewNop(),
		now:    time.Now,
		locks:  newLockTable(),
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, kind := range []models.EntityKind{models.KindJob, models.KindSystemConfig} {
		if err := os.MkdirAll(filepath.Join(abs, kind.Dir()), dirPerm); err != nil {
			return nil, fmt.Errorf("failed to create history root: %w", err)
		}
	}
	return s, nil
}

// Root returns the absolute history root directory
func (s *Store) Root() string {
	return s.root
}

func (s *Store) entityDir(e models.Entity) string {
	return models.EntityPath(s.root, e)
}
