// Package ingest turns change notifications from the host application into
// recorded revisions.
package ingest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/pders01/confhist/internal/history"
	"github.com/pders01/confhist/internal/models"
	"github.com/pders01/confhist/internal/retention"
)

// ErrSkipped is returned when a notification is dropped by a filter
var ErrSkipped = errors.New("change not recorded")

// Options controls which notifications are recorded
type Options struct {
	ExcludedUsers  []string
	ExcludePattern *regexp.Regexp
	SkipDuplicates bool
	AutoPrune      bool
	Policy         retention.Policy
}

// Tracker records change notifications into a history store
type Tracker struct {
	store   *history.Store
	pruner  *retention.Manager
	opts    Options
	logger  *zap.Logger
	exclude map[string]struct{}
}

func NewTracker(store *history.Store, pruner *retention.Manager, opts Options, logger *zap.Logger) (*Tracker, error) {
	if err := opts.Policy.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if pruner == nil {
		pruner = retention.NewManager(store, logger)
	}
	exclude := make(map[string]struct{}, len(opts.ExcludedUsers))
	for _, u := range opts.ExcludedUsers {
		if u = strings.TrimSpace(u); u != "" {
			exclude[strings.ToLower(u)] = struct{}{}
		}
	}
	return &Tracker{store: store, pruner: pruner, opts: opts, logger: logger, exclude: exclude}, nil
}

// NotifyChange records one observed change. A deleted notification without
// content keeps the content of the latest revision.
func (t *Tracker) NotifyChange(ctx context.Context, entity models.Entity, op models.Operation, user models.User, content []byte) (models.Revision, error) {
	user = normalizeUser(user)
	if reason := t.filter(entity, user); reason != "" {
		t.logger.Debug("Skipping change", zap.String("entity", entity.Key()), zap.String("reason", reason))
		return models.Revision{}, fmt.Errorf("%w: %s", ErrSkipped, reason)
	}

	switch op {
	case models.OpChanged:
		if t.opts.SkipDuplicates {
			dup, err := t.sameAsLatest(ctx, entity, content)
			if err != nil {
				return models.Revision{}, err
			}
			if dup {
				t.logger.Debug("Skipping duplicate", zap.String("entity", entity.Key()))
				return models.Revision{}, fmt.Errorf("%w: content unchanged", ErrSkipped)
			}
		}
	case models.OpDeleted:
		if content == nil {
			last, err := t.latestContent(ctx, entity)
			if err != nil {
				return models.Revision{}, err
			}
			content = last
		}
	}

	rev, err := t.store.Record(ctx, entity, op, user, bytes.NewReader(content))
	if err != nil {
		return models.Revision{}, err
	}
	t.prune(ctx, entity)
	return rev, nil
}

// NotifyRename moves the history of from to to and records the rename
func (t *Tracker) NotifyRename(ctx context.Context, from, to models.Entity, user models.User, content []byte) (models.Revision, error) {
	user = normalizeUser(user)
	if reason := t.filter(to, user); reason != "" {
		return models.Revision{}, fmt.Errorf("%w: %s", ErrSkipped, reason)
	}
	rev, err := t.store.Rename(ctx, from, to, user, bytes.NewReader(content))
	if err != nil {
		return models.Revision{}, err
	}
	t.prune(ctx, to)
	return rev, nil
}

func normalizeUser(u models.User) models.User {
	u.Name = strings.TrimSpace(u.Name)
	u.ID = strings.TrimSpace(u.ID)
	switch {
	case u.Name == "" && u.ID == "":
		return models.SystemUser
	case u.Name == "":
		u.Name = u.ID
	case u.ID == "":
		u.ID = u.Name
	}
	return u
}

// filter returns why a change should be dropped, or "" to record it
func (t *Tracker) filter(entity models.Entity, user models.User) string {
	if _, ok := t.exclude[strings.ToLower(user.ID)]; ok {
		return "excluded user " + user.ID
	}
	if !entity.IsJob() && t.opts.ExcludePattern != nil && t.opts.ExcludePattern.MatchString(entity.Name) {
		return "excluded file " + entity.Name
	}
	return ""
}

func (t *Tracker) sameAsLatest(ctx context.Context, entity models.Entity, content []byte) (bool, error) {
	latest, ok, err := t.store.Latest(ctx, entity)
	if err != nil || !ok {
		return false, err
	}
	if latest.Operation == models.OpDeleted {
		return false, nil
	}
	sum := sha256.Sum256(content)
	return latest.Checksum == hex.EncodeToString(sum[:]), nil
}

func (t *Tracker) latestContent(ctx context.Context, entity models.Entity) ([]byte, error) {
	latest, ok, err := t.store.Latest(ctx, entity)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: no history for deleted %s", ErrSkipped, entity)
	}
	rc, err := t.store.Open(latest)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (t *Tracker) prune(ctx context.Context, entity models.Entity) {
	if !t.opts.AutoPrune || t.opts.Policy.IsZero() {
		return
	}
	if _, err := t.pruner.Prune(ctx, entity, t.opts.Policy); err != nil {
		t.logger.Warn("Automatic prune failed", zap.String("entity", entity.Key()), zap.Error(err))
	}
}
