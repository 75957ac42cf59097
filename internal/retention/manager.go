package retention

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/pders01/confhist/internal/history"
	"github.com/pders01/confhist/internal/models"
)

// Report lists what a prune removed and what it failed to remove
type Report struct {
	Entity  models.Entity          `json:"entity"`
	Deleted []models.Revision      `json:"deleted"`
	Failed  []*history.DeleteError `json:"failed,omitempty"`
}

// Store is the part of the history store retention works on
type Store interface {
	AllEntities(ctx context.Context) ([]models.Entity, error)
	DeleteSelected(ctx context.Context, entity models.Entity, selector func([]models.Revision) []models.Revision) ([]models.Revision, []*history.DeleteError, error)
}

// Manager applies retention policies to a history store
type Manager struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

func NewManager(store Store, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: store, logger: logger, now: time.Now}
}

// WithClock replaces the clock used for age cutoffs
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Prune deletes the revisions of entity that policy selects. Deletions are
// committed one by one; a failed deletion is reported and the rest still
// run. The returned error joins every failure.
func (m *Manager) Prune(ctx context.Context, entity models.Entity, policy Policy) (*Report, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	report := &Report{Entity: entity}
	if policy.IsZero() {
		return report, nil
	}

	now := m.now()
	deleted, failed, err := m.store.DeleteSelected(ctx, entity, func(revs []models.Revision) []models.Revision {
		return policy.Select(revs, now)
	})
	report.Deleted = deleted
	report.Failed = failed

	errs := make([]error, 0, len(failed)+1)
	for _, f := range failed {
		m.logger.Warn("Failed to prune revision",
			zap.String("entity", entity.Key()),
			zap.String("id", f.Revision.Identifier),
			zap.Error(f.Err),
		)
		errs = append(errs, f)
	}
	if err != nil {
		errs = append(errs, err)
	}

	if len(deleted) > 0 {
		m.logger.Info("Pruned history",
			zap.String("entity", entity.Key()),
			zap.Int("deleted", len(deleted)),
			zap.Stringer("policy", policy),
		)
	}
	return report, errors.Join(errs...)
}

// PruneAll applies policy to every entity in the store. It stops early only
// when ctx is done.
func (m *Manager) PruneAll(ctx context.Context, policy Policy) ([]*Report, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	entities, err := m.store.AllEntities(ctx)
	if err != nil {
		return nil, err
	}

	var reports []*Report
	var errs []error
	for _, e := range entities {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		report, err := m.Prune(ctx, e, policy)
		if report != nil {
			reports = append(reports, report)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return reports, errors.Join(errs...)
}
