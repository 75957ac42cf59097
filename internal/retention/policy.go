// Package retention prunes old revisions according to a count and age policy.
package retention

import (
	"errors"
	"fmt"
	"time"

	"github.com/pders01/confhist/internal/models"
)

var ErrInvalidPolicy = errors.New("invalid retention policy")

// Policy bounds how much history an entity keeps. A zero field is not set.
type Policy struct {
	MaxRevisions int           `json:"max_revisions,omitempty" toml:"max_revisions"`
	MaxAge       time.Duration `json:"max_age,omitempty" toml:"max_age"`
}

// IsZero reports whether no limit is configured
func (p Policy) IsZero() bool {
	return p.MaxRevisions == 0 && p.MaxAge == 0
}

func (p Policy) Validate() error {
	if p.MaxRevisions < 0 {
		return fmt.Errorf("%w: max revisions must be at least 1, got %d", ErrInvalidPolicy, p.MaxRevisions)
	}
	if p.MaxAge < 0 {
		return fmt.Errorf("%w: max age must not be negative, got %s", ErrInvalidPolicy, p.MaxAge)
	}
	return nil
}

func (p Policy) String() string {
	if p.IsZero() {
		return "keep everything"
	}
	s := ""
	if p.MaxRevisions > 0 {
		s = fmt.Sprintf("keep %d revisions", p.MaxRevisions)
	}
	if p.MaxAge > 0 {
		if s != "" {
			s += ", "
		}
		s += fmt.Sprintf("drop older than %s", p.MaxAge)
	}
	return s
}

// Select returns the revisions to delete from revs, which must be in
// chronological order. The result is oldest first and never contains the
// newest revision.
func (p Policy) Select(revs []models.Revision, now time.Time) []models.Revision {
	if len(revs) <= 1 || p.IsZero() {
		return nil
	}
	candidates := revs[:len(revs)-1]

	cut := 0
	if p.MaxRevisions > 0 && len(revs) > p.MaxRevisions {
		cut = len(revs) - p.MaxRevisions
	}
	if p.MaxAge > 0 {
		cutoff := now.Add(-p.MaxAge)
		for cut < len(candidates) {
			ts, ok := recordedAt(candidates[cut])
			if !ok || !ts.Before(cutoff) {
				break
			}
			cut++
		}
	}
	if cut == 0 {
		return nil
	}
	return append([]models.Revision(nil), candidates[:cut]...)
}

func recordedAt(rev models.Revision) (time.Time, bool) {
	if !rev.RecordedAt.IsZero() {
		return rev.RecordedAt, true
	}
	ts, err := rev.Timestamp()
	return ts, err == nil
}
