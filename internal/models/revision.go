package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidOperation is returned for unknown operations
var ErrInvalidOperation = errors.New("invalid operation")

// Operation is the kind of change a revision records
type Operation string

const (
	OpCreated Operation = "created"
	OpChanged Operation = "changed"
	OpRenamed Operation = "renamed"
	OpDeleted Operation = "deleted"
)

// ParseOperation validates s as an Operation
func ParseOperation(s string) (Operation, error) {
	op := Operation(s)
	if !op.Valid() {
		return "", fmt.Errorf("%w: %q (must be: created, changed, renamed, deleted)", ErrInvalidOperation, s)
	}
	return op, nil
}

// Valid reports whether op is one of the known operations
func (op Operation) Valid() bool {
	switch op {
	case OpCreated, OpChanged, OpRenamed, OpDeleted:
		return true
	default:
		return false
	}
}

// User identifies who made a change
type User struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// SystemUser is recorded for changes nobody initiated
var SystemUser = User{Name: "SYSTEM", ID: "SYSTEM"}

// Revision is one recorded change to an Entity
type Revision struct {
	Entity       Entity    `json:"entity"`
	Identifier   string    `json:"identifier"`
	Operation    Operation `json:"operation"`
	User         User      `json:"user"`
	EntityName   string    `json:"entity_name"`
	SnapshotPath string    `json:"snapshot_path"`
	RecordedAt   time.Time `json:"recorded_at"`
	Checksum     string    `json:"sha256,omitempty"`
	Size         int64     `json:"size"`
}

// Timestamp returns the instant encoded in the identifier
func (r Revision) Timestamp() (time.Time, error) {
	return ParseIdentifier(r.Identifier)
}

func (r Revision) String() string {
	return fmt.Sprintf("%s@%s (%s)", r.Entity, r.Identifier, r.Operation)
}
