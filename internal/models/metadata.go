package models

import (
	"path/filepath"
	"time"
)

// MetadataFile is the name of the per-revision metadata record
const MetadataFile = "history.json"

// Metadata represents the history.json structure for a revision
type Metadata struct {
	User       string     `json:"user"`
	UserID     string     `json:"user_id"`
	Operation  Operation  `json:"operation"`
	Timestamp  string     `json:"timestamp"`
	RecordedAt time.Time  `json:"recorded_at"`
	EntityName string     `json:"entity_name"`
	Kind       EntityKind `json:"kind"`
	Snapshot   string     `json:"snapshot"`
	Checksum   string     `json:"sha256"`
	Size       int64      `json:"size"`
}

// NewMetadata builds the record stored next to a snapshot
func NewMetadata(entity Entity, id string, op Operation, user User, recordedAt time.Time) *Metadata {
	return &Metadata{
		User:       user.Name,
		UserID:     user.ID,
		Operation:  op,
		Timestamp:  id,
		RecordedAt: recordedAt,
		EntityName: entity.Name,
		Kind:       entity.Kind,
		Snapshot:   SnapshotFile(entity),
	}
}

// Revision converts the record into a Revision located in revisionDir
func (m *Metadata) Revision(entity Entity, id, revisionDir string) Revision {
	snapshot := m.Snapshot
	if snapshot == "" {
		snapshot = SnapshotFile(entity)
	}
	return Revision{
		Entity:       entity,
		Identifier:   id,
		Operation:    m.Operation,
		User:         User{Name: m.User, ID: m.UserID},
		EntityName:   m.EntityName,
		SnapshotPath: filepath.Join(revisionDir, snapshot),
		RecordedAt:   m.RecordedAt,
		Checksum:     m.Checksum,
		Size:         m.Size,
	}
}
