package models

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidEntity is returned for entities that cannot be stored
var ErrInvalidEntity = errors.New("invalid entity")

// EntityKind distinguishes job definitions from system configuration files
type EntityKind string

const (
	KindJob          EntityKind = "job"
	KindSystemConfig EntityKind = "system"
)

// Dir returns the top-level history directory for the kind
func (k EntityKind) Dir() string {
	switch k {
	case KindJob:
		return "jobs"
	case KindSystemConfig:
		return "system"
	default:
		return ""
	}
}

// Entity is a tracked configuration unit
type Entity struct {
	Kind EntityKind `json:"kind"`
	Name string     `json:"name"`
}

// Job returns a job entity for the given full name
func Job(fullName string) Entity {
	return Entity{Kind: KindJob, Name: fullName}
}

// SystemConfig returns a system configuration entity
func SystemConfig(name string) Entity {
	return Entity{Kind: KindSystemConfig, Name: name}
}

// IsJob reports whether the entity is a job definition
func (e Entity) IsJob() bool {
	return e.Kind == KindJob
}

// Key uniquely identifies the entity within a history root
func (e Entity) Key() string {
	return string(e.Kind) + ":" + e.Name
}

func (e Entity) String() string {
	return e.Key()
}

// Validate checks that the entity can be mapped to a history directory
func (e Entity) Validate() error {
	if e.Kind.Dir() == "" {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidEntity, e.Kind)
	}
	switch e.Name {
	case "", ".", "..":
		return fmt.Errorf("%w: bad name %q", ErrInvalidEntity, e.Name)
	}
	if strings.ContainsRune(e.Name, 0) {
		return fmt.Errorf("%w: name contains NUL byte", ErrInvalidEntity)
	}
	return nil
}

// DirName returns the single path segment the entity's history lives under.
// Folder separators in job names are escaped so every entity is one directory.
func (e Entity) DirName() string {
	name := url.PathEscape(e.Name)
	// PathEscape leaves a leading dot alone; staging entries start with one
	if strings.HasPrefix(name, ".") {
		name = "%2E" + name[1:]
	}
	return name
}

// ParseDirName reverses DirName
func ParseDirName(kind EntityKind, dirName string) (Entity, error) {
	name, err := url.PathUnescape(dirName)
	if err != nil {
		return Entity{}, fmt.Errorf("%w: %v", ErrInvalidEntity, err)
	}
	e := Entity{Kind: kind, Name: name}
	return e, e.Validate()
}

// ParseEntityRef parses "job:name" or "system:name". A bare name is a job.
func ParseEntityRef(ref string) (Entity, error) {
	kind, name, found := strings.Cut(ref, ":")
	if !found {
		e := Job(ref)
		return e, e.Validate()
	}
	e := Entity{Kind: EntityKind(kind), Name: name}
	return e, e.Validate()
}
