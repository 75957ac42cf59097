package models

import (
	"path"
	"path/filepath"
	"strings"
)

// JobSnapshotFile is the snapshot file name used for job definitions
const JobSnapshotFile = "config.xml"

// SnapshotFile returns the file name the entity's content is stored under
// Format: config.xml for jobs, <base>.xml or <base> for system configs
func SnapshotFile(e Entity) string {
	if e.IsJob() {
		return JobSnapshotFile
	}
	base := path.Base(filepath.ToSlash(e.Name))
	if strings.HasPrefix(base, ".") || base == MetadataFile {
		base = "_" + base
	}
	if filepath.Ext(base) == "" {
		base += ".xml"
	}
	return base
}

// EntityPath returns the history directory of an entity below root
// Format: <root>/jobs/<escaped name> or <root>/system/<escaped name>
func EntityPath(root string, e Entity) string {
	return filepath.Join(root, e.Kind.Dir(), e.DirName())
}

// RevisionPath returns the directory holding one revision
// Format: <root>/<kind dir>/<escaped name>/<identifier>
func RevisionPath(root string, e Entity, id string) string {
	return filepath.Join(EntityPath(root, e), id)
}
