package models

import (
	"fmt"
	"time"
)

// ConfigInfo is the exported view of one revision, used for presentation
type ConfigInfo struct {
	// User is the display name of the user
	User string `json:"user"`
	// UserID is the stable id of the user
	UserID string `json:"userID"`
	// Date is the revision identifier
	Date string `json:"date"`
	// File is the percent-encoded absolute snapshot path
	File string `json:"file"`
	// Job is the name of the job or system configuration
	Job string `json:"job"`
	// Operation is one of created, changed, renamed or deleted
	Operation Operation `json:"operation"`
	// IsJob is false for system configuration files
	IsJob bool `json:"isJob"`
}

// ParsedDate returns the instant encoded in Date
func (c ConfigInfo) ParsedDate() (time.Time, error) {
	return ParseIdentifier(c.Date)
}

func (c ConfigInfo) String() string {
	return fmt.Sprintf("%s on %s @%s", c.Operation, c.File, c.Date)
}
