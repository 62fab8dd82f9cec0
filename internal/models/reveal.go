package models

import (
	"time"

	"github.com/lib/pq"
)

// RevealKind names a gated directory field.
type RevealKind string

const (
	RevealEmail      RevealKind = "email"
	RevealScheduling RevealKind = "scheduling"
)

func (k RevealKind) Valid() bool {
	return k == RevealEmail || k == RevealScheduling
}

// Reveal is what a user has paid to see on one directory row.
type Reveal struct {
	UserID          string         `json:"-" db:"user_id"`
	RowKey          string         `json:"row_key" db:"row_key"`
	Title           string         `json:"title" db:"title"`
	Company         string         `json:"company" db:"company"`
	Email           string         `json:"email,omitempty" db:"email"`
	SchedulingLinks pq.StringArray `json:"scheduling_links,omitempty" db:"scheduling_links"`
	UpdatedAt       time.Time      `json:"updated_at" db:"updated_at"`
}

// Has reports whether the field of the given kind is revealed.
func (r *Reveal) Has(kind RevealKind) bool {
	if r == nil {
		return false
	}
	switch kind {
	case RevealEmail:
		return r.Email != ""
	case RevealScheduling:
		return len(r.SchedulingLinks) > 0
	}
	return false
}
