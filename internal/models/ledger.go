package models

import "time"

// LedgerMeta describes what a spend paid for.
type LedgerMeta struct {
	Kind   RevealKind `json:"type" msgpack:"type"`
	RowKey string     `json:"row_key" msgpack:"row_key"`
}

// LedgerEntry is the append-only audit record of one successful spend.
type LedgerEntry struct {
	ID        string     `json:"id" db:"id" msgpack:"id"`
	UserID    string     `json:"user_id" db:"user_id" msgpack:"user_id"`
	Cost      int        `json:"cost" db:"cost" msgpack:"cost"`
	Remaining int        `json:"remaining" db:"remaining" msgpack:"remaining"`
	Meta      LedgerMeta `json:"meta" db:"-" msgpack:"meta"`
	CreatedAt time.Time  `json:"ts" db:"created_at" msgpack:"ts"`
}
