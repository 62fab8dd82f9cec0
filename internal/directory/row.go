package directory

import (
	"strings"
)

// Column names the service reads by name. Any other columns are carried
// through untouched.
const (
	ColTitle      = "Title"
	ColCompany    = "Company"
	ColPosition   = "Position"
	ColCategories = "Categories"
	ColEmail      = "Email"
	ColFundStage  = "Fund Stage"
)

// Row is one directory record. Columns are shared with the dataset and keep
// the header order; the last column holds scheduling-link candidates.
type Row struct {
	columns []string
	values  []string
}

// NewRow builds a row from a header and a record. Short records are padded
// with empty values and extra fields are dropped.
func NewRow(columns, record []string) Row {
	values := make([]string, len(columns))
	copy(values, record)
	return Row{columns: columns, values: values}
}

// Get returns the value of the named column, or "" when absent.
func (r Row) Get(column string) string {
	for i, c := range r.columns {
		if c == column {
			return r.values[i]
		}
	}
	return ""
}

func (r Row) Columns() []string {
	return r.columns
}

// Last returns the raw value of the trailing column.
func (r Row) Last() string {
	if len(r.values) == 0 {
		return ""
	}
	return r.values[len(r.values)-1]
}

func (r Row) lastColumn() string {
	if len(r.columns) == 0 {
		return ""
	}
	return r.columns[len(r.columns)-1]
}

// Key identifies the row by content: Title, Company, Email and the raw
// trailing column joined with "|" and percent-encoded. Two rows that agree on
// all four collide and share reveals.
func (r Row) Key() string {
	return EncodeURIComponent(strings.Join([]string{
		r.Get(ColTitle),
		r.Get(ColCompany),
		r.Get(ColEmail),
		r.Last(),
	}, "|"))
}

// Email is the gated email value.
func (r Row) Email() string {
	return strings.TrimSpace(r.Get(ColEmail))
}

// SchedulingLinks returns the normalized, non-empty link candidates.
func (r Row) SchedulingLinks() []string {
	return ParseLinks(r.Last())
}

// Map returns a copy of the row as column -> value.
func (r Row) Map() map[string]string {
	m := make(map[string]string, len(r.columns))
	for i, c := range r.columns {
		m[c] = r.values[i]
	}
	return m
}
