package directory

import "strings"

// PublicRow is a row as shown before anything is revealed. The email and the
// scheduling-link column are withheld; only their presence is reported.
type PublicRow struct {
	Key           string            `json:"key"`
	Fields        map[string]string `json:"fields"`
	Categories    []string          `json:"categories"`
	FundStages    []string          `json:"fund_stages"`
	HasEmail      bool              `json:"has_email"`
	HasScheduling bool              `json:"has_scheduling"`
}

func (r Row) Public() PublicRow {
	fields := r.Map()
	delete(fields, ColEmail)
	delete(fields, r.lastColumn())

	return PublicRow{
		Key:           r.Key(),
		Fields:        fields,
		Categories:    splitTags(r.Get(ColCategories)),
		FundStages:    splitTags(r.Get(ColFundStage)),
		HasEmail:      r.Email() != "",
		HasScheduling: len(r.SchedulingLinks()) > 0,
	}
}

func splitTags(s string) []string {
	if strings.TrimSpace(s) == "" {
		return []string{}
	}
	parts := strings.Split(s, "\n")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
