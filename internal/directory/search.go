package directory

import "strings"

// PageSize is the fixed number of rows per page.
const PageSize = 20

var searchColumns = []string{ColTitle, ColCompany, ColPosition, ColCategories}

// Filter keeps rows where Title, Company, Position or Categories contains
// query, ignoring case. A blank query keeps every row.
func Filter(rows []Row, query string) []Row {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return rows
	}

	var out []Row
	for _, row := range rows {
		for _, col := range searchColumns {
			if strings.Contains(strings.ToLower(row.Get(col)), q) {
				out = append(out, row)
				break
			}
		}
	}
	return out
}

// PageCount is ceil(n / PageSize).
func PageCount(n int) int {
	return (n + PageSize - 1) / PageSize
}

// ClampPage forces page into [1, max(1, PageCount(n))].
func ClampPage(page, n int) int {
	last := PageCount(n)
	if last < 1 {
		last = 1
	}
	if page > last {
		page = last
	}
	if page < 1 {
		page = 1
	}
	return page
}

// Page is one slice of a filtered view.
type Page struct {
	Query     string `json:"query"`
	Page      int    `json:"page"`
	PageCount int    `json:"page_count"`
	Total     int    `json:"total"`
	Rows      []Row  `json:"-"`
}

// View is a filtered, paginated window over the dataset. Changing the query
// always returns to the first page.
type View struct {
	rows     []Row
	query    string
	filtered []Row
	page     int
}

func NewView(rows []Row) *View {
	return &View{rows: rows, filtered: rows, page: 1}
}

func (v *View) SetQuery(query string) {
	v.query = query
	v.filtered = Filter(v.rows, query)
	v.page = 1
}

func (v *View) SetPage(page int) {
	v.page = ClampPage(page, len(v.filtered))
}

func (v *View) Page() Page {
	start := (v.page - 1) * PageSize
	end := start + PageSize
	if start > len(v.filtered) {
		start = len(v.filtered)
	}
	if end > len(v.filtered) {
		end = len(v.filtered)
	}
	return Page{
		Query:     v.query,
		Page:      v.page,
		PageCount: PageCount(len(v.filtered)),
		Total:     len(v.filtered),
		Rows:      v.filtered[start:end],
	}
}
