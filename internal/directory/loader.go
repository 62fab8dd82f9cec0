package directory

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrDatasetLoad marks a failure to fetch or parse the directory dataset.
var ErrDatasetLoad = errors.New("dataset load failed")

// Dataset is a parsed directory: the header and the rows that have a Title.
type Dataset struct {
	Columns []string
	Rows    []Row
}

// Load fetches the dataset from source and parses it.
func Load(ctx context.Context, source Source) (*Dataset, error) {
	rc, err := source.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrDatasetLoad, source, err)
	}
	defer rc.Close()

	ds, err := Parse(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDatasetLoad, source, err)
	}
	return ds, nil
}

// Parse reads a header-row CSV. Rows with an empty Title are discarded.
func Parse(r io.Reader) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	headers, err := reader.Read()
	if err == io.EOF {
		return &Dataset{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read CSV headers: %w", err)
	}
	if len(headers) > 0 {
		headers[0] = strings.TrimPrefix(headers[0], "\ufeff")
	}
	for i := range headers {
		headers[i] = strings.TrimSpace(headers[i])
	}

	ds := &Dataset{Columns: headers}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read CSV row: %w", err)
		}

		row := NewRow(headers, record)
		// Only a truly empty Title drops the row; whitespace counts as a value.
		if row.Get(ColTitle) == "" {
			continue
		}
		ds.Rows = append(ds.Rows, row)
	}
	return ds, nil
}
