package directory

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type snapshot struct {
	dataset  *Dataset
	byKey    map[string]int
	loadedAt time.Time
}

func newSnapshot(ds *Dataset) *snapshot {
	s := &snapshot{dataset: ds, byKey: make(map[string]int, len(ds.Rows)), loadedAt: time.Now()}
	for i, row := range ds.Rows {
		key := row.Key()
		if _, dup := s.byKey[key]; !dup {
			s.byKey[key] = i
		}
	}
	return s
}

// Directory serves the current dataset. Reloads swap the whole snapshot, so
// readers never see a partially loaded directory.
type Directory struct {
	source  Source
	logger  *zap.Logger
	current atomic.Pointer[snapshot]
	group   singleflight.Group
}

func New(source Source, logger *zap.Logger) *Directory {
	d := &Directory{source: source, logger: logger.With(zap.String("component", "directory"))}
	d.current.Store(newSnapshot(&Dataset{}))
	return d
}

// Reload fetches and parses the dataset. On failure the previous snapshot is
// kept, which is an empty directory if nothing loaded yet. Concurrent calls
// share one fetch.
func (d *Directory) Reload(ctx context.Context) error {
	_, err, _ := d.group.Do("reload", func() (any, error) {
		ds, err := Load(ctx, d.source)
		if err != nil {
			d.logger.Error("dataset load failed", zap.Error(err))
			return nil, err
		}
		d.current.Store(newSnapshot(ds))
		d.logger.Info("dataset loaded",
			zap.String("source", d.source.String()),
			zap.Int("rows", len(ds.Rows)),
		)
		return nil, nil
	})
	return err
}

// Replace installs a dataset directly.
func (d *Directory) Replace(ds *Dataset) {
	d.current.Store(newSnapshot(ds))
}

func (d *Directory) Rows() []Row {
	return d.current.Load().dataset.Rows
}

func (d *Directory) Len() int {
	return len(d.Rows())
}

func (d *Directory) LoadedAt() time.Time {
	return d.current.Load().loadedAt
}

// Row looks a row up by its identity key. With colliding keys the first row
// wins.
func (d *Directory) Row(key string) (Row, bool) {
	s := d.current.Load()
	i, ok := s.byKey[key]
	if !ok {
		return Row{}, false
	}
	return s.dataset.Rows[i], true
}

// Search filters by query and returns the clamped page.
func (d *Directory) Search(query string, page int) Page {
	v := NewView(d.Rows())
	v.SetQuery(query)
	v.SetPage(page)
	return v.Page()
}
