package directory

import (
	"context"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubSource struct {
	mu    sync.Mutex
	body  string
	err   error
	opens atomic.Int32
}

func (s *stubSource) Open(context.Context) (io.ReadCloser, error) {
	s.opens.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return io.NopCloser(strings.NewReader(s.body)), nil
}

func (s *stubSource) String() string { return "stub" }

func (s *stubSource) set(body string, err error) {
	s.mu.Lock()
	s.body, s.err = body, err
	s.mu.Unlock()
}

func TestDirectory_EmptyUntilLoaded(t *testing.T) {
	d := New(&stubSource{err: io.ErrUnexpectedEOF}, zap.NewNop())

	require.Error(t, d.Reload(context.Background()))
	assert.Equal(t, 0, d.Len())

	p := d.Search("", 3)
	assert.Equal(t, 1, p.Page)
	assert.Empty(t, p.Rows)
}

func TestDirectory_ReloadKeepsPreviousOnFailure(t *testing.T) {
	src := &stubSource{body: sampleCSV}
	d := New(src, zap.NewNop())

	require.NoError(t, d.Reload(context.Background()))
	require.Equal(t, 2, d.Len())
	loaded := d.LoadedAt()

	src.set("", io.ErrUnexpectedEOF)
	require.Error(t, d.Reload(context.Background()))
	assert.Equal(t, 2, d.Len())
	assert.Equal(t, loaded, d.LoadedAt())
}

func TestDirectory_RowByKey(t *testing.T) {
	d := New(&stubSource{}, zap.NewNop())
	ds, err := Parse(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	d.Replace(ds)

	key := ds.Rows[0].Key()
	row, ok := d.Row(key)
	require.True(t, ok)
	assert.Equal(t, "Jane", row.Get(ColTitle))

	_, ok = d.Row("missing")
	assert.False(t, ok)
}

func TestDirectory_Search(t *testing.T) {
	d := New(&stubSource{}, zap.NewNop())
	d.Replace(&Dataset{Columns: testColumns, Rows: makeRows(45)})

	p := d.Search("", 5)
	assert.Equal(t, 3, p.Page)
	assert.Equal(t, 45, p.Total)

	p = d.Search("Investor 0", 2)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 10, p.Total)
}

func TestDirectory_ConcurrentReloads(t *testing.T) {
	src := &stubSource{body: sampleCSV}
	d := New(src, zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, d.Reload(context.Background()))
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, d.Len())
	assert.LessOrEqual(t, int(src.opens.Load()), 8)
}
