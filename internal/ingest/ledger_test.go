package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"meetings-backend/internal/models"
)

type memStore struct {
	entries []models.LedgerEntry
	err     error
}

func (m *memStore) AppendLedgerEntry(_ context.Context, e models.LedgerEntry) error {
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, e)
	return nil
}

func TestHandle(t *testing.T) {
	store := &memStore{}
	c := NewLedgerConsumer(nil, "ledger.*.spend", store, zap.NewNop())

	data, err := msgpack.Marshal(&models.LedgerEntry{ID: "e1", UserID: "u1", Cost: 5, Remaining: 95})
	require.NoError(t, err)

	require.NoError(t, c.handle(context.Background(), data))
	require.Len(t, store.entries, 1)
	assert.Equal(t, 95, store.entries[0].Remaining)
}

func TestHandle_Poison(t *testing.T) {
	c := NewLedgerConsumer(nil, "ledger.*.spend", &memStore{}, zap.NewNop())

	assert.ErrorIs(t, c.handle(context.Background(), []byte{0xc1}), errPoison)

	data, err := msgpack.Marshal(&models.LedgerEntry{Cost: 5})
	require.NoError(t, err)
	assert.ErrorIs(t, c.handle(context.Background(), data), errPoison)
}

func TestHandle_StoreErrorIsRetryable(t *testing.T) {
	boom := errors.New("db down")
	c := NewLedgerConsumer(nil, "ledger.*.spend", &memStore{err: boom}, zap.NewNop())

	data, err := msgpack.Marshal(&models.LedgerEntry{ID: "e1", UserID: "u1"})
	require.NoError(t, err)

	err = c.handle(context.Background(), data)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, errPoison)
}

func TestFetchSizer(t *testing.T) {
	f := newFetchSizer(16, 4, 64)

	for i := 0; i < 3; i++ {
		f.observe(16)
	}
	assert.Equal(t, 32, f.size)

	for i := 0; i < 6; i++ {
		f.observe(f.size)
	}
	assert.Equal(t, 64, f.size, "capped at max")

	for i := 0; i < 3; i++ {
		f.observe(0)
	}
	assert.Equal(t, 32, f.size)

	f.observe(5)
	assert.Equal(t, 0, f.full)
	assert.Equal(t, 0, f.empty)

	for i := 0; i < 30; i++ {
		f.observe(0)
	}
	assert.Equal(t, 4, f.size, "floored at min")
}
