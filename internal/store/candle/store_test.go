package candle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"kelpie/internal/market"
)

func storeCandles(startMs int64, n int) []market.Candle {
	out := make([]market.Candle, n)
	for i := range out {
		open := startMs + int64(i)*3_600_000
		px := float64(100 + i)
		out[i] = market.Candle{
			OpenTime:  open,
			CloseTime: open + 3_599_999,
			Open:      px, High: px + 1, Low: px - 1, Close: px, Volume: 10, Trades: 5,
		}
	}
	return out
}

func TestStoreInsertAndRange(t *testing.T) {
	s, err := NewStore(t.TempDir())
	assert.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	n, err := s.Insert(ctx, "BTCUSDT", "1h", storeCandles(3_600_000, 5))
	assert.NoError(t, err)
	assert.Equal(t, 5, n)

	got, err := s.Range(ctx, "BTCUSDT", "1h", 3_600_000, 3*3_600_000)
	assert.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, int64(3_600_000), got[0].OpenTime)
	assert.Equal(t, 100.0, got[0].Close)
	assert.Equal(t, int64(5), got[0].Trades)

	_, err = s.Range(ctx, "BTCUSDT", "1h", 0, 3_600_000)
	assert.Error(t, err)
}

func TestStoreInsertUpsertsOnOpenTime(t *testing.T) {
	s, err := NewStore(t.TempDir())
	assert.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	batch := storeCandles(3_600_000, 2)
	_, err = s.Insert(ctx, "BTCUSDT", "1h", batch)
	assert.NoError(t, err)

	batch[1].Close = 999
	_, err = s.Insert(ctx, "BTCUSDT", "1h", batch)
	assert.NoError(t, err)

	got, err := s.Range(ctx, "BTCUSDT", "1h", 3_600_000, 2*3_600_000)
	assert.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, 999.0, got[1].Close)
}

func TestStoreLatestAscending(t *testing.T) {
	s, err := NewStore(t.TempDir())
	assert.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	_, err = s.Insert(ctx, "ETHUSDT", "1h", storeCandles(3_600_000, 5))
	assert.NoError(t, err)

	got, err := s.Latest(ctx, "ETHUSDT", "1h", 3)
	assert.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, 102.0, got[0].Close)
	assert.Equal(t, 104.0, got[2].Close)
}

func TestStoreManifestTracksBounds(t *testing.T) {
	s, err := NewStore(t.TempDir())
	assert.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	_, err = s.Insert(ctx, "BTCUSDT", "4h", storeCandles(3_600_000, 4))
	assert.NoError(t, err)

	m, err := s.Manifest(ctx, "BTCUSDT", "4h")
	assert.NoError(t, err)
	assert.Equal(t, "BTCUSDT", m.Symbol)
	assert.Equal(t, "4h", m.Timeframe)
	assert.Equal(t, int64(3_600_000), m.MinTime)
	assert.Equal(t, int64(4), m.Rows)
	assert.Positive(t, m.LastSyncAt)
}

func TestNewStoreRequiresRoot(t *testing.T) {
	_, err := NewStore("")
	assert.Error(t, err)
}
