package services

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pricewatch-api/internal/models"
	"pricewatch-api/pkg/cache"
)

func TestHistoryTimeframes(t *testing.T) {
	ctx := context.Background()
	pc := cache.NewPriceCache(cache.NewMemoryStore(), cache.Config{}, zerolog.Nop())
	now := time.Now()
	record := func(retailer, amount string, age time.Duration) {
		require.NoError(t, pc.AppendHistory(ctx, "p1", models.ProductPrice{
			Retailer:    retailer,
			Price:       decimal.RequireFromString(amount),
			LastUpdated: now.Add(-age),
		}))
	}
	record("A", "10", 2*24*time.Hour)
	record("B", "11", 24*time.Hour)
	record("A", "12", 20*24*time.Hour)
	record("A", "15", 200*24*time.Hour)

	svc := NewHistoryService(pc, zerolog.Nop())
	svc.now = func() time.Time { return now }

	week, err := svc.History(ctx, models.HistoryRequest{ProductKey: "p1", Timeframe: "7d"})
	require.NoError(t, err)
	require.Len(t, week.History, 2)
	assert.Equal(t, "A", week.History[0].Retailer)
	assert.Equal(t, "B", week.History[1].Retailer)
	assert.False(t, week.FromCache)

	month, err := svc.History(ctx, models.HistoryRequest{ProductKey: "p1", Retailer: "A"})
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeframe, month.Timeframe)
	require.Len(t, month.History, 2)
	assert.True(t, month.History[0].Price.Equal(decimal.NewFromInt(12)))

	year, err := svc.History(ctx, models.HistoryRequest{ProductKey: "p1", Timeframe: "1y"})
	require.NoError(t, err)
	assert.Len(t, year.History, 4)

	again, err := svc.History(ctx, models.HistoryRequest{ProductKey: "p1", Timeframe: "7d"})
	require.NoError(t, err)
	assert.True(t, again.FromCache)
	assert.Len(t, again.History, 2)
}

func TestHistoryRejectsBadInput(t *testing.T) {
	svc := NewHistoryService(cache.NewPriceCache(cache.NewMemoryStore(), cache.Config{}, zerolog.Nop()), zerolog.Nop())

	_, err := svc.History(context.Background(), models.HistoryRequest{ProductKey: "p1", Timeframe: "2w"})
	assert.ErrorIs(t, err, ErrInvalidTimeframe)

	_, err = svc.History(context.Background(), models.HistoryRequest{Timeframe: "7d"})
	assert.ErrorIs(t, err, ErrAggregation)

	_, err = svc.History(context.Background(), models.HistoryRequest{ProductKey: "p1:*", Timeframe: "7d"})
	assert.ErrorIs(t, err, models.ErrInvalidProductKey)

	assert.Equal(t, []string{"7d", "30d", "90d", "1y"}, Timeframes())
}
