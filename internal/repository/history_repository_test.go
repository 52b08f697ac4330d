package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/smartfit/internal/logging"
	"github.com/example/smartfit/internal/models"
	"github.com/example/smartfit/internal/retry"
)

func newTestRepository(t *testing.T) *HistoryRepository {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	repo := NewHistoryRepository(db, zap.NewNop())
	require.NoError(t, repo.Migrate(context.Background()))
	return repo
}

func sampleRecord(userID, season, tone string, seasonalConfidence float64) *models.HistoryRecord {
	return &models.HistoryRecord{
		PredictionResult: models.PredictionResult{
			SeasonalLabel:      season,
			SeasonalConfidence: seasonalConfidence,
			SkinToneLabel:      tone,
			SkinToneConfidence: 80,
			SkinToneHex:        "#C19A6B",
			ImageSize:          224,
		},
		SeasonalDescription: "cool and clear",
		ColorPalette:        models.ColorPalette{LightColors: []string{"#FFFFFF"}, DarkColors: []string{"#000000"}},
		OutfitRecommendations: []models.OutfitItem{
			{Item: "Gray suit", Description: "Main piece"},
		},
		Products: []models.ProductSummary{
			{ID: "B001", Title: "Gray suit", Price: "$99", Delivery: "FREE delivery"},
		},
		ClothingCategory: "formal-men",
		UserID:           userID,
		Timestamp:        time.Date(2024, 10, 19, 12, 0, 0, 0, time.UTC),
	}
}

func TestSaveAndGetRoundTrip(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	record := sampleRecord("user-1", models.SeasonWinter, models.SkinToneMedium, 92)
	key, err := repo.Save(ctx, "req-1", record)
	require.NoError(t, err)
	require.NotEmpty(t, key)
	assert.Equal(t, key, record.PredictionKey)

	got, err := repo.Get(ctx, "req-2", "user-1", key)
	require.NoError(t, err)
	assert.Equal(t, key, got.PredictionKey)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, models.SeasonWinter, got.SeasonalLabel)
	assert.InDelta(t, 92.0, got.SeasonalConfidence, 1e-9)
	assert.Equal(t, "formal-men", got.ClothingCategory)
	assert.Equal(t, record.ColorPalette, got.ColorPalette)
	assert.Equal(t, record.OutfitRecommendations, got.OutfitRecommendations)
	assert.Equal(t, record.Products, got.Products)
	assert.True(t, record.Timestamp.Equal(got.Timestamp))
}

func TestSaveAssignsDistinctKeys(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	first, err := repo.Save(ctx, "req-1", sampleRecord("user-1", models.SeasonWinter, models.SkinToneLight, 90))
	require.NoError(t, err)
	second, err := repo.Save(ctx, "req-2", sampleRecord("user-1", models.SeasonWinter, models.SkinToneLight, 90))
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestGetIsScopedToUser(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	key, err := repo.Save(ctx, "req-1", sampleRecord("owner", models.SeasonSpring, models.SkinToneDark, 70))
	require.NoError(t, err)

	_, err = repo.Get(ctx, "req-2", "someone-else", key)
	assert.ErrorIs(t, err, ErrRecordNotFound)

	_, err = repo.Get(ctx, "req-3", "owner", "missing-key")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestListReturnsNewestFirst(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	older := sampleRecord("user-1", models.SeasonSummer, models.SkinToneLight, 60)
	older.Timestamp = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := sampleRecord("user-1", models.SeasonAutumn, models.SkinToneDark, 75)
	newer.Timestamp = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	_, err := repo.Save(ctx, "req-1", older)
	require.NoError(t, err)
	_, err = repo.Save(ctx, "req-2", newer)
	require.NoError(t, err)
	_, err = repo.Save(ctx, "req-3", sampleRecord("user-2", models.SeasonWinter, models.SkinToneLight, 50))
	require.NoError(t, err)

	records, err := repo.List(ctx, "req-4", "user-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, models.SeasonAutumn, records[0].SeasonalLabel)
	assert.Equal(t, models.SeasonSummer, records[1].SeasonalLabel)

	empty, err := repo.List(ctx, "req-5", "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestDeleteRemovesOnlyOwnedRecord(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	key, err := repo.Save(ctx, "req-1", sampleRecord("owner", models.SeasonWinter, models.SkinToneLight, 90))
	require.NoError(t, err)

	assert.ErrorIs(t, repo.Delete(ctx, "req-2", "intruder", key), ErrRecordNotFound)
	require.NoError(t, repo.Delete(ctx, "req-3", "owner", key))
	assert.ErrorIs(t, repo.Delete(ctx, "req-4", "owner", key), ErrRecordNotFound)

	_, err = repo.Get(ctx, "req-5", "owner", key)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestAggregateSummarisesUserHistory(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	for _, r := range []*models.HistoryRecord{
		sampleRecord("user-1", models.SeasonWinter, models.SkinToneLight, 90),
		sampleRecord("user-1", models.SeasonWinter, models.SkinToneMedium, 70),
		sampleRecord("user-1", models.SeasonAutumn, models.SkinToneMedium, 80),
		sampleRecord("user-2", models.SeasonSpring, models.SkinToneDark, 10),
	} {
		_, err := repo.Save(ctx, "req", r)
		require.NoError(t, err)
	}

	agg, err := repo.Aggregate(ctx, "req", "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), agg.TotalCount)
	assert.InDelta(t, 80.0, agg.AverageSeasonalConfidence, 1e-9)
	assert.InDelta(t, 80.0, agg.AverageSkinToneConfidence, 1e-9)
	assert.Equal(t, map[string]int64{models.SeasonWinter: 2, models.SeasonAutumn: 1}, agg.SeasonCounts)
	assert.Equal(t, map[string]int64{models.SkinToneLight: 1, models.SkinToneMedium: 2}, agg.SkinToneCounts)

	empty, err := repo.Aggregate(ctx, "req", "nobody")
	require.NoError(t, err)
	assert.Equal(t, int64(0), empty.TotalCount)
	assert.Empty(t, empty.SeasonCounts)
}

func TestMigrateIsIdempotent(t *testing.T) {
	repo := newTestRepository(t)
	require.NoError(t, repo.Migrate(context.Background()))
}

type transientTestError struct{}

func (transientTestError) Error() string   { return "transient" }
func (transientTestError) Timeout() bool   { return true }
func (transientTestError) Temporary() bool { return true }

func TestExecuteWithRetryRetriesTransientErrors(t *testing.T) {
	repo := &HistoryRepository{
		logger: zap.NewNop(),
		policy: retry.Policy{Attempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond},
	}

	attempts := 0
	err := repo.executeWithRetry(context.Background(), "test.operation", "req-1", func() error {
		attempts++
		if attempts < 2 {
			return transientTestError{}
		}
		return nil
	})

	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestExecuteWithRetryReturnsOperationError(t *testing.T) {
	repo := &HistoryRepository{
		logger: zap.NewNop(),
		policy: retry.Policy{Attempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond},
	}

	attempts := 0
	err := repo.executeWithRetry(context.Background(), "test.operation", "req-2", func() error {
		attempts++
		return errors.New("boom")
	})

	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}

	var opErr *logging.OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OperationError, got %T", err)
	}
	if opErr.Operation != "test.operation" {
		t.Fatalf("unexpected operation: %s", opErr.Operation)
	}
	if opErr.RequestID != "req-2" {
		t.Fatalf("unexpected request id: %s", opErr.RequestID)
	}
}
