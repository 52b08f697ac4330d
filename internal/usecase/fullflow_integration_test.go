package usecase

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/smartfit/internal/classifier"
	"github.com/example/smartfit/internal/imageprocessor"
	"github.com/example/smartfit/internal/models"
	"github.com/example/smartfit/internal/prediction"
	"github.com/example/smartfit/internal/recommendation"
	"github.com/example/smartfit/internal/repository"
)

// fixedClassifier always returns the same probability vector.
type fixedClassifier struct {
	labels []string
	scores []float32
}

func (f fixedClassifier) Name() string     { return "fixed" }
func (f fixedClassifier) Labels() []string { return f.labels }
func (f fixedClassifier) Classify(_ context.Context, _ imageprocessor.Tensor) (*classifier.Prediction, error) {
	return classifier.Decode(f.labels, f.scores)
}

func TestFullFlowEndToEnd(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:fullflow?mode=memory&cache=shared"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	repo := repository.NewHistoryRepository(db, zap.NewNop())
	require.NoError(t, repo.Migrate(context.Background()))

	coordinator := prediction.NewCoordinator(
		fixedClassifier{labels: models.SeasonLabels(), scores: []float32{0.92, 0.04, 0.02, 0.02}},
		fixedClassifier{labels: models.SkinToneLabels(), scores: []float32{0.10, 0.81, 0.09}},
		imageprocessor.NewPreprocessor(nil, imageprocessor.LayoutNHWC, zap.NewNop()),
		prediction.SelectFirst,
		zap.NewNop(),
	)
	rec, err := recommendation.Load()
	require.NoError(t, err)

	uc := NewStyleUseCase(coordinator, rec, nil, repo, &stubCache{}, Options{DefaultCategory: "streetwear-men"}, zap.NewNop())

	img := image.NewRGBA(image.Rect(0, 0, 300, 300))
	for y := 0; y < 300; y++ {
		for x := 0; x < 300; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 150, B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))

	record, err := uc.FullFlow(context.Background(), buf.Bytes(), "formal-men", "user-77")
	require.NoError(t, err)

	assert.Equal(t, models.SeasonWinter, record.SeasonalLabel)
	assert.InDelta(t, 92.0, record.SeasonalConfidence, 1e-4)
	assert.Equal(t, models.SkinToneMedium, record.SkinToneLabel)
	assert.InDelta(t, 81.0, record.SkinToneConfidence, 1e-4)
	assert.Equal(t, "#C19A6B", record.SkinToneHex)
	assert.NotEmpty(t, record.OutfitRecommendations)
	assert.Equal(t, "user-77", record.UserID)
	assert.False(t, record.Timestamp.IsZero())
	require.NotEmpty(t, record.PredictionKey)

	stored, err := uc.GetHistoryDetail(context.Background(), "user-77", record.PredictionKey)
	require.NoError(t, err)
	assert.Equal(t, record.OutfitRecommendations, stored.OutfitRecommendations)

	history, err := uc.ListHistory(context.Background(), "user-77")
	require.NoError(t, err)
	assert.Contains(t, history, record.PredictionKey)

	summary, err := uc.GetHistorySummary(context.Background(), "user-77")
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.TotalPredictions)
	assert.Equal(t, models.SeasonWinter, summary.DominantSeason)

	require.NoError(t, uc.DeleteHistory(context.Background(), "user-77", record.PredictionKey))
	_, err = uc.GetHistoryDetail(context.Background(), "user-77", record.PredictionKey)
	assert.ErrorIs(t, err, repository.ErrRecordNotFound)
}
