package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/example/smartfit/internal/models"
	"github.com/example/smartfit/internal/retry"
)

// ErrRecordNotFound is returned when no record matches the user and key.
var ErrRecordNotFound = errors.New("prediction record not found")

// PredictionHistory is one persisted style recommendation.
type PredictionHistory struct {
	ID                    uint           `gorm:"primaryKey"`
	PredictionKey         string         `gorm:"column:prediction_key;uniqueIndex;size:36;not null"`
	UserID                string         `gorm:"column:user_id;index;size:128;not null"`
	SeasonalLabel         string         `gorm:"column:seasonal_label;size:16"`
	SeasonalConfidence    float64        `gorm:"column:seasonal_confidence"`
	SkinToneLabel         string         `gorm:"column:skin_tone_label;size:16"`
	SkinToneConfidence    float64        `gorm:"column:skin_tone_confidence"`
	SkinToneHex           string         `gorm:"column:skin_tone_hex;size:7"`
	ImageSize             int            `gorm:"column:image_size"`
	ClothingType          string         `gorm:"column:clothing_type;size:64"`
	SeasonalDescription   string         `gorm:"column:seasonal_description;type:text"`
	ColorPalette          datatypes.JSON `gorm:"column:color_palette"`
	OutfitRecommendations datatypes.JSON `gorm:"column:outfit_recommendations"`
	Products              datatypes.JSON `gorm:"column:products"`
	CreatedAt             time.Time      `gorm:"column:created_at;index"`
}

// TableName overrides the default table name.
func (PredictionHistory) TableName() string {
	return "prediction_history"
}

// HistoryAggregation holds per-user counts and averages computed in SQL.
type HistoryAggregation struct {
	TotalCount                int64
	AverageSeasonalConfidence float64
	AverageSkinToneConfidence float64
	SeasonCounts              map[string]int64
	SkinToneCounts            map[string]int64
}

// HistoryRepository stores prediction history records.
type HistoryRepository struct {
	db     *gorm.DB
	logger *zap.Logger
	policy retry.Policy
}

// NewHistoryRepository creates a repository that retries transient database
// faults with retry.DefaultPolicy.
func NewHistoryRepository(db *gorm.DB, logger *zap.Logger) *HistoryRepository {
	return &HistoryRepository{db: db, logger: logger.Named("repository"), policy: retry.DefaultPolicy.WithExpected(gorm.ErrRecordNotFound)}
}

// Migrate brings the schema up to date.
func (r *HistoryRepository) Migrate(ctx context.Context) error {
	migrator := gormigrate.New(r.db.WithContext(ctx), gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "202410190001_prediction_history",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&PredictionHistory{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("prediction_history")
			},
		},
	})
	if err := migrator.Migrate(); err != nil {
		return fmt.Errorf("migrate prediction history: %w", err)
	}
	return nil
}

// Save persists record under a new store-assigned key and returns that key.
// The record's PredictionKey is set on success.
func (r *HistoryRepository) Save(ctx context.Context, requestID string, record *models.HistoryRecord) (string, error) {
	row, err := toRow(record)
	if err != nil {
		return "", err
	}
	row.PredictionKey = uuid.NewString()

	err = r.executeWithRetry(ctx, "repository.save", requestID, func() error {
		return r.db.WithContext(ctx).Create(row).Error
	})
	if err != nil {
		return "", err
	}
	record.PredictionKey = row.PredictionKey
	record.Timestamp = row.CreatedAt
	return row.PredictionKey, nil
}

// List returns a user's records, newest first.
func (r *HistoryRepository) List(ctx context.Context, requestID, userID string) ([]models.HistoryRecord, error) {
	var rows []PredictionHistory
	err := r.executeWithRetry(ctx, "repository.list", requestID, func() error {
		return r.db.WithContext(ctx).
			Where("user_id = ?", userID).
			Order("created_at DESC").Order("id DESC").
			Find(&rows).Error
	})
	if err != nil {
		return nil, err
	}

	records := make([]models.HistoryRecord, 0, len(rows))
	for i := range rows {
		record, err := rows[i].toRecord()
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	return records, nil
}

// Get returns a single record owned by userID.
func (r *HistoryRepository) Get(ctx context.Context, requestID, userID, key string) (*models.HistoryRecord, error) {
	var row PredictionHistory
	err := r.executeWithRetry(ctx, "repository.get", requestID, func() error {
		return r.db.WithContext(ctx).First(&row, "prediction_key = ? AND user_id = ?", key, userID).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toRecord()
}

// Delete removes a record owned by userID.
func (r *HistoryRepository) Delete(ctx context.Context, requestID, userID, key string) error {
	var affected int64
	err := r.executeWithRetry(ctx, "repository.delete", requestID, func() error {
		result := r.db.WithContext(ctx).
			Where("prediction_key = ? AND user_id = ?", key, userID).
			Delete(&PredictionHistory{})
		affected = result.RowsAffected
		return result.Error
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// Aggregate computes the history summary for a user.
func (r *HistoryRepository) Aggregate(ctx context.Context, requestID, userID string) (*HistoryAggregation, error) {
	var totals struct {
		TotalCount                int64
		AverageSeasonalConfidence float64
		AverageSkinToneConfidence float64
	}
	type labelCount struct {
		Label string
		Count int64
	}
	var seasons, tones []labelCount

	err := r.executeWithRetry(ctx, "repository.aggregate", requestID, func() error {
		base := r.db.WithContext(ctx).Model(&PredictionHistory{}).Where("user_id = ?", userID)
		if err := base.Session(&gorm.Session{}).
			Select("COUNT(*) AS total_count, COALESCE(AVG(seasonal_confidence), 0) AS average_seasonal_confidence, COALESCE(AVG(skin_tone_confidence), 0) AS average_skin_tone_confidence").
			Scan(&totals).Error; err != nil {
			return err
		}
		if err := base.Session(&gorm.Session{}).
			Select("seasonal_label AS label, COUNT(*) AS count").
			Group("seasonal_label").
			Scan(&seasons).Error; err != nil {
			return err
		}
		return base.Session(&gorm.Session{}).
			Select("skin_tone_label AS label, COUNT(*) AS count").
			Group("skin_tone_label").
			Scan(&tones).Error
	})
	if err != nil {
		return nil, err
	}

	agg := &HistoryAggregation{
		TotalCount:                totals.TotalCount,
		AverageSeasonalConfidence: totals.AverageSeasonalConfidence,
		AverageSkinToneConfidence: totals.AverageSkinToneConfidence,
		SeasonCounts:              make(map[string]int64, len(seasons)),
		SkinToneCounts:            make(map[string]int64, len(tones)),
	}
	for _, s := range seasons {
		agg.SeasonCounts[s.Label] = s.Count
	}
	for _, t := range tones {
		agg.SkinToneCounts[t.Label] = t.Count
	}
	return agg, nil
}

func (r *HistoryRepository) executeWithRetry(ctx context.Context, operation, requestID string, fn func() error) error {
	return retry.Do(ctx, r.policy, r.logger, operation, requestID, fn)
}

func toRow(record *models.HistoryRecord) (*PredictionHistory, error) {
	palette, err := json.Marshal(record.ColorPalette)
	if err != nil {
		return nil, fmt.Errorf("encode color palette: %w", err)
	}
	outfits := record.OutfitRecommendations
	if outfits == nil {
		outfits = []models.OutfitItem{}
	}
	outfitJSON, err := json.Marshal(outfits)
	if err != nil {
		return nil, fmt.Errorf("encode outfit recommendations: %w", err)
	}
	products := record.Products
	if products == nil {
		products = []models.ProductSummary{}
	}
	productJSON, err := json.Marshal(products)
	if err != nil {
		return nil, fmt.Errorf("encode products: %w", err)
	}

	return &PredictionHistory{
		UserID:                record.UserID,
		SeasonalLabel:         record.SeasonalLabel,
		SeasonalConfidence:    record.SeasonalConfidence,
		SkinToneLabel:         record.SkinToneLabel,
		SkinToneConfidence:    record.SkinToneConfidence,
		SkinToneHex:           record.SkinToneHex,
		ImageSize:             record.ImageSize,
		ClothingType:          record.ClothingCategory,
		SeasonalDescription:   record.SeasonalDescription,
		ColorPalette:          datatypes.JSON(palette),
		OutfitRecommendations: datatypes.JSON(outfitJSON),
		Products:              datatypes.JSON(productJSON),
		CreatedAt:             record.Timestamp,
	}, nil
}

func (p *PredictionHistory) toRecord() (*models.HistoryRecord, error) {
	record := &models.HistoryRecord{
		PredictionKey: p.PredictionKey,
		PredictionResult: models.PredictionResult{
			SeasonalLabel:      p.SeasonalLabel,
			SeasonalConfidence: p.SeasonalConfidence,
			SkinToneLabel:      p.SkinToneLabel,
			SkinToneConfidence: p.SkinToneConfidence,
			SkinToneHex:        p.SkinToneHex,
			ImageSize:          p.ImageSize,
		},
		SeasonalDescription: p.SeasonalDescription,
		ClothingCategory:    p.ClothingType,
		UserID:              p.UserID,
		Timestamp:           p.CreatedAt,
	}
	if err := decodeJSON(p.ColorPalette, &record.ColorPalette); err != nil {
		return nil, fmt.Errorf("decode color palette for %s: %w", p.PredictionKey, err)
	}
	if err := decodeJSON(p.OutfitRecommendations, &record.OutfitRecommendations); err != nil {
		return nil, fmt.Errorf("decode outfit recommendations for %s: %w", p.PredictionKey, err)
	}
	if err := decodeJSON(p.Products, &record.Products); err != nil {
		return nil, fmt.Errorf("decode products for %s: %w", p.PredictionKey, err)
	}
	return record, nil
}

func decodeJSON(raw datatypes.JSON, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}
