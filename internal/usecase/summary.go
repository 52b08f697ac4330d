package usecase

import (
	"context"
	"strings"

	"github.com/example/smartfit/internal/logging"
	"github.com/example/smartfit/internal/models"
)

// HistorySummary represents aggregated insights over a user's history.
type HistorySummary struct {
	UserID                    string           `json:"user_uid"`
	TotalPredictions          int64            `json:"total_predictions"`
	SeasonCounts              map[string]int64 `json:"season_counts"`
	SkinToneCounts            map[string]int64 `json:"skin_tone_counts"`
	AverageSeasonalConfidence float64          `json:"average_seasonal_probability"`
	AverageSkinToneConfidence float64          `json:"average_skin_tone_probability"`
	DominantSeason            string           `json:"dominant_season,omitempty"`
	DominantSkinTone          string           `json:"dominant_skin_tone,omitempty"`
}

// GetHistorySummary aggregates a user's persisted predictions.
func (uc *StyleUseCase) GetHistorySummary(ctx context.Context, userID string) (*HistorySummary, error) {
	requestID := requestIDFrom(ctx)
	if strings.TrimSpace(userID) == "" {
		return nil, logging.NewOperationError("usecase.history_summary", requestID, ErrUserRequired)
	}

	aggregation, err := uc.repo.Aggregate(ctx, requestID, userID)
	if err != nil {
		return nil, err
	}

	summary := &HistorySummary{
		UserID:                    userID,
		TotalPredictions:          aggregation.TotalCount,
		SeasonCounts:              zeroFilled(models.SeasonLabels(), aggregation.SeasonCounts),
		SkinToneCounts:            zeroFilled(models.SkinToneLabels(), aggregation.SkinToneCounts),
		AverageSeasonalConfidence: aggregation.AverageSeasonalConfidence,
		AverageSkinToneConfidence: aggregation.AverageSkinToneConfidence,
	}
	if aggregation.TotalCount > 0 {
		summary.DominantSeason = dominant(models.SeasonLabels(), aggregation.SeasonCounts)
		summary.DominantSkinTone = dominant(models.SkinToneLabels(), aggregation.SkinToneCounts)
	}
	return summary, nil
}

func zeroFilled(labels []string, counts map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(labels))
	for _, l := range labels {
		out[l] = counts[l]
	}
	return out
}

// dominant picks the most frequent label; ties go to the earlier label.
func dominant(labels []string, counts map[string]int64) string {
	best, bestCount := "", int64(0)
	for _, l := range labels {
		if c := counts[l]; c > bestCount {
			best, bestCount = l, c
		}
	}
	return best
}
