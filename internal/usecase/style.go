package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/smartfit/internal/classifier"
	"github.com/example/smartfit/internal/logging"
	"github.com/example/smartfit/internal/models"
	"github.com/example/smartfit/internal/recommendation"
	"github.com/example/smartfit/internal/repository"
	"github.com/example/smartfit/internal/retry"
)

// Predictor classifies an uploaded photo.
type Predictor interface {
	Predict(ctx context.Context, imageBytes []byte) (*models.PredictionResult, error)
}

// Recommender looks up outfits and seasonal profiles.
type Recommender interface {
	Recommend(season, skinTone, category string) []models.OutfitItem
	HasCategory(category string) bool
	Profile(season string) (recommendation.Profile, bool)
}

// ProductSearcher finds marketplace products for an item name. It never fails;
// faults yield an empty list.
type ProductSearcher interface {
	Search(ctx context.Context, query string, limit int) []models.ProductSummary
}

// HistoryRepository defines the persistence operations needed by the use case.
type HistoryRepository interface {
	Save(ctx context.Context, requestID string, record *models.HistoryRecord) (string, error)
	List(ctx context.Context, requestID, userID string) ([]models.HistoryRecord, error)
	Get(ctx context.Context, requestID, userID, key string) (*models.HistoryRecord, error)
	Delete(ctx context.Context, requestID, userID, key string) error
	Aggregate(ctx context.Context, requestID, userID string) (*repository.HistoryAggregation, error)
}

// ModelDetails describes the loaded classifiers and the scale ladder.
type ModelDetails struct {
	Models    []classifier.Details `json:"models"`
	Sizes     []int                `json:"image_sizes"`
	Layout    string               `json:"tensor_layout"`
	Selection string               `json:"selection_policy"`
}

// Options tunes the style use case.
type Options struct {
	DefaultCategory string
	ProductsPerItem int
	ProductsTotal   int
	CacheTTL        time.Duration
	ProductCacheTTL time.Duration
	Details         ModelDetails
}

// ErrUserRequired is returned when a history operation has no user id.
var ErrUserRequired = errors.New("user id is required")

// StyleUseCase encapsulates business logic for prediction, recommendation and history.
type StyleUseCase struct {
	predictor   Predictor
	recommender Recommender
	products    ProductSearcher
	repo        HistoryRepository
	cache       Cache
	opts        Options
	logger      *zap.Logger
	retry       retry.Policy
	now         func() time.Time
}

// NewStyleUseCase constructs a new use case instance. products may be nil,
// in which case product search is skipped.
func NewStyleUseCase(predictor Predictor, recommender Recommender, products ProductSearcher, repo HistoryRepository, cache Cache, opts Options, logger *zap.Logger) *StyleUseCase {
	if opts.ProductsPerItem <= 0 {
		opts.ProductsPerItem = 3
	}
	if opts.ProductsTotal <= 0 {
		opts.ProductsTotal = 3
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	if opts.ProductCacheTTL <= 0 {
		opts.ProductCacheTTL = time.Hour
	}
	return &StyleUseCase{
		predictor:   predictor,
		recommender: recommender,
		products:    products,
		repo:        repo,
		cache:       cache,
		opts:        opts,
		logger:      logger.Named("style_usecase"),
		retry:       retry.DefaultPolicy.WithExpected(redis.Nil),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// ModelDetails returns the static model description.
func (uc *StyleUseCase) ModelDetails() ModelDetails {
	return uc.opts.Details
}

// Predict classifies an image without recommending or persisting anything.
func (uc *StyleUseCase) Predict(ctx context.Context, imageBytes []byte) (*models.PredictionResult, error) {
	requestID := requestIDFrom(ctx)
	result, err := uc.predictor.Predict(ctx, imageBytes)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.predict", requestID, err)
		logging.WithOperation(uc.logger, "usecase.predict", requestID).Warn("prediction failed", zap.Error(wrapped))
		return nil, wrapped
	}
	return result, nil
}

// Recommend is the pure table lookup; unknown keys yield an empty list.
func (uc *StyleUseCase) Recommend(season, skinTone, category string) []models.OutfitItem {
	return uc.recommender.Recommend(season, skinTone, category)
}

// FullFlow predicts, recommends, searches products and saves the record.
// Product search and persistence faults are logged and never fail the flow;
// a record that could not be saved has an empty PredictionKey.
func (uc *StyleUseCase) FullFlow(ctx context.Context, imageBytes []byte, category, userID string) (*models.HistoryRecord, error) {
	requestID := requestIDFrom(ctx)
	opLogger := logging.WithOperation(uc.logger, "usecase.full_flow", requestID).With(zap.String("user_id", userID))

	if strings.TrimSpace(userID) == "" {
		return nil, logging.NewOperationError("usecase.full_flow", requestID, ErrUserRequired)
	}

	result, err := uc.predictor.Predict(ctx, imageBytes)
	if err != nil {
		wrapped := logging.NewUserOperationError("usecase.full_flow", requestID, userID, err)
		opLogger.Warn("prediction failed", zap.Error(wrapped))
		return nil, wrapped
	}

	category = uc.resolveCategory(category, opLogger)
	outfits := uc.recommender.Recommend(result.SeasonalLabel, result.SkinToneLabel, category)

	record := &models.HistoryRecord{
		PredictionResult:      *result,
		OutfitRecommendations: outfits,
		Products:              uc.searchProducts(ctx, requestID, outfits, opLogger),
		ClothingCategory:      category,
		UserID:                userID,
		Timestamp:             uc.now(),
	}
	if profile, ok := uc.recommender.Profile(result.SeasonalLabel); ok {
		record.SeasonalDescription = profile.Description
		record.ColorPalette = profile.Palette
	}

	key, err := uc.repo.Save(ctx, requestID, record)
	if err != nil {
		opLogger.Error("failed to persist prediction history", zap.Error(err))
		return record, nil
	}
	record.PredictionKey = key
	uc.cacheRecord(ctx, requestID, record)

	opLogger.Info("style recommendation complete",
		zap.String("prediction_key", key),
		zap.String("clothing_type", category),
		zap.Int("outfits", len(outfits)),
		zap.Int("products", len(record.Products)))
	return record, nil
}

// resolveCategory matches the requested category case-insensitively and
// falls back to the default when it is missing or unknown.
func (uc *StyleUseCase) resolveCategory(category string, opLogger *zap.Logger) string {
	resolved := strings.ToLower(strings.TrimSpace(category))
	if resolved != "" && uc.recommender.HasCategory(resolved) {
		return resolved
	}
	opLogger.Info("clothing type missing or unknown, using default",
		zap.String("requested", category),
		zap.String("default", uc.opts.DefaultCategory))
	return uc.opts.DefaultCategory
}

// searchProducts queries each distinct item once and keeps at most
// ProductsTotal products overall.
func (uc *StyleUseCase) searchProducts(ctx context.Context, requestID string, outfits []models.OutfitItem, opLogger *zap.Logger) []models.ProductSummary {
	products := []models.ProductSummary{}
	if uc.products == nil {
		return products
	}

	seen := make(map[string]struct{}, len(outfits))
	for _, outfit := range outfits {
		if len(products) >= uc.opts.ProductsTotal {
			break
		}
		query := strings.TrimSpace(outfit.Item)
		if query == "" {
			continue
		}
		if _, dup := seen[query]; dup {
			continue
		}
		seen[query] = struct{}{}

		found := uc.cachedSearch(ctx, requestID, query, opLogger)
		for _, p := range found {
			if p.Description == "" {
				p.Description = outfit.Description
			}
			products = append(products, p)
		}
	}

	if len(products) > uc.opts.ProductsTotal {
		products = products[:uc.opts.ProductsTotal]
	}
	if len(products) == 0 {
		opLogger.Warn("no products found for any recommendation")
	}
	return products
}

func (uc *StyleUseCase) cachedSearch(ctx context.Context, requestID, query string, opLogger *zap.Logger) []models.ProductSummary {
	key := productCacheKey(query)
	if cached, err := uc.withCacheGet(ctx, requestID, "cache.get.products", key); err == nil {
		var products []models.ProductSummary
		if err := json.Unmarshal([]byte(cached), &products); err == nil {
			return products
		}
		opLogger.Warn("failed to decode cached products", zap.String("query", query))
	} else if !errors.Is(err, redis.Nil) {
		opLogger.Warn("failed to read product cache", zap.Error(err))
	}

	products := uc.products.Search(ctx, query, uc.opts.ProductsPerItem)
	if len(products) == 0 {
		return products
	}
	serialized, err := json.Marshal(products)
	if err != nil {
		opLogger.Warn("failed to serialize products", zap.Error(err))
		return products
	}
	if err := uc.withCacheRetry(ctx, requestID, "cache.set.products", func() error {
		return uc.cache.Set(ctx, key, string(serialized), uc.opts.ProductCacheTTL)
	}); err != nil {
		opLogger.Warn("failed to cache products", zap.Error(err))
	}
	return products
}

// ListHistory returns a user's records keyed by prediction key.
func (uc *StyleUseCase) ListHistory(ctx context.Context, userID string) (map[string]models.HistoryRecord, error) {
	requestID := requestIDFrom(ctx)
	if strings.TrimSpace(userID) == "" {
		return nil, logging.NewOperationError("usecase.list_history", requestID, ErrUserRequired)
	}
	records, err := uc.repo.List(ctx, requestID, userID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]models.HistoryRecord, len(records))
	for _, r := range records {
		out[r.PredictionKey] = r
	}
	return out, nil
}

// GetHistoryDetail retrieves a cached record or loads it from persistence.
func (uc *StyleUseCase) GetHistoryDetail(ctx context.Context, userID, key string) (*models.HistoryRecord, error) {
	requestID := requestIDFrom(ctx)
	if strings.TrimSpace(userID) == "" {
		return nil, logging.NewOperationError("usecase.get_history_detail", requestID, ErrUserRequired)
	}

	cacheKey := historyCacheKey(userID, key)
	if cached, err := uc.withCacheGet(ctx, requestID, "cache.get.history", cacheKey); err == nil {
		var record models.HistoryRecord
		if err := json.Unmarshal([]byte(cached), &record); err != nil {
			logging.WithOperation(uc.logger, "usecase.get_history_detail", requestID).Warn("failed to decode cached record", zap.Error(err))
		} else {
			return &record, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		logging.WithOperation(uc.logger, "usecase.get_history_detail", requestID).Warn("failed to read cache", zap.Error(err))
	}

	record, err := uc.repo.Get(ctx, requestID, userID, key)
	if err != nil {
		return nil, err
	}
	uc.cacheRecord(ctx, requestID, record)
	return record, nil
}

// DeleteHistory removes a record and evicts it from the cache.
func (uc *StyleUseCase) DeleteHistory(ctx context.Context, userID, key string) error {
	requestID := requestIDFrom(ctx)
	if strings.TrimSpace(userID) == "" {
		return logging.NewOperationError("usecase.delete_history", requestID, ErrUserRequired)
	}
	if err := uc.repo.Delete(ctx, requestID, userID, key); err != nil {
		return err
	}
	if err := uc.withCacheRetry(ctx, requestID, "cache.del.history", func() error {
		return uc.cache.Del(ctx, historyCacheKey(userID, key))
	}); err != nil {
		logging.WithOperation(uc.logger, "usecase.delete_history", requestID).Warn("failed to evict cached record", zap.Error(err))
	}
	return nil
}

func (uc *StyleUseCase) cacheRecord(ctx context.Context, requestID string, record *models.HistoryRecord) {
	serialized, err := json.Marshal(record)
	if err != nil {
		logging.WithOperation(uc.logger, "usecase.cache_record", requestID).Warn("failed to serialize record", zap.Error(err))
		return
	}
	if err := uc.withCacheRetry(ctx, requestID, "cache.set.history", func() error {
		return uc.cache.Set(ctx, historyCacheKey(record.UserID, record.PredictionKey), string(serialized), uc.opts.CacheTTL)
	}); err != nil {
		logging.WithOperation(uc.logger, "usecase.cache_record", requestID).Warn("failed to cache record", zap.Error(err))
	}
}

// requestIDFrom reuses the id assigned by the HTTP layer so logs and
// OperationErrors share it.
func requestIDFrom(ctx context.Context) string {
	if id := logging.RequestIDFromContext(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}

func (uc *StyleUseCase) withCacheRetry(ctx context.Context, requestID, operation string, fn func() error) error {
	return retry.Do(ctx, uc.retry, uc.logger, operation, requestID, fn)
}

func (uc *StyleUseCase) withCacheGet(ctx context.Context, requestID, operation, cacheKey string) (string, error) {
	var result string
	err := uc.withCacheRetry(ctx, requestID, operation, func() error {
		value, err := uc.cache.Get(ctx, cacheKey)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}
