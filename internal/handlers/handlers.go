package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/example/smartfit/internal/imageprocessor"
	"github.com/example/smartfit/internal/models"
	"github.com/example/smartfit/internal/prediction"
	"github.com/example/smartfit/internal/repository"
	"github.com/example/smartfit/internal/usecase"
)

// MaxUploadSize caps the image part of an upload.
const MaxUploadSize = 10 << 20

// multipartOverhead leaves room for form fields and boundaries around the image.
const multipartOverhead = 1 << 20

// StyleService is the use case surface the handlers depend on.
type StyleService interface {
	ModelDetails() usecase.ModelDetails
	Predict(ctx context.Context, imageBytes []byte) (*models.PredictionResult, error)
	Recommend(season, skinTone, category string) []models.OutfitItem
	FullFlow(ctx context.Context, imageBytes []byte, category, userID string) (*models.HistoryRecord, error)
	ListHistory(ctx context.Context, userID string) (map[string]models.HistoryRecord, error)
	GetHistoryDetail(ctx context.Context, userID, key string) (*models.HistoryRecord, error)
	DeleteHistory(ctx context.Context, userID, key string) error
	GetHistorySummary(ctx context.Context, userID string) (*usecase.HistorySummary, error)
}

type recommendRequest struct {
	Season       string `json:"season" binding:"required"`
	SkinTone     string `json:"skin_tone" binding:"required"`
	ClothingType string `json:"clothing_type" binding:"required"`
}

// styleRecommendationResponse repeats the prediction key as firebase_key,
// the name the mobile client reads it under.
type styleRecommendationResponse struct {
	*models.HistoryRecord
	FirebaseKey string `json:"firebase_key"`
}

// RegisterRoutes wires the HTTP handlers to the Gin router. Middlewares apply
// to every route except /health.
func RegisterRoutes(router *gin.Engine, svc StyleService, middlewares ...gin.HandlerFunc) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/", middlewares...)

	api.GET("/model_details", func(c *gin.Context) {
		c.JSON(http.StatusOK, svc.ModelDetails())
	})

	api.POST("/predict_color_palette", limitUpload, func(c *gin.Context) {
		data, ok := readImage(c)
		if !ok {
			return
		}

		result, err := svc.Predict(c.Request.Context(), data)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	})

	api.POST("/recommend", func(c *gin.Context) {
		var req recommendRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "season, skin_tone and clothing_type are required"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"outfit_recommendations": svc.Recommend(req.Season, req.SkinTone, req.ClothingType),
		})
	})

	api.POST("/style_recommendation", limitUpload, func(c *gin.Context) {
		data, ok := readImage(c)
		if !ok {
			return
		}

		userID, ok := requireParam(c, "uid", c.PostForm("uid"))
		if !ok {
			return
		}

		record, err := svc.FullFlow(c.Request.Context(), data, c.PostForm("clothing_type"), userID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, styleRecommendationResponse{HistoryRecord: record, FirebaseKey: record.PredictionKey})
	})

	api.GET("/get_prediction_history_list", func(c *gin.Context) {
		userID, ok := requireParam(c, "uid", c.Query("uid"))
		if !ok {
			return
		}

		history, err := svc.ListHistory(c.Request.Context(), userID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, history)
	})

	api.GET("/get_prediction_history_detail", func(c *gin.Context) {
		userID, ok := requireParam(c, "uid", c.Query("uid"))
		if !ok {
			return
		}
		key, ok := requireParam(c, "prediction_key", c.Query("prediction_key"))
		if !ok {
			return
		}

		record, err := svc.GetHistoryDetail(c.Request.Context(), userID, key)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, record)
	})

	api.POST("/delete_prediction_history", func(c *gin.Context) {
		userID, ok := requireParam(c, "uid", c.PostForm("uid"))
		if !ok {
			return
		}
		key, ok := requireParam(c, "prediction_key", c.PostForm("prediction_key"))
		if !ok {
			return
		}

		if err := svc.DeleteHistory(c.Request.Context(), userID, key); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Prediction history deleted successfully"})
	})

	api.GET("/get_prediction_history_summary", func(c *gin.Context) {
		userID, ok := requireParam(c, "uid", c.Query("uid"))
		if !ok {
			return
		}

		summary, err := svc.GetHistorySummary(c.Request.Context(), userID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	})
}

func requireParam(c *gin.Context, name, value string) (string, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " is required"})
		return "", false
	}
	return value, true
}

// limitUpload bounds the request body before any form field is parsed.
func limitUpload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadSize+multipartOverhead)
	c.Next()
}

// readImage extracts the "image" part, enforcing size and content type. It
// writes the error response itself and reports whether the caller may go on.
func readImage(c *gin.Context) ([]byte, bool) {
	file, err := c.FormFile("image")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) || errors.Is(err, multipart.ErrMessageTooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("image exceeds %d bytes", MaxUploadSize)})
			return nil, false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
		return nil, false
	}

	if file.Size > MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("image exceeds %d bytes", MaxUploadSize)})
		return nil, false
	}

	if !isImageContentType(file) {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "image must be an image/* upload"})
		return nil, false
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open image"})
		return nil, false
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read image"})
		return nil, false
	}
	return data, true
}

func isImageContentType(file *multipart.FileHeader) bool {
	return strings.HasPrefix(strings.ToLower(file.Header.Get("Content-Type")), "image/")
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, imageprocessor.ErrInvalidImage):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, repository.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "prediction history not found"})
	case errors.Is(err, usecase.ErrUserRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": "uid is required"})
	case errors.Is(err, prediction.ErrPredictionExhausted):
		c.JSON(http.StatusInternalServerError, gin.H{"error": prediction.ErrPredictionExhausted.Error()})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "request cancelled"})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
