// Package prediction drives validation, preprocessing and both classifiers
// to produce a PredictionResult.
package prediction

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/smartfit/internal/classifier"
	"github.com/example/smartfit/internal/imageprocessor"
	"github.com/example/smartfit/internal/models"
)

// ErrPredictionExhausted is returned when no scale produced a prediction.
var ErrPredictionExhausted = errors.New("prediction failed for all preprocessing strategies")

// Coordinator owns the classifiers and the scale ladder. It holds no
// per-request state and is safe for concurrent use.
type Coordinator struct {
	seasonal     classifier.Classifier
	skinTone     classifier.Classifier
	preprocessor *imageprocessor.Preprocessor
	selection    Selection
	logger       *zap.Logger
}

// NewCoordinator wires the classifiers to a preprocessor.
func NewCoordinator(seasonal, skinTone classifier.Classifier, preprocessor *imageprocessor.Preprocessor, selection Selection, logger *zap.Logger) *Coordinator {
	if selection == "" {
		selection = SelectFirst
	}
	return &Coordinator{
		seasonal:     seasonal,
		skinTone:     skinTone,
		preprocessor: preprocessor,
		selection:    selection,
		logger:       logger.Named("prediction"),
	}
}

// Outcome is a prediction together with the attempts that led to it.
type Outcome struct {
	Result   *models.PredictionResult
	Attempts []Attempt
	State    State
}

// Predict validates and classifies raw image bytes. Image faults wrap
// imageprocessor.ErrInvalidImage; when every scale fails the error wraps
// ErrPredictionExhausted and no partial result is returned.
func (c *Coordinator) Predict(ctx context.Context, imageBytes []byte) (*models.PredictionResult, error) {
	outcome, err := c.Run(ctx, imageBytes)
	if err != nil {
		return nil, err
	}
	return outcome.Result, nil
}

// Run is Predict with the attempt trace exposed.
func (c *Coordinator) Run(ctx context.Context, imageBytes []byte) (*Outcome, error) {
	img, err := imageprocessor.Validate(imageBytes)
	if err != nil {
		c.logger.Warn("image validation failed", zap.Error(err))
		return nil, err
	}

	tensors, err := c.preprocessor.Preprocess(img)
	if err != nil {
		c.logger.Error("image preprocessing failed", zap.Error(err))
		return nil, err
	}

	machine := newAttempts(c.selection, tensors)
	for {
		tensor, ok := machine.advance()
		if !ok {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result, err := c.classify(ctx, tensor)
		if err != nil {
			c.logger.Warn("prediction failed for size", zap.Int("size", tensor.Size), zap.Error(err))
			machine.fail(tensor.Size, err)
			continue
		}
		machine.succeed(tensor.Size, result)
	}

	outcome := &Outcome{Attempts: machine.history, State: machine.state}
	if machine.state != StateSucceeded {
		return outcome, fmt.Errorf("%w (%d attempts)", ErrPredictionExhausted, len(machine.history))
	}
	outcome.Result = machine.chosen
	c.logger.Info("prediction complete",
		zap.String("seasonal", outcome.Result.SeasonalLabel),
		zap.Float64("seasonal_confidence", outcome.Result.SeasonalConfidence),
		zap.String("skin_tone", outcome.Result.SkinToneLabel),
		zap.Float64("skin_tone_confidence", outcome.Result.SkinToneConfidence),
		zap.Int("size", outcome.Result.ImageSize),
		zap.String("selection", string(c.selection)))
	return outcome, nil
}

func (c *Coordinator) classify(ctx context.Context, tensor imageprocessor.Tensor) (*models.PredictionResult, error) {
	seasonal, err := c.seasonal.Classify(ctx, tensor)
	if err != nil {
		return nil, fmt.Errorf("seasonal: %w", err)
	}
	skinTone, err := c.skinTone.Classify(ctx, tensor)
	if err != nil {
		return nil, fmt.Errorf("skin tone: %w", err)
	}
	return &models.PredictionResult{
		SeasonalLabel:      seasonal.Label,
		SeasonalConfidence: seasonal.Confidence,
		SkinToneLabel:      skinTone.Label,
		SkinToneConfidence: skinTone.Confidence,
		SkinToneHex:        SkinToneHex(skinTone.Label),
		ImageSize:          tensor.Size,
	}, nil
}

// Sizes returns the scale ladder in attempt order.
func (c *Coordinator) Sizes() []int {
	return c.preprocessor.Sizes()
}

// Selection returns the configured selection policy.
func (c *Coordinator) Selection() Selection {
	return c.selection
}
