// Package classifier wraps the pretrained seasonal-colour and skin-tone
// models behind a small interface.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/example/smartfit/internal/imageprocessor"
)

// Prediction is the decoded output of one classifier run.
type Prediction struct {
	Label         string
	Confidence    float64 // max probability x 100
	Probabilities map[string]float64
}

// Classifier maps a tensor to a label over a fixed label set. Implementations
// must be safe for concurrent use.
type Classifier interface {
	Name() string
	Labels() []string
	Classify(ctx context.Context, tensor imageprocessor.Tensor) (*Prediction, error)
}

// ModelLoadError reports a classifier that could not be loaded at startup.
type ModelLoadError struct {
	Model string
	Path  string
	Err   error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("load %s model from %s: %v", e.Model, e.Path, e.Err)
}

func (e *ModelLoadError) Unwrap() error {
	return e.Err
}

// Decode picks the argmax label and reports its probability as a percentage.
func Decode(labels []string, scores []float32) (*Prediction, error) {
	if len(labels) == 0 {
		return nil, errors.New("classifier has no labels")
	}
	if len(scores) != len(labels) {
		return nil, fmt.Errorf("model returned %d scores for %d labels", len(scores), len(labels))
	}

	best := 0
	probabilities := make(map[string]float64, len(labels))
	for i, score := range scores {
		v := float64(score)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("model returned non-finite score for %s", labels[i])
		}
		probabilities[labels[i]] = v
		if score > scores[best] {
			best = i
		}
	}

	return &Prediction{
		Label:         labels[best],
		Confidence:    float64(scores[best]) * 100,
		Probabilities: probabilities,
	}, nil
}
