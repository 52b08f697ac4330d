package classifier

import (
	"context"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/example/smartfit/internal/config"
	"github.com/example/smartfit/internal/imageprocessor"
	"github.com/example/smartfit/internal/models"
)

var (
	initOnce sync.Once
	initErr  error
)

// InitRuntime loads the onnxruntime shared library once per process.
func InitRuntime(libraryPath string) error {
	initOnce.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			initErr = fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	})
	return initErr
}

// ShutdownRuntime releases the onnxruntime environment.
func ShutdownRuntime() {
	if ort.IsInitialized() {
		_ = ort.DestroyEnvironment()
	}
}

// ModelFile describes one ONNX model file.
type ModelFile struct {
	Name       string
	Path       string
	InputName  string
	OutputName string
	Labels     []string
}

// ONNXClassifier runs a single model through a dynamic session so that the
// input size may vary between calls.
type ONNXClassifier struct {
	file    ModelFile
	session *ort.DynamicAdvancedSession
	logger  *zap.Logger
}

// LoadONNX opens a model. InitRuntime must have been called first.
func LoadONNX(file ModelFile, logger *zap.Logger) (*ONNXClassifier, error) {
	if _, err := os.Stat(file.Path); err != nil {
		return nil, &ModelLoadError{Model: file.Name, Path: file.Path, Err: err}
	}

	session, err := ort.NewDynamicAdvancedSession(file.Path,
		[]string{file.InputName}, []string{file.OutputName}, nil)
	if err != nil {
		return nil, &ModelLoadError{Model: file.Name, Path: file.Path, Err: err}
	}

	logger.Info("model loaded", zap.String("model", file.Name), zap.String("path", file.Path))
	return &ONNXClassifier{file: file, session: session, logger: logger.Named(file.Name)}, nil
}

func (c *ONNXClassifier) Name() string { return c.file.Name }

func (c *ONNXClassifier) Labels() []string { return append([]string(nil), c.file.Labels...) }

// Classify runs the model on one tensor.
func (c *ONNXClassifier) Classify(ctx context.Context, tensor imageprocessor.Tensor) (*Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	input, err := ort.NewTensor(ort.NewShape(tensor.Shape()...), tensor.Data)
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	defer input.Destroy()

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(len(c.file.Labels))))
	if err != nil {
		return nil, fmt.Errorf("create output tensor: %w", err)
	}
	defer output.Destroy()

	if err := c.session.Run([]ort.Value{input}, []ort.Value{output}); err != nil {
		return nil, fmt.Errorf("%s inference failed at %dx%d: %w", c.file.Name, tensor.Size, tensor.Size, err)
	}

	return Decode(c.file.Labels, output.GetData())
}

// Close releases the session.
func (c *ONNXClassifier) Close() {
	if c.session != nil {
		_ = c.session.Destroy()
	}
}

// Details describes the loaded models for the model details endpoint.
type Details struct {
	Name       string   `json:"name"`
	Path       string   `json:"path"`
	InputName  string   `json:"input_name"`
	OutputName string   `json:"output_name"`
	Labels     []string `json:"labels"`
}

// Details returns the static description of the model.
func (c *ONNXClassifier) Details() Details {
	return Details{
		Name:       c.file.Name,
		Path:       c.file.Path,
		InputName:  c.file.InputName,
		OutputName: c.file.OutputName,
		Labels:     c.Labels(),
	}
}

// Pair holds the two classifiers used for a prediction.
type Pair struct {
	Seasonal *ONNXClassifier
	SkinTone *ONNXClassifier
}

// LoadPair initialises the runtime and loads both models. Any failure is
// returned as a *ModelLoadError and leaves nothing open.
func LoadPair(cfg config.ModelConfig, logger *zap.Logger) (*Pair, error) {
	if err := InitRuntime(cfg.RuntimeLibrary); err != nil {
		return nil, &ModelLoadError{Model: "onnxruntime", Path: cfg.RuntimeLibrary, Err: err}
	}

	seasonal, err := LoadONNX(ModelFile{
		Name:       "seasonal",
		Path:       cfg.SeasonalPath,
		InputName:  cfg.InputName,
		OutputName: cfg.OutputName,
		Labels:     models.SeasonLabels(),
	}, logger)
	if err != nil {
		return nil, err
	}

	skinTone, err := LoadONNX(ModelFile{
		Name:       "skintone",
		Path:       cfg.SkinTonePath,
		InputName:  cfg.InputName,
		OutputName: cfg.OutputName,
		Labels:     models.SkinToneLabels(),
	}, logger)
	if err != nil {
		seasonal.Close()
		return nil, err
	}

	return &Pair{Seasonal: seasonal, SkinTone: skinTone}, nil
}

// Close releases both sessions.
func (p *Pair) Close() {
	p.Seasonal.Close()
	p.SkinTone.Close()
}
