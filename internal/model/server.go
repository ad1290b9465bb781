package model

import (
	"errors"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var ErrShapeMismatch = errors.New("input shape mismatch")

type Options struct {
	ModelPath  string
	ConfigPath string
	InputName  string
	OutputName string

	// SharedLibraryPath points at libonnxruntime; empty keeps the default.
	SharedLibraryPath string

	Height int
	Width  int
}

// Server owns one ONNX session with preallocated tensors. Predict is safe
// for concurrent use; calls are serialized.
type Server struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	Labels       []string
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	inputLen     int
}

func NewServer(opts Options) (*Server, error) {
	labels, err := LoadLabels(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	if opts.SharedLibraryPath != "" {
		ort.SetSharedLibraryPath(opts.SharedLibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	s := &Server{
		Labels:   labels,
		inputLen: 3 * opts.Height * opts.Width,
	}

	inputShape := ort.NewShape(1, 3, int64(opts.Height), int64(opts.Width))
	outputShape := ort.NewShape(1, int64(len(labels)))

	s.inputTensor, err = ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	s.outputTensor, err = ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	s.session, err = ort.NewAdvancedSession(opts.ModelPath,
		[]string{opts.InputName}, []string{opts.OutputName},
		[]ort.ArbitraryTensor{s.inputTensor}, []ort.ArbitraryTensor{s.outputTensor},
		nil)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return s, nil
}

// Predict runs one forward pass over a [1,3,H,W] pixel_values tensor.
func (s *Server) Predict(pixelValues []float32) (*Prediction, error) {
	if len(pixelValues) != s.inputLen {
		return nil, fmt.Errorf("%w: expected %d values, got %d", ErrShapeMismatch, s.inputLen, len(pixelValues))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy(s.inputTensor.GetData(), pixelValues)

	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	return newPrediction(s.Labels, s.outputTensor.GetData()), nil
}

func (s *Server) Close() {
	if s.inputTensor != nil {
		s.inputTensor.Destroy()
	}
	if s.outputTensor != nil {
		s.outputTensor.Destroy()
	}
	if s.session != nil {
		s.session.Destroy()
	}
	ort.DestroyEnvironment()
}
