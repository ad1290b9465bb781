package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/Brownie44l1/kaleo-api/internal/logger"
	"github.com/Brownie44l1/kaleo-api/internal/metrics"
	"github.com/Brownie44l1/kaleo-api/internal/model"
	"github.com/Brownie44l1/kaleo-api/internal/preprocess"
)

const (
	WelcomeMessage = "Welcome to the Cat Emotion Classifier API. Use the '/classify' endpoint to classify cat emotions."
	noFileMessage  = "No file provided"
)

var (
	ErrNoFile       = errors.New("no file provided")
	ErrFileTooLarge = errors.New("file too large")
	ErrBodyTooLarge = errors.New("request body too large")
)

type Predictor interface {
	Predict(pixelValues []float32) (*model.Prediction, error)
}

type Handler struct {
	predictor      Predictor
	processor      *preprocess.Processor
	metrics        *metrics.Metrics
	maxUploadBytes int64
}

func NewHandler(predictor Predictor, processor *preprocess.Processor, m *metrics.Metrics, maxUploadBytes int64) *Handler {
	return &Handler{
		predictor:      predictor,
		processor:      processor,
		metrics:        m,
		maxUploadBytes: maxUploadBytes,
	}
}

func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, WelcomeMessage)
}

func (h *Handler) Favicon(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "healthy"}, http.StatusOK)
}

// Classify handles POST /classify with an image in the multipart field "file".
func (h *Handler) Classify(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	file, header, err := h.uploadedFile(w, r)
	if errors.Is(err, ErrNoFile) {
		respondError(w, noFileMessage, http.StatusBadRequest)
		return
	}
	if err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	img, format, err := preprocess.Decode(data)
	if err != nil {
		log.Warn("image decode failed", "filename", header.Filename, "size", len(data), "error", err)
		respondError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	log.Debug("received image", "filename", header.Filename, "format", format,
		"width", img.Bounds().Dx(), "height", img.Bounds().Dy())

	pixelValues := h.processor.Process(r.Context(), img)

	start := time.Now()
	result, err := h.predictor.Predict(pixelValues)
	h.metrics.ObserveInference(time.Since(start))
	if err != nil {
		log.Error("prediction failed", "error", err)
		respondError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.metrics.ObserveClassification(result.Emotion)
	respondJSON(w, map[string]string{"emotion": result.Emotion}, http.StatusOK)
}

// Predict takes an already preprocessed pixel_values tensor and returns the
// full score breakdown.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	var req model.PredictionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, ErrBodyTooLarge.Error(), http.StatusBadRequest)
			return
		}
		respondError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	expected := h.processor.TensorLen()
	if len(req.PixelValues) != expected {
		respondError(w, fmt.Sprintf("Expected %d values, got %d", expected, len(req.PixelValues)),
			http.StatusBadRequest)
		return
	}

	start := time.Now()
	result, err := h.predictor.Predict(req.PixelValues)
	h.metrics.ObserveInference(time.Since(start))
	if err != nil {
		logger.FromContext(r.Context()).Error("prediction failed", "error", err)
		respondError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.metrics.ObserveClassification(result.Emotion)
	respondJSON(w, result, http.StatusOK)
}

func (h *Handler) uploadedFile(w http.ResponseWriter, r *http.Request) (multipart.File, *multipart.FileHeader, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, nil, ErrFileTooLarge
		}
		return nil, nil, ErrNoFile
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, nil, ErrNoFile
	}
	return file, header, nil
}

func respondJSON(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, map[string]string{"error": message}, status)
}
