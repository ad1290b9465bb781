package model

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// Config is the subset of a Hugging Face config.json the server needs.
type Config struct {
	ID2Label map[string]string `json:"id2label"`
}

type PredictionRequest struct {
	PixelValues []float32 `json:"pixel_values"`
}

type Prediction struct {
	Emotion    string             `json:"emotion"`
	Index      int                `json:"index"`
	Confidence float32            `json:"confidence"`
	Scores     map[string]float32 `json:"scores"`
	Logits     []float32          `json:"logits"`
}

// LoadLabels reads id2label from a model config and returns the labels
// ordered by class index.
func LoadLabels(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse model config: %w", err)
	}
	return cfg.Labels()
}

// Labels requires indices to be exactly 0..n-1.
func (c Config) Labels() ([]string, error) {
	if len(c.ID2Label) == 0 {
		return nil, fmt.Errorf("model config has no id2label entries")
	}

	labels := make([]string, len(c.ID2Label))
	seen := make([]bool, len(c.ID2Label))
	for key, label := range c.ID2Label {
		idx, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("id2label key %q is not an integer", key)
		}
		if idx < 0 || idx >= len(labels) {
			return nil, fmt.Errorf("id2label index %d out of range [0,%d)", idx, len(labels))
		}
		if seen[idx] {
			return nil, fmt.Errorf("id2label index %d appears twice", idx)
		}
		seen[idx] = true
		labels[idx] = label
	}
	return labels, nil
}
