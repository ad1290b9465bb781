package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArgmax(t *testing.T) {
	tests := []struct {
		name string
		in   []float32
		want int
	}{
		{"empty", nil, -1},
		{"single", []float32{-3}, 0},
		{"last", []float32{0.1, 0.2, 0.9}, 2},
		{"ties pick first", []float32{1, 5, 5, 2}, 1},
		{"all negative", []float32{-4, -1, -2}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Argmax(tt.in))
		})
	}
}

func TestSoftmax(t *testing.T) {
	probs := Softmax([]float32{1000, 1000, 998})

	var sum float32
	for _, p := range probs {
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-5)
	assert.InDelta(t, probs[0], probs[1], 1e-7)
	assert.Greater(t, probs[0], probs[2])

	assert.Empty(t, Softmax(nil))
}

func TestNewPrediction(t *testing.T) {
	labels := []string{"angry", "happy", "sad"}
	logits := []float32{0.5, 2.5, -1}

	p := newPrediction(labels, logits)

	assert.Equal(t, "happy", p.Emotion)
	assert.Equal(t, 1, p.Index)
	assert.Len(t, p.Scores, 3)
	assert.Equal(t, p.Scores["happy"], p.Confidence)
	assert.Equal(t, logits, p.Logits)

	logits[1] = -10
	assert.Equal(t, float32(2.5), p.Logits[1], "prediction must not alias the output tensor")
}

func TestConfigLabels(t *testing.T) {
	t.Run("orders by index", func(t *testing.T) {
		labels, err := Config{ID2Label: map[string]string{"2": "sad", "0": "angry", "1": "happy"}}.Labels()
		require.NoError(t, err)
		assert.Equal(t, []string{"angry", "happy", "sad"}, labels)
	})

	for name, m := range map[string]map[string]string{
		"empty":       {},
		"gap":         {"0": "a", "2": "b"},
		"non integer": {"zero": "a"},
		"negative":    {"-1": "a"},
		"duplicate":   {"1": "a", "01": "b"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Config{ID2Label: m}.Labels()
			assert.Error(t, err)
		})
	}
}

func TestLoadLabels(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"architectures": ["ViTForImageClassification"],
		"id2label": {"0": "angry", "1": "happy", "2": "sad", "3": "scared", "4": "surprised"},
		"label2id": {"angry": 0, "happy": 1, "sad": 2, "scared": 3, "surprised": 4},
		"model_type": "vit"
	}`), 0o644))

	labels, err := LoadLabels(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"angry", "happy", "sad", "scared", "surprised"}, labels)

	_, err = LoadLabels(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestPredict_RejectsWrongLength(t *testing.T) {
	s := &Server{Labels: []string{"a"}, inputLen: 3 * 2 * 2}

	_, err := s.Predict(make([]float32, 5))
	assert.ErrorIs(t, err, ErrShapeMismatch)
}
