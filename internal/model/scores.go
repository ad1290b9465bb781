package model

import "math"

// Argmax returns the first index holding the largest value, or -1 for an
// empty slice.
func Argmax(values []float32) int {
	if len(values) == 0 {
		return -1
	}
	maxIdx := 0
	for i, v := range values {
		if v > values[maxIdx] {
			maxIdx = i
		}
	}
	return maxIdx
}

func Softmax(logits []float32) []float32 {
	out := make([]float32, len(logits))
	if len(logits) == 0 {
		return out
	}

	maxVal := logits[Argmax(logits)]
	var sum float64
	for i, v := range logits {
		e := math.Exp(float64(v - maxVal))
		out[i] = float32(e)
		sum += e
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / sum)
	}
	return out
}

func newPrediction(labels []string, logits []float32) *Prediction {
	probs := Softmax(logits)
	maxIdx := Argmax(logits)

	scores := make(map[string]float32, len(labels))
	for i, p := range probs {
		scores[labels[i]] = p
	}

	return &Prediction{
		Emotion:    labels[maxIdx],
		Index:      maxIdx,
		Confidence: probs[maxIdx],
		Scores:     scores,
		Logits:     append([]float32(nil), logits...),
	}
}
