package processor

import (
	"math"
	"strings"
)

// Score ranks a result: confidence plus ln(1 + trimmed text length in bytes).
// Failed results score zero.
func Score(r *OCRResult) float64 {
	if r == nil || !r.Succeeded {
		return 0
	}
	conf := 0.0
	if r.Confidence != nil {
		conf = *r.Confidence
	}
	return conf + math.Log1p(float64(len(strings.TrimSpace(r.Text))))
}

// IsBetter reports whether candidate should replace best. Equal scores keep
// best, so the earliest variant wins ties.
func IsBetter(candidate, best *OCRResult) bool {
	if candidate == nil {
		return false
	}
	if best == nil {
		return true
	}
	return Score(candidate) > Score(best)
}

// selectBest folds results in order and returns the index of the winner, or -1
// for an empty slice.
func selectBest(results []OCRResult) int {
	bestIdx := -1
	var best *OCRResult
	for i := range results {
		if IsBetter(&results[i], best) {
			best = &results[i]
			bestIdx = i
		}
	}
	return bestIdx
}
