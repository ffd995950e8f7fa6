package analysis

import (
	"sort"

	"matchreel/internal/config"
)

// FrameScore is the fused verdict for one sampled frame.
type FrameScore struct {
	Timestamp   float64            `json:"timestamp"`
	Confidence  float64            `json:"confidence"`
	Detections  map[string]float64 `json:"detections"`
	Significant []string           `json:"significant"`
	Highlight   bool               `json:"highlight"`
	Failed      bool               `json:"failed,omitempty"`
	Errors      int                `json:"errors,omitempty"`
}

// IsSignificant reports whether detector crossed its own threshold.
func (s FrameScore) IsSignificant(detector string) bool {
	for _, name := range s.Significant {
		if name == detector {
			return true
		}
	}
	return false
}

// Fusion combines per-detector results with a weight table.
type Fusion struct {
	Weights        map[string]float64
	Thresholds     map[string]float64
	MinConfidence  float64
	MinSignificant int
}

const defaultSignificance = 0.5

// FusionFromConfig builds the fusion table from the analysis section.
func FusionFromConfig(cfg config.Analysis) Fusion {
	return Fusion{
		Weights:        cfg.Weights,
		Thresholds:     cfg.Thresholds,
		MinConfidence:  cfg.FrameConfidence,
		MinSignificant: cfg.MinSignificantDetectors,
	}
}

// Fuse returns the weighted mean confidence over every weighted detector.
// Detectors absent from results count as zero. A frame is a highlight only
// when the fused confidence exceeds MinConfidence and at least MinSignificant
// detectors cross their threshold.
func (f Fusion) Fuse(timestamp float64, results []DetectionResult) FrameScore {
	score := FrameScore{
		Timestamp:  timestamp,
		Detections: make(map[string]float64, len(results)),
	}
	for _, res := range results {
		if res.Err != nil {
			score.Errors++
		}
		score.Detections[res.Detector] = clamp01(res.Confidence)
	}

	var weighted, totalWeight float64
	for name, weight := range f.Weights {
		if weight <= 0 {
			continue
		}
		weighted += weight * score.Detections[name]
		totalWeight += weight
	}
	if totalWeight > 0 {
		score.Confidence = clamp01(weighted / totalWeight)
	}

	for name, confidence := range score.Detections {
		threshold, ok := f.Thresholds[name]
		if !ok {
			threshold = defaultSignificance
		}
		if confidence >= threshold && confidence > 0 {
			score.Significant = append(score.Significant, name)
		}
	}
	sort.Strings(score.Significant)

	minSignificant := f.MinSignificant
	if minSignificant < 1 {
		minSignificant = 1
	}
	score.Highlight = score.Confidence > f.MinConfidence && len(score.Significant) >= minSignificant
	return score
}
