package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"matchreel/internal/logging"
)

// ActivityStrategy is one way of producing the player-activity detector.
// Strategies are tried in order; the first that loads wins.
type ActivityStrategy struct {
	Name string
	Load func() (Detector, error)
}

// PlayerActivityStrategies returns the ranked strategy list for modelPath:
// the trained activity model when configured, then raw motion magnitude.
func PlayerActivityStrategies(modelPath string) []ActivityStrategy {
	var strategies []ActivityStrategy
	if path := strings.TrimSpace(modelPath); path != "" {
		strategies = append(strategies, ActivityStrategy{
			Name: "model",
			Load: func() (Detector, error) {
				model, err := LoadActivityModel(path)
				if err != nil {
					return nil, err
				}
				return model, nil
			},
		})
	}
	strategies = append(strategies, ActivityStrategy{
		Name: "motion",
		Load: func() (Detector, error) { return motionActivity{}, nil },
	})
	return strategies
}

// SelectStrategy loads the first usable strategy and logs the choice along
// with every strategy that was passed over.
func SelectStrategy(logger *slog.Logger, strategies []ActivityStrategy) (Detector, string) {
	if logger == nil {
		logger = logging.NewNop()
	}
	for _, strategy := range strategies {
		detector, err := strategy.Load()
		if err != nil {
			logging.WarnWithContext(logger, "player activity strategy unavailable; trying next", "activity_strategy_fallback",
				logging.String("strategy", strategy.Name),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check analysis.model_path"),
				logging.String(logging.FieldImpact, "frame scoring degrades to heuristic detection"),
			)
			continue
		}
		logger.Info("player activity strategy selected",
			logging.String("strategy", strategy.Name),
			logging.String(logging.FieldEventType, "activity_strategy_selected"),
		)
		return detector, strategy.Name
	}
	logger.Warn("no player activity strategy loaded; using motion",
		logging.String(logging.FieldEventType, "activity_strategy_fallback"),
	)
	return motionActivity{}, "motion"
}

// ActivityModel is a logistic model over frame features. The on-disk format
// is JSON: {"name": "...", "bias": -2, "weights": {"motion": 4, "edges": 2, "contrast": 1}}.
type ActivityModel struct {
	ModelName string             `json:"name"`
	Bias      float64            `json:"bias"`
	Weights   map[string]float64 `json:"weights"`
}

var activityFeatures = map[string]struct{}{"motion": {}, "edges": {}, "contrast": {}}

// LoadActivityModel reads and validates a model file.
func LoadActivityModel(path string) (*ActivityModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read activity model: %w", err)
	}
	var model ActivityModel
	if err := json.Unmarshal(data, &model); err != nil {
		return nil, fmt.Errorf("decode activity model: %w", err)
	}
	if len(model.Weights) == 0 {
		return nil, errors.New("activity model has no weights")
	}
	for feature := range model.Weights {
		if _, ok := activityFeatures[feature]; !ok {
			return nil, fmt.Errorf("activity model: unknown feature %q", feature)
		}
	}
	return &model, nil
}

// Name implements Detector.
func (m *ActivityModel) Name() string { return DetectorPlayerActivity }

// Detect implements Detector.
func (m *ActivityModel) Detect(sample Sample) (DetectionResult, error) {
	if sample.Frame == nil || sample.Frame.Image == nil {
		return DetectionResult{}, errNoFrame
	}
	img := sample.Frame.Image
	_, std := regionStats(img, img.Rect)
	features := map[string]float64{
		"motion":   motionScore(sample),
		"edges":    edgeDensity(img, img.Rect, edgeThreshold),
		"contrast": clamp01(std / 128),
	}
	z := m.Bias
	for name, weight := range m.Weights {
		z += weight * features[name]
	}
	return DetectionResult{Confidence: sigmoid(z)}, nil
}

// DefaultRegistry builds the four built-in detectors, choosing the
// player-activity implementation from the strategy list.
func DefaultRegistry(logger *slog.Logger, modelPath string) (*Registry, string) {
	activity, strategy := SelectStrategy(logger, PlayerActivityStrategies(modelPath))
	return NewRegistry(activity, ballDetector{}, crowdDetector{}, goalAreaDetector{}), strategy
}
