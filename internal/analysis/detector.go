package analysis

import (
	"fmt"
	"strings"
	"sync"

	"matchreel/internal/media"
)

// Built-in detector names. They key the weight and threshold tables.
const (
	DetectorPlayerActivity = "player_activity"
	DetectorBall           = "ball"
	DetectorCrowd          = "crowd"
	DetectorGoalArea       = "goal_area"
)

// Sample is the input to a detector: the frame at Timestamp and the frame one
// sampling step earlier (nil at the start of a scan or after a skipped span).
type Sample struct {
	Timestamp float64
	Frame     *media.Frame
	Previous  *media.Frame
}

// DetectionResult is a single detector's verdict for one frame.
type DetectionResult struct {
	Detector   string  `json:"detector"`
	Confidence float64 `json:"confidence"`
	Err        error   `json:"-"`
}

// Detector scores a frame for one visual signal.
type Detector interface {
	Name() string
	Detect(Sample) (DetectionResult, error)
}

// Registry holds the detectors consulted for every sampled frame.
type Registry struct {
	mu        sync.RWMutex
	detectors []Detector
}

// NewRegistry builds a registry from detectors. Duplicate names panic.
func NewRegistry(detectors ...Detector) *Registry {
	r := &Registry{}
	for _, d := range detectors {
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a detector.
func (r *Registry) Register(d Detector) error {
	if d == nil {
		return fmt.Errorf("register detector: nil detector")
	}
	name := strings.TrimSpace(d.Name())
	if name == "" {
		return fmt.Errorf("register detector: empty name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.detectors {
		if existing.Name() == name {
			return fmt.Errorf("register detector: %q already registered", name)
		}
	}
	r.detectors = append(r.detectors, d)
	return nil
}

// Detectors returns the registered detectors in registration order.
func (r *Registry) Detectors() []Detector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Detector, len(r.detectors))
	copy(out, r.detectors)
	return out
}

// Names returns the registered detector names.
func (r *Registry) Names() []string {
	detectors := r.Detectors()
	names := make([]string, len(detectors))
	for i, d := range detectors {
		names[i] = d.Name()
	}
	return names
}

// Run evaluates every detector against sample. A failing detector yields a
// zero-confidence result carrying its error.
func (r *Registry) Run(sample Sample) []DetectionResult {
	detectors := r.Detectors()
	results := make([]DetectionResult, 0, len(detectors))
	for _, d := range detectors {
		res, err := safeDetect(d, sample)
		res.Detector = d.Name()
		if err != nil {
			res = DetectionResult{Detector: d.Name(), Err: err}
		}
		res.Confidence = clamp01(res.Confidence)
		results = append(results, res)
	}
	return results
}

func safeDetect(d Detector, sample Sample) (res DetectionResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("detector %s panicked: %v", d.Name(), rec)
		}
	}()
	return d.Detect(sample)
}
