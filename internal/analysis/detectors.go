package analysis

import (
	"errors"
	"image"
)

var errNoFrame = errors.New("sample has no frame")

const (
	motionScale      = 48.0
	edgeThreshold    = 40
	ballThreshold    = 200
	crowdBandRatio   = 0.3
	goalBandRatio    = 0.25
	crowdStdScale    = 60.0
	crowdEdgeScale   = 0.5
	goalEdgeScale    = 0.35
	ballMaxAreaRatio = 0.005
	ballIdealFill    = 0.785
)

// motionScore maps the mean frame difference onto [0,1].
func motionScore(sample Sample) float64 {
	if sample.Frame == nil || sample.Previous == nil {
		return 0
	}
	return clamp01(meanAbsDiff(sample.Frame.Image, sample.Previous.Image) / motionScale)
}

// motionActivity is the heuristic player-activity strategy: raw motion
// magnitude between consecutive samples.
type motionActivity struct{}

func (motionActivity) Name() string { return DetectorPlayerActivity }

func (motionActivity) Detect(sample Sample) (DetectionResult, error) {
	if sample.Frame == nil {
		return DetectionResult{}, errNoFrame
	}
	return DetectionResult{Confidence: motionScore(sample)}, nil
}

// ballDetector looks for a single small, bright, roughly circular blob.
type ballDetector struct{}

func (ballDetector) Name() string { return DetectorBall }

func (ballDetector) Detect(sample Sample) (DetectionResult, error) {
	if sample.Frame == nil || sample.Frame.Image == nil {
		return DetectionResult{}, errNoFrame
	}
	img := sample.Frame.Image
	maxArea := int(float64(len(img.Pix)) * ballMaxAreaRatio)
	if maxArea < 4 {
		maxArea = 4
	}
	var (
		best       float64
		candidates int
	)
	for _, b := range brightBlobs(img, ballThreshold) {
		if b.area < 2 || b.area > maxArea {
			continue
		}
		candidates++
		bw, bh := b.width(), b.height()
		fill := float64(b.area) / float64(bw*bh)
		fillScore := clamp01(1 - abs(fill-ballIdealFill)/ballIdealFill)
		aspect := float64(min(bw, bh)) / float64(max(bw, bh))
		brightness := float64(b.lumaSum) / float64(b.area) / 255
		if score := fillScore * aspect * brightness; score > best {
			best = score
		}
	}
	if candidates == 0 {
		return DetectionResult{}, nil
	}
	// Many bright specks are clutter, not a ball.
	return DetectionResult{Confidence: best / (1 + 0.25*float64(candidates-1))}, nil
}

// crowdDetector scores texture and variance in the upper stand band.
type crowdDetector struct{}

func (crowdDetector) Name() string { return DetectorCrowd }

func (crowdDetector) Detect(sample Sample) (DetectionResult, error) {
	if sample.Frame == nil || sample.Frame.Image == nil {
		return DetectionResult{}, errNoFrame
	}
	img := sample.Frame.Image
	band := image.Rect(img.Rect.Min.X, img.Rect.Min.Y, img.Rect.Max.X,
		img.Rect.Min.Y+int(float64(img.Rect.Dy())*crowdBandRatio))
	_, std := regionStats(img, band)
	edges := edgeDensity(img, band, edgeThreshold)
	return DetectionResult{Confidence: 0.5*clamp01(std/crowdStdScale) + 0.5*clamp01(edges/crowdEdgeScale)}, nil
}

// goalAreaDetector scores structural activity near either goal mouth.
type goalAreaDetector struct{}

func (goalAreaDetector) Name() string { return DetectorGoalArea }

func (goalAreaDetector) Detect(sample Sample) (DetectionResult, error) {
	if sample.Frame == nil || sample.Frame.Image == nil {
		return DetectionResult{}, errNoFrame
	}
	img := sample.Frame.Image
	bandWidth := int(float64(img.Rect.Dx()) * goalBandRatio)
	left := image.Rect(img.Rect.Min.X, img.Rect.Min.Y, img.Rect.Min.X+bandWidth, img.Rect.Max.Y)
	right := image.Rect(img.Rect.Max.X-bandWidth, img.Rect.Min.Y, img.Rect.Max.X, img.Rect.Max.Y)
	density := max(edgeDensity(img, left, edgeThreshold), edgeDensity(img, right, edgeThreshold))
	return DetectionResult{Confidence: clamp01(density / goalEdgeScale)}, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
