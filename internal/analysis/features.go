package analysis

import (
	"image"
	"math"
)

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// meanAbsDiff returns the mean absolute luma difference (0-255) between two
// frames of identical size.
func meanAbsDiff(a, b *image.Gray) float64 {
	if a == nil || b == nil || a.Rect != b.Rect || len(a.Pix) == 0 {
		return 0
	}
	var sum int64
	for i := range a.Pix {
		d := int64(a.Pix[i]) - int64(b.Pix[i])
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return float64(sum) / float64(len(a.Pix))
}

// regionStats returns the mean and standard deviation of luma inside r.
func regionStats(img *image.Gray, r image.Rectangle) (mean, std float64) {
	r = r.Intersect(img.Rect)
	n := float64(r.Dx() * r.Dy())
	if n == 0 {
		return 0, 0
	}
	var sum, sumSq float64
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := img.Pix[img.PixOffset(r.Min.X, y):img.PixOffset(r.Max.X, y)]
		for _, p := range row {
			v := float64(p)
			sum += v
			sumSq += v * v
		}
	}
	mean = sum / n
	variance := sumSq/n - mean*mean
	if variance < 0 {
		variance = 0
	}
	return mean, math.Sqrt(variance)
}

// edgeDensity returns the fraction of pixels in r whose horizontal plus
// vertical gradient exceeds threshold.
func edgeDensity(img *image.Gray, r image.Rectangle, threshold int) float64 {
	r = r.Intersect(img.Rect)
	if r.Dx() < 2 || r.Dy() < 2 {
		return 0
	}
	var edges, total int
	for y := r.Min.Y; y < r.Max.Y-1; y++ {
		for x := r.Min.X; x < r.Max.X-1; x++ {
			p := int(img.GrayAt(x, y).Y)
			dx := int(img.GrayAt(x+1, y).Y) - p
			dy := int(img.GrayAt(x, y+1).Y) - p
			if dx < 0 {
				dx = -dx
			}
			if dy < 0 {
				dy = -dy
			}
			if dx+dy > threshold {
				edges++
			}
			total++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(edges) / float64(total)
}

type blob struct {
	area       int
	minX, minY int
	maxX, maxY int
	lumaSum    int
}

func (b blob) width() int  { return b.maxX - b.minX + 1 }
func (b blob) height() int { return b.maxY - b.minY + 1 }

// brightBlobs labels 4-connected regions of pixels at or above threshold.
func brightBlobs(img *image.Gray, threshold uint8) []blob {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	if w == 0 || h == 0 {
		return nil
	}
	visited := make([]bool, w*h)
	var blobs []blob
	stack := make([]int, 0, 64)
	for start := 0; start < w*h; start++ {
		if visited[start] || img.Pix[pixIndex(img, start%w, start/w)] < threshold {
			continue
		}
		b := blob{minX: w, minY: h, maxX: -1, maxY: -1}
		stack = append(stack[:0], start)
		visited[start] = true
		for len(stack) > 0 {
			idx := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := idx%w, idx/w
			b.area++
			b.lumaSum += int(img.Pix[pixIndex(img, x, y)])
			b.minX, b.maxX = min(b.minX, x), max(b.maxX, x)
			b.minY, b.maxY = min(b.minY, y), max(b.maxY, y)
			for _, n := range [4][2]int{{x - 1, y}, {x + 1, y}, {x, y - 1}, {x, y + 1}} {
				nx, ny := n[0], n[1]
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				ni := ny*w + nx
				if visited[ni] || img.Pix[pixIndex(img, nx, ny)] < threshold {
					continue
				}
				visited[ni] = true
				stack = append(stack, ni)
			}
		}
		blobs = append(blobs, b)
	}
	return blobs
}

func pixIndex(img *image.Gray, x, y int) int {
	return img.PixOffset(img.Rect.Min.X+x, img.Rect.Min.Y+y)
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
