package processor

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/airbusgeo/godal"
	"github.com/fogleman/gg"
	"github.com/geoagro/ndvi-ingester/service/log"
)

// maxRenderSize bounds the long edge of the rendered preview
const maxRenderSize = 2048

// Render draws the NDVI raster as a PNG preview: values are stretched between
// the 2nd and 98th percentiles and mapped on a green ramp, values outside
// [-1,1] are left transparent. title is drawn at the top when not empty.
func Render(ctx context.Context, rasterFile, outFile, title string) error {
	ds, err := godal.Open(rasterFile)
	if err != nil {
		return fmt.Errorf("Render.Open: %w", err)
	}
	defer ds.Close()

	structure := ds.Bands()[0].Structure()
	width, height := fitSize(structure.SizeX, structure.SizeY, maxRenderSize)

	preview, err := ds.Translate("", []string{
		"-of", "MEM",
		"-outsize", strconv.Itoa(width), strconv.Itoa(height),
		"-r", "average",
	})
	if err != nil {
		return fmt.Errorf("Render.Translate: %w", err)
	}
	defer preview.Close()

	values := make([]float32, width*height)
	if err := preview.Bands()[0].Read(0, 0, values, width, height); err != nil {
		return fmt.Errorf("Render.Read: %w", err)
	}

	low, high := percentileStretch(values, 2, 98)

	dc := gg.NewContext(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			value := values[y*width+x]
			if value < -1 || value > 1 || math.IsNaN(float64(value)) {
				continue
			}
			r, g, b := rampColor(stretch(value, low, high))
			dc.SetRGB(r, g, b)
			dc.SetPixel(x, y)
		}
	}
	if title != "" {
		dc.SetRGB(0, 0, 0)
		dc.DrawStringAnchored(title, float64(width)/2, 16, 0.5, 0.5)
	}
	if err := dc.SavePNG(outFile); err != nil {
		return fmt.Errorf("Render.SavePNG: %w", err)
	}

	log.Logger(ctx).Sugar().Infof("render %s (%dx%d, stretch [%.3f, %.3f])", outFile, width, height, low, high)
	return nil
}

// fitSize scales (sx, sy) down so the long edge is at most maxSize
func fitSize(sx, sy, maxSize int) (int, int) {
	if sx <= maxSize && sy <= maxSize {
		return sx, sy
	}
	if sx >= sy {
		return maxSize, int(math.Max(1, math.Round(float64(sy)*float64(maxSize)/float64(sx))))
	}
	return int(math.Max(1, math.Round(float64(sx)*float64(maxSize)/float64(sy)))), maxSize
}

// percentileStretch returns the values of the lower and upper percentiles,
// ignoring NaN and the pixels outside [-1,1]
func percentileStretch(values []float32, lower, upper float64) (float32, float32) {
	valid := make([]float32, 0, len(values))
	for _, v := range values {
		if v >= -1 && v <= 1 && !math.IsNaN(float64(v)) {
			valid = append(valid, v)
		}
	}
	if len(valid) == 0 {
		return -1, 1
	}
	sort.Slice(valid, func(i, j int) bool { return valid[i] < valid[j] })
	low := valid[int(lower/100*float64(len(valid)-1))]
	high := valid[int(upper/100*float64(len(valid)-1))]
	if low == high {
		return low - 1e-6, high + 1e-6
	}
	return low, high
}

func stretch(value, low, high float32) float64 {
	t := float64(value-low) / float64(high-low)
	return math.Min(1, math.Max(0, t))
}

// rampColor interpolates from pale sand to deep green
func rampColor(t float64) (float64, float64, float64) {
	return 0.91 - 0.91*t, 0.84 - 0.34*t, 0.67 - 0.67*t
}
