package processor

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/geoagro/ndvi-ingester/common"
)

func TestNormalizedDifference(t *testing.T) {
	nir := []float32{0.8, 0.5, 0, 0.2}
	red := []float32{0.2, 0.5, 0, -0.2}
	ndvi := normalizedDifference(nir, red)

	want := []float32{0.6, 0, 0, 1}
	for i := range want {
		if math.Abs(float64(ndvi[i]-want[i])) > 1e-6 {
			t.Errorf("pixel %d: got %f, want %f", i, ndvi[i], want[i])
		}
	}
}

func TestComputeNDVIMissingBand(t *testing.T) {
	tile := common.TileBands{
		TileID: "T14QNG",
		Bands:  common.BandFiles{common.BandNIR: "b08.jp2"},
	}
	_, err := ComputeNDVI(context.Background(), tile)
	var missing ErrMissingBand
	if !errors.As(err, &missing) {
		t.Fatalf("expected ErrMissingBand, got %v", err)
	}
	if missing.Band != common.BandRed {
		t.Errorf("missing band: got %s", missing.Band)
	}
}

func TestFitSize(t *testing.T) {
	tests := []struct {
		sx, sy, max  int
		wantX, wantY int
	}{
		{10980, 10980, 2048, 2048, 2048},
		{10980, 5490, 2048, 2048, 1024},
		{5490, 10980, 2048, 1024, 2048},
		{1024, 512, 2048, 1024, 512},
		{100000, 10, 2048, 2048, 1},
	}
	for _, tc := range tests {
		gotX, gotY := fitSize(tc.sx, tc.sy, tc.max)
		if gotX != tc.wantX || gotY != tc.wantY {
			t.Errorf("fitSize(%d, %d, %d): got (%d, %d), want (%d, %d)",
				tc.sx, tc.sy, tc.max, gotX, gotY, tc.wantX, tc.wantY)
		}
	}
}

func TestPercentileStretch(t *testing.T) {
	values := make([]float32, 101)
	for i := range values {
		values[i] = -1 + float32(i)*0.02
	}
	// Out-of-range and NaN pixels are ignored
	values = append(values, 5, -5, float32(math.NaN()))

	low, high := percentileStretch(values, 2, 98)
	if math.Abs(float64(low-(-0.96))) > 1e-5 {
		t.Errorf("low: got %f", low)
	}
	if math.Abs(float64(high-0.96)) > 1e-5 {
		t.Errorf("high: got %f", high)
	}

	if s := stretch(low, low, high); s != 0 {
		t.Errorf("stretch(low): got %f", s)
	}
	if s := stretch(high, low, high); s != 1 {
		t.Errorf("stretch(high): got %f", s)
	}
	if s := stretch(2, low, high); s != 1 {
		t.Errorf("stretch above high: got %f", s)
	}
}

func TestPercentileStretchConstant(t *testing.T) {
	low, high := percentileStretch([]float32{0.5, 0.5, 0.5}, 2, 98)
	if low >= high {
		t.Errorf("degenerate stretch: low %f >= high %f", low, high)
	}
}
