package processor

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/airbusgeo/godal"
	"github.com/geoagro/ndvi-ingester/common"
	"github.com/geoagro/ndvi-ingester/service/log"
)

// ErrMissingBand is returned when a tile lacks a raster needed by a computation
type ErrMissingBand struct {
	TileID string
	Band   common.Band
}

func (e ErrMissingBand) Error() string {
	return fmt.Sprintf("band %s missing for tile %s", e.Band, e.TileID)
}

// ComputeNDVI computes (NIR-RED)/(NIR+RED) from the B08 and B04 rasters of the
// tile and writes it as a tiled float32 GeoTIFF <TILE>_NDVI.tif next to them.
// RED is resampled to the NIR grid when the resolutions differ.
func ComputeNDVI(ctx context.Context, tile common.TileBands) (string, error) {
	nirFile, ok := tile.Bands[common.BandNIR]
	if !ok {
		return "", ErrMissingBand{TileID: tile.TileID, Band: common.BandNIR}
	}
	redFile, ok := tile.Bands[common.BandRed]
	if !ok {
		return "", ErrMissingBand{TileID: tile.TileID, Band: common.BandRed}
	}

	nirDS, err := godal.Open(nirFile)
	if err != nil {
		return "", fmt.Errorf("ComputeNDVI.Open: %w", err)
	}
	defer nirDS.Close()
	redDS, err := godal.Open(redFile)
	if err != nil {
		return "", fmt.Errorf("ComputeNDVI.Open: %w", err)
	}
	defer redDS.Close()

	structure := nirDS.Bands()[0].Structure()
	sx, sy := structure.SizeX, structure.SizeY

	// Align RED on the NIR grid
	redWarped, err := godal.Warp("", []*godal.Dataset{redDS}, []string{
		"-of", "MEM",
		"-ts", strconv.Itoa(sx), strconv.Itoa(sy),
		"-r", "cubic",
	})
	if err != nil {
		return "", fmt.Errorf("ComputeNDVI.Warp: %w", err)
	}
	defer redWarped.Close()

	nir := make([]float32, sx*sy)
	if err := nirDS.Bands()[0].Read(0, 0, nir, sx, sy); err != nil {
		return "", fmt.Errorf("ComputeNDVI.Read(%s): %w", common.BandNIR, err)
	}
	red := make([]float32, sx*sy)
	if err := redWarped.Bands()[0].Read(0, 0, red, sx, sy); err != nil {
		return "", fmt.Errorf("ComputeNDVI.Read(%s): %w", common.BandRed, err)
	}

	ndvi := normalizedDifference(nir, red)

	outFile := filepath.Join(tile.Dir, fmt.Sprintf("%s_NDVI.tif", tile.TileID))
	outDS, err := godal.Create(godal.GTiff, outFile, 1, godal.Float32, sx, sy,
		godal.CreationOption("COMPRESS=LZW", "TILED=YES"))
	if err != nil {
		return "", fmt.Errorf("ComputeNDVI.Create: %w", err)
	}
	gt, err := nirDS.GeoTransform()
	if err == nil {
		err = outDS.SetGeoTransform(gt)
	}
	if err == nil {
		err = outDS.SetSpatialRef(nirDS.SpatialRef())
	}
	if err == nil {
		err = outDS.Bands()[0].Write(0, 0, ndvi, sx, sy)
	}
	if err != nil {
		outDS.Close()
		return "", fmt.Errorf("ComputeNDVI.Write: %w", err)
	}
	if err := outDS.Close(); err != nil {
		return "", fmt.Errorf("ComputeNDVI.Close: %w", err)
	}

	log.Logger(ctx).Sugar().Infof("ndvi %s (%dx%d)", outFile, sx, sy)
	return outFile, nil
}

// normalizedDifference computes (a-b)/(a+b) per pixel, 0 where the denominator is
func normalizedDifference(a, b []float32) []float32 {
	result := make([]float32, len(a))
	for i := range a {
		if denominator := a[i] + b[i]; denominator != 0 {
			result[i] = (a[i] - b[i]) / denominator
		}
	}
	return result
}
