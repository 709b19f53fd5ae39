package processor

import (
	"context"
	"fmt"

	"github.com/airbusgeo/godal"
	"github.com/geoagro/ndvi-ingester/service/log"
)

// Clip cuts the raster along the boundary of the cutline vector file (GeoJSON)
// and crops the output to it. where optionally filters the cutline features
// with an attribute query.
func Clip(ctx context.Context, rasterFile, cutlineFile, outFile, where string) error {
	srcDS, err := godal.Open(rasterFile)
	if err != nil {
		return fmt.Errorf("Clip.Open: %w", err)
	}
	defer srcDS.Close()

	switches := []string{
		"-of", "GTiff",
		"-cutline", cutlineFile,
		"-crop_to_cutline",
		"-co", "COMPRESS=LZW",
		"-co", "TILED=YES",
	}
	if where != "" {
		switches = append(switches, "-cwhere", where)
	}

	outDS, err := godal.Warp(outFile, []*godal.Dataset{srcDS}, switches)
	if err != nil {
		return fmt.Errorf("Clip.Warp: %w", err)
	}
	if err := outDS.Close(); err != nil {
		return fmt.Errorf("Clip.Close: %w", err)
	}

	log.Logger(ctx).Sugar().Infof("clip %s along %s", outFile, cutlineFile)
	return nil
}
