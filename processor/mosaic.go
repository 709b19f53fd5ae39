package processor

import (
	"context"
	"fmt"
	"os"

	"github.com/airbusgeo/godal"
	"github.com/geoagro/ndvi-ingester/service/log"
)

// Mosaic merges the rasters into a single GeoTIFF through an intermediate VRT
func Mosaic(ctx context.Context, files []string, outFile string) error {
	if len(files) == 0 {
		return fmt.Errorf("Mosaic: no input file")
	}

	vrtFile := outFile + ".vrt"
	vrtDS, err := godal.BuildVRT(vrtFile, files, nil)
	if err != nil {
		return fmt.Errorf("Mosaic.BuildVRT: %w", err)
	}
	defer os.Remove(vrtFile)

	outDS, err := vrtDS.Translate(outFile, []string{
		"-of", "GTiff",
		"-co", "COMPRESS=LZW",
		"-co", "TILED=YES",
	})
	vrtDS.Close()
	if err != nil {
		return fmt.Errorf("Mosaic.Translate: %w", err)
	}
	if err := outDS.Close(); err != nil {
		return fmt.Errorf("Mosaic.Close: %w", err)
	}

	log.Logger(ctx).Sugar().Infof("mosaic %s (%d rasters)", outFile, len(files))
	return nil
}
