package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/airbusgeo/godal"
	"github.com/geoagro/ndvi-ingester/downloader"
	"github.com/geoagro/ndvi-ingester/processor"
	"github.com/geoagro/ndvi-ingester/service/log"
	"go.uber.org/zap"
)

type config struct {
	TilesDir string

	MosaicFile string
	Boundary   string
	Where      string
	ClipFile   string
	RenderFile string
	Title      string
}

func newAppConfig() (*config, error) {
	config := config{}
	flag.StringVar(&config.TilesDir, "tiles-dir", "", "directory holding the extracted tile directories (<TILE>_<YYYYMMDD>)")
	flag.StringVar(&config.MosaicFile, "mosaic", "", "path of the NDVI mosaic to build from the tiles (optional)")
	flag.StringVar(&config.Boundary, "boundary", "", "geojson file to clip the mosaic with (optional)")
	flag.StringVar(&config.Where, "where", "", "attribute query to select the boundary features (optional)")
	flag.StringVar(&config.ClipFile, "clip", "", "path of the clipped mosaic (default: <mosaic>_clip.tif)")
	flag.StringVar(&config.RenderFile, "render", "", "path of the png preview of the mosaic (optional)")
	flag.StringVar(&config.Title, "title", "", "title drawn on the png preview")
	flag.Parse()

	if config.TilesDir == "" {
		return nil, fmt.Errorf("missing tiles-dir config flag")
	}
	if config.Boundary != "" && config.MosaicFile == "" {
		return nil, fmt.Errorf("boundary requires the mosaic config flag")
	}
	if config.ClipFile == "" && config.MosaicFile != "" {
		config.ClipFile = withSuffix(config.MosaicFile, "_clip")
	}
	return &config, nil
}

func withSuffix(file, suffix string) string {
	ext := filepath.Ext(file)
	return file[:len(file)-len(ext)] + suffix + ext
}

func main() {
	ctx := context.Background()
	err := run(ctx)
	if err != nil {
		log.Fatal("error", zap.Error(err))
	}
}

func run(ctx context.Context) error {
	config, err := newAppConfig()
	if err != nil {
		return err
	}
	godal.RegisterAll()

	ndviFiles, err := computeTiles(ctx, config.TilesDir)
	if err != nil {
		return err
	}

	raster := ""
	if config.MosaicFile != "" {
		if err := processor.Mosaic(ctx, ndviFiles, config.MosaicFile); err != nil {
			return err
		}
		raster = config.MosaicFile
	}
	if config.Boundary != "" {
		if err := processor.Clip(ctx, raster, config.Boundary, config.ClipFile, config.Where); err != nil {
			return err
		}
		raster = config.ClipFile
	}
	if config.RenderFile != "" {
		if raster == "" {
			return fmt.Errorf("render requires the mosaic config flag")
		}
		if err := processor.Render(ctx, raster, config.RenderFile, config.Title); err != nil {
			return err
		}
	}
	return nil
}

// computeTiles computes the NDVI of every tile directory under tilesDir
func computeTiles(ctx context.Context, tilesDir string) ([]string, error) {
	entries, err := os.ReadDir(tilesDir)
	if err != nil {
		return nil, err
	}

	var ndviFiles []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		tile, err := downloader.LoadTileDir(filepath.Join(tilesDir, entry.Name()), nil)
		if err != nil {
			log.Logger(ctx).Sugar().Debugf("skip %s: %v", entry.Name(), err)
			continue
		}
		ctx := log.With(ctx, "tile", tile.TileID)
		ndviFile, err := processor.ComputeNDVI(ctx, tile)
		if err != nil {
			var missing processor.ErrMissingBand
			if errors.As(err, &missing) {
				log.Logger(ctx).Warn("skip tile", zap.Error(err))
				continue
			}
			return nil, err
		}
		ndviFiles = append(ndviFiles, ndviFile)
	}
	if len(ndviFiles) == 0 {
		return nil, fmt.Errorf("no tile found in %s", tilesDir)
	}
	return ndviFiles, nil
}
