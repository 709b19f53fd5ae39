package downloader

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/geoagro/ndvi-ingester/common"
	"github.com/geoagro/ndvi-ingester/service/log"
	"github.com/mholt/archiver"
)

// ErrMissingBands is returned when a product does not contain all the requested bands
type ErrMissingBands struct {
	Product string
	Bands   []common.Band
}

func (e ErrMissingBands) Error() string {
	return fmt.Sprintf("missing bands %v in product %s", e.Bands, e.Product)
}

// ExtractBands locates the rasters of the requested bands in the downloaded product
// (an archive or an unpacked .SAFE directory under srcDir) and extracts them flat
// into outdir/<TILE>_<YYYYMMDD>/. A pre-existing tile directory is replaced.
func ExtractBands(ctx context.Context, product common.Product, srcDir, outdir string, bands []common.Band) (common.TileBands, error) {
	if len(bands) == 0 {
		bands = common.DefaultBands
	}

	tileID := product.Data.TileID
	if tileID == "" {
		var err error
		if tileID, err = common.TileFromProductID(product.SourceID); err != nil {
			return common.TileBands{}, fmt.Errorf("ExtractBands.%w", err)
		}
	}
	date := product.Data.Date
	if date.IsZero() {
		var err error
		if date, err = common.DateFromProductID(product.SourceID); err != nil {
			return common.TileBands{}, fmt.Errorf("ExtractBands.%w", err)
		}
	}

	tile := common.TileBands{
		TileID:      tileID,
		Date:        date,
		ProductName: product.SourceID,
		Dir:         filepath.Join(outdir, fmt.Sprintf("%s_%s", tileID, date.Format("20060102"))),
		Bands:       common.BandFiles{},
	}
	if err := os.RemoveAll(tile.Dir); err != nil {
		return common.TileBands{}, fmt.Errorf("ExtractBands.RemoveAll: %w", err)
	}
	if err := os.MkdirAll(tile.Dir, 0766); err != nil {
		return common.TileBands{}, fmt.Errorf("ExtractBands.MkdirAll: %w", err)
	}

	err := filepath.WalkDir(srcDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(p), ".zip") {
			if err := extractFromArchive(ctx, p, &tile, bands); err != nil {
				// A corrupt archive is not fatal for the batch
				log.Logger(ctx).Sugar().Warnf("ExtractBands: skipping archive %s: %v", p, err)
			}
			return nil
		}
		if band, ok := matchBand(d.Name(), bands); ok {
			dst := filepath.Join(tile.Dir, d.Name())
			if err := fileCopy(p, dst); err != nil {
				return fmt.Errorf("copy %s: %w", p, err)
			}
			recordBand(&tile, band, dst)
		}
		return nil
	})
	if err != nil {
		return common.TileBands{}, fmt.Errorf("ExtractBands.Walk: %w", err)
	}

	var missing []common.Band
	for _, band := range bands {
		if _, ok := tile.Bands[band]; !ok {
			missing = append(missing, band)
		}
	}
	if len(missing) > 0 {
		return tile, ErrMissingBands{Product: product.SourceID, Bands: missing}
	}

	return tile, nil
}

// extractFromArchive copies the matching entries of the archive into the tile directory
func extractFromArchive(ctx context.Context, archivePath string, tile *common.TileBands, bands []common.Band) error {
	return archiver.Walk(archivePath, func(f archiver.File) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := f.Name()
		if header, ok := f.Header.(zip.FileHeader); ok {
			name = header.Name
		}
		band, ok := matchBand(name, bands)
		if !ok {
			return nil
		}
		dst := filepath.Join(tile.Dir, filepath.Base(name))
		out, err := os.Create(dst)
		if err != nil {
			return fmt.Errorf("create %s: %w", dst, err)
		}
		defer out.Close()
		if _, err := io.Copy(out, f); err != nil {
			return fmt.Errorf("extract %s: %w", name, err)
		}
		recordBand(tile, band, dst)
		return nil
	})
}

// recordBand keeps the 10m raster of a band when the product carries the same
// band at several resolutions. The first raster wins otherwise.
func recordBand(tile *common.TileBands, band common.Band, file string) {
	if existing, ok := tile.Bands[band]; ok {
		if strings.Contains(filepath.Base(existing), "_10m") || !strings.Contains(filepath.Base(file), "_10m") {
			return
		}
	}
	tile.Bands[band] = file
}

func matchBand(name string, bands []common.Band) (common.Band, bool) {
	for _, band := range bands {
		if band.MatchesEntry(name) {
			return band, true
		}
	}
	return "", false
}

func fileCopy(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

// LoadTileDir rebuilds a TileBands from a tile directory previously produced
// by ExtractBands. The directory name carries the tile id and the date.
func LoadTileDir(dir string, bands []common.Band) (common.TileBands, error) {
	if len(bands) == 0 {
		bands = common.DefaultBands
	}
	name := filepath.Base(filepath.Clean(dir))
	parts := strings.Split(name, "_")
	if len(parts) != 2 {
		return common.TileBands{}, fmt.Errorf("LoadTileDir: %s is not a <TILE>_<YYYYMMDD> directory", name)
	}
	date, err := time.Parse("20060102", parts[1])
	if err != nil {
		return common.TileBands{}, fmt.Errorf("LoadTileDir: %s is not a <TILE>_<YYYYMMDD> directory: %w", name, err)
	}

	tile := common.TileBands{
		TileID: parts[0],
		Date:   date,
		Dir:    dir,
		Bands:  common.BandFiles{},
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return common.TileBands{}, fmt.Errorf("LoadTileDir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if band, ok := matchBand(entry.Name(), bands); ok {
			recordBand(&tile, band, filepath.Join(dir, entry.Name()))
		}
	}
	return tile, nil
}

// CleanupTiles removes the tile directories
func CleanupTiles(ctx context.Context, tiles []common.TileBands) {
	for _, tile := range tiles {
		if tile.Dir == "" {
			continue
		}
		if err := os.RemoveAll(tile.Dir); err != nil {
			log.Logger(ctx).Sugar().Warnf("CleanupTiles: %v", err)
		}
	}
}
