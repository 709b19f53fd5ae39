package downloader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/geoagro/ndvi-ingester/common"
	"github.com/geoagro/ndvi-ingester/interface/provider"
	"github.com/geoagro/ndvi-ingester/service"
	"github.com/geoagro/ndvi-ingester/service/log"
	"github.com/google/uuid"
)

// storageRetryDelay spaces out the retries of a failed tile export
var storageRetryDelay = 15 * time.Second

// ProcessProduct downloads a product with the first successful imageProvider and
// extracts the requested bands into outdir/<TILE>_<DATE>/.
// If storageService is not nil, the extracted bands are also archived to the storage.
func ProcessProduct(ctx context.Context, imageProviders []provider.ImageProvider, storageService service.Storage, product common.Product, workdir, outdir string, bands []common.Band) (common.TileBands, error) {
	// Working dir
	workdir = filepath.Join(workdir, uuid.New().String())

	if err := os.MkdirAll(workdir, 0766); err != nil {
		return common.TileBands{}, service.MakeTemporary(fmt.Errorf("make directory %s: %w", workdir, err))
	}
	defer os.RemoveAll(workdir)

	// Download with the first successful imageProvider
	log.Logger(ctx).Sugar().Infof("downloading %s", product.SourceID)
	var err error
	for _, imageProvider := range imageProviders {
		e := imageProvider.Download(ctx, product, workdir)
		if err = service.MergeErrors(false, err, e); err == nil {
			break
		}
		log.Logger(ctx).Sugar().Warnf("%v", e)
	}
	if err != nil {
		return common.TileBands{}, fmt.Errorf("ProcessProduct.ImageProviders.%w", err)
	}

	log.Logger(ctx).Sugar().Infof("extracting bands of %s", product.SourceID)
	tile, err := ExtractBands(ctx, product, workdir, outdir, bands)
	if err != nil {
		return common.TileBands{}, fmt.Errorf("ProcessProduct.%w", err)
	}

	// Export the tile directory to storage, retrying transient upload failures
	if storageService != nil {
		err := service.Retriable(ctx, func() error {
			_, err := storageService.SaveLayer(ctx, tile, service.Product, service.ExtensionAll, tile.Dir)
			return err
		}, storageRetryDelay, 3)
		if err != nil {
			return common.TileBands{}, fmt.Errorf("ProcessProduct.%w", err)
		}
	}

	return tile, nil
}
