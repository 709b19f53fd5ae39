package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/airbusgeo/godal"
	"github.com/araddon/dateparse"
	"github.com/geoagro/ndvi-ingester/catalog"
	"github.com/geoagro/ndvi-ingester/catalog/entities"
	"github.com/geoagro/ndvi-ingester/common"
	"github.com/geoagro/ndvi-ingester/downloader"
	"github.com/geoagro/ndvi-ingester/interface/provider"
	"github.com/geoagro/ndvi-ingester/processor"
	"github.com/geoagro/ndvi-ingester/service"
	"github.com/geoagro/ndvi-ingester/service/log"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type config struct {
	AOIFile       string
	AOIID         string
	StartDate     string
	EndDate       string
	ProductType   string
	MaxCloudCover float64

	CopernicusUsername string
	CopernicusPassword string
	LocalProviderPath  string
	AwsProvider        bool
	AwsAccessKeyID     string
	AwsSecretAccessKey string

	WorkingDir string
	OutDir     string
	StorageURI string
	Bands      string
	Parallel   int

	Boundary   string
	Where      string
	MosaicFile string
	RenderFile string
	Title      string
	KeepTiles  bool
}

func newAppConfig() (*config, error) {
	config := config{}
	flag.StringVar(&config.AOIFile, "aoi", "", "geojson file of the area of interest")
	flag.StringVar(&config.AOIID, "aoi-id", "", "name of the area of interest (chars, numbers and -:_)")
	flag.StringVar(&config.StartDate, "start-date", "", "start of the search interval")
	flag.StringVar(&config.EndDate, "end-date", "", "end of the search interval (default: now)")
	flag.StringVar(&config.ProductType, "product-type", "", "product type to search for (default: "+entities.DefaultProductType+")")
	flag.Float64Var(&config.MaxCloudCover, "max-cloud-cover", 30, "maximum cloud cover in percent (0: no filter)")

	flag.StringVar(&config.CopernicusUsername, "copernicus-username", os.Getenv("CDSE_USERNAME"), "copernicus dataspace account username")
	flag.StringVar(&config.CopernicusPassword, "copernicus-password", os.Getenv("CDSE_PASSWORD"), "copernicus dataspace account password")
	flag.StringVar(&config.LocalProviderPath, "local-path", "", "local path where products are stored (optional image Provider)")
	flag.BoolVar(&config.AwsProvider, "aws", false, "download the 10m bands from the sentinel-s2-l2a requester-pays bucket (optional image Provider)")
	flag.StringVar(&config.AwsAccessKeyID, "aws-access-key-id", os.Getenv("AWS_ACCESS_KEY_ID"), "aws access key id (for the aws provider)")
	flag.StringVar(&config.AwsSecretAccessKey, "aws-secret-access-key", os.Getenv("AWS_SECRET_ACCESS_KEY"), "aws secret access key (for the aws provider)")

	flag.StringVar(&config.WorkingDir, "workdir", os.TempDir(), "working directory to store intermediate results")
	flag.StringVar(&config.OutDir, "outdir", ".", "directory where the tiles and the outputs are created")
	flag.StringVar(&config.StorageURI, "storage-uri", "", "storage uri (currently supported: local, gs) to archive the extracted tiles (optional)")
	flag.StringVar(&config.Bands, "bands", "", "comma-separated bands to extract")
	flag.IntVar(&config.Parallel, "parallel", 2, "number of concurrent downloads")

	flag.StringVar(&config.Boundary, "boundary", "", "geojson file to clip the mosaic with (optional)")
	flag.StringVar(&config.Where, "where", "", "attribute query to select the boundary features (optional)")
	flag.StringVar(&config.MosaicFile, "mosaic", "", "path of the NDVI mosaic (default: <outdir>/ndvi_mosaic.tif)")
	flag.StringVar(&config.RenderFile, "render", "", "path of the png preview (default: <outdir>/ndvi.png)")
	flag.StringVar(&config.Title, "title", "", "title drawn on the png preview (default: <aoi-id> <dates>)")
	flag.BoolVar(&config.KeepTiles, "keep-tiles", false, "keep the per-tile band directories after the mosaic is built")
	flag.Parse()

	if config.AOIFile == "" {
		return nil, fmt.Errorf("missing aoi config flag")
	}
	if config.AOIID == "" {
		return nil, fmt.Errorf("missing aoi-id config flag")
	}
	if config.StartDate == "" {
		return nil, fmt.Errorf("missing start-date config flag")
	}
	if config.Parallel < 1 {
		config.Parallel = 1
	}
	if config.MosaicFile == "" {
		config.MosaicFile = filepath.Join(config.OutDir, "ndvi_mosaic.tif")
	}
	if config.RenderFile == "" {
		config.RenderFile = filepath.Join(config.OutDir, "ndvi.png")
	}
	return &config, nil
}

func main() {
	ctx := context.Background()
	err := run(ctx)
	if err != nil {
		log.Fatal("error", zap.Error(err))
	}
}

func run(ctx context.Context) error {
	godotenv.Load()

	config, err := newAppConfig()
	if err != nil {
		return err
	}
	godal.RegisterAll()
	bands := common.ParseBands(config.Bands)

	// Inventory
	area, err := areaOfInterest(config)
	if err != nil {
		return err
	}
	c := catalog.Catalog{
		ODataCatalog:      true,
		OpenSearchCatalog: true,
		CopernicusUser:    config.CopernicusUsername,
		CopernicusPword:   config.CopernicusPassword,
	}
	inventory, err := c.ProductsInventory(ctx, area)
	if err != nil {
		return err
	}
	products := catalog.BestPerTile(inventory.Products)
	if len(products) == 0 {
		return fmt.Errorf("no product found for %s between %v and %v", area.AOIID, area.StartTime, area.EndTime)
	}
	log.Logger(ctx).Sugar().Infof("%d products to process (%d found)", len(products), len(inventory.Products))

	imageProviders, err := imageProviders(config, bands)
	if err != nil {
		return err
	}
	var storageService service.Storage
	if config.StorageURI != "" {
		if storageService, err = service.NewStorageStrategy(ctx, config.StorageURI); err != nil {
			return fmt.Errorf("storage %s: %w", config.StorageURI, err)
		}
	}

	// Download, extract and compute the NDVI of each tile
	var mu sync.Mutex
	var results []common.Result
	var tiles []common.TileBands
	var ndviFiles []string

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(config.Parallel)
	for _, product := range products {
		product := product
		g.Go(func() error {
			ctx := log.With(gctx, "image", product.SourceID)
			result := processProduct(ctx, imageProviders, storageService, product.Product, config, bands)
			mu.Lock()
			defer mu.Unlock()
			results = append(results, result)
			if result.Tile != nil {
				tiles = append(tiles, *result.Tile)
				ndviFiles = append(ndviFiles, filepath.Join(result.Tile.Dir, fmt.Sprintf("%s_NDVI.tif", result.Tile.TileID)))
			}
			return nil
		})
	}
	g.Wait()

	// Mosaic, clip, render
	err = func() error {
		if len(ndviFiles) == 0 {
			return fmt.Errorf("no tile successfully processed")
		}
		if err := processor.Mosaic(ctx, ndviFiles, config.MosaicFile); err != nil {
			return err
		}
		raster := config.MosaicFile
		if config.Boundary != "" {
			clipFile := config.MosaicFile[:len(config.MosaicFile)-len(filepath.Ext(config.MosaicFile))] + "_clip.tif"
			if err := processor.Clip(ctx, raster, config.Boundary, clipFile, config.Where); err != nil {
				return err
			}
			raster = clipFile
		}
		title := config.Title
		if title == "" {
			title = fmt.Sprintf("NDVI %s %s", area.AOIID, area.EndTime.Format("2006-01-02"))
		}
		if err := processor.Render(ctx, raster, config.RenderFile, title); err != nil {
			return err
		}
		if !config.KeepTiles {
			downloader.CleanupTiles(ctx, tiles)
		}
		return nil
	}()

	out, e := json.MarshalIndent(results, "", "  ")
	if e != nil {
		return fmt.Errorf("marshal results: %w", e)
	}
	fmt.Println(string(out))
	return err
}

// processProduct downloads one product and computes its NDVI, reporting the
// outcome as a Result
func processProduct(ctx context.Context, imageProviders []provider.ImageProvider, storageService service.Storage, product common.Product, config *config, bands []common.Band) common.Result {
	result := common.Result{Product: product.SourceID, Status: common.StatusDONE}

	tile, err := downloader.ProcessProduct(ctx, imageProviders, storageService, product, config.WorkingDir, config.OutDir, bands)
	if err == nil {
		_, err = processor.ComputeNDVI(ctx, tile)
	}
	if err != nil {
		result.Status = common.StatusFAILED
		if service.Temporary(err) {
			result.Status = common.StatusRETRY
		}
		result.Message = err.Error()
		log.Logger(ctx).Warn("product failed", zap.Error(err))
		return result
	}
	result.Tile = &tile
	log.Logger(ctx).Sugar().Infof("successfully processed product %s", product.SourceID)
	return result
}

func areaOfInterest(config *config) (*entities.AreaOfInterest, error) {
	area := entities.AreaOfInterest{
		AOIID:         config.AOIID,
		ProductType:   config.ProductType,
		MaxCloudCover: config.MaxCloudCover,
	}
	var err error
	if area.AOI, err = catalog.AOIFromFile(config.AOIFile); err != nil {
		return nil, err
	}
	if area.StartTime, err = dateparse.ParseAny(config.StartDate); err != nil {
		return nil, fmt.Errorf("start-date: %w", err)
	}
	if config.EndDate == "" {
		area.EndTime = time.Now()
	} else if area.EndTime, err = dateparse.ParseAny(config.EndDate); err != nil {
		return nil, fmt.Errorf("end-date: %w", err)
	}
	return &area, nil
}

func imageProviders(config *config, bands []common.Band) ([]provider.ImageProvider, error) {
	var imageProviders []provider.ImageProvider
	if config.LocalProviderPath != "" {
		imageProviders = append(imageProviders, provider.NewLocalImageProvider(config.LocalProviderPath))
	}
	if config.AwsProvider {
		imageProviders = append(imageProviders, provider.NewAwsImageProvider(config.AwsAccessKeyID, config.AwsSecretAccessKey, bands))
	}
	if config.CopernicusUsername != "" {
		imageProviders = append(imageProviders, provider.NewCopernicusImageProvider(config.CopernicusUsername, config.CopernicusPassword))
	}
	if len(imageProviders) == 0 {
		return nil, fmt.Errorf("no image providers defined (missing copernicus-username?)")
	}
	return imageProviders, nil
}
