package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/geoagro/ndvi-ingester/catalog/entities"
	"github.com/geoagro/ndvi-ingester/common"
	"github.com/geoagro/ndvi-ingester/downloader"
	"github.com/geoagro/ndvi-ingester/interface/provider"
	"github.com/geoagro/ndvi-ingester/service"
	"github.com/geoagro/ndvi-ingester/service/log"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type config struct {
	WorkingDir string
	OutDir     string
	StorageURI string

	Products string
	Product  string
	Bands    string

	CopernicusUsername string
	CopernicusPassword string
	LocalProviderPath  string
	GSProviderBuckets  []string
	AwsProvider        bool
	AwsAccessKeyID     string
	AwsSecretAccessKey string
	FtpPathPattern     string
	FtpUsername        string
	FtpPassword        string
}

func newAppConfig() (*config, error) {
	config := config{}
	// Global config
	flag.StringVar(&config.WorkingDir, "workdir", os.TempDir(), "working directory to store intermediate results")
	flag.StringVar(&config.OutDir, "outdir", ".", "directory where the tile band directories are created")
	flag.StringVar(&config.StorageURI, "storage-uri", "", "storage uri (currently supported: local, gs) to archive the extracted tiles (optional)")

	// Products
	flag.StringVar(&config.Products, "products", "", "json inventory of the products to download (output of the catalog command)")
	flag.StringVar(&config.Product, "product", "", "name of a single product to download")
	flag.StringVar(&config.Bands, "bands", "", "comma-separated bands to extract (default: "+joinBands(common.DefaultBands)+")")

	// Providers
	flag.StringVar(&config.CopernicusUsername, "copernicus-username", os.Getenv("CDSE_USERNAME"), "copernicus dataspace account username (optional). To configure CDSE as a potential image Provider.")
	flag.StringVar(&config.CopernicusPassword, "copernicus-password", os.Getenv("CDSE_PASSWORD"), "copernicus dataspace account password (optional)")
	flag.StringVar(&config.LocalProviderPath, "local-path", "", "local path where products are stored (optional). To configure a local path as a potential image Provider.")
	flag.BoolVar(&config.AwsProvider, "aws", false, "download the 10m bands from the sentinel-s2-l2a requester-pays bucket (optional). To configure AWS as a potential image Provider.")
	flag.StringVar(&config.AwsAccessKeyID, "aws-access-key-id", os.Getenv("AWS_ACCESS_KEY_ID"), "aws access key id (for the aws provider)")
	flag.StringVar(&config.AwsSecretAccessKey, "aws-secret-access-key", os.Getenv("AWS_SECRET_ACCESS_KEY"), "aws secret access key (for the aws provider)")
	flag.StringVar(&config.FtpPathPattern, "ftp", "", `ftp path pattern, including host, port and folder tree, i.e ftp://ftp.example.org:21/Images/{SCENE}.zip (optional). To configure FTP as a potential image Provider.
	The path can contain several {IDENTIFIER} that will be replaced according to the product name.
	IDENTIFIER must be one of SCENE, MISSION_ID, PRODUCT_LEVEL, DATE(YEAR/MONTH/DAY), TIME(HOUR/MINUTE/SECOND), PDGS, ORBIT, TILE (UTM_ZONE/LATITUDE_BAND/GRID_SQUARE)`)
	flag.StringVar(&config.FtpUsername, "ftp-username", "", "ftp account username (optional)")
	flag.StringVar(&config.FtpPassword, "ftp-password", "", "ftp account password (optional)")
	gsProviderBuckets := flag.String("gs-provider-buckets", "", `Google Storage buckets, comma-separated (optional). To configure GS as a potential image Provider.
	A bucket can contain several {IDENTIFIER} that will be replaced according to the product name (see -ftp).`)

	flag.Parse()

	if config.Products == "" && config.Product == "" {
		return nil, fmt.Errorf("missing products or product config flag")
	}
	if *gsProviderBuckets != "" {
		config.GSProviderBuckets = strings.Split(*gsProviderBuckets, ",")
	}
	return &config, nil
}

func joinBands(bands []common.Band) string {
	names := make([]string, len(bands))
	for i, band := range bands {
		names[i] = string(band)
	}
	return strings.Join(names, ",")
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
	bands := common.ParseBands(config.Bands)

	products, err := loadProducts(config)
	if err != nil {
		return err
	}

	imageProviders, providerNames, err := imageProviders(config, bands)
	if err != nil {
		return err
	}

	var storageService service.Storage
	if config.StorageURI != "" {
		if storageService, err = service.NewStorageStrategy(ctx, config.StorageURI); err != nil {
			return fmt.Errorf("storage %s: %w", config.StorageURI, err)
		}
	}

	log.Logger(ctx).Debug("downloader starts, downloading images from " + strings.Join(providerNames, ", "))

	var results []common.Result
	for _, product := range products {
		ctx := log.With(ctx, "image", product.SourceID)
		result := common.Result{Product: product.SourceID, Status: common.StatusDONE}
		tile, err := downloader.ProcessProduct(ctx, imageProviders, storageService, product.Product, config.WorkingDir, config.OutDir, bands)
		if err != nil {
			result.Status = common.StatusFAILED
			if service.Temporary(err) {
				result.Status = common.StatusRETRY
			}
			result.Message = err.Error()
			log.Logger(ctx).Warn("download failed", zap.Error(err))
		} else {
			result.Tile = &tile
			log.Logger(ctx).Sugar().Infof("successfully processed product %s", product.SourceID)
		}
		results = append(results, result)
	}

	out, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

// loadProducts reads the inventory file and/or the single product flag
func loadProducts(config *config) ([]*entities.Product, error) {
	var products []*entities.Product
	if config.Products != "" {
		raw, err := os.ReadFile(config.Products)
		if err != nil {
			return nil, err
		}
		inventory := entities.Products{}
		if err := json.Unmarshal(raw, &inventory); err != nil {
			return nil, fmt.Errorf("products %s: %w", config.Products, err)
		}
		products = inventory.Products
	}
	if config.Product != "" {
		product := entities.Product{Product: common.Product{SourceID: config.Product}}
		product.AutoFill()
		products = append(products, &product)
	}
	if len(products) == 0 {
		return nil, fmt.Errorf("empty product inventory")
	}
	return products, nil
}

// imageProviders configures the image providers from the flags
func imageProviders(config *config, bands []common.Band) ([]provider.ImageProvider, []string, error) {
	var imageProviders []provider.ImageProvider
	var providerNames []string
	if config.LocalProviderPath != "" {
		providerNames = append(providerNames, "local ("+config.LocalProviderPath+")")
		imageProviders = append(imageProviders, provider.NewLocalImageProvider(config.LocalProviderPath))
	}
	if len(config.GSProviderBuckets) != 0 {
		gs := provider.NewGSImageProvider()
		for _, bucket := range config.GSProviderBuckets {
			gs.AddBucket(bucket)
		}
		providerNames = append(providerNames, "GS ("+strings.Join(config.GSProviderBuckets, ", ")+")")
		imageProviders = append(imageProviders, gs)
	}
	if config.FtpPathPattern != "" {
		providerNames = append(providerNames, "FTP ("+config.FtpPathPattern+")")
		imageProviders = append(imageProviders, provider.NewFTPImageProvider(config.FtpPathPattern, config.FtpUsername, config.FtpPassword))
	}
	if config.AwsProvider {
		providerNames = append(providerNames, "AWS (sentinel-s2-l2a)")
		imageProviders = append(imageProviders, provider.NewAwsImageProvider(config.AwsAccessKeyID, config.AwsSecretAccessKey, bands))
	}
	if config.CopernicusUsername != "" {
		providerNames = append(providerNames, "Copernicus ("+config.CopernicusUsername+")")
		imageProviders = append(imageProviders, provider.NewCopernicusImageProvider(config.CopernicusUsername, config.CopernicusPassword))
	}
	if len(imageProviders) == 0 {
		return nil, nil, fmt.Errorf("no image providers defined")
	}
	return imageProviders, providerNames, nil
}
