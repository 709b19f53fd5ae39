package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/araddon/dateparse"
	"github.com/geoagro/ndvi-ingester/catalog"
	"github.com/geoagro/ndvi-ingester/catalog/entities"
	"github.com/geoagro/ndvi-ingester/service/log"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type config struct {
	Area string

	AOIFile       string
	AOIID         string
	StartDate     string
	EndDate       string
	ProductType   string
	MaxCloudCover float64
	Page          int
	Limit         int

	ODataCatalog       bool
	OpenSearchCatalog  bool
	CopernicusUsername string
	CopernicusPassword string
	BestPerTile        bool
	Out                string
}

func newAppConfig() (*config, error) {
	config := config{}
	flag.StringVar(&config.Area, "area", "", "json file describing the area of interest to search (shortcut to the flags below)")

	flag.StringVar(&config.AOIFile, "aoi", "", "geojson file of the area of interest (geometry, feature or feature collection)")
	flag.StringVar(&config.AOIID, "aoi-id", "", "name of the area of interest (chars, numbers and -:_)")
	flag.StringVar(&config.StartDate, "start-date", "", "start of the search interval")
	flag.StringVar(&config.EndDate, "end-date", "", "end of the search interval (default: now)")
	flag.StringVar(&config.ProductType, "product-type", "", "product type to search for (default: "+entities.DefaultProductType+")")
	flag.Float64Var(&config.MaxCloudCover, "max-cloud-cover", 0, "maximum cloud cover in percent (0: no filter)")
	flag.IntVar(&config.Page, "page", 0, "page of results to retrieve")
	flag.IntVar(&config.Limit, "limit", 0, "maximum number of results per page (0: provider maximum)")

	flag.BoolVar(&config.ODataCatalog, "odata", true, "search with the Copernicus OData catalog")
	flag.BoolVar(&config.OpenSearchCatalog, "opensearch", true, "search with the Copernicus OpenSearch catalog (fallback)")
	flag.StringVar(&config.CopernicusUsername, "copernicus-username", os.Getenv("CDSE_USERNAME"), "copernicus dataspace username (optional for searches)")
	flag.StringVar(&config.CopernicusPassword, "copernicus-password", os.Getenv("CDSE_PASSWORD"), "copernicus dataspace password")
	flag.BoolVar(&config.BestPerTile, "best-per-tile", false, "keep only the best product of each tile")
	flag.StringVar(&config.Out, "out", "", "file to write the inventory to (default: stdout)")
	flag.Parse()

	if config.Area == "" {
		if config.AOIFile == "" {
			return nil, fmt.Errorf("missing aoi config flag")
		}
		if config.AOIID == "" {
			return nil, fmt.Errorf("missing aoi-id config flag")
		}
		if config.StartDate == "" {
			return nil, fmt.Errorf("missing start-date config flag")
		}
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

	area, err := areaOfInterest(config)
	if err != nil {
		return err
	}

	c := catalog.Catalog{
		ODataCatalog:      config.ODataCatalog,
		OpenSearchCatalog: config.OpenSearchCatalog,
		CopernicusUser:    config.CopernicusUsername,
		CopernicusPword:   config.CopernicusPassword,
	}
	products, err := c.ProductsInventory(ctx, area)
	if err != nil {
		return err
	}
	if config.BestPerTile {
		products.Products = catalog.BestPerTile(products.Products)
	}
	log.Logger(ctx).Sugar().Infof("%d products", len(products.Products))

	out, err := json.MarshalIndent(products, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal inventory: %w", err)
	}
	if config.Out == "" {
		fmt.Println(string(out))
		return nil
	}
	return os.WriteFile(config.Out, out, 0666)
}

func areaOfInterest(config *config) (*entities.AreaOfInterest, error) {
	area := entities.AreaOfInterest{}

	if config.Area != "" {
		raw, err := os.ReadFile(config.Area)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &area); err != nil {
			return nil, fmt.Errorf("area %s: %w", config.Area, err)
		}
		return &area, nil
	}

	var err error
	area.AOIID = config.AOIID
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
	area.ProductType = config.ProductType
	area.MaxCloudCover = config.MaxCloudCover
	area.Page = config.Page
	area.Limit = config.Limit
	return &area, nil
}
