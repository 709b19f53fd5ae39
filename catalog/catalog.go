package catalog

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"sort"

	"github.com/geoagro/ndvi-ingester/catalog/entities"
	"github.com/geoagro/ndvi-ingester/common"
	"github.com/geoagro/ndvi-ingester/interface/auth"
	"github.com/geoagro/ndvi-ingester/interface/catalog"
	"github.com/geoagro/ndvi-ingester/interface/catalog/odata"
	"github.com/geoagro/ndvi-ingester/interface/catalog/opensearch"
	"github.com/geoagro/ndvi-ingester/service"
	"github.com/geoagro/ndvi-ingester/service/log"
)

// Catalog is the main class of this package
type Catalog struct {
	ODataCatalog      bool
	OpenSearchCatalog bool
	// Copernicus credentials. When set, the catalog requests carry a bearer
	// token that is refreshed automatically.
	CopernicusUser  string
	CopernicusPword string
	Providers       []catalog.ProductsProvider // overrides the providers configured by the flags above
	WorkingDir      string
}

var aoiIDRegexp = regexp.MustCompile("^[a-zA-Z0-9-:_]+$")

// ValidateArea checks the user input
func (c *Catalog) ValidateArea(area *entities.AreaOfInterest) error {
	if !aoiIDRegexp.MatchString(area.AOIID) {
		return fmt.Errorf("validateArea: wrong format for AOI (must be chars, numbers and -:_): %s", area.AOIID)
	}
	if err := area.Validate(); err != nil {
		return fmt.Errorf("validateArea: %w", err)
	}
	return nil
}

// ProductsInventory makes an inventory of all the products covering the area between startDate and endDate.
// The products are retrieved from the first available catalog provider.
func (c *Catalog) ProductsInventory(ctx context.Context, area *entities.AreaOfInterest) (entities.Products, error) {
	if err := c.ValidateArea(area); err != nil {
		return entities.Products{}, fmt.Errorf("ProductsInventory.%w", err)
	}

	providers := c.Providers
	if len(providers) == 0 {
		var client *http.Client
		if c.CopernicusUser != "" {
			client = auth.NewTokenManager(c.CopernicusUser, c.CopernicusPword).HTTPClient()
		}
		if c.ODataCatalog {
			providers = append(providers, &odata.Provider{Client: client})
		}
		if c.OpenSearchCatalog {
			providers = append(providers, &opensearch.Provider{Client: client})
		}
	}
	if len(providers) == 0 {
		return entities.Products{}, fmt.Errorf("ProductsInventory: no catalog is configured")
	}

	log.Logger(ctx).Sugar().Debugf("Search products for AOI %s from %v to %v", area.AOIID, area.StartTime, area.EndTime)

	var err, e error
	var products entities.Products
	for _, provider := range providers {
		products, e = provider.SearchProducts(ctx, area)
		if err = service.MergeErrors(false, err, e); err == nil {
			break
		}
		log.Logger(ctx).Sugar().Warnf("[%s] search failed: %v", provider.Name(), e)
	}
	if err != nil {
		return entities.Products{}, fmt.Errorf("ProductsInventory.%w", err)
	}

	// Refine inventory
	products.Products = removeDoubleEntries(products.Products)
	rankInventory(products.Products)

	log.Logger(ctx).Sugar().Debugf("%d products found", len(products.Products))

	return products, nil
}

// removeDoubleEntries removes acquisitions that appear twice in the inventory
// The last digits of a re-processed product identifier change. When searching for data, both products will be found, even though they are the same.
// This routine checks of such appearance and selects the latest product.
// Credit: OpenSarToolkit
func removeDoubleEntries(products []*entities.Product) []*entities.Product {
	identifiers := map[string]int{}

	j := 0
	for _, product := range products {
		if k, ok := identifiers[product.ProductName]; !ok {
			products[j] = product
			identifiers[product.ProductName] = j
			j++
		} else if products[k].Tags[common.TagIngestionDate] < product.Tags[common.TagIngestionDate] {
			products[k] = product
		}
	}

	return products[0:j]
}

// rankInventory orders the products newest first, ties broken by the lowest cloud cover
func rankInventory(products []*entities.Product) {
	sort.SliceStable(products, func(i, j int) bool {
		if !products[i].Data.Date.Equal(products[j].Data.Date) {
			return products[i].Data.Date.After(products[j].Data.Date)
		}
		return products[i].Data.CloudCover < products[j].Data.CloudCover
	})
}

// BestPerTile keeps, for each tile, the first product of the ranked inventory
func BestPerTile(products []*entities.Product) []*entities.Product {
	tiles := service.StringSet{}
	var best []*entities.Product
	for _, product := range products {
		if product.Data.TileID == "" || tiles.Exists(product.Data.TileID) {
			continue
		}
		tiles.Push(product.Data.TileID)
		best = append(best, product)
	}
	return best
}
