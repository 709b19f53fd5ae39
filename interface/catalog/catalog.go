package catalog

import (
	"context"

	"github.com/geoagro/ndvi-ingester/catalog/entities"
)

// ProductsProvider searches a catalog for the Sentinel-2 products intersecting an area of interest
type ProductsProvider interface {
	SearchProducts(ctx context.Context, area *entities.AreaOfInterest) (entities.Products, error)
	Name() string
}
