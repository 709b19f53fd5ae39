package provider

import (
	"context"

	"github.com/geoagro/ndvi-ingester/common"
)

// ImageProvider is the interface of an image download service
type ImageProvider interface {
	// Download a product to the given localDir
	// product.SourceID is for example S2B_MSIL2A_20240512T170849_N0510_R112_T14QNG_20240512T213352
	// localDir is the directory where the image will be stored
	Download(ctx context.Context, product common.Product, localDir string) error

	// Name of the provider
	Name() string
}
