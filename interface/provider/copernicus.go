package provider

import (
	"context"
	"fmt"

	"github.com/geoagro/ndvi-ingester/common"
	"github.com/geoagro/ndvi-ingester/interface/auth"
)

const copernicusDownloadProduct = "https://catalogue.dataspace.copernicus.eu/odata/v1/Products(%s)/$value"

// CopernicusImageProvider implements ImageProvider for the Copernicus Dataspace
type CopernicusImageProvider struct {
	tokens *auth.TokenManager
	url    string
}

// Name implements ImageProvider
func (ip *CopernicusImageProvider) Name() string {
	return "Copernicus"
}

// NewCopernicusImageProvider creates a new ImageProvider from the Copernicus Dataspace
func NewCopernicusImageProvider(user, pword string) *CopernicusImageProvider {
	return &CopernicusImageProvider{tokens: auth.NewTokenManager(user, pword), url: copernicusDownloadProduct}
}

// Download implements ImageProvider
func (ip *CopernicusImageProvider) Download(ctx context.Context, product common.Product, localDir string) error {
	productName := product.SourceID
	if !common.IsSentinel2(productName) {
		return fmt.Errorf("CopernicusImageProvider: constellation not supported")
	}
	if product.Data.UUID == "" {
		return fmt.Errorf("CopernicusImageProvider: uuid is empty")
	}

	url := fmt.Sprintf(ip.url, product.Data.UUID)

	// The token is refreshed on demand
	token, err := ip.tokens.Token()
	if err != nil {
		return fmt.Errorf("CopernicusImageProvider.Download.%w", err)
	}

	bearer := "Bearer " + token.AccessToken
	if err := downloadZipWithAuth(ctx, url, localDir, productName, ip.Name(), nil, nil, "Authorization", &bearer, true); err != nil {
		return fmt.Errorf("CopernicusImageProvider.%w", err)
	}
	return nil
}
