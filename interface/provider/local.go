package provider

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/geoagro/ndvi-ingester/common"
)

// LocalImageProvider implements ImageProvider for local storage
type LocalImageProvider struct {
	path string
}

// Name implements ImageProvider
func (ip *LocalImageProvider) Name() string {
	return "FileSystem (" + ip.path + ")"
}

// NewLocalImageProvider creates a new ImageProvider from local storage
func NewLocalImageProvider(path string) *LocalImageProvider {
	return &LocalImageProvider{path: path}
}

// Download implements ImageProvider
func (ip *LocalImageProvider) Download(ctx context.Context, product common.Product, localDir string) error {
	// Retrieve date of the product from name
	productName := product.SourceID
	date, err := common.DateFromProductID(productName)
	if err != nil {
		return fmt.Errorf("LocalImageProvider: %w", err)
	}

	// Create the list of subfolders
	folders := strings.Split(date.Format("2006-01-02"), "-")

	// Unarchive file
	srcZip := path.Join(ip.path, folders[0], folders[1], folders[2], productName+".zip")
	if _, err := os.Stat(srcZip); err != nil {
		if os.IsNotExist(err) {
			return ErrProductNotFound{srcZip}
		}
		return fmt.Errorf("LocalImageProvider: %w", err)
	}
	if err := unarchive(srcZip, localDir); err != nil {
		return fmt.Errorf("LocalImageProvider.Unarchive: %w", err)
	}
	return nil
}
