package provider

import (
	"context"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/geoagro/ndvi-ingester/common"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const (
	sentinel2AwsBucket = "sentinel-s2-l2a"
	sentinel2AwsRegion = "eu-central-1"
	// tiles/{UTM_ZONE}/{LATITUDE_BAND}/{GRID_SQUARE}/{YEAR}/{MONTH}/{DAY}/{SEQUENCE}/R10m/{BAND}.jp2
	// MONTH and DAY have no leading zero
	sentinel2AwsKeyTemplate = "tiles/%s/%s/%s/%s/%d/%d/0/R10m/%s.jp2"
)

// AwsImageProvider implements ImageProvider for the Sentinel-2 L2A requester-pays bucket
type AwsImageProvider struct {
	accessKeyId     string
	secretAccessKey string
	bands           []common.Band
}

// Name implements ImageProvider
func (ip *AwsImageProvider) Name() string {
	return "Sentinel2Aws"
}

// NewAwsImageProvider creates a new ImageProvider from the Sentinel-2 L2A bucket
func NewAwsImageProvider(accessKeyId, secretAccessKey string, bands []common.Band) *AwsImageProvider {
	if len(bands) == 0 {
		bands = common.DefaultBands
	}
	return &AwsImageProvider{accessKeyId: accessKeyId, secretAccessKey: secretAccessKey, bands: bands}
}

// Download implements ImageProvider
// The bucket serves the 10m rasters of the product, not the archive: the band files are
// fetched one by one and named following the granule convention so that the extraction
// finds them.
func (ip *AwsImageProvider) Download(ctx context.Context, product common.Product, localDir string) error {
	productName := product.SourceID
	if !common.IsSentinel2(productName) {
		return fmt.Errorf("AwsImageProvider: constellation not supported")
	}
	if product.Data.ProductType != "" && product.Data.ProductType != "S2MSI2A" {
		return fmt.Errorf("AwsImageProvider: product type not available: %s", product.Data.ProductType)
	}

	info, err := common.Info(productName)
	if err != nil {
		return fmt.Errorf("AwsImageProvider.common.Info: %w", err)
	}
	month, _ := strconv.Atoi(info["MONTH"])
	day, _ := strconv.Atoi(info["DAY"])

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(ip.accessKeyId, ip.secretAccessKey, "")),
		config.WithRegion(sentinel2AwsRegion),
	)
	if err != nil {
		return fmt.Errorf("AwsImageProvider config.LoadDefaultConfig: %w", err)
	}

	// Create an Amazon S3 service client
	client := s3.NewFromConfig(cfg)

	downloader := manager.NewDownloader(client, func(d *manager.Downloader) {
		d.PartSize = 10 * 1024 * 1024 // 10MB per part
	})

	// create product directory
	productDir := path.Join(localDir, productName)
	if err := os.MkdirAll(productDir, 0755); err != nil {
		return fmt.Errorf("AwsImageProvider os.MkdirAll: %w", err)
	}

	for _, band := range ip.bands {
		objectKey := fmt.Sprintf(sentinel2AwsKeyTemplate,
			strings.TrimLeft(info["UTM_ZONE"], "0"), info["LATITUDE_BAND"], info["GRID_SQUARE"],
			info["YEAR"], month, day, band)
		localFilePath := path.Join(productDir,
			fmt.Sprintf("%s_%sT%s_%s_10m.jp2", info["TILE"], info["DATE"], info["TIME"], band))

		if err := downloadSingleObjectToFile(ctx, downloader, sentinel2AwsBucket, objectKey, localFilePath); err != nil {
			return fmt.Errorf("AwsImageProvider.%w", err)
		}
	}

	return nil
}

func downloadSingleObjectToFile(ctx context.Context, downloader *manager.Downloader, bucketName string, objectKey string, localPath string) error {
	file, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("downloadSingleObjectToFile: failed to create file %s: %w", localPath, err)
	}
	defer file.Close()

	_, err = downloader.Download(ctx, file, &s3.GetObjectInput{
		Bucket:       aws.String(bucketName),
		Key:          aws.String(objectKey),
		RequestPayer: "requester",
	})
	if err != nil {
		os.Remove(localPath)
		return fmt.Errorf("downloadSingleObjectToFile: failed to download object %s:%s: %w",
			bucketName, objectKey, err)
	}

	return nil
}
