package provider

import (
	"context"
	"fmt"
	"io"
	neturl "net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/geoagro/ndvi-ingester/common"
	"github.com/geoagro/ndvi-ingester/service"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/iterator"
)

// GSImageProvider implements ImageProvider for Google Storage Sentinel-2 buckets
type GSImageProvider struct {
	buckets []string
}

// Name implements ImageProvider
func (ip *GSImageProvider) Name() string {
	return "GoogleStorage"
}

// NewGSImageProvider creates a new ImageProvider from Google Storage Sentinel-2 buckets
func NewGSImageProvider() *GSImageProvider {
	return &GSImageProvider{}
}

// AddBucket to the provider
// bucket can contain several {IDENTIFIER} than will be replaced according to the information found in the product name
// IDENTIFIER must be one of SCENE, MISSION_ID, PRODUCT_LEVEL, DATE(YEAR/MONTH/DAY), TIME(HOUR/MINUTE/SECOND), PDGS, ORBIT, TILE (UTM_ZONE/LATITUDE_BAND/GRID_SQUARE)
func (ip *GSImageProvider) AddBucket(bucket string) {
	ip.buckets = append(ip.buckets, bucket)
}

// parseGsURI splits a gs://bucket/blob uri
func parseGsURI(uri string) (bucket, blob string, err error) {
	u, err := neturl.Parse(uri)
	if err != nil {
		return "", "", fmt.Errorf("parseGsURI: %w", err)
	}
	if u.Scheme != "gs" {
		return "", "", fmt.Errorf("parseGsURI: not a gs:// uri: %s", uri)
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), nil
}

func downloadToFile(ctx context.Context, client *storage.Client, bucket, object, localFile string) error {
	r, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		if err == storage.ErrObjectNotExist {
			return ErrProductNotFound{"gs://" + bucket + "/" + object}
		}
		return service.MakeTemporary(fmt.Errorf("downloadToFile.NewReader: %w", err))
	}
	defer r.Close()
	f, err := os.Create(localFile)
	if err != nil {
		return fmt.Errorf("downloadToFile.Create: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return service.MakeTemporary(fmt.Errorf("downloadToFile.Copy: %w", err))
	}
	return nil
}

func findBlob(ctx context.Context, client *storage.Client, url string) (string, error) {
	// Find the first blob that matches the url pattern
	bucket, blob, err := parseGsURI(url)
	if err != nil {
		return "", err
	}
	// Create a regexp from blob, replacing "*" by ".*" and "?" by "."
	blobRe := strings.ReplaceAll(strings.ReplaceAll(regexp.QuoteMeta(blob), "\\*", ".*"), "\\?", ".")
	re, err := regexp.Compile(blobRe)
	if err != nil {
		return "", fmt.Errorf("compile[%s]: %w", blobRe, err)
	}
	// Extract the prefix
	if i := strings.Index(blob, "*"); i != -1 {
		blob = blob[:i]
	}
	// Find all the blobs that match the prefix
	it := client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: blob})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return "", fmt.Errorf("list[%s/%s*]: %w", bucket, blob, err)
		}
		if idx := re.FindIndex([]byte(attrs.Name)); idx != nil && idx[0] == 0 {
			return "gs://" + bucket + "/" + attrs.Name[:idx[1]], nil
		}
	}
	return url, ErrProductNotFound{url}
}

// Download implements ImageProvider
func (ip *GSImageProvider) Download(ctx context.Context, product common.Product, localDir string) error {
	productName := product.SourceID
	if !common.IsSentinel2(productName) || len(ip.buckets) == 0 {
		return fmt.Errorf("GSImageProvider: constellation not supported")
	}
	format, err := common.Info(productName)
	if err != nil {
		return fmt.Errorf("GSImageProvider: %w", err)
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return service.MakeTemporary(fmt.Errorf("GSImageProvider.NewClient: %w", err))
	}
	defer client.Close()

	for _, bucket := range ip.buckets {
		url := common.FormatBrackets(bucket, format)
		if strings.Contains(url, "*") {
			if url, err = findBlob(ctx, client, url); err != nil {
				return fmt.Errorf("GSImageProvider: %w", err)
			}
		}
		e := func() error {
			if filepath.Ext(url) == "."+string(service.ExtensionZIP) {
				if err := ip.downloadZip(ctx, client, url, localDir); err != nil {
					return fmt.Errorf("GSImageProvider[%s].%w", url, err)
				}
			} else if files, err := ip.downloadDirectory(ctx, client, url, filepath.Join(localDir, filepath.Base(url))); err != nil {
				return fmt.Errorf("GSImageProvider[%s].%w", url, err)
			} else if len(files) == 0 {
				return fmt.Errorf("GSImageProvider[%s]: not found", url)
			}
			return nil
		}()

		if err = service.MergeErrors(false, err, e); err == nil {
			break
		}
	}
	return err
}

// downloadDirectory fetches all objects prefixed by uri to destination
// It returns the list of absolute filenames that were created (i.e with the destination prefix)
func (ip *GSImageProvider) downloadDirectory(ctx context.Context, client *storage.Client, uri string, dstDir string) (files []string, err error) {
	defer func() {
		if err != nil {
			err = service.MakeTemporary(err)
		}
	}()

	bucket, prefix, err := parseGsURI(uri)
	if err != nil {
		return nil, fmt.Errorf("downloadDirectory: %w", err)
	}
	if len(bucket) == 0 {
		return nil, fmt.Errorf("missing bucket")
	}
	prefix = strings.TrimRight(prefix, "/")
	if dstDir == "" {
		dstDir, err = os.MkdirTemp("", "gcs")
		if err != nil {
			return nil, fmt.Errorf("os.MkdirTemp: %w", err)
		}
	}
	type gsUriToDownload struct {
		bucket, object string
		file           string
	}
	downloads := make(chan gsUriToDownload)
	g, gctx := errgroup.WithContext(ctx)
	filemu := sync.Mutex{}
	for worker := 0; worker < 5; worker++ {
		g.Go(func() error {
			for uri := range downloads {
				if err := downloadToFile(gctx, client, uri.bucket, uri.object, uri.file); err != nil {
					return err
				}
				filemu.Lock()
				files = append(files, uri.file)
				filemu.Unlock()
			}
			return nil
		})
	}
	g.Go(func() error {
		defer close(downloads)
		q := &storage.Query{Prefix: prefix, Versions: false}
		q.SetAttrSelection([]string{"Name"})
		it := client.Bucket(bucket).Objects(gctx, q)
		for {
			objectAttrs, iterr := it.Next()
			if iterr == iterator.Done {
				return nil
			}
			if iterr != nil {
				return fmt.Errorf("bucket iterate: %w", iterr)
			}
			if objectAttrs.Prefix != "" {
				mkdir := filepath.Join(dstDir, objectAttrs.Prefix)
				if ferr := os.MkdirAll(mkdir, 0766); ferr != nil {
					return fmt.Errorf("mkdirall %s: %w", mkdir, ferr)
				}
				continue
			}
			filename := objectAttrs.Name
			if strings.HasPrefix(objectAttrs.Name, prefix) {
				filename = objectAttrs.Name[len(prefix):]
			}
			if len(filename) > 0 && filename[len(filename)-1] == '/' {
				continue
			}
			dirname := filepath.Join(dstDir, filepath.Dir(filename))
			if ferr := os.MkdirAll(dirname, 0766); ferr != nil {
				return fmt.Errorf("mkdirall %s: %w", dirname, ferr)
			}
			select {
			case downloads <- gsUriToDownload{bucket: bucket, object: objectAttrs.Name, file: filepath.Join(dstDir, filename)}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}

// downloadZip to destination
func (ip *GSImageProvider) downloadZip(ctx context.Context, client *storage.Client, uri string, dstDir string) error {
	bucket, object, err := parseGsURI(uri)
	if err != nil {
		return fmt.Errorf("downloadZip.%w", err)
	}
	localZip := path.Join(dstDir, filepath.Base(uri))
	if err := downloadToFile(ctx, client, bucket, object, localZip); err != nil {
		return fmt.Errorf("downloadZip.%w", err)
	}
	defer os.Remove(localZip)
	if err := unarchive(localZip, dstDir); err != nil {
		return service.MakeTemporary(fmt.Errorf("downloadZip.Unarchive: %w", err))
	}
	return nil
}
