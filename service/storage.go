package service

import (
	"compress/flate"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	gstorage "cloud.google.com/go/storage"
	"github.com/geoagro/ndvi-ingester/common"
	"github.com/mholt/archiver"
)

// Layer of an image
type Layer string

// List of available layers
const (
	Product Layer = "__product__" // Special value, that will be replaced by the product name

	LayerTCI   Layer = "TCI"
	LayerNIR   Layer = "B08"
	LayerRed   Layer = "B04"
	LayerGreen Layer = "B03"

	LayerNDVI     Layer = "ndvi"
	LayerMosaic   Layer = "mosaic"
	LayerClip     Layer = "clip"
	LayerRendered Layer = "rendered"
)

// Extension of a layer
type Extension string

// Some supported extensions
const (
	NoExtension    Extension = "" // The layer has no extension
	ExtensionGTiff Extension = "tif"
	ExtensionJP2   Extension = "jp2"
	ExtensionPNG   Extension = "png"
	ExtensionZIP   Extension = "zip"
	// The following extensions are directories, thus, they are stored as a zip file
	// Using those extensions ensures that the stored file will be unzipped in a directory named <layer>.<Extension>
	ExtensionSAFE Extension = "SAFE" // Sentinel product
	ExtensionAll  Extension = "*"    // The content of the whole working directory. Replaced by NoExtension in the directory name
)

// ErrFileNotFound is an error returned by ImportLayer or DeleteLayer
type ErrFileNotFound struct {
	File string
}

func (e ErrFileNotFound) Error() string {
	return fmt.Sprintf("File not found: %s", e.File)
}

func isErrNotFound(err error) bool {
	var epath *os.PathError
	return errors.Is(err, gstorage.ErrObjectNotExist) ||
		(errors.As(err, &epath) && os.IsNotExist(epath))
}

// LayerFileName returns the name of the file given the tile, the layer and the extension
func LayerFileName(tile common.TileBands, layer Layer, ext Extension) string {
	if ext == NoExtension || ext == ExtensionAll {
		ext = ""
	} else {
		ext = "." + ext
	}
	if layer == Product {
		return fmt.Sprintf("%s%s", tile.ProductName, ext)
	}
	return fmt.Sprintf("%s_%s_%s%s", tile.Date.Format("20060102"), tile.TileID, layer, ext)
}

// Storage is a service to store and retrieve file from storage
type Storage interface {
	// SaveLayer persists the layer into a storage and returns the uri
	SaveLayer(ctx context.Context, tile common.TileBands, layer Layer, ext Extension, localdir string) (string, error)
	// ImportLayer imports the layer from the storage to the given localdir
	// Raise ErrFileNotFound
	ImportLayer(ctx context.Context, tile common.TileBands, layer Layer, ext Extension, localdir string) error
	// DeleteLayer delete the layer from the storage
	// Raise ErrFileNotFound
	DeleteLayer(ctx context.Context, tile common.TileBands, layer Layer, ext Extension) error
}

// StorageStrategy implements Storage on a local directory or a gs:// bucket
type StorageStrategy struct {
	strategy strategy
	uri      string
}

// NewStorageStrategy creates a new StorageStrategy from a file path or a gs:// uri
func NewStorageStrategy(ctx context.Context, storageURI string) (*StorageStrategy, error) {
	u, err := url.Parse(storageURI)
	if err != nil {
		return nil, fmt.Errorf("NewStorageStrategy.ParseURI: %w", err)
	}

	switch u.Scheme {
	case "gs":
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("NewStorageStrategy.NewClient: %w", err)
		}
		return &StorageStrategy{strategy: gsStrategy{client: client}, uri: strings.TrimSuffix(storageURI, "/")}, nil
	case "", "file":
		localdir := path.Join(u.Host, u.Path)
		if err := os.MkdirAll(localdir, 0766); err != nil {
			return nil, fmt.Errorf("NewStorageStrategy.MkdirAll: %w", err)
		}
		return &StorageStrategy{strategy: fileStrategy{}, uri: localdir}, nil
	}
	return nil, fmt.Errorf("NewStorageStrategy: unsupported scheme: %s", u.Scheme)
}

// SaveLayer implements Storage
func (ss *StorageStrategy) SaveLayer(ctx context.Context, tile common.TileBands, layer Layer, ext Extension, localdir string) (string, error) {
	src := path.Join(localdir, LayerFileName(tile, layer, ext))

	if storedAsZip(ext) {
		folders := []string{src}
		if ext == ExtensionAll {
			// Zip the content of the localdir.
			files, err := os.ReadDir(localdir)
			if err != nil {
				return "", fmt.Errorf("SaveLayer.Archive: %w", err)
			}
			folders = folders[:0]
			for _, f := range files {
				folders = append(folders, path.Join(localdir, f.Name()))
			}
		}
		// Zip
		dst := WithExt(src, ExtensionZIP)
		zipper := archiver.NewZip()
		zipper.CompressionLevel = flate.BestSpeed
		if err := zipper.Archive(folders, dst); err != nil {
			return "", fmt.Errorf("SaveLayer.Archive: %w", err)
		}
		defer os.Remove(dst)

		// Update source and extension
		src = dst
		ext = ExtensionZIP
	}

	f, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("SaveLayer.Open: %w", err)
	}
	defer f.Close()

	dst := ss.getPath(tile, LayerFileName(tile, layer, ext))
	if err := ss.strategy.UploadFile(ctx, dst, f); err != nil {
		return "", fmt.Errorf("SaveLayer.UploadFile to %s: %w", dst, err)
	}

	return dst, nil
}

// ImportLayer implements Storage
func (ss *StorageStrategy) ImportLayer(ctx context.Context, tile common.TileBands, layer Layer, ext Extension, localdir string) error {
	targetExt := ext
	if storedAsZip(ext) {
		ext = ExtensionZIP
	}

	layerFileName := LayerFileName(tile, layer, ext)
	srcFile := ss.getPath(tile, layerFileName)
	dstFile := path.Join(localdir, layerFileName)
	if err := ss.strategy.DownloadToFile(ctx, srcFile, dstFile); err != nil {
		if isErrNotFound(err) {
			return ErrFileNotFound{srcFile}
		}
		return fmt.Errorf("ImportLayer.DownloadToFile from %s: %w", srcFile, err)
	}

	if ext == ExtensionZIP && targetExt != ExtensionZIP {
		defer os.Remove(dstFile)
		layerFileName = LayerFileName(tile, layer, targetExt)
		dstDir := path.Join(localdir, layerFileName)
		tmpDir, err := os.MkdirTemp(localdir, "layerdir")
		if err != nil {
			return fmt.Errorf("ImportLayer.MkdirTemp: %w", err)
		}
		defer os.RemoveAll(tmpDir)
		zip := archiver.Zip{OverwriteExisting: true, MkdirAll: true}
		if err := zip.Unarchive(dstFile, tmpDir); err != nil {
			return fmt.Errorf("ImportLayer.Unarchive: %w", err)
		}

		// Check if tmpDir has a layerFileName folder, otherwise, rename it
		if _, err = os.Stat(path.Join(tmpDir, layerFileName)); err == nil {
			tmpDir = path.Join(tmpDir, layerFileName)
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("ImportLayer.Stat: %w", err)
		}
		if err := os.Rename(tmpDir, dstDir); err != nil {
			return fmt.Errorf("ImportLayer.Rename: %w", err)
		}
	}

	return nil
}

// DeleteLayer implements Storage
func (ss *StorageStrategy) DeleteLayer(ctx context.Context, tile common.TileBands, layer Layer, ext Extension) error {
	if storedAsZip(ext) {
		ext = ExtensionZIP
	}

	file := ss.getPath(tile, LayerFileName(tile, layer, ext))
	if err := ss.strategy.Delete(ctx, file); err != nil {
		if isErrNotFound(err) {
			return ErrFileNotFound{file}
		}
		return fmt.Errorf("DeleteLayer.Delete: %w", err)
	}

	return nil
}

// getPath returns the path of the layer of the tile
func (ss *StorageStrategy) getPath(tile common.TileBands, filename string) string {
	return ss.uri + "/" + path.Join(tile.TileID, tile.Date.Format("20060102"), filename)
}

func storedAsZip(ext Extension) bool {
	switch ext {
	case ExtensionAll, ExtensionSAFE:
		return true
	}
	return false
}

func WithExt(filePath string, ext Extension) string {
	filePath = strings.TrimSuffix(filePath, filepath.Ext(filePath))
	if ext != "" {
		return fmt.Sprintf("%s.%s", filePath, string(ext))
	}
	return filePath
}

func GetExt(filePath string) Extension {
	return Extension(path.Ext(filePath)[1:])
}

// strategy is the backend of a StorageStrategy
type strategy interface {
	UploadFile(ctx context.Context, uri string, data io.Reader) error
	DownloadToFile(ctx context.Context, uri, localFile string) error
	Delete(ctx context.Context, uri string) error
}

type fileStrategy struct{}

func (fileStrategy) UploadFile(_ context.Context, uri string, data io.Reader) error {
	if err := os.MkdirAll(path.Dir(uri), 0766); err != nil {
		return fmt.Errorf("fileStrategy.MkdirAll: %w", err)
	}
	f, err := os.Create(uri)
	if err != nil {
		return fmt.Errorf("fileStrategy.Create: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, data); err != nil {
		return fmt.Errorf("fileStrategy.Copy: %w", err)
	}
	return nil
}

func (fileStrategy) DownloadToFile(_ context.Context, uri, localFile string) error {
	src, err := os.Open(uri)
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := os.Create(localFile)
	if err != nil {
		return fmt.Errorf("fileStrategy.Create: %w", err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("fileStrategy.Copy: %w", err)
	}
	return nil
}

func (fileStrategy) Delete(_ context.Context, uri string) error {
	return os.Remove(uri)
}

type gsStrategy struct {
	client *gstorage.Client
}

func (s gsStrategy) object(uri string) (*gstorage.ObjectHandle, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("gsStrategy.Parse: %w", err)
	}
	return s.client.Bucket(u.Host).Object(strings.TrimPrefix(u.Path, "/")), nil
}

func (s gsStrategy) UploadFile(ctx context.Context, uri string, data io.Reader) error {
	obj, err := s.object(uri)
	if err != nil {
		return err
	}
	w := obj.NewWriter(ctx)
	if _, err := io.Copy(w, data); err != nil {
		w.Close()
		return MakeTemporary(fmt.Errorf("gsStrategy.Copy: %w", err))
	}
	if err := w.Close(); err != nil {
		return MakeTemporary(fmt.Errorf("gsStrategy.Close: %w", err))
	}
	return nil
}

func (s gsStrategy) DownloadToFile(ctx context.Context, uri, localFile string) error {
	obj, err := s.object(uri)
	if err != nil {
		return err
	}
	r, err := obj.NewReader(ctx)
	if err != nil {
		return err
	}
	defer r.Close()
	f, err := os.Create(localFile)
	if err != nil {
		return fmt.Errorf("gsStrategy.Create: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return MakeTemporary(fmt.Errorf("gsStrategy.Copy: %w", err))
	}
	return nil
}

func (s gsStrategy) Delete(ctx context.Context, uri string) error {
	obj, err := s.object(uri)
	if err != nil {
		return err
	}
	return obj.Delete(ctx)
}
