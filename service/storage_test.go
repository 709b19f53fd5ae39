package service

import (
	"context"
	"os"
	"path"
	"testing"
	"time"

	"github.com/geoagro/ndvi-ingester/common"
)

func initLocalDirs() (string, string, string, error) {
	localdir, err := os.MkdirTemp("", "local")
	if err != nil {
		return "", "", "", err
	}
	distdir, err := os.MkdirTemp("", "dist")
	if err != nil {
		return "", "", "", err
	}
	localdir2, err := os.MkdirTemp("", "local2")
	return localdir, distdir, localdir2, err
}

func createFiles(dir, name string) {
	os.WriteFile(path.Join(dir, name+".tif"), []byte("test"), 0644)
	os.Mkdir(path.Join(dir, name+".SAFE"), 0755)
	os.WriteFile(path.Join(dir, name+".SAFE", "manifest.safe"), []byte("test"), 0644)
}

func TestLocalStorage(t *testing.T) {
	ctx := context.Background()

	localdir, distdir, localdir2, err := initLocalDirs()
	if err != nil {
		t.Error(err)
	}
	defer os.RemoveAll(localdir)
	defer os.RemoveAll(localdir2)
	defer os.RemoveAll(distdir)

	tile := common.TileBands{
		TileID:      "T18HYF",
		Date:        time.Date(2023, 1, 3, 0, 0, 0, 0, time.Local),
		ProductName: "S2A_MSIL2A_20230103T143751_N0509_R096_T18HYF_20230103T190039",
	}
	layer := LayerNDVI
	createFiles(localdir, LayerFileName(tile, layer, ""))

	service, err := NewStorageStrategy(ctx, distdir)
	if err != nil {
		t.Error(err)
	}

	testStorage(t, ctx, localdir, localdir2, tile, layer, service)
}

func testStorage(t *testing.T, ctx context.Context, localdir, localdir2 string, tile common.TileBands, layer Layer, storage Storage) {
	// Save tile.tif
	if _, err := storage.SaveLayer(ctx, tile, layer, ExtensionGTiff, localdir); err != nil {
		t.Error(err)
	}

	// Import tile.tif
	if err := storage.ImportLayer(ctx, tile, layer, ExtensionGTiff, localdir2); err != nil {
		t.Error(err)
	}

	// Delete tile.tif
	if err := storage.DeleteLayer(ctx, tile, layer, ExtensionGTiff); err != nil {
		t.Error(err)
	}

	// Verif
	if _, err := os.Stat(path.Join(localdir2, LayerFileName(tile, layer, ExtensionGTiff))); err != nil {
		t.Error(err)
	}

	// Save tile.SAFE (stored as a zip)
	if _, err := storage.SaveLayer(ctx, tile, layer, ExtensionSAFE, localdir); err != nil {
		t.Error(err)
	}

	// Import tile.SAFE
	if err := storage.ImportLayer(ctx, tile, layer, ExtensionSAFE, localdir2); err != nil {
		t.Error(err)
	}

	// Delete tile.SAFE
	if err := storage.DeleteLayer(ctx, tile, layer, ExtensionSAFE); err != nil {
		t.Error(err)
	}

	// Verif
	if _, err := os.Stat(path.Join(localdir2, LayerFileName(tile, layer, ExtensionSAFE), "manifest.safe")); err != nil {
		t.Error(err)
	}
}
