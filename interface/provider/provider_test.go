package provider

import (
	"archive/zip"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"strings"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/geoagro/ndvi-ingester/common"
)

const productName = "S2B_MSIL2A_20240512T170849_N0510_R112_T14QNG_20240512T213352"

func createZip(t *testing.T, zipPath string, entries map[string]string) {
	f, err := os.Create(zipPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	w := zip.NewWriter(f)
	defer w.Close()
	for name, content := range entries {
		e, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := e.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
}

func TestLocalProvider(t *testing.T) {
	root := t.TempDir()
	localDir := t.TempDir()

	// The local provider expects <root>/<year>/<month>/<day>/<product>.zip
	productDir := path.Join(root, "2024", "05", "12")
	if err := os.MkdirAll(productDir, 0755); err != nil {
		t.Fatal(err)
	}
	createZip(t, path.Join(productDir, productName+".zip"), map[string]string{
		productName + ".SAFE/manifest.safe": "manifest",
	})

	ip := NewLocalImageProvider(root)
	if err := ip.Download(context.Background(), common.Product{SourceID: productName}, localDir); err != nil {
		t.Fatalf("Failed to Download product: %v", err)
	}
	if _, err := os.Stat(path.Join(localDir, productName+".SAFE", "manifest.safe")); err != nil {
		t.Errorf("missing extracted file: %v", err)
	}
}

func TestLocalProviderNotFound(t *testing.T) {
	ip := NewLocalImageProvider(t.TempDir())
	err := ip.Download(context.Background(), common.Product{SourceID: productName}, t.TempDir())
	if _, ok := err.(ErrProductNotFound); !ok {
		t.Errorf("expecting ErrProductNotFound, got %v", err)
	}
}

func TestFTPPathPattern(t *testing.T) {
	ip := NewFTPImageProvider("ftp://ftp.example.org:990/Images/{SCENE}.zip", "user", "pword")
	if ip.hote != "ftp.example.org:990" {
		t.Errorf("wrong host: %s", ip.hote)
	}
	if !ip.tls {
		t.Errorf("expecting tls on port 990")
	}
	if ip.pathPattern != "Images/{SCENE}.zip" {
		t.Errorf("wrong path pattern: %s", ip.pathPattern)
	}

	ip = NewFTPImageProvider("ftp.example.org:21", "user", "pword")
	if ip.tls || ip.pathPattern != "{SCENE}.zip" {
		t.Errorf("wrong defaults: %v %s", ip.tls, ip.pathPattern)
	}
}

// newFakeGSServer emulates just enough of the storage API: object listings on
// the JSON endpoint, everything else served as object content. Objects whose
// name contains "broken" are reported missing.
func newFakeGSServer(t *testing.T, objects []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Has("prefix") {
			items := make([]string, 0, len(objects))
			for _, o := range objects {
				items = append(items, fmt.Sprintf(`{"name": %q, "bucket": "test-bucket", "size": "6"}`, o))
			}
			fmt.Fprintf(w, `{"kind": "storage#objects", "items": [%s]}`, strings.Join(items, ","))
			return
		}
		if strings.Contains(r.URL.Path, "broken") {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		fmt.Fprint(w, "raster")
	}))
}

func newEmulatorClient(t *testing.T, srv *httptest.Server) *storage.Client {
	t.Helper()
	t.Setenv("STORAGE_EMULATOR_HOST", strings.TrimPrefix(srv.URL, "http://"))
	client, err := storage.NewClient(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return client
}

func TestGSDownloadDirectory(t *testing.T) {
	srv := newFakeGSServer(t, []string{
		productName + ".SAFE/manifest.safe",
		productName + ".SAFE/GRANULE/L2A_T14QNG/IMG_DATA/R10m/T14QNG_20240512T170849_B04_10m.jp2",
		productName + ".SAFE/GRANULE/L2A_T14QNG/IMG_DATA/R10m/T14QNG_20240512T170849_B08_10m.jp2",
	})
	defer srv.Close()
	client := newEmulatorClient(t, srv)
	defer client.Close()

	dstDir := t.TempDir()
	ip := NewGSImageProvider()
	files, err := ip.downloadDirectory(context.Background(), client, "gs://test-bucket/"+productName+".SAFE", dstDir)
	if err != nil {
		t.Fatalf("Failed to download directory: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("expecting 3 files, got %d", len(files))
	}
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			t.Errorf("missing downloaded file: %v", err)
		}
	}
}

func TestGSDownloadDirectoryError(t *testing.T) {
	srv := newFakeGSServer(t, []string{
		productName + ".SAFE/manifest.safe",
		productName + ".SAFE/broken.jp2",
	})
	defer srv.Close()
	client := newEmulatorClient(t, srv)
	defer client.Close()

	ip := NewGSImageProvider()
	if _, err := ip.downloadDirectory(context.Background(), client, "gs://test-bucket/"+productName+".SAFE", t.TempDir()); err == nil {
		t.Fatal("expected an error when an object cannot be read")
	}
}

func TestFmtBytes(t *testing.T) {
	if s := fmtBytes(512); s != "512.00o" {
		t.Errorf("fmtBytes: %s", s)
	}
	if s := fmtBytes(2 << 20); s != "2.00Mo" {
		t.Errorf("fmtBytes: %s", s)
	}
}
