package opensearch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/geoagro/ndvi-ingester/catalog/entities"
	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/geojson"
)

const featureTemplate = `{
	"id": "ca4d2926-156a-42c8-a120-1c4b4a91d0%02d",
	"geometry": {"type": "Polygon", "coordinates": [[[-71.8, -34.6], [-70.6, -34.6], [-70.6, -35.6], [-71.8, -35.6], [-71.8, -34.6]]]},
	"properties": {
		"title": "S2B_MSIL2A_202401%02dT143749_N0510_R096_T18HYF_20240112T190000.SAFE",
		"startDate": "2024-01-%02dT14:37:49.024Z",
		"published": "2024-01-%02dT20:00:00.000Z",
		"productType": "S2MSI2A",
		"cloudCover": %f,
		"relativeOrbitNumber": 96
	}
}`

func TestQuery(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		features := ""
		for i := 0; i < 2; i++ {
			if features != "" {
				features += ","
			}
			features += fmt.Sprintf(featureTemplate, i, i+1, i+1, i+1, float64(5*i))
		}
		fmt.Fprintf(w, `{"type": "FeatureCollection", "properties": {"totalResults": 2}, "features": [%s]}`, features)
	}))
	defer srv.Close()

	area := &entities.AreaOfInterest{
		AOIID:         "maule",
		AOI:           geojson.Geometry{Geometry: geom.Polygon{{{-71.8, -34.6}, {-70.6, -34.6}, {-70.6, -35.6}, {-71.8, -34.6}}}},
		StartTime:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndTime:       time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		MaxCloudCover: 80,
		Limit:         10,
	}
	p := Provider{URL: srv.URL + "/resto/api/collections/Sentinel2/search.json?"}
	products, err := p.SearchProducts(ctx, area)
	if err != nil {
		t.Fatalf("%v", err)
	}
	if len(products.Products) != 2 {
		t.Fatalf("Expecting 2 hits got %d", len(products.Products))
	}
	product := products.Products[0]
	if product.SourceID != "S2B_MSIL2A_20240101T143749_N0510_R096_T18HYF_20240112T190000" {
		t.Errorf("wrong source id: %s", product.SourceID)
	}
	if product.Data.TileID != "T18HYF" {
		t.Errorf("wrong tile: %s", product.Data.TileID)
	}
	if products.Products[1].Data.CloudCover != 5 {
		t.Errorf("wrong cloud cover: %f", products.Products[1].Data.CloudCover)
	}
}
