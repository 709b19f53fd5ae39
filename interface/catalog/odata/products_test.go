package odata

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	neturl "net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/geoagro/ndvi-ingester/catalog/entities"
	"github.com/geoagro/ndvi-ingester/interface/auth"
	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/geojson"
)

const hitTemplate = `{
	"Id": "ca4d2926-156a-42c8-a120-1c4b4a91d0%02d",
	"Name": "S2B_MSIL2A_202401%02dT143749_N0510_R096_T18HYF_20240112T190000.SAFE",
	"ContentDate": {"Start": "2024-01-%02dT14:37:49.024Z"},
	"GeoFootprint": {"type": "Polygon", "coordinates": [[[-71.8, -34.6], [-70.6, -34.6], [-70.6, -35.6], [-71.8, -35.6], [-71.8, -34.6]]]},
	"Attributes": [
		{"Name": "productType", "Value": "S2MSI2A", "ValueType": "String"},
		{"Name": "cloudCover", "Value": %f, "ValueType": "Double"},
		{"Name": "relativeOrbitNumber", "Value": 96, "ValueType": "Integer"}
	]
}`

func newCatalogServer(t *testing.T, nbHits int, queries *[]string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*queries = append(*queries, r.URL.RawQuery)
		top, _ := strconv.Atoi(r.URL.Query().Get("$top"))
		skip, _ := strconv.Atoi(r.URL.Query().Get("$skip"))

		hits, next := "", ""
		for i := skip; i < skip+top && i < nbHits; i++ {
			if hits != "" {
				hits += ","
			}
			hits += fmt.Sprintf(hitTemplate, i, i+1, i+1, float64(10*i))
		}
		if skip+top < nbHits {
			next = fmt.Sprintf(`, "@odata.nextLink": "%s?$skip=%d"`, r.URL.Path, skip+top)
		}
		fmt.Fprintf(w, `{"value": [%s]%s}`, hits, next)
	}))
}

func testArea() *entities.AreaOfInterest {
	return &entities.AreaOfInterest{
		AOIID:         "maule",
		AOI:           geojson.Geometry{Geometry: geom.Polygon{{{-71.8, -34.6}, {-70.6, -34.6}, {-70.6, -35.6}, {-71.8, -34.6}}}},
		StartTime:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndTime:       time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		MaxCloudCover: 80,
		Limit:         10,
	}
}

func TestSearchProducts(t *testing.T) {
	ctx := context.Background()
	var queries []string
	srv := newCatalogServer(t, 3, &queries)
	defer srv.Close()

	area := testArea()
	p := Provider{URL: srv.URL + "/odata/v1/Products?$filter="}
	products, err := p.SearchProducts(ctx, area)
	if err != nil {
		t.Fatalf("%v", err)
	}
	if len(products.Products) != 3 {
		t.Fatalf("Expecting 3 hits got %d", len(products.Products))
	}

	product := products.Products[0]
	if product.SourceID != "S2B_MSIL2A_20240101T143749_N0510_R096_T18HYF_20240112T190000" {
		t.Errorf("wrong source id: %s", product.SourceID)
	}
	if product.ProductName != "S2B_MSIL2A_20240101T143749_N0510_R096_T18HYF" {
		t.Errorf("wrong product name: %s", product.ProductName)
	}
	if product.Data.UUID != "ca4d2926-156a-42c8-a120-1c4b4a91d000" {
		t.Errorf("wrong uuid: %s", product.Data.UUID)
	}
	if product.Data.TileID != "T18HYF" {
		t.Errorf("wrong tile: %s", product.Data.TileID)
	}
	if product.Data.ProductType != "S2MSI2A" {
		t.Errorf("wrong product type: %s", product.Data.ProductType)
	}
	if products.Products[1].Data.CloudCover != 10 {
		t.Errorf("wrong cloud cover: %f", products.Products[1].Data.CloudCover)
	}
	if !product.Data.Date.Equal(time.Date(2024, 1, 1, 14, 37, 49, 24e6, time.UTC)) {
		t.Errorf("wrong date: %s", product.Data.Date)
	}
	if product.GeometryWKT == "" {
		t.Errorf("empty geometry")
	}

	// Filter construction
	if len(queries) != 1 {
		t.Fatalf("Expecting 1 query got %d", len(queries))
	}
	q, err := neturl.QueryUnescape(queries[0])
	if err != nil {
		t.Fatal(err)
	}
	for _, part := range []string{
		"Collection/Name eq 'SENTINEL-2'",
		"OData.CSC.Intersects(area=geography'SRID=4326;POLYGON",
		"ContentDate/Start ge 2024-01-01T00:00:00Z",
		"ContentDate/Start le 2024-02-01T00:00:00Z",
		"att/Name eq 'productType' and att/OData.CSC.StringAttribute/Value eq 'S2MSI2A'",
		"att/Name eq 'cloudCover' and att/OData.CSC.DoubleAttribute/Value le 80.00",
	} {
		if !strings.Contains(q, part) {
			t.Errorf("missing filter %q in %q", part, q)
		}
	}
}

func TestSearchProductsAuthorized(t *testing.T) {
	ctx := context.Background()

	identity := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"access_token":"catalog-token","expires_in":600,"token_type":"Bearer"}`)
	}))
	defer identity.Close()

	var authorizations []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorizations = append(authorizations, r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"value": []}`)
	}))
	defer srv.Close()

	tm := auth.NewTokenManager("user", "secret")
	tm.TokenURL = identity.URL
	p := Provider{Client: tm.HTTPClient(), URL: srv.URL + "/odata/v1/Products?$filter="}
	if _, err := p.SearchProducts(ctx, testArea()); err != nil {
		t.Fatalf("%v", err)
	}

	if len(authorizations) != 1 {
		t.Fatalf("Expecting 1 query got %d", len(authorizations))
	}
	if authorizations[0] != "Bearer catalog-token" {
		t.Errorf("wrong authorization header: %q", authorizations[0])
	}
}

func TestSearchProductsPaging(t *testing.T) {
	ctx := context.Background()
	var queries []string
	srv := newCatalogServer(t, 7, &queries)
	defer srv.Close()

	area := testArea()
	area.Limit = 5
	p := Provider{URL: srv.URL + "/odata/v1/Products?$filter=", Limit: 2}
	products, err := p.SearchProducts(ctx, area)
	if err != nil {
		t.Fatalf("%v", err)
	}
	if len(products.Products) != 5 {
		t.Errorf("Expecting 5 hits got %d", len(products.Products))
	}

	// Second client page only holds the 2 remaining hits
	area.Page = 1
	products, err = p.SearchProducts(ctx, area)
	if err != nil {
		t.Fatalf("%v", err)
	}
	if len(products.Products) != 2 {
		t.Errorf("Expecting 2 hits got %d", len(products.Products))
	}
}
