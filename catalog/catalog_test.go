package catalog

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/geoagro/ndvi-ingester/catalog/entities"
	"github.com/geoagro/ndvi-ingester/common"
	icatalog "github.com/geoagro/ndvi-ingester/interface/catalog"
	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/geojson"
)

type fakeProvider struct {
	name     string
	products []*entities.Product
	err      error
	calls    int
}

func (p *fakeProvider) Name() string { return p.name }
func (p *fakeProvider) SearchProducts(ctx context.Context, area *entities.AreaOfInterest) (entities.Products, error) {
	p.calls++
	if p.err != nil {
		return entities.Products{}, p.err
	}
	return entities.Products{Products: p.products}, nil
}

func product(name, ingestionDate string, date time.Time, cloudCover float64) *entities.Product {
	p := &entities.Product{
		Product: common.Product{SourceID: name, Data: common.ProductAttrs{Date: date, CloudCover: cloudCover}},
		Tags:    map[string]string{common.TagIngestionDate: ingestionDate},
	}
	p.AutoFill()
	return p
}

func testArea() *entities.AreaOfInterest {
	return &entities.AreaOfInterest{
		AOIID:     "maule",
		AOI:       geojson.Geometry{Geometry: geom.Polygon{{{-71.8, -34.6}, {-70.6, -34.6}, {-70.6, -35.6}, {-71.8, -34.6}}}},
		StartTime: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestProductsInventory(t *testing.T) {
	ctx := context.Background()

	d1 := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	provider := &fakeProvider{name: "fake", products: []*entities.Product{
		product("S2B_MSIL2A_20240110T143749_N0510_R096_T18HYF_20240110T190000", "2024-01-10", d1, 30),
		// Reprocessing of the first product, ingested later: replaces it
		product("S2B_MSIL2A_20240110T143749_N0510_R096_T18HYF_20240111T250000", "2024-01-11", d1, 10),
		product("S2B_MSIL2A_20240115T143749_N0510_R096_T18HYF_20240115T190000", "2024-01-15", d2, 50),
		product("S2B_MSIL2A_20240115T143749_N0510_R096_T19HBA_20240115T190000", "2024-01-15", d2, 20),
	}}

	c := Catalog{Providers: []icatalog.ProductsProvider{provider}}
	products, err := c.ProductsInventory(ctx, testArea())
	if err != nil {
		t.Fatalf("%v", err)
	}
	if len(products.Products) != 3 {
		t.Fatalf("Expecting 3 products got %d", len(products.Products))
	}
	// Newest first, lower cloud cover first on equal dates
	if products.Products[0].Data.TileID != "T19HBA" {
		t.Errorf("wrong ranking: %s", products.Products[0].SourceID)
	}
	if products.Products[2].SourceID != "S2B_MSIL2A_20240110T143749_N0510_R096_T18HYF_20240111T250000" {
		t.Errorf("double entry not replaced by the reprocessed product: %s", products.Products[2].SourceID)
	}

	best := BestPerTile(products.Products)
	if len(best) != 2 {
		t.Errorf("Expecting 2 products got %d", len(best))
	}
}

func TestProductsInventoryFallback(t *testing.T) {
	ctx := context.Background()

	failing := &fakeProvider{name: "failing", err: fmt.Errorf("service unavailable")}
	working := &fakeProvider{name: "working", products: []*entities.Product{
		product("S2B_MSIL2A_20240110T143749_N0510_R096_T18HYF_20240110T190000", "2024-01-10", time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), 30),
	}}

	c := Catalog{}
	c.Providers = append(c.Providers, failing, working)
	products, err := c.ProductsInventory(ctx, testArea())
	if err != nil {
		t.Fatalf("%v", err)
	}
	if len(products.Products) != 1 {
		t.Errorf("Expecting 1 product got %d", len(products.Products))
	}
	if failing.calls != 1 || working.calls != 1 {
		t.Errorf("Expecting both providers to be tried")
	}
}

func TestProductsInventoryNoCatalog(t *testing.T) {
	c := Catalog{}
	if _, err := c.ProductsInventory(context.Background(), testArea()); err == nil {
		t.Errorf("expecting an error when no catalog is configured")
	}
}
