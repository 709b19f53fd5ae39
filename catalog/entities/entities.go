package entities

import (
	"fmt"
	"time"

	"github.com/geoagro/ndvi-ingester/common"
	"github.com/go-spatial/geom/encoding/geojson"
)

// DefaultProductType is the Sentinel-2 atmospherically corrected product
const DefaultProductType = "S2MSI2A"

// Product is a specialisation of common.Product for the catalog
type Product struct {
	common.Product
	ProductName string // SourceID without the product discriminator (to remove double entries)
	Tags        map[string]string
	GeometryWKT string
}

// Products is the result of a catalog search
type Products struct {
	Products   []*Product
	Properties map[string]string
}

// AreaOfInterest is the input of the catalog
type AreaOfInterest struct {
	AOIID         string           `json:"aoi"`
	AOI           geojson.Geometry `json:"geometry"`
	StartTime     time.Time        `json:"start_time"`
	EndTime       time.Time        `json:"end_time"`
	ProductType   string           `json:"product_type"`
	MaxCloudCover float64          `json:"max_cloud_cover"`
	Page          int              `json:"page"`
	Limit         int              `json:"limit"`
}

// GetProductType returns the product type to search for
func (a *AreaOfInterest) GetProductType() string {
	if a.ProductType == "" {
		return DefaultProductType
	}
	return a.ProductType
}

// Validate checks that the search parameters are usable
func (a *AreaOfInterest) Validate() error {
	if a.AOIID == "" {
		return fmt.Errorf("AreaOfInterest: aoi is empty")
	}
	if a.AOI.Geometry == nil {
		return fmt.Errorf("AreaOfInterest: geometry is empty")
	}
	if a.EndTime.Before(a.StartTime) {
		return fmt.Errorf("AreaOfInterest: end_time is before start_time")
	}
	if a.MaxCloudCover < 0 || a.MaxCloudCover > 100 {
		return fmt.Errorf("AreaOfInterest: max_cloud_cover must be in [0, 100]")
	}
	return nil
}

// AutoFill fills ProductName, TileID, Date, Satellite and Constellation from the SourceID
func (p *Product) AutoFill() {
	if !common.IsSentinel2(p.SourceID) {
		return
	}
	if len(p.SourceID) >= 44 {
		p.ProductName = p.SourceID[0:44]
	} else {
		p.ProductName = p.SourceID
	}
	if p.Tags == nil {
		p.Tags = map[string]string{}
	}
	p.Tags[common.TagConstellation] = "SENTINEL2"
	p.Tags[common.TagSatellite] = "SENTINEL" + p.SourceID[1:3]
	if tile, err := common.TileFromProductID(p.SourceID); err == nil {
		p.Data.TileID = tile
		p.Tags[common.TagTile] = tile
	}
	if p.Data.Date.IsZero() {
		if date, err := common.DateFromProductID(p.SourceID); err == nil {
			p.Data.Date = date
		}
	}
}
