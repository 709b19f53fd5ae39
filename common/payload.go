package common

import (
	"time"
)

// ProductAttrs carries the catalog attributes of a product needed to
// download and process it
type ProductAttrs struct {
	UUID        string    `json:"uuid"`
	Date        time.Time `json:"date"`
	TileID      string    `json:"tile_id"`
	CloudCover  float64   `json:"cloud_cover"`
	ProductType string    `json:"product_type,omitempty"`
}

// Product is one satellite acquisition over one tile at one date
type Product struct {
	SourceID string       `json:"source_id"`
	AOI      string       `json:"aoi,omitempty"`
	Data     ProductAttrs `json:"data,omitempty"`
}

// BandFiles maps a band code to the local path of its extracted raster
type BandFiles map[Band]string

// TileBands is the per-tile output of the band extraction, the input of
// the NDVI processing
type TileBands struct {
	TileID      string    `json:"tile_id"`
	Date        time.Time `json:"date"`
	ProductName string    `json:"product_name"`
	Dir         string    `json:"dir"`
	Bands       BandFiles `json:"bands"`
}

// Result reports the outcome of one product of a batch
type Result struct {
	Product string     `json:"product"`
	Status  Status     `json:"status"`
	Message string     `json:"message,omitempty"`
	Tile    *TileBands `json:"tile,omitempty"`
}
