package catalog

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-spatial/geom/encoding/geojson"
)

// AOIFromFile reads an area of interest from a GeoJSON file. The file may hold
// a bare geometry, a Feature or a FeatureCollection (first feature).
func AOIFromFile(path string) (geojson.Geometry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return geojson.Geometry{}, fmt.Errorf("AOIFromFile: %w", err)
	}
	return AOIFromJSON(raw)
}

// AOIFromJSON parses the GeoJSON of an area of interest
func AOIFromJSON(raw []byte) (geojson.Geometry, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return geojson.Geometry{}, fmt.Errorf("AOIFromJSON: %w", err)
	}

	switch probe.Type {
	case "FeatureCollection":
		fc := geojson.FeatureCollection{}
		if err := json.Unmarshal(raw, &fc); err != nil {
			return geojson.Geometry{}, fmt.Errorf("AOIFromJSON: %w", err)
		}
		if len(fc.Features) == 0 {
			return geojson.Geometry{}, fmt.Errorf("AOIFromJSON: empty FeatureCollection")
		}
		return fc.Features[0].Geometry, nil
	case "Feature":
		f := geojson.Feature{}
		if err := json.Unmarshal(raw, &f); err != nil {
			return geojson.Geometry{}, fmt.Errorf("AOIFromJSON: %w", err)
		}
		return f.Geometry, nil
	default:
		g := geojson.Geometry{}
		if err := json.Unmarshal(raw, &g); err != nil {
			return geojson.Geometry{}, fmt.Errorf("AOIFromJSON: %w", err)
		}
		return g, nil
	}
}
