package catalog

import (
	"testing"
)

const polygonJSON = `{"type":"Polygon","coordinates":[[[-98.5,19.1],[-97.6,19.1],[-97.6,19.8],[-98.5,19.8],[-98.5,19.1]]]}`

func TestAOIFromJSON(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"geometry", polygonJSON},
		{"feature", `{"type":"Feature","properties":{"name":"tlaxcala"},"geometry":` + polygonJSON + `}`},
		{"featureCollection", `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{},"geometry":` + polygonJSON + `}]}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			g, err := AOIFromJSON([]byte(tc.json))
			if err != nil {
				t.Fatal(err)
			}
			if g.Geometry == nil {
				t.Fatal("nil geometry")
			}
		})
	}
}

func TestAOIFromJSONEmptyCollection(t *testing.T) {
	if _, err := AOIFromJSON([]byte(`{"type":"FeatureCollection","features":[]}`)); err == nil {
		t.Error("expected an error on an empty FeatureCollection")
	}
}
