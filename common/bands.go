package common

import (
	"path"
	"strings"
)

// Band identifies a Sentinel-2 spectral band or composite raster
type Band string

// Bands needed by the NDVI pipeline
const (
	BandTCI   Band = "TCI" // true color composite
	BandNIR   Band = "B08" // near infrared, 10m
	BandRed   Band = "B04"
	BandGreen Band = "B03"
)

// DefaultBands are the rasters extracted from a product when no explicit
// selection is given
var DefaultBands = []Band{BandTCI, BandNIR, BandRed, BandGreen}

// ParseBands parses a comma-separated band list
func ParseBands(s string) []Band {
	if s == "" {
		return DefaultBands
	}
	var bands []Band
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			bands = append(bands, Band(strings.ToUpper(b)))
		}
	}
	return bands
}

// MatchesEntry returns whether the archive entry is the JP2 raster of the band.
// L2A granules name their rasters <TILE>_<DATETIME>_<BAND>_<RES>.jp2, L1C
// granules omit the resolution suffix. Quality masks (MSK_DETFOO_B08.jp2 and
// friends) also carry the band in their name and are rejected.
func (b Band) MatchesEntry(name string) bool {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if !strings.HasSuffix(base, ".jp2") || strings.HasPrefix(base, "MSK_") {
		return false
	}
	return strings.Contains(base, "_"+string(b)+"_") || strings.HasSuffix(base, "_"+string(b)+".jp2")
}
