package common

import (
	"fmt"
	"strings"
	"time"
)

// Sentinel-2 product names follow the compact naming convention:
// MMM_MSIXXX_YYYYMMDDTHHMMSS_Nxxyy_ROOO_Txxxxx_<Product Discriminator>.SAFE
// e.g. S2B_MSIL2A_20240512T170849_N0510_R112_T14QNG_20240512T213352

// IsSentinel2 returns whether the product name belongs to the Sentinel-2 mission
func IsSentinel2(productName string) bool {
	return strings.HasPrefix(productName, "S2")
}

// Info extracts the fields of a Sentinel-2 product name
func Info(productName string) (map[string]string, error) {
	productName = strings.TrimSuffix(productName, ".SAFE")
	if !IsSentinel2(productName) {
		return nil, fmt.Errorf("Info: not a Sentinel-2 product: %s", productName)
	}
	if len(productName) < len("MMM_MSIXXX_YYYYMMDDTHHMMSS_Nxxyy_ROOO_Txxxxx_<Product Disc.>") || productName[10] != '_' {
		return nil, fmt.Errorf("invalid Sentinel2 product name: %s", productName)
	}
	return map[string]string{
		"SCENE":           productName,
		"MISSION_ID":      productName[0:3],
		"MISSION_VERSION": productName[2:3],
		"PRODUCT_LEVEL":   productName[7:10],
		"DATE":            productName[11:19],
		"YEAR":            productName[11:15],
		"MONTH":           productName[15:17],
		"DAY":             productName[17:19],
		"TIME":            productName[20:26],
		"HOUR":            productName[20:22],
		"MINUTE":          productName[22:24],
		"SECOND":          productName[24:26],
		"PDGS":            productName[28:32],
		"ORBIT":           productName[34:37],
		"TILE":            productName[38:44],
		"UTM_ZONE":        productName[39:41],
		"LATITUDE_BAND":   productName[41:42],
		"GRID_SQUARE":     productName[42:44],
		"PRODUCT_DISC":    productName[45:60],
	}, nil
}

// TileFromProductID returns the T-prefixed MGRS tile id of the product.
// It scans the underscore-separated tokens so that it also works on
// granule file names and names with a truncated discriminator.
func TileFromProductID(productName string) (string, error) {
	for _, part := range strings.Split(productName, "_") {
		if len(part) == 6 && part[0] == 'T' {
			return part, nil
		}
	}
	return "", fmt.Errorf("TileFromProductID: no tile id in %s", productName)
}

// DateFromProductID returns the acquisition date of the product
func DateFromProductID(productName string) (time.Time, error) {
	format, err := Info(productName)
	if err == nil {
		return time.Parse("20060102", format["DATE"])
	}
	// Token scan for non-canonical names
	for _, part := range strings.Split(productName, "_") {
		if len(part) >= 8 && part[0] == '2' {
			if t, terr := time.Parse("20060102", part[:8]); terr == nil {
				return t, nil
			}
		}
	}
	return time.Time{}, err
}

/**
 * FormatBrackets replaces in <str> all {keys} of <info> by the corresponding value
 * keys must be one of SCENE, MISSION_ID, PRODUCT_LEVEL, DATE(YEAR/MONTH/DAY), TIME(HOUR/MINUTE/SECOND), PDGS, ORBIT, TILE (UTM_ZONE/LATITUDE_BAND/GRID_SQUARE)
 */
func FormatBrackets(str string, infos ...map[string]string) string {
	for _, info := range infos {
		for k, v := range info {
			str = strings.ReplaceAll(str, "{"+k+"}", v)
		}
	}
	return str
}
