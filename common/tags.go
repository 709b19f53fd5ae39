package common

// Tags attached to products by the catalog providers
const (
	TagSourceID             = "sourceID"
	TagUUID                 = "uuid"
	TagIngestionDate        = "ingestionDate"
	TagProductType          = "productType"
	TagCloudCoverPercentage = "cloudCoverPercentage"
	TagConstellation        = "constellation"
	TagSatellite            = "satellite"
	TagTile                 = "tile"
	TagRelativeOrbit        = "relativeOrbitNumber"
)
