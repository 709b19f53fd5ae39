package opensearch

// Opensearch specificiations https://github.com/dewitt/opensearch/blob/master/opensearch-1-1-draft-6.md

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	neturl "net/url"
	"strconv"
	"strings"
	"time"

	"github.com/geoagro/ndvi-ingester/catalog/entities"
	"github.com/geoagro/ndvi-ingester/common"
	"github.com/geoagro/ndvi-ingester/service"
	"github.com/geoagro/ndvi-ingester/service/log"
	"github.com/go-spatial/geom/encoding/geojson"
	"github.com/go-spatial/geom/encoding/wkt"
)

const (
	// PageLimit is the maximum number of results per page served by the resto API
	PageLimit = 1000
	// QueryURL is the resto endpoint of the Copernicus Dataspace for Sentinel-2
	QueryURL = "https://catalogue.dataspace.copernicus.eu/resto/api/collections/Sentinel2/search.json?"
)

type Hits struct {
	Uuid       string           `json:"id"`
	Footprint  geojson.Geometry `json:"geometry"`
	Properties struct {
		Identifier           string  `json:"title"`
		BeginPosition        string  `json:"startDate"`
		IngestionDate        string  `json:"published"`
		ProductType          string  `json:"productType"`
		CloudCoverPercentage float64 `json:"cloudCover"`
		RelativeOrbitNumber  int     `json:"relativeOrbitNumber"`
	} `json:"properties"`
}

// Provider searches Sentinel-2 products on the Copernicus Dataspace resto API
type Provider struct {
	Client *http.Client
	URL    string
	Limit  int
}

// Name implements catalog.ProductsProvider
func (p *Provider) Name() string {
	return "Copernicus-OpenSearch"
}

// SearchProducts implements catalog.ProductsProvider
func (p *Provider) SearchProducts(ctx context.Context, area *entities.AreaOfInterest) (entities.Products, error) {
	if p.Limit == 0 {
		p.Limit = PageLimit
	}
	if p.URL == "" {
		p.URL = QueryURL
	}

	query, err := constructQuery(area)
	if err != nil {
		return entities.Products{}, fmt.Errorf("OpenSearch.%w", err)
	}

	limit := area.Limit
	if limit <= 0 {
		limit = p.Limit
	}
	rawproducts, err := p.query(ctx, query, area.Page, limit)
	if err != nil {
		return entities.Products{}, fmt.Errorf("OpenSearch.%w", err)
	}

	products, err := parse(area, rawproducts)
	if err != nil {
		return entities.Products{}, fmt.Errorf("OpenSearch.%w", err)
	}
	return products, nil
}

func constructQuery(area *entities.AreaOfInterest) (string, error) {
	parameters := []string{fmt.Sprintf("productType=%s", area.GetProductType())}

	if area.MaxCloudCover > 0 {
		parameters = append(parameters, fmt.Sprintf("cloudCover=%s", neturl.QueryEscape(fmt.Sprintf("[0,%g]", area.MaxCloudCover))))
	}

	// Append aoi
	aoiWKT := wkt.MustEncode(area.AOI.Geometry)
	parameters = append(parameters, fmt.Sprintf("geometry=%s", neturl.QueryEscape(aoiWKT)))

	// Append time
	parameters = append(parameters, fmt.Sprintf("startDate=%s&completionDate=%s", area.StartTime.Format("2006-01-02T15:04:05.999Z"), area.EndTime.Format("2006-01-02T15:04:05.999Z")))

	return strings.Join(parameters, "&"), nil
}

func (p *Provider) query(ctx context.Context, query string, page, limit int) ([]Hits, error) {
	var rawproducts []Hits
	totalPages := "?"

	for _, queryParams := range service.ComputePagesToQuery(page, limit, p.Limit) {
		log.Logger(ctx).Sugar().Debugf("[OpenSearch] Search page %d/%s", queryParams.Page+1, totalPages)

		// Load results
		url := p.URL + query + fmt.Sprintf("&maxRecords=%d&page=%d", queryParams.Limit, queryParams.Page+1)
		req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
		if err != nil {
			return nil, fmt.Errorf("query.NewRequest: %w", err)
		}
		jsonResults, err := service.GetBodyRetryReq(p.Client, req, 3)
		if err != nil {
			return nil, fmt.Errorf("query.getBodyRetry: %w", err)
		}

		//JSON
		results := struct {
			Status     int `json:"status"`
			Properties struct {
				TotalResults int `json:"totalResults"`
				Links        []struct {
					Rel  string `json:"rel"`
					Href string `json:"href"`
				}
			} `json:"properties"`
			Hits []Hits `json:"features"`
		}{}

		// Read results to retrieve products
		if err := json.Unmarshal(jsonResults, &results); err != nil {
			return nil, fmt.Errorf("query.Unmarshal : %w (response: %s)", err, jsonResults)
		}

		if results.Status != 0 && results.Status != 200 {
			return nil, fmt.Errorf("query : http status %d (response: %s)", results.Status, jsonResults)
		}

		// Merge the results
		rawproducts = append(rawproducts, service.QueryGetResult(&queryParams, results.Hits)...)

		// Is there a next page ?
		nextPage := false
		for _, link := range results.Properties.Links {
			if strings.ToLower(link.Rel) == "next" && link.Href != "" {
				nextPage = true
			}
		}

		if !nextPage || len(rawproducts) == limit {
			break
		}
		totalPages = strconv.Itoa(results.Properties.TotalResults/queryParams.Limit + 1)
	}

	return rawproducts, nil
}

func parse(area *entities.AreaOfInterest, hits []Hits) (entities.Products, error) {
	// Parse results
	products := make([]*entities.Product, len(hits))
	for i, rawproduct := range hits {
		// Parse date
		date, err := time.Parse(time.RFC3339Nano, rawproduct.Properties.BeginPosition)
		if err != nil {
			return entities.Products{}, fmt.Errorf("parse.TimeParse: %w", err)
		}

		sourceID := strings.TrimSuffix(rawproduct.Properties.Identifier, ".SAFE")

		products[i] = &entities.Product{
			Product: common.Product{
				SourceID: sourceID,
				AOI:      area.AOIID,
				Data: common.ProductAttrs{
					UUID:        rawproduct.Uuid,
					Date:        date,
					CloudCover:  rawproduct.Properties.CloudCoverPercentage,
					ProductType: rawproduct.Properties.ProductType,
				},
			},
			Tags: map[string]string{
				common.TagSourceID:             sourceID,
				common.TagUUID:                 rawproduct.Uuid,
				common.TagIngestionDate:        rawproduct.Properties.IngestionDate,
				common.TagProductType:          rawproduct.Properties.ProductType,
				common.TagCloudCoverPercentage: fmt.Sprintf("%f", rawproduct.Properties.CloudCoverPercentage),
				common.TagRelativeOrbit:        fmt.Sprintf("%d", rawproduct.Properties.RelativeOrbitNumber),
			},
			GeometryWKT: wkt.MustEncode(rawproduct.Footprint.Geometry),
		}

		// Autofill some fields
		products[i].AutoFill()
	}

	return entities.Products{
		Products:   products,
		Properties: nil,
	}, nil
}
