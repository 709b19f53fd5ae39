package odata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	neturl "net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-spatial/geom/encoding/geojson"
	"github.com/go-spatial/geom/encoding/wkt"

	"github.com/geoagro/ndvi-ingester/catalog/entities"
	"github.com/geoagro/ndvi-ingester/common"
	"github.com/geoagro/ndvi-ingester/service"
	"github.com/geoagro/ndvi-ingester/service/log"
)

const (
	// PageLimit is the maximum number of results per page served by the Copernicus Dataspace
	PageLimit = 1000
	// QueryURL is the OData endpoint of the Copernicus Dataspace catalogue
	QueryURL = "https://catalogue.dataspace.copernicus.eu/odata/v1/Products?$filter="
)

// Provider searches Sentinel-2 products on the Copernicus Dataspace OData catalogue
type Provider struct {
	Client *http.Client
	URL    string
	Limit  int
}

// Name implements catalog.ProductsProvider
func (p *Provider) Name() string {
	return "Copernicus-OData"
}

// SearchProducts implements catalog.ProductsProvider
func (p *Provider) SearchProducts(ctx context.Context, area *entities.AreaOfInterest) (entities.Products, error) {
	if p.Limit == 0 {
		p.Limit = PageLimit
	}
	if p.URL == "" {
		p.URL = QueryURL
	}

	// Create query
	parameters := []string{"Collection/Name eq 'SENTINEL-2'"}
	{
		aoiWKT := wkt.MustEncode(area.AOI.Geometry)
		parameters = append(parameters, "OData.CSC.Intersects(area=geography'SRID=4326;"+aoiWKT+"')")
	}

	// Append time
	{
		startDate := area.StartTime.Format("2006-01-02T15:04:05.999Z")
		endDate := area.EndTime.Format("2006-01-02T15:04:05.999Z")
		parameters = append(parameters,
			fmt.Sprintf("ContentDate/Start ge %s", startDate),
			fmt.Sprintf("ContentDate/Start le %s", endDate))
	}

	parameters = append(parameters,
		fmt.Sprintf("Attributes/OData.CSC.StringAttribute/any(att:att/Name eq 'productType' and att/OData.CSC.StringAttribute/Value eq '%s')", area.GetProductType()))

	if area.MaxCloudCover > 0 {
		parameters = append(parameters,
			fmt.Sprintf("Attributes/OData.CSC.DoubleAttribute/any(att:att/Name eq 'cloudCover' and att/OData.CSC.DoubleAttribute/Value le %.2f)", area.MaxCloudCover))
	}
	query := strings.Join(parameters, " and ")

	// Execute query
	limit := area.Limit
	if limit <= 0 {
		limit = p.Limit
	}
	rawproducts, err := p.query(ctx, p.URL, query, area.Page, limit)
	if err != nil {
		return entities.Products{}, fmt.Errorf("OData.SearchProducts.%w", err)
	}

	// Parse results
	products := make([]*entities.Product, len(rawproducts))
	for i, rawproduct := range rawproducts {
		// Parse date
		date, err := time.Parse(time.RFC3339Nano, rawproduct.ContentDate.BeginPosition)
		if err != nil {
			return entities.Products{}, fmt.Errorf("OData.SearchProducts.TimeParse: %w", err)
		}
		sourceID := strings.TrimSuffix(rawproduct.Identifier, ".SAFE")

		cloudCover, _ := strconv.ParseFloat(rawproduct.AttributesMap["cloudCover"], 64)

		products[i] = &entities.Product{
			Product: common.Product{
				SourceID: sourceID,
				AOI:      area.AOIID,
				Data: common.ProductAttrs{
					UUID:        rawproduct.Uuid,
					Date:        date,
					CloudCover:  cloudCover,
					ProductType: rawproduct.AttributesMap["productType"],
				},
			},
			Tags: map[string]string{
				common.TagSourceID:             sourceID,
				common.TagUUID:                 rawproduct.Uuid,
				common.TagIngestionDate:        rawproduct.ContentDate.BeginPosition,
				common.TagProductType:          rawproduct.AttributesMap["productType"],
				common.TagCloudCoverPercentage: rawproduct.AttributesMap["cloudCover"],
				common.TagRelativeOrbit:        rawproduct.AttributesMap["relativeOrbitNumber"],
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

type Hits struct {
	Uuid        string           `json:"Id"`
	Identifier  string           `json:"Name"`
	Footprint   geojson.Geometry `json:"GeoFootprint"`
	ContentDate struct {
		BeginPosition string `json:"Start"`
	} `json:"ContentDate"`
	Attributes []struct {
		Name      string      `json:"Name"`
		Value     interface{} `json:"Value"`
		ValueType string      `json:"ValueType"`
	} `json:"Attributes"`
	AttributesMap map[string]string
}

func (p *Provider) query(ctx context.Context, baseurl, query string, page, limit int) ([]Hits, error) {
	// Pagging
	var rawproducts []Hits
	query = neturl.QueryEscape(query)
	totalPages, count := "?", false // count is false: it takes too much time... It can be set to true for debugging purpose

	for _, queryParams := range service.ComputePagesToQuery(page, limit, p.Limit) {
		log.Logger(ctx).Sugar().Debugf("[OData] Search page %d/%s", queryParams.Page+1, totalPages)
		// Load results
		url := baseurl + query + fmt.Sprintf("&$orderby=ContentDate/Start&$top=%d&$skip=%d&$expand=Attributes", queryParams.Limit, queryParams.Limit*queryParams.Page)
		if count {
			url += "&$count=True"
		}
		req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
		if err != nil {
			return nil, fmt.Errorf("query.NewRequest: %w", err)
		}
		jsonResults, err := service.GetBodyRetryReq(p.Client, req, 3)
		if err != nil {
			return nil, fmt.Errorf("query: %w", err)
		}

		//JSON
		results := struct {
			Status int    `json:"status"`
			Next   string `json:"@odata.nextLink"`
			Count  int    `json:"@odata.count"`
			Hits   []Hits `json:"value"`
		}{}

		// Read results to retrieve products
		if err := json.Unmarshal(jsonResults, &results); err != nil {
			return nil, fmt.Errorf("query.Unmarshal : %w (response: %s)", err, jsonResults)
		}

		if results.Status != 0 && results.Status != 200 {
			return nil, fmt.Errorf("query: http status: %d (response: %s)", results.Status, jsonResults)
		}

		results.Hits = service.QueryGetResult(&queryParams, results.Hits)

		for i, hit := range results.Hits {
			results.Hits[i].AttributesMap = map[string]string{}
			for _, elem := range hit.Attributes {
				results.Hits[i].AttributesMap[elem.Name] = fmt.Sprintf("%v", elem.Value)
			}
			results.Hits[i].Attributes = nil
		}

		// Merge the results
		rawproducts = append(rawproducts, results.Hits...)

		// Is there a next page ?
		if results.Next == "" || len(rawproducts) == limit {
			break
		}
		if results.Count > 0 {
			totalPages = strconv.Itoa((results.Count-1)/queryParams.Limit + 1)
			count = false
		}
	}

	return rawproducts, nil
}
