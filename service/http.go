package service

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"time"
)

// GetBodyRetry: simple GET with N retries in case of temporary errors
func GetBodyRetry(url string, nbRetries int) ([]byte, error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("NewRequest: %w", err)
	}
	return GetBodyRetryReq(nil, req, nbRetries)
}

// GetBodyRetryReq: simple GET with N retries in case of temporary errors.
// client may be nil to use the default client.
func GetBodyRetryReq(client *http.Client, req *http.Request, nbRetries int) ([]byte, error) {
	var e *neturl.Error
	var body []byte
	var err error
	var resp *http.Response

	if client == nil {
		client = &http.Client{}
	}
	for i := range nbRetries + 1 {
		time.Sleep(time.Duration((1<<i)-1) * time.Second) // Exponential backoff, starting at 0
		resp, err = client.Do(req)
		if err != nil {
			if !errors.As(err, &e) || !e.Temporary() {
				return nil, err
			}
			continue
		}
		defer resp.Body.Close()
		if resp.StatusCode != 200 {
			body, _ = io.ReadAll(resp.Body)
			err = fmt.Errorf("%s: %v", resp.Status, string(body))
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != 429 {
				return nil, err
			}
			continue
		}
		if body, err = io.ReadAll(resp.Body); err == nil {
			return body, nil
		}
	}
	return nil, err
}

// PageQueryParam describes one page to request from a catalog whose page
// size may be smaller than the client's
type PageQueryParam struct {
	Limit, Page                       int
	FirstRowToSelect, LastRowToSelect int
}

// ComputePagesToQuery maps the client paging (page, limit) onto the paging
// of a catalog serving at most catalogLimit rows per page. Pages are
// 0-based on both sides.
func ComputePagesToQuery(clientPage, clientLimit, catalogLimit int) []PageQueryParam {
	if clientLimit <= 0 {
		return nil
	}
	pageSize := clientLimit
	if catalogLimit > 0 && catalogLimit < pageSize {
		pageSize = catalogLimit
	}

	firstRow := clientPage * clientLimit
	lastRow := firstRow + clientLimit - 1

	var pages []PageQueryParam
	for page := firstRow / pageSize; page <= lastRow/pageSize; page++ {
		first, last := 0, pageSize-1
		if f := firstRow - page*pageSize; f > 0 {
			first = f
		}
		if l := lastRow - page*pageSize; l < last {
			last = l
		}
		pages = append(pages, PageQueryParam{Limit: pageSize, Page: page, FirstRowToSelect: first, LastRowToSelect: last})
	}
	return pages
}

// QueryGetResult keeps the rows of the page selected by the query params
func QueryGetResult[T any](q *PageQueryParam, hits []T) []T {
	if q.FirstRowToSelect >= len(hits) {
		return nil
	}
	last := q.LastRowToSelect + 1
	if last > len(hits) {
		last = len(hits)
	}
	return hits[q.FirstRowToSelect:last]
}
