package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

var contentIDPattern = regexp.MustCompile(`cid=([^/&]+)`)

var _ Scraper = (*Client)(nil)

// ProductDetails looks up the full listing behind a product URL. The
// affiliate API's item lookup carries everything the pipeline needs, so no
// HTML scraping is involved.
func (c *Client) ProductDetails(ctx context.Context, productURL string) (Details, error) {
	match := contentIDPattern.FindStringSubmatch(productURL)
	if match == nil {
		return Details{}, fmt.Errorf("product details: no content id in url %q", productURL)
	}
	contentID := match[1]

	params := url.Values{}
	params.Set("cid", contentID)
	item, err := c.itemDetail(ctx, params)
	if err != nil {
		return Details{}, err
	}
	if item == nil {
		return Details{}, fmt.Errorf("product details: %w: %s", ErrProductNotFound, contentID)
	}

	details := Details{
		Identifier:  item.ContentID,
		Title:       item.Title,
		Description: strings.TrimSpace(item.Comment),
		URL:         item.URL,
		MainImage:   item.ImageURL.Large,
		SampleURLs:  item.SampleImageURL.SampleS.Image,
	}
	if details.MainImage == "" {
		details.MainImage = item.ImageURL.List
	}
	for _, maker := range item.ItemInfo.Maker {
		if details.Circle == "" {
			details.Circle = maker.Name
		}
	}
	for _, author := range item.ItemInfo.Author {
		if details.Author == "" {
			details.Author = author.Name
		}
	}
	for _, genre := range item.ItemInfo.Genre {
		if genre.Name != "" {
			details.Genres = append(details.Genres, genre.Name)
		}
	}
	return details, nil
}

type namedEntry struct {
	Name string `json:"name"`
}

type detailItem struct {
	ContentID string `json:"content_id"`
	Title     string `json:"title"`
	URL       string `json:"URL"`
	Comment   string `json:"comment"`
	ImageURL  struct {
		Large string `json:"large"`
		List  string `json:"list"`
	} `json:"imageURL"`
	SampleImageURL struct {
		SampleS struct {
			Image []string `json:"image"`
		} `json:"sample_s"`
	} `json:"sampleImageURL"`
	ItemInfo struct {
		Maker  []namedEntry `json:"maker"`
		Author []namedEntry `json:"author"`
		Genre  []namedEntry `json:"genre"`
	} `json:"iteminfo"`
}

type itemDetailResponse struct {
	Result struct {
		Status int          `json:"status"`
		Items  []detailItem `json:"items"`
	} `json:"result"`
}

func (c *Client) itemDetail(ctx context.Context, params url.Values) (*detailItem, error) {
	params.Set("api_id", c.apiID)
	if c.affiliateID != "" {
		params.Set("affiliate_id", c.affiliateID)
	}
	params.Set("hits", "1")
	params.Set("output", "json")

	endpoint := c.baseURL + "/ItemList?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("product details: build request: %w", err)
	}

	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		return nil, fmt.Errorf("product details: execute request (latency=%v): %w", latency, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("product details: api returned %d (latency=%v): %s", resp.StatusCode, latency, strings.TrimSpace(string(snippet)))
	}

	var decoded itemDetailResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("product details: decode response: %w", err)
	}
	if len(decoded.Result.Items) == 0 {
		return nil, nil
	}
	return &decoded.Result.Items[0], nil
}
