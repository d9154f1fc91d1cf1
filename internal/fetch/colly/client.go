// Package collyfetch implements the listing and document fetchers using the
// Colly collector.
package collyfetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/opencaselaw/harvester/internal/pipeline"
)

// Config controls collector behavior.
type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// Client fetches case listings and document bodies from the remote
// repository. Each request runs on a clone of a shared base collector.
type Client struct {
	cfg           Config
	baseCollector *colly.Collector
}

// New builds a Client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("source base url is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	c := colly.NewCollector(colly.AllowURLRevisit())
	c.WithTransport(newHTTPTransport())
	return &Client{cfg: cfg, baseCollector: c}, nil
}

// listingItem mirrors one entry of the repository's listing responses.
type listingItem struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	Citation string `json:"citation"`
	Year     int    `json:"year"`
}

type listingEnvelope struct {
	Results []listingItem `json:"results"`
}

// FetchListing retrieves the case listing for one source and year using the
// given access strategy. Failures carry a failure category via the returned
// error.
func (c *Client) FetchListing(ctx context.Context, source string, year int, strategy string) ([]pipeline.Record, error) {
	target, err := c.listingURL(source, year, strategy)
	if err != nil {
		return nil, err
	}
	body, err := c.fetch(ctx, target)
	if err != nil {
		return nil, err
	}
	items, err := decodeListing(body)
	if err != nil {
		return nil, pipeline.NewFetchError(pipeline.FailureParse, err)
	}
	records := make([]pipeline.Record, 0, len(items))
	for _, it := range items {
		records = append(records, pipeline.Record{
			URL:        it.URL,
			Title:      it.Title,
			Citation:   it.Citation,
			Year:       it.Year,
			SourceCode: source,
		})
	}
	return records, nil
}

// FetchDocument retrieves one document body as text.
func (c *Client) FetchDocument(ctx context.Context, rec pipeline.Record) (string, error) {
	body, err := c.fetch(ctx, rec.URL)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// listingURL maps an access strategy onto the repository's URL shapes.
func (c *Client) listingURL(source string, year int, strategy string) (string, error) {
	base := strings.TrimRight(c.cfg.BaseURL, "/")
	switch strategy {
	case "direct":
		return fmt.Sprintf("%s/api/%s/%d.json", base, url.PathEscape(source), year), nil
	case "browse":
		return fmt.Sprintf("%s/browse/%s?year=%d&format=json", base, url.PathEscape(source), year), nil
	case "search":
		q := url.Values{}
		q.Set("source", source)
		q.Set("year", fmt.Sprintf("%d", year))
		q.Set("format", "json")
		return base + "/search?" + q.Encode(), nil
	default:
		return "", fmt.Errorf("unknown access strategy %q", strategy)
	}
}

func decodeListing(body []byte) ([]listingItem, error) {
	var items []listingItem
	if err := json.Unmarshal(body, &items); err == nil {
		return items, nil
	}
	var envelope listingEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}
	return envelope.Results, nil
}

// fetch executes a single HTTP GET on a collector clone and classifies
// failures into the pipeline's failure taxonomy.
func (c *Client) fetch(ctx context.Context, target string) ([]byte, error) {
	collector := c.baseCollector.Clone()
	collector.IgnoreRobotsTxt = true
	collector.SetRequestTimeout(c.cfg.Timeout)
	if c.cfg.UserAgent != "" {
		collector.UserAgent = c.cfg.UserAgent
	}

	var (
		body       []byte
		statusCode int
		fetchErr   error
	)

	collector.OnResponse(func(r *colly.Response) {
		statusCode = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})

	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			statusCode = r.StatusCode
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	select {
	case <-ctx.Done():
		return nil, pipeline.NewFetchError(pipeline.FailureTimeout, ctx.Err())
	case visitErr := <-done:
		if fetchErr == nil && visitErr != nil {
			fetchErr = visitErr
		}
	}

	if fetchErr != nil {
		return nil, classify(statusCode, fetchErr)
	}
	if statusCode != 0 && statusCode != http.StatusOK {
		return nil, classify(statusCode, fmt.Errorf("unexpected status %d", statusCode))
	}
	return body, nil
}

func classify(statusCode int, err error) error {
	if statusCode >= 400 {
		return pipeline.NewFetchError(pipeline.ClassifyStatus(statusCode), fmt.Errorf("status %d: %w", statusCode, err))
	}
	return pipeline.NewFetchError(pipeline.CategoryOf(err), err)
}
