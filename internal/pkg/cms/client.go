package cms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/sony/gobreaker"

	"github.com/ManuelReschke/ignews/internal/pkg/env"
)

// ErrNotFound is returned when no document matches the requested UID.
var ErrNotFound = errors.New("cms: document not found")

// Config describes the Prismic repository.
type Config struct {
	Endpoint    string
	AccessToken string
}

func LoadConfig() Config {
	return Config{
		Endpoint:    strings.TrimRight(strings.TrimSpace(env.GetEnv("PRISMIC_ENDPOINT", "")), "/"),
		AccessToken: strings.TrimSpace(env.GetEnv("PRISMIC_ACCESS_TOKEN", "")),
	}
}

// Document is a Prismic document. Data holds the custom type fields.
type Document struct {
	ID                  string          `json:"id"`
	UID                 string          `json:"uid"`
	Type                string          `json:"type"`
	LastPublicationDate string          `json:"last_publication_date"`
	Data                json.RawMessage `json:"data"`
}

// UpdatedAt parses the last publication date. Prismic uses a "+0000"
// offset, which time.RFC3339 does not accept.
func (d Document) UpdatedAt() (time.Time, error) {
	return time.Parse("2006-01-02T15:04:05-0700", d.LastPublicationDate)
}

type apiInfo struct {
	Refs []struct {
		ID          string `json:"id"`
		Ref         string `json:"ref"`
		IsMasterRef bool   `json:"isMasterRef"`
	} `json:"refs"`
}

type searchResponse struct {
	Page             int        `json:"page"`
	TotalPages       int        `json:"total_pages"`
	TotalResultsSize int        `json:"total_results_size"`
	Results          []Document `json:"results"`
}

// Client reads published documents from the Prismic REST API.
type Client struct {
	cfg        Config
	HTTPClient *http.Client
	cb         *gobreaker.CircuitBreaker
}

func NewClient(cfg Config) *Client {
	return &Client{
		cfg:        cfg,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "prismic",
			MaxRequests: 3,
			Interval:    5 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 3 && failureRatio >= 0.6
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, ErrNotFound)
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				log.Warnf("[CMS] circuit breaker '%s' changed from %s to %s", name, from, to)
			},
		}),
	}
}

// GetByUID returns the document of the given custom type and UID.
func (c *Client) GetByUID(ctx context.Context, docType, uid string) (*Document, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return nil, ErrNotFound
	}
	q := fmt.Sprintf(`[[at(my.%s.uid,%q)]]`, docType, uid)

	res, err := c.search(ctx, url.Values{"q": {q}, "pageSize": {"1"}})
	if err != nil {
		return nil, err
	}
	if len(res.Results) == 0 {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, docType, uid)
	}
	return &res.Results[0], nil
}

// ListByType returns up to pageSize documents of a type, newest first.
// fetch limits the returned fields ("post.title").
func (c *Client) ListByType(ctx context.Context, docType string, pageSize int, fetch ...string) ([]Document, error) {
	params := url.Values{
		"q":         {fmt.Sprintf(`[[at(document.type,%q)]]`, docType)},
		"orderings": {"[document.last_publication_date desc]"},
		"pageSize":  {fmt.Sprint(pageSize)},
	}
	if len(fetch) > 0 {
		params.Set("fetch", strings.Join(fetch, ","))
	}
	res, err := c.search(ctx, params)
	if err != nil {
		return nil, err
	}
	return res.Results, nil
}

func (c *Client) search(ctx context.Context, params url.Values) (*searchResponse, error) {
	result, err := c.cb.Execute(func() (interface{}, error) {
		ref, err := c.masterRef(ctx)
		if err != nil {
			return nil, err
		}
		params.Set("ref", ref)

		var res searchResponse
		if err := c.getJSON(ctx, c.cfg.Endpoint+"/documents/search", params, &res); err != nil {
			return nil, err
		}
		return &res, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*searchResponse), nil
}

// masterRef is fetched per search so newly published content shows up
// without a restart; page caching bounds the request rate.
func (c *Client) masterRef(ctx context.Context) (string, error) {
	var info apiInfo
	if err := c.getJSON(ctx, c.cfg.Endpoint, url.Values{}, &info); err != nil {
		return "", err
	}
	for _, r := range info.Refs {
		if r.IsMasterRef {
			return r.Ref, nil
		}
	}
	return "", errors.New("prismic api returned no master ref")
}

func (c *Client) getJSON(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	if c.cfg.Endpoint == "" {
		return errors.New("PRISMIC_ENDPOINT is not configured")
	}
	if c.cfg.AccessToken != "" {
		params.Set("access_token", c.cfg.AccessToken)
	}
	u := endpoint
	if encoded := params.Encode(); encoded != "" {
		u += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("prismic request failed: status=%d body=%s", resp.StatusCode, truncateBody(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse prismic response: %w", err)
	}
	return nil
}

func truncateBody(b []byte) string {
	if len(b) > 256 {
		return string(b[:256]) + "..."
	}
	return string(b)
}
