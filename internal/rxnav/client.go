package rxnav

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sethvargo/go-retry"
)

// DefaultBaseURL is the public RxNav REST endpoint.
const DefaultBaseURL = "https://rxnav.nlm.nih.gov/REST"

// ErrUnavailable is returned when the upstream could not be reached after
// all retries. It wraps the last transport or status error.
var ErrUnavailable = errors.New("rxnav unavailable")

// Config controls timeout and retry behavior for every upstream call.
type Config struct {
	BaseURL    string
	Timeout    time.Duration // per-attempt deadline
	Retries    uint64        // additional attempts after the first
	RetryDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = 8 * time.Second
	}
	if c.Retries == 0 {
		c.Retries = 2
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 200 * time.Millisecond
	}
	return c
}

// Client is a transport adapter for the RxNav REST API. It does no caching
// and no response shaping; callers interpret the raw payloads.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

func New(cfg Config) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// SetHTTPClient replaces the underlying HTTP client. Used by tests to point
// the adapter at a fake upstream transport.
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// SearchResponse mirrors /drugs.json.
type SearchResponse struct {
	DrugGroup struct {
		ConceptGroup []ConceptGroup `json:"conceptGroup"`
	} `json:"drugGroup"`
}

type ConceptGroup struct {
	TTY               string            `json:"tty"`
	ConceptProperties []ConceptProperty `json:"conceptProperties"`
}

type ConceptProperty struct {
	RxCUI string `json:"rxcui"`
	Name  string `json:"name"`
}

// IDResponse mirrors /rxcui/{id}.json. An empty Name means the identifier
// is unknown to the catalog.
type IDResponse struct {
	IDGroup struct {
		Name string `json:"name"`
	} `json:"idGroup"`
}

// HistoryResponse mirrors /rxcui/{id}/historystatus.json. The upstream has
// shipped the ingredient and dose-form lists both directly under the status
// history block and nested one level deeper under definitionalFeatures, so
// both placements are decoded.
type HistoryResponse struct {
	StatusHistory struct {
		HistoryFeatures
		DefinitionalFeatures HistoryFeatures `json:"definitionalFeatures"`
	} `json:"rxcuiStatusHistory"`
}

type HistoryFeatures struct {
	IngredientAndStrength []struct {
		BaseName string `json:"baseName"`
	} `json:"ingredientAndStrength"`
	DoseFormGroupConcept []struct {
		DoseFormGroupName string `json:"doseFormGroupName"`
	} `json:"doseFormGroupConcept"`
}

// SearchDrugs queries /drugs.json by name.
func (c *Client) SearchDrugs(ctx context.Context, name string) (*SearchResponse, error) {
	u := fmt.Sprintf("%s/drugs.json?name=%s", c.cfg.BaseURL, url.QueryEscape(name))
	var resp SearchResponse
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LookupRxcui queries /rxcui/{id}.json.
func (c *Client) LookupRxcui(ctx context.Context, rxcui string) (*IDResponse, error) {
	u := fmt.Sprintf("%s/rxcui/%s.json", c.cfg.BaseURL, url.PathEscape(rxcui))
	var resp IDResponse
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// HistoryStatus queries /rxcui/{id}/historystatus.json.
func (c *Client) HistoryStatus(ctx context.Context, rxcui string) (*HistoryResponse, error) {
	u := fmt.Sprintf("%s/rxcui/%s/historystatus.json", c.cfg.BaseURL, url.PathEscape(rxcui))
	var resp HistoryResponse
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// getJSON issues a GET and decodes the body. Network errors and 5xx
// responses are retried with a constant delay; 4xx responses are not.
func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	backoff := retry.WithMaxRetries(c.cfg.Retries, retry.NewConstant(c.cfg.RetryDelay))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= 500:
			return retry.RetryableError(fmt.Errorf("status %d", resp.StatusCode))
		case resp.StatusCode >= 400:
			return fmt.Errorf("status %d", resp.StatusCode)
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}
