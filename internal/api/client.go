package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://api.aladhan.com/v1"

// MethodJafari is the Shia Ithna-Ashari calculation method, used by default.
const MethodJafari = 0

// ErrAPIStatus is returned when the API answers with a non-200 HTTP status or
// response code, or without timings.
var ErrAPIStatus = errors.New("prayer times API error")

// Client communicates with the Al Adhan prayer times API.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	// BaseURL is the API base URL. Defaults to the Al Adhan API.
	// Exported for testing with httptest.
	BaseURL string
}

// NewClient creates a new API client with sensible defaults.
// Requests are throttled to a couple per second; the daemon only needs one a day.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Every(500*time.Millisecond), 2),
		BaseURL: defaultBaseURL,
	}
}

// FetchByCoordinates fetches prayer times for coordinates. A zero date asks the
// API for "today" in the location's own timezone.
func (c *Client) FetchByCoordinates(ctx context.Context, date time.Time, lat, lon float64, method, school int) (*Response, error) {
	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(lat, 'f', 6, 64))
	params.Set("longitude", strconv.FormatFloat(lon, 'f', 6, 64))
	setMethodAndSchool(params, method, school)

	return c.doRequest(ctx, endpoint(c.BaseURL, "timings", date), params)
}

// FetchByCity fetches prayer times for a city and country.
func (c *Client) FetchByCity(ctx context.Context, date time.Time, city, country string, method, school int) (*Response, error) {
	params := url.Values{}
	params.Set("city", city)
	params.Set("country", country)
	setMethodAndSchool(params, method, school)

	return c.doRequest(ctx, endpoint(c.BaseURL, "timingsByCity", date), params)
}

func endpoint(base, path string, date time.Time) string {
	if date.IsZero() {
		return fmt.Sprintf("%s/%s", base, path)
	}
	return fmt.Sprintf("%s/%s/%s", base, path, date.Format("02-01-2006"))
}

func setMethodAndSchool(params url.Values, method, school int) {
	if method >= 0 {
		params.Set("method", strconv.Itoa(method))
	}
	if school >= 0 {
		params.Set("school", strconv.Itoa(school))
	}
}

func (c *Client) doRequest(ctx context.Context, endpoint string, params url.Values) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	reqURL := fmt.Sprintf("%s?%s", endpoint, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	log.Debug().Str("url", reqURL).Msg("fetching prayer times")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d: %s", ErrAPIStatus, resp.StatusCode, string(body))
	}

	var apiResp Response
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode API response: %w", err)
	}

	if apiResp.Code != http.StatusOK {
		return nil, fmt.Errorf("%w: code=%d status=%s", ErrAPIStatus, apiResp.Code, apiResp.Status)
	}
	if len(apiResp.Data.Timings) == 0 {
		return nil, fmt.Errorf("%w: response has no timings", ErrAPIStatus)
	}

	return &apiResp, nil
}
