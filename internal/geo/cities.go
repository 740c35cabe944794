package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultGeonamesURL = "http://api.geonames.org"
	// PageSize is the number of cities returned per search page.
	PageSize = 10
)

// City is one city search result.
type City struct {
	Name       string  `json:"name"`
	Country    string  `json:"country"`
	Latitude   float64 `json:"lat"`
	Longitude  float64 `json:"lon"`
	Timezone   string  `json:"timezone"`
	Population int64   `json:"population"`
}

// CityPage is one page of search results.
type CityPage struct {
	Cities []City `json:"cities"`
	Total  int    `json:"total"`
	Page   int    `json:"page"`
}

// HasMore reports whether another page is available.
func (p CityPage) HasMore() bool {
	return (p.Page+1)*PageSize < p.Total
}

type geonamesResponse struct {
	TotalResultsCount int `json:"totalResultsCount"`
	Geonames          []struct {
		Name        string `json:"name"`
		CountryName string `json:"countryName"`
		Lat         string `json:"lat"`
		Lng         string `json:"lng"`
		Population  int64  `json:"population"`
		Timezone    struct {
			TimeZoneID string `json:"timeZoneId"`
		} `json:"timezone"`
	} `json:"geonames"`
	Status *struct {
		Message string `json:"message"`
		Value   int    `json:"value"`
	} `json:"status"`
}

// CitySearcher searches cities through the geonames API.
type CitySearcher struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	username   string
	// BaseURL is exported for testing with httptest.
	BaseURL string
}

// NewCitySearcher creates a searcher for the given geonames account. Requests
// are throttled to one per second, the free tier's hourly quota spread out.
func NewCitySearcher(username string) *CitySearcher {
	return &CitySearcher{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(time.Second), 1),
		username:   username,
		BaseURL:    defaultGeonamesURL,
	}
}

// SearchCities returns page (zero-based) of populated places matching query,
// most populous first.
func (s *CitySearcher) SearchCities(ctx context.Context, query string, page int) (*CityPage, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty city query")
	}
	if s.username == "" {
		return nil, fmt.Errorf("city search needs a geonames username (set geonames_user)")
	}
	if page < 0 {
		page = 0
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("featureClass", "P")
	params.Set("orderby", "population")
	params.Set("style", "FULL")
	params.Set("maxRows", strconv.Itoa(PageSize))
	params.Set("startRow", strconv.Itoa(page*PageSize))
	params.Set("username", s.username)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+"/searchJSON?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building city search request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("city search failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("city search returned status %d", resp.StatusCode)
	}

	var result geonamesResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode city search response: %w", err)
	}
	if result.Status != nil {
		return nil, fmt.Errorf("city search failed: %s", result.Status.Message)
	}

	out := &CityPage{Total: result.TotalResultsCount, Page: page}
	for _, g := range result.Geonames {
		lat, err := strconv.ParseFloat(g.Lat, 64)
		if err != nil {
			continue
		}
		lon, err := strconv.ParseFloat(g.Lng, 64)
		if err != nil {
			continue
		}
		out.Cities = append(out.Cities, City{
			Name:       g.Name,
			Country:    g.CountryName,
			Latitude:   lat,
			Longitude:  lon,
			Timezone:   g.Timezone.TimeZoneID,
			Population: g.Population,
		})
	}
	return out, nil
}
