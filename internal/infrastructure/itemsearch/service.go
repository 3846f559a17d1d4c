package itemsearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/openrufus/rufus/internal/config"
	"github.com/openrufus/rufus/internal/logger"
)

const (
	DefaultLimit   = 5
	requestTimeout = 5 * time.Second
)

// Item is one catalog record. Unknown fields from the search API are kept
// by callers that read the raw result instead.
type Item struct {
	ID                 int    `json:"id"`
	Gender             string `json:"gender,omitempty"`
	MasterCategory     string `json:"masterCategory,omitempty"`
	SubCategory        string `json:"subCategory,omitempty"`
	ArticleType        string `json:"articleType,omitempty"`
	BaseColour         string `json:"baseColour,omitempty"`
	Season             string `json:"season,omitempty"`
	Year               int    `json:"year,omitempty"`
	Usage              string `json:"usage,omitempty"`
	ProductDisplayName string `json:"productDisplayName,omitempty"`
}

// SampleCatalog is served when no search API is configured.
var SampleCatalog = []Item{
	{
		ID:             1,
		Gender:         "Men",
		MasterCategory: "Apparel",
		SubCategory:    "Topwear",
		ArticleType:    "Shirts",
		BaseColour:     "Navy Blue",
		Season:         "Fall",
		Year:           2011,
	},
	{
		ID:                 2,
		Gender:             "Men",
		MasterCategory:     "Apparel",
		SubCategory:        "Bottomwear",
		ArticleType:        "Jeans",
		BaseColour:         "Blue",
		Season:             "Summer",
		Year:               2012,
		Usage:              "Casual",
		ProductDisplayName: "Peter England Men Party Blue Jeans",
	},
}

type Query struct {
	Name     string `json:"name"`
	Category string `json:"category"`
}

type searchResponse struct {
	Content json.RawMessage `json:"content"`
	Error   string          `json:"error,omitempty"`
}

type Service struct {
	client  *http.Client
	baseURL string
	apiKey  string
	limit   int
}

// NewService always returns a usable service; without ITEM_SEARCH_API_URL
// it answers from SampleCatalog.
func NewService() *Service {
	return NewServiceWithConfig(config.GetItemSearchAPIURL(), config.GetItemSearchAPIKey())
}

func NewServiceWithConfig(baseURL, apiKey string) *Service {
	if baseURL == "" {
		log := logger.For(logger.TOOLS)
		log.Warn().Msg("Item search API not configured - serving the sample catalog")
	}
	return &Service{
		client:  &http.Client{Timeout: requestTimeout},
		baseURL: baseURL,
		apiKey:  apiKey,
		limit:   DefaultLimit,
	}
}

// Configured reports whether a real search API backs the service.
func (s *Service) Configured() bool {
	return s.baseURL != ""
}

// Search returns the matching records as a JSON array. Upstream failures
// are logged and yield an empty array so the model can still answer.
func (s *Service) Search(ctx context.Context, q Query) (json.RawMessage, error) {
	log := logger.For(logger.TOOLS)
	category := strings.ToUpper(q.Category)

	log.Info().
		Str("name", q.Name).
		Str("category", category).
		Msg("Searching items")

	if !s.Configured() {
		return json.Marshal(SampleCatalog)
	}

	endpoint, err := url.Parse(s.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid item search URL: %w", err)
	}
	params := endpoint.Query()
	params.Set("name", q.Name)
	params.Set("category", category)
	params.Set("limit", strconv.Itoa(s.limit))
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if s.apiKey != "" {
		req.Header.Set("Authorization", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Error().Err(err).Msg("Item search request failed")
		return emptyResult(), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		log.Error().
			Int("status", resp.StatusCode).
			Str("body", string(body)).
			Msg("Item search API returned an error status")
		return emptyResult(), nil
	}

	var result searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		log.Error().Err(err).Msg("Failed to decode item search response")
		return emptyResult(), nil
	}
	if result.Error != "" {
		log.Error().Str("error", result.Error).Msg("Item search API reported an error")
	}
	if len(result.Content) == 0 || string(result.Content) == "null" {
		return emptyResult(), nil
	}

	return result.Content, nil
}

func emptyResult() json.RawMessage {
	return json.RawMessage("[]")
}
