// Package schools provides the HTTP client for the school ratings directory
// used by school-quality search filters.
//
// The directory is an external REST API queried by coordinates. Rate
// limiting is handled via a token bucket limiter; results are cached by a
// coarse coordinate grid since nearby listings share the same schools.
package schools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// gridScale buckets coordinates to ~1km cells for the rating cache.
	gridScale = 100.0
	cacheTTL  = 6 * time.Hour
)

// Client is the rate-limited HTTP client for the school directory.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	maxDistKm  float64
	limiter    *rate.Limiter
	logger     *slog.Logger

	mu    sync.Mutex
	cache map[gridKey]cacheEntry
}

type gridKey struct {
	lat, lng int
}

type cacheEntry struct {
	rating   float64
	storedAt time.Time
}

// NewClient creates a school directory client with rate limiting. Returns
// nil if baseURL is empty (directory disabled); a nil directory makes
// school filters pass.
func NewClient(baseURL, apiKey string, requestsPerMinute int, maxDistKm float64, logger *slog.Logger) *Client {
	if baseURL == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	rps := float64(requestsPerMinute) / 60.0
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
		maxDistKm:  maxDistKm,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		logger:     logger,
		cache:      make(map[gridKey]cacheEntry),
	}
}

// ratingResponse is the directory's nearby-schools response.
type ratingResponse struct {
	Schools []struct {
		Name       string  `json:"name"`
		Rating     float64 `json:"rating"`
		DistanceKm float64 `json:"distance_km"`
	} `json:"schools"`
}

// RatingNear returns the best school rating within the configured distance
// of the coordinates, on the directory's 0-10 scale.
func (c *Client) RatingNear(ctx context.Context, lat, lng float64) (float64, error) {
	key := gridKey{int(math.Round(lat * gridScale)), int(math.Round(lng * gridScale))}

	c.mu.Lock()
	if e, ok := c.cache[key]; ok && time.Since(e.storedAt) < cacheTTL {
		c.mu.Unlock()
		return e.rating, nil
	}
	c.mu.Unlock()

	if err := c.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("rate limit wait: %w", err)
	}

	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(lat, 'f', 6, 64))
	params.Set("lng", strconv.FormatFloat(lng, 'f', 6, 64))
	params.Set("max_distance_km", strconv.FormatFloat(c.maxDistKm, 'f', 1, 64))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/v1/schools/nearby?"+params.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("http request schools/nearby: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("school directory returned %d: %s",
			resp.StatusCode, truncate(body, 200))
	}

	var result ratingResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}

	best := 0.0
	for _, s := range result.Schools {
		if s.Rating > best {
			best = s.Rating
		}
	}

	c.mu.Lock()
	c.cache[key] = cacheEntry{rating: best, storedAt: time.Now()}
	c.mu.Unlock()
	return best, nil
}

// truncate returns a truncated string representation for error messages.
func truncate(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "..."
}
