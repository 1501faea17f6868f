package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"queueline/models"
	"queueline/utils"
)

// LocationService queries an external Nominatim-style address lookup.
// Queries shorter than the minimum return no suggestions without touching
// the network; a circuit breaker keeps a flapping upstream from being
// hammered and degrades the feature to "no suggestions".
type LocationService struct {
	baseURL  string
	hc       *http.Client
	breaker  *utils.CircuitBreaker
	minChars int
	limit    int
}

func NewLocationService(baseURL string, timeout time.Duration, minChars, limit int) *LocationService {
	if minChars <= 0 {
		minChars = 3
	}
	if limit <= 0 {
		limit = 5
	}
	return &LocationService{
		baseURL:  baseURL,
		hc:       &http.Client{Timeout: timeout},
		breaker:  utils.NewCircuitBreaker("location-lookup"),
		minChars: minChars,
		limit:    limit,
	}
}

// Breaker exposes the circuit breaker for monitoring.
func (s *LocationService) Breaker() *utils.CircuitBreaker {
	return s.breaker
}

type nominatimResult struct {
	PlaceID     int64  `json:"place_id"`
	DisplayName string `json:"display_name"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
}

// Search runs the lookup. The request is bound to ctx so a superseded
// (debounced) call is cancelled instead of letting a stale response land
// after a fresher one.
func (s *LocationService) Search(ctx context.Context, query string) ([]models.LocationSuggestion, error) {
	query = strings.TrimSpace(query)
	if len(query) < s.minChars {
		return []models.LocationSuggestion{}, nil
	}

	result, err := s.breaker.Execute(ctx, func() (any, error) {
		return s.fetch(ctx, query)
	})
	if err != nil {
		return nil, err
	}
	return result.([]models.LocationSuggestion), nil
}

func (s *LocationService) fetch(ctx context.Context, query string) ([]models.LocationSuggestion, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "jsonv2")
	params.Set("addressdetails", "1")
	params.Set("limit", strconv.Itoa(s.limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("location lookup returned %d", resp.StatusCode)
	}

	var raw []nominatimResult
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode location results: %w", err)
	}

	suggestions := make([]models.LocationSuggestion, 0, len(raw))
	for _, r := range raw {
		lat, _ := strconv.ParseFloat(r.Lat, 64)
		lon, _ := strconv.ParseFloat(r.Lon, 64)
		suggestions = append(suggestions, models.LocationSuggestion{
			ID:        strconv.FormatInt(r.PlaceID, 10),
			Label:     r.DisplayName,
			Latitude:  lat,
			Longitude: lon,
		})
	}
	return suggestions, nil
}

// Debouncer delays a call and cancels the previous pending one when a new
// call supersedes it. Shared by the incremental address search and the sync
// engine's change-feed coalescing.
type Debouncer struct {
	delay time.Duration

	mu     sync.Mutex
	timer  *time.Timer
	cancel context.CancelFunc
}

func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Do schedules fn after the delay. A pending call that has not fired yet is
// dropped; a call already running sees its context cancelled.
func (d *Debouncer) Do(parent context.Context, fn func(ctx context.Context)) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	if d.cancel != nil {
		d.cancel()
	}

	ctx, cancel := context.WithCancel(parent)
	d.cancel = cancel
	d.timer = time.AfterFunc(d.delay, func() {
		fn(ctx)
	})
}

// Stop drops any pending call and cancels the running one.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
}
