package sensor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrNonNumeric is returned when an entity state is not a number
// (e.g. "unavailable" while the device is offline).
var ErrNonNumeric = errors.New("sensor state is not numeric")

// Source reads the current numeric value of one sensor entity.
type Source interface {
	Read(ctx context.Context, entityID string) (float64, error)
}

// HTTPSource reads entity states from a home-automation REST API
// (GET {base}/api/states/{entity} with a bearer token).
type HTTPSource struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPSource creates a source; timeout bounds each request.
func NewHTTPSource(baseURL, token string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

type stateResponse struct {
	EntityID string          `json:"entity_id"`
	State    json.RawMessage `json:"state"`
}

// Read fetches and parses one entity state.
func (s *HTTPSource) Read(ctx context.Context, entityID string) (float64, error) {
	endpoint := s.baseURL + "/api/states/" + url.PathEscape(entityID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", entityID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return 0, fmt.Errorf("read %s: status %d", entityID, resp.StatusCode)
	}

	var body stateResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode %s: %w", entityID, err)
	}
	return parseState(body.State)
}

// parseState accepts both "23.5" and 23.5.
func parseState(raw json.RawMessage) (float64, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, ErrNonNumeric
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %q", ErrNonNumeric, s)
	}
	return f, nil
}
