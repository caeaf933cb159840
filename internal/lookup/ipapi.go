// Package lookup implements the external lookup providers the detection
// engine races: an HTTP geolocation source, a Tor exit-list source, and a
// local MaxMind database source. All of them satisfy the capability
// interfaces in internal/detect and report failures through the shared
// lookup error taxonomy.
package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shortontech/netlens/internal/detect"
)

// DefaultIPAPIURL is the public ip-api.com JSON endpoint.
const DefaultIPAPIURL = "http://ip-api.com/json"

// ipapiFields trims the response to what the engine consumes.
const ipapiFields = "status,message,country,countryCode,region,city,isp,org,as,proxy,hosting"

// IPAPIProvider resolves geolocation over the ip-api.com JSON shape.
type IPAPIProvider struct {
	baseURL string
	client  *http.Client
}

// NewIPAPI creates a provider against baseURL (DefaultIPAPIURL when empty).
// The HTTP client timeout backstops requests whose context has no deadline;
// the engine normally supplies a tighter one.
func NewIPAPI(baseURL string) *IPAPIProvider {
	if baseURL == "" {
		baseURL = DefaultIPAPIURL
	}
	return &IPAPIProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (p *IPAPIProvider) Name() string { return "ip-api" }

type ipapiResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	Country     string `json:"country"`
	CountryCode string `json:"countryCode"`
	Region      string `json:"region"`
	City        string `json:"city"`
	ISP         string `json:"isp"`
	Org         string `json:"org"`
	AS          string `json:"as"`
	// Absent booleans decode as false, which is the required reading: the
	// source is known to false-negative, never to fail parsing on absence.
	Proxy   bool `json:"proxy"`
	Hosting bool `json:"hosting"`
}

// Geolocate queries the service for ip. Only the engine's error taxonomy
// escapes: timeouts, transport failures, non-success payloads, bad JSON.
func (p *IPAPIProvider) Geolocate(ctx context.Context, ip string) (*detect.GeoResult, error) {
	target := fmt.Sprintf("%s/%s?fields=%s", p.baseURL, url.PathEscape(ip), ipapiFields)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", detect.ErrLookupUnavailable, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", detect.ErrLookupTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", detect.ErrLookupUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", detect.ErrLookupUnavailable, resp.StatusCode)
	}

	var payload ipapiResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", detect.ErrLookupMalformed, err)
	}
	if payload.Status != "success" {
		return nil, fmt.Errorf("%w: %s", detect.ErrLookupUnavailable, payload.Message)
	}

	return &detect.GeoResult{
		Country:      payload.Country,
		CountryCode:  payload.CountryCode,
		Region:       payload.Region,
		City:         payload.City,
		ISP:          payload.ISP,
		Organization: payload.Org,
		ASNumber:     payload.AS,
		Proxy:        payload.Proxy,
		Hosting:      payload.Hosting,
	}, nil
}
