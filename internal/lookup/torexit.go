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

// TorExitProvider checks an IP against an exit-node-list service that
// answers {"isTor": bool} for GET <base>/<ip>.
type TorExitProvider struct {
	baseURL string
	client  *http.Client
}

// NewTorExit creates a provider against baseURL.
func NewTorExit(baseURL string) *TorExitProvider {
	return &TorExitProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 3 * time.Second},
	}
}

func (p *TorExitProvider) Name() string { return "tor-exit-list" }

type torExitResponse struct {
	IsTor bool `json:"isTor"`
}

// IsExitNode reports whether ip is on the exit-node list. Same failure
// discipline as the geolocation provider: only taxonomy errors escape.
func (p *TorExitProvider) IsExitNode(ctx context.Context, ip string) (*detect.TorResult, error) {
	target := p.baseURL + "/" + url.PathEscape(ip)
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

	var payload torExitResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", detect.ErrLookupMalformed, err)
	}
	return &detect.TorResult{IsKnownExit: payload.IsTor}, nil
}
