package detect

// ConnectionType is the classified origin of a request's connection.
type ConnectionType string

const (
	ConnectionDirect     ConnectionType = "Direct"
	ConnectionProxyVPN   ConnectionType = "ProxyVPN"
	ConnectionProxyChain ConnectionType = "ProxyChain"
	ConnectionHostingVPS ConnectionType = "HostingVPS"
	ConnectionTorNetwork ConnectionType = "TorNetwork"
)

// Confidence is a coarse certainty indicator, not a probability.
type Confidence string

const (
	ConfidenceHigh Confidence = "High"
	ConfidenceLow  Confidence = "Low"
)

// HiddenByTor is reported as the resolved real IP whenever the request
// arrives through a Tor exit node.
const HiddenByTor = "Hidden by Tor Network"

// Tor detection method labels. Empty unless a verdict asserts Tor.
const (
	TorMethodExitList    = "Official Tor Exit Node List"
	TorMethodISPPatterns = "ISP Pattern Analysis"
)

// MatchedHeader is a proxy-indicating header that was present on the request.
type MatchedHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// GeoResult is what a geolocation lookup reports for an IP. Any field may be
// empty; the boolean flags are known to false-negative.
type GeoResult struct {
	Country      string `json:"country,omitempty"`
	CountryCode  string `json:"country_code,omitempty"`
	Region       string `json:"region,omitempty"`
	City         string `json:"city,omitempty"`
	ISP          string `json:"isp,omitempty"`
	Organization string `json:"org,omitempty"`
	ASNumber     string `json:"as,omitempty"`
	Proxy        bool   `json:"proxy,omitempty"`
	Hosting      bool   `json:"hosting,omitempty"`
}

// TorResult is what an exit-node lookup reports for an IP.
type TorResult struct {
	IsKnownExit bool `json:"is_tor"`
}

// Verdict is the engine's confidence-scored classification of a single
// request. It is fully derived from the inputs of one Detect call and owns
// nothing beyond that call.
type Verdict struct {
	IsLikelyProxy      bool            `json:"is_likely_proxy"`
	IsTorNetwork       bool            `json:"is_tor_network"`
	TorDetectionMethod string          `json:"tor_detection_method,omitempty"`
	MatchedHeaders     []MatchedHeader `json:"matched_headers"`
	IPChain            []string        `json:"ip_chain"`
	ProxyChainTail     []string        `json:"proxy_chain_tail"`
	ResolvedRealIP     string          `json:"resolved_real_ip"`
	IsAutomatedClient  bool            `json:"is_automated_client"`
	Score              int             `json:"score"`
	Confidence         Confidence      `json:"confidence"`
	ConnectionType     ConnectionType  `json:"connection_type"`
	Explanation        string          `json:"explanation"`

	// Geo carries whichever geolocation result won the provider race, when
	// any did. It is informational; classification already folded it in.
	Geo *GeoResult `json:"geo,omitempty"`
}
