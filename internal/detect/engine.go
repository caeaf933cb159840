package detect

import (
	"context"
	"time"
)

// Default per-lookup deadlines. The Tor budget is deliberately tighter: it
// gates a higher-severity classification and must not dominate total latency.
const (
	DefaultGeoTimeout = 2 * time.Second
	DefaultTorTimeout = 1200 * time.Millisecond
)

// GeoProvider resolves geolocation metadata for an IP. Implementations are
// expected to honor ctx, but the engine bounds them either way.
type GeoProvider interface {
	Name() string
	Geolocate(ctx context.Context, ip string) (*GeoResult, error)
}

// TorProvider reports whether an IP is a known Tor exit node.
type TorProvider interface {
	Name() string
	IsExitNode(ctx context.Context, ip string) (*TorResult, error)
}

// EngineConfig wires an Engine. Providers are optional: an engine with no
// providers still classifies from header signals alone.
type EngineConfig struct {
	// GeoProviders are raced first-success-wins within GeoTimeout.
	GeoProviders []GeoProvider
	TorProvider  TorProvider
	Rules        *RuleStore

	GeoTimeout time.Duration // defaults to DefaultGeoTimeout
	TorTimeout time.Duration // defaults to DefaultTorTimeout

	// LookupError, when set, is invoked for every failed provider call
	// (metrics hook). It must not block.
	LookupError func(provider string, err error)
}

// Engine turns request signals plus best-effort external lookups into a
// Verdict. It holds no per-request state; arbitrarily many Detect calls may
// run concurrently.
type Engine struct {
	geo         []GeoProvider
	tor         TorProvider
	rules       *RuleStore
	geoTimeout  time.Duration
	torTimeout  time.Duration
	lookupError func(provider string, err error)
}

// NewEngine builds an Engine from cfg, applying defaults.
func NewEngine(cfg EngineConfig) *Engine {
	e := &Engine{
		geo:         cfg.GeoProviders,
		tor:         cfg.TorProvider,
		rules:       cfg.Rules,
		geoTimeout:  cfg.GeoTimeout,
		torTimeout:  cfg.TorTimeout,
		lookupError: cfg.LookupError,
	}
	if e.rules == nil {
		e.rules = NewRuleStore(DefaultRules())
	}
	if e.geoTimeout <= 0 {
		e.geoTimeout = DefaultGeoTimeout
	}
	if e.torTimeout <= 0 {
		e.torTimeout = DefaultTorTimeout
	}
	return e
}

// Detect classifies one request. It never returns an error: lookup failures
// of any kind degrade to absent signals. The call is bounded by the larger
// of the two lookup deadlines; the deadlines are independent and do not
// serialize.
func (e *Engine) Detect(ctx context.Context, sig Signals) Verdict {
	matched := matchedHeaders(sig)
	chain := sig.IPChain
	if chain == nil {
		chain = []string{}
	}
	hasMultipleIPs := len(chain) > 1
	automated := isAutomatedClient(sig.UserAgent)
	likelyProxy := len(matched) > 0 || hasMultipleIPs

	geoCh := make(chan *GeoResult, 1)
	torCh := make(chan *TorResult, 1)
	go func() { geoCh <- e.raceGeo(ctx, sig.CandidateIP) }()
	go func() { torCh <- e.lookupTor(ctx, sig.CandidateIP) }()
	geo := <-geoCh
	tor := <-torCh

	isTor := false
	torMethod := ""
	switch {
	case tor != nil && tor.IsKnownExit:
		isTor = true
		torMethod = TorMethodExitList
	case geo != nil && e.rules.MatchesTorPattern(geo):
		// Name-pattern fallback. Heuristic: both false positives and false
		// negatives happen, so the weaker method label is kept distinct.
		isTor = true
		torMethod = TorMethodISPPatterns
	}
	likelyProxy = likelyProxy || isTor

	var connType ConnectionType
	switch {
	case isTor:
		connType = ConnectionTorNetwork
	case geo != nil && geo.Hosting:
		connType = ConnectionHostingVPS
	case geo != nil && geo.Proxy:
		connType = ConnectionProxyVPN
	case hasMultipleIPs:
		connType = ConnectionProxyChain
	case likelyProxy:
		connType = ConnectionProxyVPN
	default:
		connType = ConnectionDirect
	}

	score := len(matched)
	if hasMultipleIPs {
		score += 2
	}
	if automated {
		score++
	}
	if isTor {
		score += 5
	}

	confidence := ConfidenceLow
	if isTor || likelyProxy {
		confidence = ConfidenceHigh
	}

	realIP := sig.CandidateIP
	switch {
	case isTor:
		realIP = HiddenByTor
	case len(chain) > 0:
		realIP = chain[0]
	}

	tail := []string{}
	if len(chain) > 1 {
		tail = append(tail, chain[1:]...)
	}

	return Verdict{
		IsLikelyProxy:      likelyProxy,
		IsTorNetwork:       isTor,
		TorDetectionMethod: torMethod,
		MatchedHeaders:     matched,
		IPChain:            chain,
		ProxyChainTail:     tail,
		ResolvedRealIP:     realIP,
		IsAutomatedClient:  automated,
		Score:              score,
		Confidence:         confidence,
		ConnectionType:     connType,
		Explanation:        explanationFor(connType),
		Geo:                geo,
	}
}

func explanationFor(t ConnectionType) string {
	switch t {
	case ConnectionTorNetwork:
		return "Connection arrives through the Tor network; the real client IP is hidden by design."
	case ConnectionDirect:
		return "No proxy indicators found; the client appears to connect directly."
	default:
		return "Proxy or VPN indicators present; the reported address may not be the client's real IP."
	}
}

// raceGeo launches every configured geolocation provider and returns the
// first successful result, discarding the rest without waiting for them.
// Returns nil when no provider succeeds within the geo deadline.
func (e *Engine) raceGeo(ctx context.Context, ip string) *GeoResult {
	if len(e.geo) == 0 || ip == "" || ip == "unknown" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, e.geoTimeout)
	defer cancel()

	results := make(chan *GeoResult, len(e.geo))
	for _, p := range e.geo {
		go func(p GeoProvider) {
			res, err := guardGeo(ctx, p, ip)
			if err != nil {
				e.reportLookupError(p.Name(), err)
				results <- nil
				return
			}
			results <- res
		}(p)
	}
	for range e.geo {
		select {
		case res := <-results:
			if res != nil {
				return res
			}
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}

// lookupTor runs the Tor exit check under its own deadline, independent of
// the geolocation budget.
func (e *Engine) lookupTor(ctx context.Context, ip string) *TorResult {
	if e.tor == nil || ip == "" || ip == "unknown" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, e.torTimeout)
	defer cancel()

	res, err := guardTor(ctx, e.tor, ip)
	if err != nil {
		e.reportLookupError(e.tor.Name(), err)
		return nil
	}
	return res
}

func (e *Engine) reportLookupError(provider string, err error) {
	if e.lookupError != nil {
		e.lookupError(provider, err)
	}
}

// guardGeo bounds a provider call even when the provider ignores ctx: once
// the deadline fires, any late answer is discarded.
func guardGeo(ctx context.Context, p GeoProvider, ip string) (*GeoResult, error) {
	type outcome struct {
		res *GeoResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := p.Geolocate(ctx, ip)
		done <- outcome{res, err}
	}()
	select {
	case o := <-done:
		if o.err != nil {
			return nil, o.err
		}
		if o.res == nil {
			return nil, ErrLookupUnavailable
		}
		return o.res, nil
	case <-ctx.Done():
		return nil, ErrLookupTimeout
	}
}

func guardTor(ctx context.Context, p TorProvider, ip string) (*TorResult, error) {
	type outcome struct {
		res *TorResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := p.IsExitNode(ctx, ip)
		done <- outcome{res, err}
	}()
	select {
	case o := <-done:
		if o.err != nil {
			return nil, o.err
		}
		if o.res == nil {
			return nil, ErrLookupUnavailable
		}
		return o.res, nil
	case <-ctx.Done():
		return nil, ErrLookupTimeout
	}
}
