package detect

import (
	"net/http"
	"strings"
)

// proxyHeaders is the fixed set of proxy-indicating request headers, in the
// order they are reported in a verdict. Matching is case-insensitive.
var proxyHeaders = []string{
	"x-forwarded-for",
	"x-real-ip",
	"x-forwarded-proto",
	"x-forwarded-host",
	"x-cluster-client-ip",
	"x-originating-ip",
	"cf-connecting-ip",
	"true-client-ip",
	"x-client-ip",
	"fastly-client-ip",
	"x-azure-clientip",
	"x-azure-socketip",
}

// automationTokens flag obviously automated clients by user-agent substring.
var automationTokens = []string{"bot", "crawler", "spider", "scraper"}

// Signals is the normalized per-request input to the detection engine,
// built once by ExtractSignals and never mutated.
type Signals struct {
	// ClientHeaders maps each recognized proxy-indicating header (lowercase
	// canonical name) to its raw value, for the headers that were present.
	ClientHeaders map[string]string

	// IPChain is the forwarded-for chain, oldest hop first. Entries are
	// trimmed but otherwise verbatim; this is a metadata signal, not a
	// security boundary, so no address validation happens here.
	IPChain []string

	// CandidateIP is the client IP the boundary layer settled on. The
	// engine only falls back to it when the forwarded-for chain is empty.
	CandidateIP string

	// UserAgent is the raw User-Agent value, possibly empty.
	UserAgent string
}

// ExtractSignals derives Signals from request headers. Pure: no I/O, no
// failure modes. Absent headers simply yield absent fields.
func ExtractSignals(h http.Header, candidateIP string) Signals {
	s := Signals{
		ClientHeaders: make(map[string]string, len(proxyHeaders)),
		CandidateIP:   candidateIP,
		UserAgent:     h.Get("User-Agent"),
	}
	for _, name := range proxyHeaders {
		if v := h.Get(name); v != "" {
			s.ClientHeaders[name] = v
		}
	}
	s.IPChain = ParseForwardedChain(h.Get("X-Forwarded-For"))
	return s
}

// ParseForwardedChain splits a forwarded-for value on commas, trimming
// whitespace and dropping empty entries (stray leading/trailing commas).
// Malformed addresses are kept verbatim.
func ParseForwardedChain(xff string) []string {
	if xff == "" {
		return nil
	}
	parts := strings.Split(xff, ",")
	chain := make([]string, 0, len(parts))
	for _, p := range parts {
		if ip := strings.TrimSpace(p); ip != "" {
			chain = append(chain, ip)
		}
	}
	if len(chain) == 0 {
		return nil
	}
	return chain
}

// matchedHeaders collects every recognized header present in the signals,
// in the fixed proxyHeaders order so verdicts are deterministic.
func matchedHeaders(s Signals) []MatchedHeader {
	matched := []MatchedHeader{}
	for _, name := range proxyHeaders {
		if v, ok := s.ClientHeaders[name]; ok && v != "" {
			matched = append(matched, MatchedHeader{Name: name, Value: v})
		}
	}
	return matched
}

// isAutomatedClient reports whether the user agent carries one of the
// automation tokens. Case-insensitive substring match.
func isAutomatedClient(userAgent string) bool {
	ua := strings.ToLower(userAgent)
	for _, tok := range automationTokens {
		if strings.Contains(ua, tok) {
			return true
		}
	}
	return false
}
