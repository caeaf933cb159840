package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	ServerAddr   string
	TrustProxy   bool
	MaxBodyBytes int64    // bytes for POSTed detection payloads
	Outputs      []string // enabled sinks: log, kafka, postgres

	// External lookup sources. Empty URL disables a source.
	GeoAPIURL    string
	GeoTimeoutMS int64
	TorAPIURL    string
	TorTimeoutMS int64

	// Local MaxMind databases; both paths must be set to enable the
	// local geolocation provider.
	MaxMindCityDB string
	MaxMindASNDB  string

	// Detection rules file (YAML). Empty means built-in defaults.
	RulesFile  string
	RulesWatch bool
}

func getOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
func getBool(k string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(k)))
	switch v {
	case "1", "t", "true", "y", "yes":
		return true
	case "0", "f", "false", "n", "no":
		return false
	}
	return def
}
func getInt64(k string, def int64) int64 {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getStringSlice(k, def string) []string {
	v := os.Getenv(k)
	if v == "" {
		v = def
	}
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func Load() Config {
	return Config{
		ServerAddr:    getOr("SERVER_ADDR", ":19880"),
		TrustProxy:    getBool("TRUST_PROXY", false),
		MaxBodyBytes:  getInt64("MAX_BODY_BYTES", 1<<20), // 1 MiB default
		Outputs:       getStringSlice("OUTPUTS", "log"),  // default to log only
		GeoAPIURL:     getOr("GEO_API_URL", "http://ip-api.com/json"),
		GeoTimeoutMS:  getInt64("GEO_TIMEOUT_MS", 2000),
		TorAPIURL:     getOr("TOR_API_URL", ""), // no public default; set to enable
		TorTimeoutMS:  getInt64("TOR_TIMEOUT_MS", 1200),
		MaxMindCityDB: getOr("MAXMIND_CITY_DB", ""),
		MaxMindASNDB:  getOr("MAXMIND_ASN_DB", ""),
		RulesFile:     getOr("RULES_FILE", ""),
		RulesWatch:    getBool("RULES_WATCH", true),
	}
}
