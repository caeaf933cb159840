package lookup

import (
	"context"
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"

	"github.com/shortontech/netlens/internal/detect"
)

// MaxMindProvider answers geolocation lookups from local MaxMind City and
// ASN databases. It has no proxy flag of its own; the hosting flag is
// derived from the operator's hosting-ASN rules. Useful as a fast local
// entrant in the provider race when the HTTP source is slow or rate-limited.
type MaxMindProvider struct {
	city  *geoip2.Reader
	asn   *geoip2.Reader
	rules *detect.RuleStore
}

// NewMaxMind opens the two .mmdb files. Both are required: ISP/organization
// naming comes from the ASN database and drives the Tor pattern fallback.
func NewMaxMind(cityPath, asnPath string, rules *detect.RuleStore) (*MaxMindProvider, error) {
	city, err := geoip2.Open(cityPath)
	if err != nil {
		return nil, fmt.Errorf("maxmind: open city db: %w", err)
	}
	asn, err := geoip2.Open(asnPath)
	if err != nil {
		city.Close()
		return nil, fmt.Errorf("maxmind: open asn db: %w", err)
	}
	return &MaxMindProvider{city: city, asn: asn, rules: rules}, nil
}

func (p *MaxMindProvider) Name() string { return "maxmind" }

// Close releases the database readers.
func (p *MaxMindProvider) Close() error {
	p.city.Close()
	return p.asn.Close()
}

// Geolocate resolves ip from the local databases.
func (p *MaxMindProvider) Geolocate(ctx context.Context, ip string) (*detect.GeoResult, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return nil, fmt.Errorf("%w: not an IP address: %q", detect.ErrLookupMalformed, ip)
	}

	city, err := p.city.City(parsed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", detect.ErrLookupUnavailable, err)
	}
	asn, err := p.asn.ASN(parsed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", detect.ErrLookupUnavailable, err)
	}

	res := &detect.GeoResult{
		Country:      city.Country.Names["en"],
		CountryCode:  city.Country.IsoCode,
		City:         city.City.Names["en"],
		ISP:          asn.AutonomousSystemOrganization,
		Organization: asn.AutonomousSystemOrganization,
	}
	if len(city.Subdivisions) > 0 {
		res.Region = city.Subdivisions[0].IsoCode
	}
	if asn.AutonomousSystemNumber > 0 {
		res.ASNumber = fmt.Sprintf("AS%d %s", asn.AutonomousSystemNumber, asn.AutonomousSystemOrganization)
		if _, hosting := p.rules.HostingProvider(asn.AutonomousSystemNumber); hosting {
			res.Hosting = true
		}
	}
	return res, nil
}
