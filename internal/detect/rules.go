package detect

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Rules is operator-configurable detection data. The shipped defaults are a
// starting point, not ground truth: which names indicate Tor infrastructure
// and which ASNs count as hosting is deployment policy.
type Rules struct {
	// TorPatterns are lowercase substrings matched against a geolocation
	// result's ISP, organization, and AS fields. A hit marks the IP as Tor
	// via ISP pattern analysis.
	TorPatterns []string `yaml:"tor_patterns"`

	// HostingASNs maps autonomous-system numbers of known data-center and
	// cloud providers to a display name. Used by local geolocation sources
	// that have no hosting flag of their own.
	HostingASNs map[uint]string `yaml:"hosting_asns"`
}

// DefaultRules returns the built-in rule set.
func DefaultRules() Rules {
	return Rules{
		TorPatterns: []string{
			"tor",
			"exit",
			"relay",
			"privacy foundation",
			"foundation for applied privacy",
			"emerald onion",
			"quintex alliance",
		},
		// Common data-center and cloud ASNs.
		HostingASNs: map[uint]string{
			14061: "DigitalOcean",
			16509: "Amazon AWS",
			24940: "Hetzner Online",
			20473: "Vultr",
			8075:  "Microsoft Azure",
			15169: "Google Cloud",
			16276: "OVH",
			63949: "Akamai Linode",
		},
	}
}

// LoadRulesFile reads a YAML rules file. Fields absent from the file fall
// back to the defaults, so an operator may override just one list.
func LoadRulesFile(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("rules: read %s: %w", path, err)
	}
	rules := DefaultRules()
	var file Rules
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Rules{}, fmt.Errorf("rules: parse %s: %w", path, err)
	}
	if len(file.TorPatterns) > 0 {
		rules.TorPatterns = file.TorPatterns
	}
	if len(file.HostingASNs) > 0 {
		rules.HostingASNs = file.HostingASNs
	}
	return rules, nil
}

// RuleStore holds the active rules behind a read lock. It is the only state
// detection shares across requests; everything else in a Detect call is
// per-request.
type RuleStore struct {
	mu    sync.RWMutex
	rules Rules
}

// NewRuleStore creates a store with the given rules active.
func NewRuleStore(r Rules) *RuleStore {
	s := &RuleStore{}
	s.Replace(r)
	return s
}

// Replace swaps in a new rule set. Patterns are normalized to lowercase.
func (s *RuleStore) Replace(r Rules) {
	patterns := make([]string, 0, len(r.TorPatterns))
	for _, p := range r.TorPatterns {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			patterns = append(patterns, p)
		}
	}
	asns := make(map[uint]string, len(r.HostingASNs))
	for asn, provider := range r.HostingASNs {
		asns[asn] = provider
	}
	s.mu.Lock()
	s.rules = Rules{TorPatterns: patterns, HostingASNs: asns}
	s.mu.Unlock()
}

// LoadFile loads path and activates it atomically.
func (s *RuleStore) LoadFile(path string) error {
	rules, err := LoadRulesFile(path)
	if err != nil {
		return err
	}
	s.Replace(rules)
	return nil
}

// MatchesTorPattern checks a geolocation result's provider naming against
// the active Tor patterns. Substring matching over lowercased ISP,
// organization, and AS fields is noisy in both directions, which is why a
// hit is reported as pattern analysis rather than an exit-list assertion.
func (s *RuleStore) MatchesTorPattern(geo *GeoResult) bool {
	if geo == nil {
		return false
	}
	haystack := strings.ToLower(geo.ISP + " " + geo.Organization + " " + geo.ASNumber)
	if strings.TrimSpace(haystack) == "" {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.rules.TorPatterns {
		if strings.Contains(haystack, p) {
			return true
		}
	}
	return false
}

// HostingProvider reports whether asn belongs to a known hosting provider.
func (s *RuleStore) HostingProvider(asn uint) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	provider, ok := s.rules.HostingASNs[asn]
	return provider, ok
}

// Current returns a copy of the active rules.
func (s *RuleStore) Current() Rules {
	s.mu.RLock()
	defer s.mu.RUnlock()
	patterns := append([]string(nil), s.rules.TorPatterns...)
	asns := make(map[uint]string, len(s.rules.HostingASNs))
	for asn, provider := range s.rules.HostingASNs {
		asns[asn] = provider
	}
	return Rules{TorPatterns: patterns, HostingASNs: asns}
}

// Watch reloads the store whenever path changes on disk. The parent
// directory is watched because most editors and config pushes replace the
// file rather than write it in place. Runs until ctx is done.
func (s *RuleStore) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("rules: watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return fmt.Errorf("rules: watch %s: %w", path, err)
	}
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(path) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := s.LoadFile(path); err != nil {
					log.Printf("rules: reload failed: %v", err)
					continue
				}
				log.Printf("rules: reloaded %s", path)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("rules: watch error: %v", err)
			}
		}
	}()
	return nil
}
