package lookup

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/shortontech/netlens/internal/detect"
)

func TestIPAPIGeolocate(t *testing.T) {
	t.Run("maps a success payload", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/185.220.101.1" {
				t.Errorf("path = %q", r.URL.Path)
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{
				"status": "success",
				"country": "Germany",
				"countryCode": "DE",
				"region": "BE",
				"city": "Berlin",
				"isp": "Emerald Onion",
				"org": "Emerald Onion",
				"as": "AS396507 Emerald Onion",
				"proxy": true,
				"hosting": false
			}`))
		}))
		defer srv.Close()

		res, err := NewIPAPI(srv.URL).Geolocate(context.Background(), "185.220.101.1")
		if err != nil {
			t.Fatalf("Geolocate: %v", err)
		}
		if res.Country != "Germany" || res.CountryCode != "DE" || res.City != "Berlin" {
			t.Errorf("location fields = %+v", res)
		}
		if res.ISP != "Emerald Onion" || res.ASNumber != "AS396507 Emerald Onion" {
			t.Errorf("provider fields = %+v", res)
		}
		if !res.Proxy || res.Hosting {
			t.Errorf("flags = proxy:%v hosting:%v", res.Proxy, res.Hosting)
		}
	})

	t.Run("absent booleans read as false", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"status": "success", "isp": "Example Net"}`))
		}))
		defer srv.Close()

		res, err := NewIPAPI(srv.URL).Geolocate(context.Background(), "192.0.2.1")
		if err != nil {
			t.Fatalf("Geolocate: %v", err)
		}
		if res.Proxy || res.Hosting {
			t.Errorf("flags should default to false, got %+v", res)
		}
	})

	t.Run("fail status is unavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"status": "fail", "message": "private range"}`))
		}))
		defer srv.Close()

		_, err := NewIPAPI(srv.URL).Geolocate(context.Background(), "10.0.0.1")
		if !errors.Is(err, detect.ErrLookupUnavailable) {
			t.Errorf("err = %v, want ErrLookupUnavailable", err)
		}
	})

	t.Run("http error status is unavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer srv.Close()

		_, err := NewIPAPI(srv.URL).Geolocate(context.Background(), "192.0.2.1")
		if !errors.Is(err, detect.ErrLookupUnavailable) {
			t.Errorf("err = %v, want ErrLookupUnavailable", err)
		}
	})

	t.Run("bad json is malformed", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"status": "succ`))
		}))
		defer srv.Close()

		_, err := NewIPAPI(srv.URL).Geolocate(context.Background(), "192.0.2.1")
		if !errors.Is(err, detect.ErrLookupMalformed) {
			t.Errorf("err = %v, want ErrLookupMalformed", err)
		}
	})

	t.Run("context deadline is a timeout", func(t *testing.T) {
		block := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-block
		}))
		defer srv.Close()
		defer close(block)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()

		_, err := NewIPAPI(srv.URL).Geolocate(ctx, "192.0.2.1")
		if !errors.Is(err, detect.ErrLookupTimeout) {
			t.Errorf("err = %v, want ErrLookupTimeout", err)
		}
	})

	t.Run("unreachable host is unavailable", func(t *testing.T) {
		_, err := NewIPAPI("http://127.0.0.1:1").Geolocate(context.Background(), "192.0.2.1")
		if !errors.Is(err, detect.ErrLookupUnavailable) {
			t.Errorf("err = %v, want ErrLookupUnavailable", err)
		}
	})
}

func TestTorExitIsExitNode(t *testing.T) {
	t.Run("positive answer", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/185.220.101.1" {
				t.Errorf("path = %q", r.URL.Path)
			}
			_, _ = w.Write([]byte(`{"isTor": true}`))
		}))
		defer srv.Close()

		res, err := NewTorExit(srv.URL).IsExitNode(context.Background(), "185.220.101.1")
		if err != nil {
			t.Fatalf("IsExitNode: %v", err)
		}
		if !res.IsKnownExit {
			t.Error("expected a known exit")
		}
	})

	t.Run("negative answer", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"isTor": false}`))
		}))
		defer srv.Close()

		res, err := NewTorExit(srv.URL).IsExitNode(context.Background(), "192.0.2.1")
		if err != nil {
			t.Fatalf("IsExitNode: %v", err)
		}
		if res.IsKnownExit {
			t.Error("expected not an exit")
		}
	})

	t.Run("bad json is malformed", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		}))
		defer srv.Close()

		_, err := NewTorExit(srv.URL).IsExitNode(context.Background(), "192.0.2.1")
		if !errors.Is(err, detect.ErrLookupMalformed) {
			t.Errorf("err = %v, want ErrLookupMalformed", err)
		}
	})

	t.Run("error status is unavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		_, err := NewTorExit(srv.URL).IsExitNode(context.Background(), "192.0.2.1")
		if !errors.Is(err, detect.ErrLookupUnavailable) {
			t.Errorf("err = %v, want ErrLookupUnavailable", err)
		}
	})
}

func TestNewMaxMindMissingDatabases(t *testing.T) {
	dir := t.TempDir()
	_, err := NewMaxMind(
		filepath.Join(dir, "missing-city.mmdb"),
		filepath.Join(dir, "missing-asn.mmdb"),
		detect.NewRuleStore(detect.DefaultRules()),
	)
	if err == nil {
		t.Fatal("expected error for missing database files")
	}
}
