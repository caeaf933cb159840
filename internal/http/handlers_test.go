package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shortontech/netlens/internal/detect"
	"github.com/shortontech/netlens/internal/report"
	"github.com/shortontech/netlens/internal/session"
	"github.com/shortontech/netlens/pkg/config"
)

func testEnv(trustProxy bool) (Env, *[]report.Report) {
	var emitted []report.Report
	env := Env{
		Cfg:    config.Config{TrustProxy: trustProxy, MaxBodyBytes: 1 << 20},
		Engine: detect.NewEngine(detect.EngineConfig{}),
		Visits: session.NewStore(),
		Emit:   func(r report.Report) { emitted = append(emitted, r) },
	}
	return env, &emitted
}

// TestHealthz tests the health check endpoint
func TestHealthz(t *testing.T) {
	t.Run("returns 200 OK", func(t *testing.T) {
		env := Env{}
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		w := httptest.NewRecorder()

		env.Healthz(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("status code = %d, want %d", w.Code, http.StatusOK)
		}
		if w.Body.String() != "ok" {
			t.Errorf("body = %q, want %q", w.Body.String(), "ok")
		}
	})
}

func TestReadyz(t *testing.T) {
	env := Env{}
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()

	env.Readyz(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestDetectGet(t *testing.T) {
	t.Run("classifies a forwarded chain", func(t *testing.T) {
		env, emitted := testEnv(true)
		req := httptest.NewRequest(http.MethodGet, "/v1/detect", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
		req.Header.Set("User-Agent", "Mozilla/5.0")
		w := httptest.NewRecorder()

		env.Detect(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status code = %d, body: %s", w.Code, w.Body.String())
		}
		var rep report.Report
		if err := json.Unmarshal(w.Body.Bytes(), &rep); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
		if rep.Verdict.ConnectionType != detect.ConnectionProxyChain {
			t.Errorf("connection type = %s, want %s", rep.Verdict.ConnectionType, detect.ConnectionProxyChain)
		}
		if rep.Verdict.ResolvedRealIP != "203.0.113.5" {
			t.Errorf("resolved IP = %q", rep.Verdict.ResolvedRealIP)
		}
		if rep.Client.CandidateIP != "203.0.113.5" {
			t.Errorf("candidate IP = %q", rep.Client.CandidateIP)
		}
		if rep.VisitCount != 1 {
			t.Errorf("visit count = %d, want 1", rep.VisitCount)
		}
		if rep.ReportID == "" || rep.TS == "" {
			t.Errorf("missing envelope fields: %+v", rep)
		}
		if len(*emitted) != 1 {
			t.Errorf("emitted %d reports, want 1", len(*emitted))
		}
	})

	t.Run("untrusted proxy headers fall back to remote addr", func(t *testing.T) {
		env, _ := testEnv(false)
		req := httptest.NewRequest(http.MethodGet, "/v1/detect", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.5")
		req.RemoteAddr = "198.51.100.7:4711"
		w := httptest.NewRecorder()

		env.Detect(w, req)

		var rep report.Report
		if err := json.Unmarshal(w.Body.Bytes(), &rep); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
		if rep.Client.CandidateIP != "198.51.100.7" {
			t.Errorf("candidate IP = %q, want the transport address", rep.Client.CandidateIP)
		}
	})

	t.Run("visit count increments per candidate ip", func(t *testing.T) {
		env, _ := testEnv(false)
		for want := 1; want <= 3; want++ {
			req := httptest.NewRequest(http.MethodGet, "/v1/detect", nil)
			req.RemoteAddr = "198.51.100.7:4711"
			w := httptest.NewRecorder()
			env.Detect(w, req)

			var rep report.Report
			if err := json.Unmarshal(w.Body.Bytes(), &rep); err != nil {
				t.Fatal(err)
			}
			if rep.VisitCount != want {
				t.Errorf("visit count = %d, want %d", rep.VisitCount, want)
			}
		}
	})
}

func TestDetectPost(t *testing.T) {
	t.Run("classifies a forwarded record", func(t *testing.T) {
		env, _ := testEnv(false)
		body := `{"headers": {"X-Forwarded-For": "203.0.113.5, 10.0.0.1", "User-Agent": "curl/8.0"}, "remote_addr": "10.0.0.1:443"}`
		req := httptest.NewRequest(http.MethodPost, "/v1/detect", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		env.Detect(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status code = %d, body: %s", w.Code, w.Body.String())
		}
		var rep report.Report
		if err := json.Unmarshal(w.Body.Bytes(), &rep); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
		if rep.Client.CandidateIP != "203.0.113.5" {
			t.Errorf("candidate IP = %q", rep.Client.CandidateIP)
		}
		if rep.Verdict.ConnectionType != detect.ConnectionProxyChain {
			t.Errorf("connection type = %s", rep.Verdict.ConnectionType)
		}
	})

	t.Run("malformed json is a client error", func(t *testing.T) {
		env, emitted := testEnv(false)
		req := httptest.NewRequest(http.MethodPost, "/v1/detect", strings.NewReader(`{"headers": {`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		env.Detect(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("status code = %d, want %d", w.Code, http.StatusBadRequest)
		}
		if len(*emitted) != 0 {
			t.Errorf("emitted %d reports for a rejected payload", len(*emitted))
		}
	})

	t.Run("wrong content type", func(t *testing.T) {
		env, _ := testEnv(false)
		req := httptest.NewRequest(http.MethodPost, "/v1/detect", strings.NewReader("a=b"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()

		env.Detect(w, req)

		if w.Code != http.StatusUnsupportedMediaType {
			t.Errorf("status code = %d, want %d", w.Code, http.StatusUnsupportedMediaType)
		}
	})
}

func TestDetectMethodNotAllowed(t *testing.T) {
	env, _ := testEnv(false)
	req := httptest.NewRequest(http.MethodDelete, "/v1/detect", nil)
	w := httptest.NewRecorder()

	env.Detect(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status code = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}

func TestCandidateIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		trustProxy bool
		want       string
	}{
		{
			name:       "cdn header wins",
			headers:    map[string]string{"CF-Connecting-IP": "1.1.1.1", "X-Forwarded-For": "2.2.2.2", "X-Real-IP": "3.3.3.3"},
			remoteAddr: "4.4.4.4:80",
			trustProxy: true,
			want:       "1.1.1.1",
		},
		{
			name:       "forwarded-for head next",
			headers:    map[string]string{"X-Forwarded-For": "2.2.2.2, 9.9.9.9", "X-Real-IP": "3.3.3.3"},
			remoteAddr: "4.4.4.4:80",
			trustProxy: true,
			want:       "2.2.2.2",
		},
		{
			name:       "real-ip next",
			headers:    map[string]string{"X-Real-IP": "3.3.3.3"},
			remoteAddr: "4.4.4.4:80",
			trustProxy: true,
			want:       "3.3.3.3",
		},
		{
			name:       "remote addr when no headers",
			headers:    nil,
			remoteAddr: "4.4.4.4:80",
			trustProxy: true,
			want:       "4.4.4.4",
		},
		{
			name:       "headers ignored when untrusted",
			headers:    map[string]string{"CF-Connecting-IP": "1.1.1.1"},
			remoteAddr: "4.4.4.4:80",
			trustProxy: false,
			want:       "4.4.4.4",
		},
		{
			name:       "unknown sentinel when nothing is usable",
			headers:    nil,
			remoteAddr: "",
			trustProxy: true,
			want:       "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			for k, v := range tt.headers {
				h.Set(k, v)
			}
			if got := candidateIP(h, tt.remoteAddr, tt.trustProxy); got != tt.want {
				t.Errorf("candidateIP = %q, want %q", got, tt.want)
			}
		})
	}
}
