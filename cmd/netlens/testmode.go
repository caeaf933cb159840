package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/shortontech/netlens/internal/detect"
	"github.com/shortontech/netlens/internal/report"
)

// syntheticCase is one self-check scenario run in --test mode.
type syntheticCase struct {
	name       string
	headers    map[string]string
	remoteAddr string
}

// syntheticCases covers the classification spectrum the engine supports
// without needing real upstream traffic.
func syntheticCases() []syntheticCase {
	return []syntheticCase{
		{
			name:       "direct browser",
			headers:    map[string]string{"User-Agent": "Mozilla/5.0 (Windows NT 10.0; Win64; x64)"},
			remoteAddr: "198.51.100.7",
		},
		{
			name: "two-hop proxy chain",
			headers: map[string]string{
				"X-Forwarded-For": "203.0.113.5, 10.0.0.1",
				"User-Agent":      "Mozilla/5.0",
			},
			remoteAddr: "10.0.0.1",
		},
		{
			name: "cdn fronted crawler",
			headers: map[string]string{
				"CF-Connecting-IP": "192.0.2.44",
				"User-Agent":       "Mozilla/5.0 (compatible; Googlebot/2.1)",
			},
			remoteAddr: "192.0.2.44",
		},
		{
			name: "tor exit candidate",
			headers: map[string]string{
				"X-Real-IP":  "185.220.101.34",
				"User-Agent": "Mozilla/5.0 (Windows NT 10.0; rv:109.0) Gecko/20100101 Firefox/115.0",
			},
			remoteAddr: "185.220.101.34",
		},
	}
}

// runTestMode pushes the synthetic cases through the live engine and sinks
// so operators can validate a deployment without exposing it to traffic.
func runTestMode(ctx context.Context, engine *detect.Engine, emit func(report.Report)) {
	cases := syntheticCases()
	log.Printf("test mode: running %d synthetic detections", len(cases))

	for _, tc := range cases {
		h := http.Header{}
		for k, v := range tc.headers {
			h.Set(k, v)
		}
		sig := detect.ExtractSignals(h, tc.remoteAddr)

		start := time.Now()
		verdict := engine.Detect(ctx, sig)
		took := time.Since(start)

		rep := report.New(report.ClientMeta{
			CandidateIP: sig.CandidateIP,
			RemoteAddr:  tc.remoteAddr,
			UserAgent:   sig.UserAgent,
			Path:        "test:" + uuid.New().String()[:8],
		}, verdict, took)
		emit(rep)

		log.Printf("test mode: %-22s -> %s (score=%d confidence=%s real_ip=%s)",
			tc.name, verdict.ConnectionType, verdict.Score, verdict.Confidence, verdict.ResolvedRealIP)
	}
	log.Printf("test mode: done")
}
