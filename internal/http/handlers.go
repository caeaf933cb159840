package httpx

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/shortontech/netlens/internal/detect"
	"github.com/shortontech/netlens/internal/report"
	"github.com/shortontech/netlens/internal/session"
	cfg "github.com/shortontech/netlens/pkg/config"
)

type Env struct {
	Cfg    cfg.Config
	Engine *detect.Engine
	Visits *session.Store      // owned by main, shared across handlers
	Emit   func(report.Report) // injected sink fan-out
}

func (e Env) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (e Env) Readyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// Detect dispatches on method: GET classifies the calling connection, POST
// classifies a caller-supplied header record.
func (e Env) Detect(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		e.detectSelf(w, r)
	case http.MethodPost:
		e.detectPayload(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// GET /v1/detect classifies the request that carried it.
func (e Env) detectSelf(w http.ResponseWriter, r *http.Request) {
	candidate := candidateIP(r.Header, r.RemoteAddr, e.Cfg.TrustProxy)
	sig := detect.ExtractSignals(r.Header, candidate)
	e.respond(w, r, sig, r.RemoteAddr)
}

// detectRequest is the POST payload: raw header pairs plus the transport
// address the caller observed.
type detectRequest struct {
	Headers    map[string]string `json:"headers"`
	RemoteAddr string            `json:"remote_addr"`
}

// POST /v1/detect classifies a record on behalf of another boundary. The
// only user-visible error in the whole pipeline is a malformed payload here.
func (e Env) detectPayload(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "application/json") {
		http.Error(w, "content-type must be application/json", http.StatusUnsupportedMediaType)
		return
	}
	defer r.Body.Close()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, e.Cfg.MaxBodyBytes))
	if err != nil {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	var payload detectRequest
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	h := http.Header{}
	for k, v := range payload.Headers {
		h.Set(k, v)
	}
	// Caller-supplied headers are trusted by definition: forwarding them is
	// the point of this endpoint.
	candidate := candidateIP(h, payload.RemoteAddr, true)
	sig := detect.ExtractSignals(h, candidate)
	e.respond(w, r, sig, payload.RemoteAddr)
}

func (e Env) respond(w http.ResponseWriter, r *http.Request, sig detect.Signals, remoteAddr string) {
	start := time.Now()
	verdict := e.Engine.Detect(r.Context(), sig)
	took := time.Since(start)

	rep := report.New(report.ClientMeta{
		CandidateIP: sig.CandidateIP,
		RemoteAddr:  remoteAddr,
		UserAgent:   sig.UserAgent,
		Referer:     r.Referer(),
		Path:        r.URL.Path,
	}, verdict, took)
	if e.Visits != nil {
		rep.VisitCount = e.Visits.Visit(sig.CandidateIP)
	}
	if e.Emit != nil {
		e.Emit(rep)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(rep)
}

// candidateIP picks the client IP the way the boundary owns it: CDN header,
// then forwarded-for head, then real-ip, then the transport address, then
// the "unknown" sentinel. Proxy headers are only honored when trusted.
func candidateIP(h http.Header, remoteAddr string, trustProxy bool) string {
	if trustProxy {
		if v := strings.TrimSpace(h.Get("CF-Connecting-IP")); v != "" {
			return v
		}
		if chain := detect.ParseForwardedChain(h.Get("X-Forwarded-For")); len(chain) > 0 {
			return chain[0]
		}
		if v := strings.TrimSpace(h.Get("X-Real-IP")); v != "" {
			return v
		}
	}
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil && host != "" {
		return host
	}
	if remoteAddr != "" {
		return remoteAddr
	}
	return "unknown"
}
