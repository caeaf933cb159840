// Package report defines the per-request record the service emits to its
// sinks: one detection verdict plus the request metadata around it.
package report

import (
	"time"

	"github.com/google/uuid"

	"github.com/shortontech/netlens/internal/detect"
)

// Report is the envelope serialized to sinks and returned to API callers.
// Optional fields are omitted when empty.
type Report struct {
	ReportID string `json:"report_id"`
	TS       string `json:"ts"` // RFC3339Nano, UTC
	Type     string `json:"type"`

	Client  ClientMeta     `json:"client"`
	Verdict detect.Verdict `json:"verdict"`

	// VisitCount is how many detections this resolved IP has triggered
	// since the process started; 0 when the counter is disabled.
	VisitCount int `json:"visit_count,omitempty"`

	// DetectMS is how long the engine took, lookups included.
	DetectMS int64 `json:"detect_ms"`
}

// ClientMeta is the boundary-observed request metadata.
type ClientMeta struct {
	CandidateIP string `json:"candidate_ip"`
	RemoteAddr  string `json:"remote_addr,omitempty"`
	UserAgent   string `json:"user_agent,omitempty"`
	Referer     string `json:"referer,omitempty"`
	Path        string `json:"path,omitempty"`
}

// New builds a report around a verdict, stamping ID and timestamp.
func New(client ClientMeta, verdict detect.Verdict, took time.Duration) Report {
	return Report{
		ReportID: uuid.New().String(),
		TS:       time.Now().UTC().Format(time.RFC3339Nano),
		Type:     "detection",
		Client:   client,
		Verdict:  verdict,
		DetectMS: took.Milliseconds(),
	}
}
