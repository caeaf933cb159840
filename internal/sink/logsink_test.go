package sink

import (
	"bytes"
	"context"
	"log"
	"strings"
	"testing"

	"github.com/shortontech/netlens/internal/detect"
)

func TestLogSink(t *testing.T) {
	s := NewLogSink()

	if s.Name() != "log" {
		t.Errorf("name = %q", s.Name())
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var buf bytes.Buffer
	prev := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(prev)

	if err := s.Enqueue(sampleReport("203.0.113.5", detect.ConnectionProxyChain)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, `"connection_type":"ProxyChain"`) {
		t.Errorf("log line missing verdict: %s", out)
	}
	if !strings.Contains(out, `"candidate_ip":"203.0.113.5"`) {
		t.Errorf("log line missing client meta: %s", out)
	}

	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
