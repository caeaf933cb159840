package sink

import (
	"testing"

	"github.com/shortontech/netlens/internal/detect"
)

func TestNewKafkaSinkFromEnv(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("KAFKA_BROKERS", "")
		t.Setenv("KAFKA_TOPIC", "")

		s := NewKafkaSinkFromEnv()

		if len(s.config.Brokers) != 1 || s.config.Brokers[0] != "localhost:9092" {
			t.Errorf("brokers = %v", s.config.Brokers)
		}
		if s.config.Topic != "netlens.detections" {
			t.Errorf("topic = %q", s.config.Topic)
		}
		if s.config.Acks != "all" {
			t.Errorf("acks = %q", s.config.Acks)
		}
	})

	t.Run("broker list is split and trimmed", func(t *testing.T) {
		t.Setenv("KAFKA_BROKERS", "b1:9092, b2:9092 ,b3:9092")

		s := NewKafkaSinkFromEnv()

		want := []string{"b1:9092", "b2:9092", "b3:9092"}
		if len(s.config.Brokers) != len(want) {
			t.Fatalf("brokers = %v", s.config.Brokers)
		}
		for i, b := range want {
			if s.config.Brokers[i] != b {
				t.Errorf("brokers[%d] = %q, want %q", i, s.config.Brokers[i], b)
			}
		}
	})

	t.Run("tls skip verify parsing", func(t *testing.T) {
		t.Setenv("KAFKA_TLS_SKIP_VERIFY", "true")
		if !NewKafkaSinkFromEnv().config.TLSSkipVerify {
			t.Error("expected TLSSkipVerify = true")
		}
	})
}

func TestKafkaSinkEnqueueBeforeStart(t *testing.T) {
	s := NewKafkaSink([]string{"localhost:9092"}, "netlens.detections")
	if s.Name() != "kafka" {
		t.Errorf("name = %q", s.Name())
	}
	if err := s.Enqueue(sampleReport("192.0.2.1", detect.ConnectionDirect)); err == nil {
		t.Error("expected error before Start")
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close on unstarted sink: %v", err)
	}
}
