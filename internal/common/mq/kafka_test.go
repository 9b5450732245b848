package mq

import (
	"testing"
	"time"
)

func TestToKafkaMessageCarriesHeaders(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	msg := &Message{ID: "rec-1", Body: []byte(`{"ok":true}`), Timestamp: ts}
	msg.SetHeader("event", "submission.evaluated")

	km := toKafkaMessage("evaluation.submission.evaluated", msg)
	if km.Topic != "evaluation.submission.evaluated" {
		t.Fatalf("unexpected topic %q", km.Topic)
	}
	if string(km.Key) != "rec-1" {
		t.Fatalf("expected key to be message id, got %q", km.Key)
	}
	got := map[string]string{}
	for _, h := range km.Headers {
		got[h.Key] = string(h.Value)
	}
	if got["event"] != "submission.evaluated" {
		t.Fatalf("custom header missing: %v", got)
	}
	if got[headerID] != "rec-1" {
		t.Fatalf("id header missing: %v", got)
	}
	if got[headerTimestamp] != ts.Format(time.RFC3339Nano) {
		t.Fatalf("timestamp header mismatch: %v", got)
	}
}

func TestNewKafkaProducerRequiresBrokers(t *testing.T) {
	if _, err := NewKafkaProducer(KafkaConfig{}); err == nil {
		t.Fatalf("expected error without brokers")
	}
}
