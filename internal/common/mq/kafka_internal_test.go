package mq

import (
	"testing"
	"time"
)

func TestKafkaMessageHeadersRoundTrip(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := &Message{
		ID:         "m-1",
		Key:        "contest-7",
		Body:       []byte(`{"ok":true}`),
		Headers:    map[string]string{"event": "leaderboard"},
		Timestamp:  ts,
		RetryCount: 2,
	}

	km := toKafkaMessage("contest.leaderboard", msg)
	if km.Topic != "contest.leaderboard" || string(km.Key) != "contest-7" {
		t.Fatalf("unexpected kafka message: topic=%s key=%s", km.Topic, km.Key)
	}

	got := fromKafkaMessage(km)
	if got.ID != "m-1" || got.RetryCount != 2 || !got.Timestamp.Equal(ts) {
		t.Fatalf("unexpected decoded message: %+v", got)
	}
	if got.Headers["event"] != "leaderboard" {
		t.Fatalf("custom header lost: %+v", got.Headers)
	}
	if _, ok := got.Headers[headerID]; ok {
		t.Fatalf("reserved headers must not leak into Headers")
	}
}

func TestKafkaMessageKeyDefaultsToID(t *testing.T) {
	km := toKafkaMessage("t", &Message{ID: "abc"})
	if string(km.Key) != "abc" {
		t.Fatalf("expected key to default to id, got %q", km.Key)
	}
	if got := fromKafkaMessage(km); got.ID != "abc" {
		t.Fatalf("unexpected id: %q", got.ID)
	}
}
