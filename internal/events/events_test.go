package events

import "testing"

func TestNewAndDecode(t *testing.T) {
	env, err := New(EventOrderStatusChanged, "venue-api", "o1", StatusChangedPayload{ID: "o1", From: "PENDING", Status: "PAID"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if env.EventID == "" || env.EventVersion != 1 || env.CorrelationID != "o1" {
		t.Fatalf("envelope = %+v", env)
	}
	p, err := Decode[StatusChangedPayload](env)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Status != "PAID" || p.From != "PENDING" {
		t.Fatalf("payload = %+v", p)
	}
}

func TestTopicFor(t *testing.T) {
	for _, typ := range []string{EventTableStatusChanged, EventOrderStatusChanged, EventPaymentCallback} {
		if _, ok := TopicFor(typ); !ok {
			t.Fatalf("no topic for %s", typ)
		}
	}
	if _, ok := TopicFor("Unknown"); ok {
		t.Fatalf("unexpected topic for unknown event")
	}
}
