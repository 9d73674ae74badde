package kafka

import (
	"testing"
	"time"
)

type testEvent struct {
	BookingID string `json:"booking_id"`
	Outcome   string `json:"outcome"`
}

func TestMessageBuilder_Build(t *testing.T) {
	event := testEvent{BookingID: "booking-1", Outcome: "confirmed"}

	msg := NewMessage().
		WithKey("booking-1").
		WithEventType("booking.confirmed").
		WithSource("rides").
		WithValue(event).
		Build()

	if msg.Key != "booking-1" {
		t.Errorf("expected key 'booking-1', got %s", msg.Key)
	}
	if msg.GetEventType() != "booking.confirmed" {
		t.Errorf("expected event type 'booking.confirmed', got %s", msg.GetEventType())
	}
	if source, _ := msg.GetHeader(HeaderSource); source != "rides" {
		t.Errorf("expected source 'rides', got %s", source)
	}
	if msg.GetEventID() == "" {
		t.Errorf("Build() should assign an event id")
	}
	if ts, ok := msg.GetHeader(HeaderTimestamp); !ok {
		t.Errorf("Build() should stamp the message")
	} else if _, err := time.Parse(time.RFC3339, ts); err != nil {
		t.Errorf("timestamp header is not RFC3339: %v", err)
	}

	var decoded testEvent
	if err := msg.DecodeValue(&decoded); err != nil {
		t.Fatalf("DecodeValue() returned error: %v", err)
	}
	if decoded != event {
		t.Errorf("round trip mismatch: %+v != %+v", decoded, event)
	}
}

func TestMessageBuilder_PreservesExplicitEventID(t *testing.T) {
	msg := NewMessage().
		WithKey("booking-1").
		WithHeader(HeaderEventID, "fixed-id").
		WithRawValue([]byte(`{}`)).
		Build()

	if msg.GetEventID() != "fixed-id" {
		t.Errorf("expected event id 'fixed-id', got %s", msg.GetEventID())
	}
}

func TestMessage_GetHeaderMissing(t *testing.T) {
	msg := NewMessage().WithKey("k").WithRawValue([]byte(`{}`)).Build()

	if _, ok := msg.GetHeader("no-such-header"); ok {
		t.Errorf("expected missing header lookup to report absence")
	}
}
