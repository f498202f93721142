package queue

import (
	"encoding/json"
	"testing"
)

// Ack and claim tracking match list and ZSET members by exact bytes, so two
// deliveries of the same job must never encode identically: a retry enqueue
// colliding with the still-processing original would let one worker's ack
// erase the other's claim entry.
func TestMessage_DeliveriesNeverEncodeAlike(t *testing.T) {
	m := Message{JobID: "6a9e3f0c-9be2-4cf5-a0ff-0f2c9c54d7b1", Kind: "echo"}

	a, err := json.Marshal(m.stamped())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	b, err := json.Marshal(m.stamped())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	if string(a) == string(b) {
		t.Fatalf("two deliveries encoded identically: %s", a)
	}
}

func TestMessage_StampKeepsAssignedDelivery(t *testing.T) {
	m := Message{JobID: "6a9e3f0c-9be2-4cf5-a0ff-0f2c9c54d7b1", Delivery: "d-1"}
	if got := m.stamped().Delivery; got != "d-1" {
		t.Fatalf("expected delivery to survive stamping, got %q", got)
	}
}

func TestMessage_EncodingRoundTrip(t *testing.T) {
	raw, err := json.Marshal(Message{JobID: "job-1", Kind: "echo"}.stamped())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got Message
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.JobID != "job-1" || got.Kind != "echo" || got.Delivery == "" {
		t.Fatalf("lossy round trip: %#v", got)
	}
}
