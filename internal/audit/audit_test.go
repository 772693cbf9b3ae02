package audit

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

func TestFilterToBSONEmpty(t *testing.T) {
	query := filterToBSON(Filter{})
	if len(query) != 0 {
		t.Fatalf("expected empty query, got %v", query)
	}
}

func TestFilterToBSONFields(t *testing.T) {
	from := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	query := filterToBSON(Filter{
		Action:     ActionAppointmentCreated,
		ActorID:    "admin",
		ObjectID:   "abc",
		ObjectType: ObjectTypeAppointment,
		IP:         "203.0.113.9",
		From:       from,
		To:         to,
	})

	if query["action"] != ActionAppointmentCreated {
		t.Fatalf("unexpected action filter: %v", query["action"])
	}
	if query["actor_id"] != "admin" || query["object_id"] != "abc" {
		t.Fatalf("unexpected actor/object filter: %v", query)
	}
	if query["object_type"] != ObjectTypeAppointment || query["ip"] != "203.0.113.9" {
		t.Fatalf("unexpected type/ip filter: %v", query)
	}

	created, ok := query["created_at"].(bson.M)
	if !ok {
		t.Fatalf("expected created_at range, got %T", query["created_at"])
	}
	if created["$gte"] != from || created["$lt"] != to {
		t.Fatalf("unexpected created_at range: %v", created)
	}
}

func TestFilterToBSONDateRangeOnlyFrom(t *testing.T) {
	from := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	query := filterToBSON(Filter{From: from})
	created, ok := query["created_at"].(bson.M)
	if !ok {
		t.Fatalf("expected created_at range, got %T", query["created_at"])
	}
	if created["$gte"] != from {
		t.Fatalf("unexpected $gte: %v", created["$gte"])
	}
	if _, hasTo := created["$lt"]; hasTo {
		t.Fatalf("unexpected $lt bound: %v", created)
	}
}
