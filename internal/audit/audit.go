// Package audit is the append-only compliance log: who touched which
// record, from where, and when. Entries are immutable once written; only
// the retention cleanup removes them, and only by age.
package audit

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	ActionAppointmentCreated = "appointment_created"
	ActionAppointmentRead    = "appointment_read"
	ActionAppointmentUpdated = "appointment_updated"
	ActionAppointmentDeleted = "appointment_deleted"
	ActionSpecialDateSet     = "special_date_set"
	ActionSpecialDateRemoved = "special_date_removed"
	ActionSettingsUpdated    = "settings_updated"
	ActionOperatorLogin      = "operator_login"
	ActionSystemStartup      = "system_startup"
	ActionSystemShutdown     = "system_shutdown"
	ActionRetentionCleanup   = "retention_cleanup"

	ObjectTypeAppointment = "appointment"
	ObjectTypeSpecialDate = "special_date"
	ObjectTypeSettings    = "settings"
	ObjectTypeSystem      = "system"
)

type Entry struct {
	Seq        int64          `bson:"_id" json:"seq"`
	Action     string         `bson:"action" json:"action"`
	ActorID    string         `bson:"actor_id,omitempty" json:"actorId,omitempty"`
	ObjectID   string         `bson:"object_id,omitempty" json:"objectId,omitempty"`
	ObjectType string         `bson:"object_type,omitempty" json:"objectType,omitempty"`
	Detail     map[string]any `bson:"detail,omitempty" json:"detail,omitempty"`
	IP         string         `bson:"ip,omitempty" json:"ip,omitempty"`
	UserAgent  string         `bson:"user_agent,omitempty" json:"userAgent,omitempty"`
	CreatedAt  time.Time      `bson:"created_at" json:"createdAt"`
}

// Record is the write-side input; Seq and CreatedAt are assigned by Log.
type Record struct {
	Action     string
	ActorID    string
	ObjectID   string
	ObjectType string
	Detail     map[string]any
	IP         string
	UserAgent  string
}

type Filter struct {
	Action     string
	ActorID    string
	ObjectID   string
	ObjectType string
	IP         string
	From       time.Time
	To         time.Time
}

type Trail struct {
	entries  *mongo.Collection
	counters *mongo.Collection
}

func New(entries, counters *mongo.Collection) *Trail {
	return &Trail{entries: entries, counters: counters}
}

// Log appends one entry and returns its sequence id. Callers on the HTTP
// path must treat a returned error as log-and-continue; audit storage
// failures never abort the request that triggered them.
func (t *Trail) Log(ctx context.Context, rec Record) (int64, error) {
	seq, err := t.nextSeq(ctx)
	if err != nil {
		return 0, err
	}

	entry := Entry{
		Seq:        seq,
		Action:     rec.Action,
		ActorID:    rec.ActorID,
		ObjectID:   rec.ObjectID,
		ObjectType: rec.ObjectType,
		Detail:     rec.Detail,
		IP:         rec.IP,
		UserAgent:  rec.UserAgent,
		CreatedAt:  time.Now().UTC(),
	}
	if _, err := t.entries.InsertOne(ctx, entry); err != nil {
		return 0, err
	}
	return seq, nil
}

func (t *Trail) nextSeq(ctx context.Context) (int64, error) {
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := t.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": "audit_log"},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		opts,
	).Decode(&counter)
	if err != nil {
		return 0, err
	}
	return counter.Seq, nil
}

// Query returns entries matching the filter, newest first (timestamp, then
// sequence id as tiebreak), plus the total match count for pagination.
func (t *Trail) Query(ctx context.Context, filter Filter, limit, offset int64) ([]Entry, int64, error) {
	query := filterToBSON(filter)
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(limit).
		SetSkip(offset)

	cursor, err := t.entries.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	items := make([]Entry, 0)
	for cursor.Next(ctx) {
		var entry Entry
		if err := cursor.Decode(&entry); err != nil {
			return nil, 0, err
		}
		items = append(items, entry)
	}
	if err := cursor.Err(); err != nil {
		return nil, 0, err
	}

	total, err := t.entries.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Cleanup deletes entries older than retentionDays and returns the count.
func (t *Trail) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	res, err := t.entries.DeleteMany(ctx, bson.M{"created_at": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func filterToBSON(filter Filter) bson.M {
	query := bson.M{}
	if filter.Action != "" {
		query["action"] = filter.Action
	}
	if filter.ActorID != "" {
		query["actor_id"] = filter.ActorID
	}
	if filter.ObjectID != "" {
		query["object_id"] = filter.ObjectID
	}
	if filter.ObjectType != "" {
		query["object_type"] = filter.ObjectType
	}
	if filter.IP != "" {
		query["ip"] = filter.IP
	}
	created := bson.M{}
	if !filter.From.IsZero() {
		created["$gte"] = filter.From
	}
	if !filter.To.IsZero() {
		created["$lt"] = filter.To
	}
	if len(created) > 0 {
		query["created_at"] = created
	}
	return query
}
