package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mbheramil/smart-seo-fixer/internal/job"
)

// MongoStore keeps jobs in a MongoDB collection. Deployments that
// already run the admin panel against MongoDB use this instead of the
// SQLite default.
type MongoStore struct {
	client *mongo.Client
	col    *mongo.Collection
}

type mongoJob struct {
	ID              string     `bson:"_id"`
	Type            string     `bson:"job_type"`
	Status          string     `bson:"status"`
	Items           []string   `bson:"items"`
	Options         bson.M     `bson:"options,omitempty"`
	TotalItems      int        `bson:"total_items"`
	ProcessedItems  int        `bson:"processed_items"`
	FailedItems     int        `bson:"failed_items"`
	FailedItemRefs  []string   `bson:"failed_item_refs,omitempty"`
	CancelRequested bool       `bson:"cancel_requested"`
	RetriedFrom     string     `bson:"retried_from,omitempty"`
	ClaimOwner      string     `bson:"claim_owner,omitempty"`
	ClaimedUntil    *time.Time `bson:"claimed_until,omitempty"`
	CreatedAt       time.Time  `bson:"created_at"`
	UpdatedAt       time.Time  `bson:"updated_at"`
	CompletedAt     *time.Time `bson:"completed_at,omitempty"`
}

// ConnectMongo dials MongoDB, verifies the connection, and returns a
// store backed by db "seofixer", collection "jobs".
func ConnectMongo(ctx context.Context, uri string) (*MongoStore, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(dialCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := client.Ping(dialCtx, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &MongoStore{
		client: client,
		col:    client.Database("seofixer").Collection("jobs"),
	}, nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) Create(ctx context.Context, j *job.Job) error {
	if j.ID == "" {
		j.ID = uuid.New().String()
	}
	if j.Status == "" {
		j.Status = job.StatusPending
	}
	now := time.Now().UTC()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	j.UpdatedAt = now
	j.TotalItems = len(j.Items)

	if _, err := s.col.InsertOne(ctx, toMongo(j)); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *MongoStore) Load(ctx context.Context, id string) (*job.Job, error) {
	var m mongoJob
	err := s.col.FindOne(ctx, bson.M{"_id": id}).Decode(&m)
	if err == mongo.ErrNoDocuments {
		return nil, job.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return fromMongo(&m), nil
}

func (s *MongoStore) Save(ctx context.Context, j *job.Job) error {
	j.UpdatedAt = time.Now().UTC()
	set := bson.M{
		"status":           j.Status,
		"processed_items":  j.ProcessedItems,
		"failed_items":     j.FailedItems,
		"failed_item_refs": j.FailedItemRefs,
		"updated_at":       j.UpdatedAt,
	}
	if !j.CompletedAt.IsZero() {
		set["completed_at"] = j.CompletedAt
	}
	res, err := s.col.UpdateOne(ctx, bson.M{"_id": j.ID}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if res.MatchedCount == 0 {
		return job.ErrNotFound
	}
	return nil
}

func (s *MongoStore) RequestCancel(ctx context.Context, id string) error {
	res, err := s.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"cancel_requested": true, "updated_at": time.Now().UTC()},
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if res.MatchedCount == 0 {
		return job.ErrNotFound
	}
	return nil
}

func (s *MongoStore) List(ctx context.Context, f Filter) ([]*job.Job, error) {
	filter := bson.M{}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.Type != "" {
		filter["job_type"] = f.Type
	}
	cur, err := s.col.Find(ctx, filter, options.Find().SetSort(bson.M{"created_at": 1}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer cur.Close(ctx)

	var out []*job.Job
	for cur.Next(ctx) {
		var m mongoJob
		if err := cur.Decode(&m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		out = append(out, fromMongo(&m))
	}
	return out, cur.Err()
}

// Claim is a single conditional update: either nobody holds the lease,
// the lease expired, or the caller already owns it.
func (s *MongoStore) Claim(ctx context.Context, id, owner string, until time.Time) error {
	now := time.Now().UTC()
	res, err := s.col.UpdateOne(ctx, bson.M{
		"_id": id,
		"$or": []bson.M{
			{"claim_owner": bson.M{"$in": []interface{}{nil, ""}}},
			{"claim_owner": owner},
			{"claimed_until": bson.M{"$lte": now}},
		},
	}, bson.M{
		"$set": bson.M{"claim_owner": owner, "claimed_until": until.UTC()},
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if res.MatchedCount == 0 {
		n, err := s.col.CountDocuments(ctx, bson.M{"_id": id})
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if n == 0 {
			return job.ErrNotFound
		}
		return job.ErrAlreadyRunning
	}
	return nil
}

func (s *MongoStore) Release(ctx context.Context, id, owner string) error {
	_, err := s.col.UpdateOne(ctx, bson.M{"_id": id, "claim_owner": owner}, bson.M{
		"$unset": bson.M{"claim_owner": "", "claimed_until": ""},
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func toMongo(j *job.Job) *mongoJob {
	m := &mongoJob{
		ID:              j.ID,
		Type:            j.Type,
		Status:          j.Status,
		Items:           j.Items,
		TotalItems:      j.TotalItems,
		ProcessedItems:  j.ProcessedItems,
		FailedItems:     j.FailedItems,
		FailedItemRefs:  j.FailedItemRefs,
		CancelRequested: j.CancelRequested,
		RetriedFrom:     j.RetriedFrom,
		CreatedAt:       j.CreatedAt,
		UpdatedAt:       j.UpdatedAt,
	}
	if j.Options != nil {
		m.Options = bson.M(j.Options)
	}
	if !j.CompletedAt.IsZero() {
		t := j.CompletedAt
		m.CompletedAt = &t
	}
	return m
}

func fromMongo(m *mongoJob) *job.Job {
	j := &job.Job{
		ID:              m.ID,
		Type:            m.Type,
		Status:          m.Status,
		Items:           m.Items,
		TotalItems:      m.TotalItems,
		ProcessedItems:  m.ProcessedItems,
		FailedItems:     m.FailedItems,
		FailedItemRefs:  m.FailedItemRefs,
		CancelRequested: m.CancelRequested,
		RetriedFrom:     m.RetriedFrom,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
	if m.Options != nil {
		j.Options = job.Options(m.Options)
	}
	if m.CompletedAt != nil {
		j.CompletedAt = *m.CompletedAt
	}
	return j
}
