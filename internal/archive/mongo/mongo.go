// Package mongo archives daily summaries in MongoDB.
package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"vansales/internal/archive"
	"vansales/internal/report"
)

const collectionName = "daily_summaries"

// Archive implements archive.Archive on a MongoDB collection keyed by date.
type Archive struct {
	client *mongo.Client
	coll   *mongo.Collection
}

var _ archive.Archive = (*Archive)(nil)

// New connects to uri and verifies the connection.
func New(ctx context.Context, uri, dbName string) (*Archive, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	return &Archive{
		client: client,
		coll:   client.Database(dbName).Collection(collectionName),
	}, nil
}

// summaryDoc is the stored form. Amounts are kept as decimal strings so they
// round-trip exactly.
type summaryDoc struct {
	Date      string    `bson:"_id"`
	Sales     string    `bson:"sales"`
	Expenses  string    `bson:"expenses"`
	Profit    string    `bson:"profit"`
	Entries   int       `bson:"entries"`
	CreatedAt time.Time `bson:"createdAt"`
}

func toDoc(s report.DailySummary) summaryDoc {
	return summaryDoc{
		Date:      s.Date,
		Sales:     s.Sales.String(),
		Expenses:  s.Expenses.String(),
		Profit:    s.Profit.String(),
		Entries:   s.Entries,
		CreatedAt: s.CreatedAt.UTC(),
	}
}

func fromDoc(d summaryDoc) report.DailySummary {
	return report.DailySummary{
		Date:      d.Date,
		Sales:     parse(d.Sales),
		Expenses:  parse(d.Expenses),
		Profit:    parse(d.Profit),
		Entries:   d.Entries,
		CreatedAt: d.CreatedAt,
	}
}

func parse(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (a *Archive) Save(ctx context.Context, s report.DailySummary) error {
	_, err := a.coll.ReplaceOne(ctx, bson.M{"_id": s.Date}, toDoc(s), options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save daily summary %s: %w", s.Date, err)
	}
	return nil
}

func (a *Archive) List(ctx context.Context, limit int) ([]report.DailySummary, error) {
	if limit <= 0 {
		limit = archive.DefaultLimit
	}
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: -1}}).SetLimit(int64(limit))
	cur, err := a.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list daily summaries: %w", err)
	}
	var docs []summaryDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode daily summaries: %w", err)
	}
	out := make([]report.DailySummary, len(docs))
	for i, d := range docs {
		out[i] = fromDoc(d)
	}
	return out, nil
}

// Ping reports whether the server is reachable.
func (a *Archive) Ping(ctx context.Context) error {
	return a.client.Ping(ctx, nil)
}

// Close closes the MongoDB connection.
func (a *Archive) Close(ctx context.Context) error {
	return a.client.Disconnect(ctx)
}
