package source

import (
	"context"
	"errors"
	"iter"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultDateField is the document field used to bucket documents by day
const DefaultDateField = "createdAt"

// Collection is a mongodb source of documents, bucketed by a date field
type Collection struct {
	collection *mongo.Collection
	dateField  string
}

// NewCollection initializes and returns a Collection. An empty dateField means DefaultDateField.
func NewCollection(collection *mongo.Collection, dateField string) *Collection {
	if dateField == "" {
		dateField = DefaultDateField
	}
	return &Collection{
		collection: collection,
		dateField:  dateField,
	}
}

// FindAllFromDate resolves all documents dated on the supplied day, as canonical extended JSON
func (c *Collection) FindAllFromDate(ctx context.Context, date time.Time) StreamingResult {
	cursor, err := c.collection.Find(ctx, c.dayFilter(date))
	return &mongoStreamingResult{
		cursor: cursor,
		err:    err,
	}
}

// EarliestCreatedAt returns the earliest value of the date field in the underlying collection
func (c *Collection) EarliestCreatedAt(ctx context.Context) (time.Time, error) {
	res := c.collection.FindOne(
		ctx,
		bson.M{
			c.dateField: bson.M{
				"$exists": true,
			},
		},
		options.FindOne().
			SetSort(bson.M{c.dateField: 1}).
			SetProjection(bson.M{c.dateField: 1}),
	)
	var projection bson.M
	if err := res.Decode(&projection); err != nil {
		return time.Time{}, err
	}
	switch v := projection[c.dateField].(type) {
	case primitive.DateTime:
		return v.Time().UTC(), nil
	case time.Time:
		return v.UTC(), nil
	default:
		return time.Time{}, errors.New("date field is not a date")
	}
}

// DeleteAllFromDate removes all documents dated on the supplied day
func (c *Collection) DeleteAllFromDate(ctx context.Context, date time.Time) (int, error) {
	res, err := c.collection.DeleteMany(ctx, c.dayFilter(date))
	if err != nil {
		return 0, err
	}
	return int(res.DeletedCount), nil
}

func (c *Collection) dayFilter(date time.Time) bson.M {
	t := date.Truncate(time.Hour * 24)
	return bson.M{
		c.dateField: bson.M{
			"$gte": t,
			"$lt":  t.AddDate(0, 0, 1),
		},
	}
}

type StreamingResult interface {
	Iter(ctx context.Context) iter.Seq[[]byte]
	Err() error
}

type mongoStreamingResult struct {
	err    error
	cursor *mongo.Cursor
}

func (sr *mongoStreamingResult) Iter(ctx context.Context) iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		if sr.err != nil {
			return
		}

		defer func() {
			if err := sr.cursor.Err(); err != nil {
				sr.err = errors.Join(sr.err, err)
			}
			if err := sr.cursor.Close(ctx); err != nil {
				sr.err = errors.Join(sr.err, err)
			}
		}()

		for sr.cursor.Next(ctx) {
			doc, err := bson.MarshalExtJSON(sr.cursor.Current, true, false)
			if err != nil {
				sr.err = err
				return
			}

			if !yield(doc) {
				return
			}
		}
	}
}

func (sr *mongoStreamingResult) Err() error {
	return sr.err
}
