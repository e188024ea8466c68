package archive_test

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/e-flux-platform/urlstream/internal/archive"
	"github.com/e-flux-platform/urlstream/internal/source"
	"github.com/e-flux-platform/urlstream/internal/storage"
	"github.com/e-flux-platform/urlstream/internal/testutil"
)

func TestArchiver_MongoDB(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := testutil.StartMongoDB(ctx, t)

	date := time.Date(2024, time.November, 1, 0, 0, 0, 0, time.UTC)

	doc1 := bson.M{
		"_id":       objectIDFromHex(t, "5d6fd699ee45770009e17140"),
		"createdAt": primitive.NewDateTimeFromTime(date.Add(time.Second * -1)),
	}
	doc2 := bson.M{
		"_id":       objectIDFromHex(t, "5d6fd8ec10ca90000998cf31"),
		"createdAt": primitive.NewDateTimeFromTime(date),
	}
	doc3 := bson.M{
		"_id":       objectIDFromHex(t, "5d6fdf658a583b0009929c06"),
		"createdAt": primitive.NewDateTimeFromTime(date.Add(time.Hour * 3)),
	}
	doc4 := bson.M{
		"_id":       objectIDFromHex(t, "5d6fdf85451f58001939950a"),
		"createdAt": primitive.NewDateTimeFromTime(date.Add(time.Hour * 24)),
	}

	// populate returns a fresh collection holding the four documents above
	populate := func(t *testing.T) *mongo.Collection {
		t.Helper()
		collection := client.Database(uuid.NewString()).Collection("test")
		_, err := collection.InsertMany(ctx, []any{doc1, doc2, doc3, doc4})
		require.NoError(t, err)
		return collection
	}

	t.Run("file destination", func(t *testing.T) {
		t.Parallel()

		collection := populate(t)
		baseDir := t.TempDir()

		target, err := storage.FromURL(ctx, fmt.Sprintf("file://%s", filepath.ToSlash(baseDir)))
		require.NoError(t, err)
		defer target.Close()

		src := source.NewCollection(collection, "")
		summary, err := archive.NewArchiver(src, target, archive.Options{Gzip: true}).Run(ctx, date.Add(time.Hour*24))
		require.NoError(t, err)
		assert.Equal(t, archive.Summary{Days: 2, Documents: 3, Deleted: 3}, summary)

		// Only doc4 remains
		ids := readMongoIDs(ctx, t, collection)
		require.Len(t, ids, 1)
		assert.Equal(t, "5d6fdf85451f58001939950a", ids[0].Hex())

		archived1 := readArchive(t, openFile(t, filepath.Join(baseDir, "2024/10/31.json.gz")))
		assert.Equal(t, []bson.M{doc1}, archived1)

		archived2 := readArchive(t, openFile(t, filepath.Join(baseDir, "2024/11/01.json.gz")))
		assert.Equal(t, []bson.M{doc2, doc3}, archived2)

		// The archived documents can be restored
		_, err = collection.InsertMany(ctx, []any{archived1[0], archived2[0], archived2[1]})
		require.NoError(t, err)
		assert.Len(t, readMongoIDs(ctx, t, collection), 4)

		earliest, err := src.EarliestCreatedAt(ctx)
		require.NoError(t, err)
		assert.Equal(t, date.Add(time.Second*-1), earliest)
	})

	t.Run("http destination", func(t *testing.T) {
		t.Parallel()

		collection := populate(t)

		var (
			mu    sync.Mutex
			files = map[string][]byte{}
		)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			b, err := io.ReadAll(r.Body)
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			mu.Lock()
			files[r.URL.Path] = b
			mu.Unlock()
			w.WriteHeader(http.StatusCreated)
		}))
		t.Cleanup(srv.Close)

		target, err := storage.FromURL(ctx, srv.URL+"/archive")
		require.NoError(t, err)

		src := source.NewCollection(collection, "")
		_, err = archive.NewArchiver(src, target, archive.Options{Gzip: true}).Run(ctx, date.Add(time.Hour*24))
		require.NoError(t, err)

		mu.Lock()
		defer mu.Unlock()
		require.Len(t, files, 2)
		assert.Equal(t, []bson.M{doc1}, readArchive(t, bytes.NewReader(files["/archive/2024/10/31.json.gz"])))
		assert.Equal(t, []bson.M{doc2, doc3}, readArchive(t, bytes.NewReader(files["/archive/2024/11/01.json.gz"])))
		assert.Len(t, readMongoIDs(ctx, t, collection), 1)
	})
}

func readMongoIDs(ctx context.Context, t *testing.T, collection *mongo.Collection) (ids []primitive.ObjectID) {
	t.Helper()

	cursor, err := collection.Find(ctx, bson.M{})
	require.NoError(t, err)

	var docs []struct {
		ID primitive.ObjectID `bson:"_id,omitempty"`
	}
	require.NoError(t, cursor.All(ctx, &docs))

	for _, doc := range docs {
		ids = append(ids, doc.ID)
	}
	return ids
}

func openFile(t *testing.T, path string) io.Reader {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = f.Close()
	})
	return f
}

func readArchive(t *testing.T, in io.Reader) (docs []bson.M) {
	t.Helper()

	r, err := gzip.NewReader(in)
	require.NoError(t, err)
	defer r.Close()

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		var doc bson.M
		require.NoError(t, bson.UnmarshalExtJSON(scanner.Bytes(), true, &doc))
		docs = append(docs, doc)
	}
	require.NoError(t, scanner.Err())

	return docs
}

func objectIDFromHex(t *testing.T, hex string) primitive.ObjectID {
	t.Helper()
	id, err := primitive.ObjectIDFromHex(hex)
	require.NoError(t, err)
	return id
}
